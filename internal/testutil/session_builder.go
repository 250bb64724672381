package testutil

import (
	"maps"

	"github.com/hupe1980/agentrun/core"
)

// SessionBuilder assembles a *core.Session with seeded state and history.
//
//	sess := NewSessionBuilder("s1").State("topic", "go").Say("user", "hi").Build()
type SessionBuilder struct {
	key    core.SessionKey
	state  map[string]any
	events []core.Event
}

// NewSessionBuilder starts a session for app "app" and user "user".
func NewSessionBuilder(id string) *SessionBuilder {
	return &SessionBuilder{
		key:   core.SessionKey{AppName: "app", UserID: "user", SessionID: id},
		state: map[string]any{},
	}
}

func (b *SessionBuilder) Key(k core.SessionKey) *SessionBuilder {
	b.key = k
	return b
}

func (b *SessionBuilder) State(key string, val any) *SessionBuilder {
	b.state[key] = val
	return b
}

func (b *SessionBuilder) Event(ev core.Event) *SessionBuilder {
	return b.Events(ev)
}

func (b *SessionBuilder) Events(evs ...core.Event) *SessionBuilder {
	b.events = append(b.events, evs...)
	return b
}

// Say appends a root-branch text event from author.
func (b *SessionBuilder) Say(author, text string) *SessionBuilder {
	return b.Events(NewEventBuilder().Author(author).Text(text).Build())
}

// Build numbers events that carry no sequence number in history order.
func (b *SessionBuilder) Build() *core.Session {
	s := core.NewSession(b.key)
	maps.Copy(s.State, b.state)

	for i, ev := range b.events {
		if ev.SequenceNo == 0 {
			ev.SequenceNo = int64(i + 1)
		}

		s.Events = append(s.Events, ev)
	}

	return s
}
