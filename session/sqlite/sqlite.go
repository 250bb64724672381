// Package sqlite provides a durable core.SessionService on top of SQLite.
//
// Events are stored one row per event keyed by (app, user, session, seq).
// Payloads, actions and the session state blob are CBOR encoded. AppendEvent
// runs in a single transaction that checks the sequence number, inserts the
// event and merges its state delta, so a crash never leaves a half applied
// append behind.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/codec"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/logging"
)

//go:embed schema.sql
var schema string

// Options configures the SQLite session service.
type Options struct {
	// BusyTimeout is how long a writer waits on a locked database.
	BusyTimeout time.Duration
	Logger      logging.Logger
}

// Service is a core.SessionService persisted in a SQLite database file.
type Service struct {
	conn   *sql.DB
	logger logging.Logger
}

// Open opens (or creates) the database at path and applies the schema.
// A leading "~/" is expanded to the user's home directory.
func Open(path string, optFns ...func(o *Options)) (*Service, error) {
	opts := Options{
		BusyTimeout: 5 * time.Second,
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		path = filepath.Join(home, path[2:])
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// One connection serializes writers inside the process and keeps the
	// per-connection pragmas below in effect.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout.Milliseconds()),
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Service{conn: conn, logger: opts.Logger}, nil
}

// Close closes the database.
func (s *Service) Close() error {
	return s.conn.Close()
}

// Create makes a new session; an empty sessionID requests a generated one.
func (s *Service) Create(ctx context.Context, appName, userID, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		sessionID = util.NewID()
	}

	sess := core.NewSession(core.SessionKey{AppName: appName, UserID: userID, SessionID: sessionID})

	state, err := codec.Marshal(sess.State)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO sessions (app_name, user_id, session_id, state, last_seq, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT DO NOTHING
	`

	res, err := s.conn.ExecContext(ctx, q, appName, userID, sessionID, state,
		formatTime(sess.Created), formatTime(sess.Updated))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if n == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionExists, sess.Key)
	}

	s.logger.Debug("session.sqlite.created", "session", sess.Key.String())

	return sess, nil
}

// Get loads the session with its full event log.
func (s *Service) Get(ctx context.Context, key core.SessionKey) (*core.Session, error) {
	const q = `
		SELECT state, created_at, updated_at
		FROM sessions
		WHERE app_name = ? AND user_id = ? AND session_id = ?
	`

	var (
		state            []byte
		created, updated string
	)

	err := s.conn.QueryRowContext(ctx, q, key.AppName, key.UserID, key.SessionID).Scan(&state, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	sess := core.NewSession(key)

	if err := decodeState(state, &sess.State); err != nil {
		return nil, err
	}

	if sess.Created, err = parseTime(created); err != nil {
		return nil, err
	}

	if sess.Updated, err = parseTime(updated); err != nil {
		return nil, err
	}

	events, err := s.listEvents(ctx, key)
	if err != nil {
		return nil, err
	}

	sess.Events = events

	return sess, nil
}

// AppendEvent durably appends ev and applies its state delta in one
// transaction. Partial events are ignored.
func (s *Service) AppendEvent(ctx context.Context, key core.SessionKey, ev core.Event) (err error) {
	if ev.Partial {
		return nil
	}

	payload, err := codec.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	var actions []byte
	if !ev.Actions.IsZero() {
		if actions, err = codec.Marshal(ev.Actions); err != nil {
			return fmt.Errorf("encode actions: %w", err)
		}
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var (
		lastSeq int64
		state   []byte
	)

	err = tx.QueryRowContext(ctx,
		`SELECT last_seq, state FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	).Scan(&lastSeq, &state)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	if err != nil {
		return err
	}

	if ev.SequenceNo <= lastSeq {
		return fmt.Errorf("%w: %d after %d", core.ErrSequenceConflict, ev.SequenceNo, lastSeq)
	}

	const insert = `
		INSERT INTO events (app_name, user_id, session_id, seq, id, invocation_id, branch, author, timestamp, turn_complete, payload, actions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err = tx.ExecContext(ctx, insert,
		key.AppName, key.UserID, key.SessionID, ev.SequenceNo, ev.ID, ev.InvocationID, ev.Branch,
		ev.Author, formatTime(ev.Timestamp), ev.TurnComplete, payload, actions,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if len(ev.Actions.StateDelta) > 0 {
		merged := map[string]any{}
		if err = decodeState(state, &merged); err != nil {
			return err
		}

		for k, v := range ev.Actions.StateDelta {
			merged[k] = v
		}

		if state, err = codec.Marshal(merged); err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE sessions SET last_seq = ?, state = ?, updated_at = ? WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		ev.SequenceNo, state, formatTime(time.Now()), key.AppName, key.UserID, key.SessionID,
	); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	return tx.Commit()
}

// ListEvents returns the session's events ordered by sequence number.
func (s *Service) ListEvents(ctx context.Context, key core.SessionKey) ([]core.Event, error) {
	var exists int

	err := s.conn.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, key)
	}

	if err != nil {
		return nil, err
	}

	return s.listEvents(ctx, key)
}

// Delete removes a session and its events.
func (s *Service) Delete(ctx context.Context, key core.SessionKey) error {
	_, err := s.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE app_name = ? AND user_id = ? AND session_id = ?`,
		key.AppName, key.UserID, key.SessionID,
	)

	return err
}

// List returns the keys of a user's sessions, most recently updated first.
func (s *Service) List(ctx context.Context, appName, userID string) ([]core.SessionKey, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT session_id FROM sessions WHERE app_name = ? AND user_id = ? ORDER BY updated_at DESC`,
		appName, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]core.SessionKey, 0)

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}

		keys = append(keys, core.SessionKey{AppName: appName, UserID: userID, SessionID: id})
	}

	return keys, rows.Err()
}

func (s *Service) listEvents(ctx context.Context, key core.SessionKey) ([]core.Event, error) {
	const query = `
		SELECT seq, id, invocation_id, branch, author, timestamp, turn_complete, payload, actions
		FROM events
		WHERE app_name = ? AND user_id = ? AND session_id = ?
		ORDER BY seq
	`

	rows, err := s.conn.QueryContext(ctx, query, key.AppName, key.UserID, key.SessionID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]core.Event, 0)

	for rows.Next() {
		var (
			ev               core.Event
			ts               string
			payload, actions []byte
		)

		if err := rows.Scan(&ev.SequenceNo, &ev.ID, &ev.InvocationID, &ev.Branch, &ev.Author, &ts,
			&ev.TurnComplete, &payload, &actions); err != nil {
			return nil, err
		}

		if ev.Timestamp, err = parseTime(ts); err != nil {
			return nil, err
		}

		if err := codec.Unmarshal(payload, &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of event %s: %w", ev.ID, err)
		}

		if len(actions) > 0 {
			if err := codec.Unmarshal(actions, &ev.Actions); err != nil {
				return nil, fmt.Errorf("decode actions of event %s: %w", ev.ID, err)
			}
		}

		events = append(events, ev)
	}

	return events, rows.Err()
}

func decodeState(data []byte, state *map[string]any) error {
	if len(data) == 0 {
		return nil
	}

	if err := codec.Unmarshal(data, state); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	if *state == nil {
		*state = map[string]any{}
	}

	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }
