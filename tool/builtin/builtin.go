// Package builtin provides ready-made tools: calculator, echo, exit_loop,
// load_memory and session_state.
//
// Use All to register every builtin, or pick individual constructors.
package builtin

import "github.com/hupe1980/agentrun/tool"

// All returns one instance of every builtin tool.
func All() []tool.Tool {
	return []tool.Tool{
		NewCalculator(),
		NewEcho(),
		NewExitLoop(),
		NewLoadMemory(),
		NewSessionState(),
	}
}

// ByName returns the builtin registered under name.
func ByName(name string) (tool.Tool, bool) {
	for _, t := range All() {
		if t.Name() == name {
			return t, true
		}
	}

	return nil, false
}
