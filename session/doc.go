// Package session houses concrete implementations of core.SessionService.
// The interface itself (and the Session struct) live in the core package so
// that higher level packages (agents, runner) never depend on concrete
// storage.
//
// InMemoryService keeps sessions in a process local map. The sqlite
// sub-package provides a durable backend. Only the wiring layer decides
// which implementation to instantiate.
package session
