// Package memory contains concrete core.MemoryService implementations. The
// service interface and MemoryEntry type reside in the core package; depend
// on core.MemoryService in your code and select an implementation (like the
// in-memory one below) at wiring time.
package memory
