// Package server implements the HTTP and WebSocket transport for the
// room relay.
//
// The implementation is organized into specialized files for
// configuration, hub management, clients, routing, and HTTP handlers to
// keep the codebase maintainable and testable as the project grows. The
// room and session semantics themselves live in internal/chat; this
// package moves bytes and owns connection lifecycles.
package server
