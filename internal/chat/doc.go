// Package chat implements the core of the room relay: the registry of
// live rooms, the per-connection session state machine, and the wire
// event types they exchange.
//
// The package is transport-agnostic. All shared state lives in the
// Registry and is reached only through its serialized operations; a
// Session belongs to exactly one connection handler and turns inbound
// events into tagged Outcomes without touching the network itself.
package chat
