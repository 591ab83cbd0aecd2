// Package correlator matches a submitted prompt to its eventual
// completion by polling the backend's message list.
//
// The completion heuristic approximates an external, unreliable "done"
// signal: a placeholder check avoids returning transient status text, and
// a stability counter detects exchanges carried entirely by tool calls.
// The heuristic is a pure function over poll snapshots so it can be
// tested without timers.
package correlator
