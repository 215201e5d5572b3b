// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug
// any structured logger. It also offers a richer RelayLogger with contextual
// helpers (workflow, component) and domain specific logging helpers for
// agent invocations and relay calls.
package logging
