// Package runtime implements the workflow execution engine. A Runtime owns
// the workflow directory's memory store and history log, drives the status
// state machine, and exposes the blocking "ask a human" primitive with its
// dual local/remote resolution. Resumability is "run again with memory
// preserved": a FAILED or STOPPED run restarts with its persisted state
// intact rather than resuming at a step index.
package runtime
