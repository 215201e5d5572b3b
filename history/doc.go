// Package history implements the append-only audit log of a workflow run:
// a newest-first JSONL file plus a poll-based watcher that detects external
// hand-edits while ignoring the process's own writes.
package history
