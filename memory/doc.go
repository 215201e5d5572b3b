// Package memory implements the workflow-scoped state store: a flat
// key/value map persisted as one JSON document with debounced writes, so a
// burst of synchronous mutations collapses into a single disk write. The
// persisted document also carries the run status and last error so a
// workflow directory can be inspected without starting a run.
package memory
