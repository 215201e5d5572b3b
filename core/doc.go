// Package core defines the shared data model of the workflow runtime:
// run status, history events, the interaction variants and their parsed
// responses, the agent contract, identifier helpers and the error taxonomy.
// It has no dependencies on the runtime, stores or relay packages so every
// other package can import it freely.
package core
