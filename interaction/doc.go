// Package interaction implements the pure protocol layer for human
// questions: validation and normalization of interaction specs, prompt
// rendering, deterministic answer matching with an optional injected
// interpreter fallback, and the human-editable interaction file format.
// It has no model or transport dependency.
package interaction
