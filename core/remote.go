package core

// RemoteAnswer is an interaction response delivered through the relay. The
// response was already shaped by the submitting browser; the runtime only
// matches it against the pending interaction by slug.
type RemoteAnswer struct {
	Slug      string   `json:"slug"`
	TargetKey string   `json:"target_key"`
	Response  Response `json:"response"`
}
