// Package util contains small shared helpers.
package util

// CloneMap returns a shallow copy of m. A nil map clones to an empty,
// writable map.
func CloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StripUnderscored returns a copy of m without underscore-prefixed keys.
// Such keys carry bookkeeping meant for the audit trail, not for workflow
// code.
func StripUnderscored(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		out[k] = v
	}
	return out
}
