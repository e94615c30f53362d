package conflict

import (
	"sort"

	"github.com/jackchouchani/inventoryApp-sub001/internal/syncx"
)

// conflictingFields returns the fields changed on both sides to different
// values: original != local, original != remote and local != remote.
// Only fields the local mutation touched are considered; bookkeeping
// fields never conflict.
func conflictingFields(original, local, remote map[string]any) []string {
	var out []string
	for _, k := range sortedKeys(local) {
		if syncx.IsBookkeeping(k) {
			continue
		}
		o, n, r := original[k], local[k], remote[k]
		if !syncx.Equal(o, n) && !syncx.Equal(o, r) && !syncx.Equal(n, r) {
			out = append(out, k)
		}
	}
	return out
}

// divergentFields returns the fields of want whose value differs in got
func divergentFields(want, got map[string]any) []string {
	var out []string
	for _, k := range sortedKeys(want) {
		if syncx.IsBookkeeping(k) {
			continue
		}
		if !syncx.Equal(want[k], got[k]) {
			out = append(out, k)
		}
	}
	return out
}

// overlay returns base with patch applied on top
func overlay(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
