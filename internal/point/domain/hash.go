package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// HashDimensions canonicalizes a dimension map and returns its hex digest.
// Key order never matters: keys are sorted before serialization. A nil or
// empty map hashes to one fixed digest that cannot collide with any
// non-empty map, so "no dimensions" points dedupe against each other.
func HashDimensions(dimensions map[string]any) string {
	var b strings.Builder
	b.WriteByte('{')
	if len(dimensions) > 0 {
		keys := make([]string, 0, len(dimensions))
		for k := range dimensions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(&b, k)
			b.WriteByte(':')
			writeJSON(&b, dimensions[k])
		}
	}
	b.WriteByte('}')

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeJSON(b *strings.Builder, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		// Unserializable values can only come from in-process callers; fold
		// them into a stable placeholder rather than failing the hash.
		raw = []byte(`"?"`)
	}
	b.Write(raw)
}
