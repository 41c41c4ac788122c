package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"
	"sort"
)

// checksumPrefix tags every checksum string with its algorithm.
const checksumPrefix = "sha256:"

// queryExcludedKeys are top-level query fields that carry no semantic
// weight for change detection: server-assigned identifiers, timestamps,
// permission maps, and share URLs all change between instances without
// the query itself changing.
var queryExcludedKeys = map[string]bool{
	"id":                     true,
	"client_id":              true,
	"slug":                   true,
	"share_url":              true,
	"expanded_share_url":     true,
	"url":                    true,
	"can":                    true,
	"has_table_calculations": true,
	"created_at":             true,
	"updated_at":             true,
}

// Checksum returns the tagged SHA-256 of raw bytes.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return checksumPrefix + hex.EncodeToString(sum[:])
}

// NewChecksumHash returns the hash Checksum is built on, for callers that
// checksum data too large to hold in one buffer.
func NewChecksumHash() hash.Hash {
	return sha256.New()
}

// FormatChecksum renders an incremental hash in the same tagged form
// Checksum returns.
func FormatChecksum(h hash.Hash) string {
	return checksumPrefix + hex.EncodeToString(h.Sum(nil))
}

// CanonicalQueryHash computes a content hash for an embedded query
// definition. Two queries hash identically iff they are semantically
// equal: keys are sorted at every level (encoding/json sorts map keys),
// homogeneous string lists are sorted, and server-assigned fields are
// excluded. The result carries the same "sha256:" tag as Checksum.
func CanonicalQueryHash(query map[string]any) (string, error) {
	canonical := canonicalizeQuery(query)
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("canonicalize query: %w", err)
	}
	return Checksum(data), nil
}

// canonicalizeQuery strips excluded keys from the top level and
// recursively normalizes the remainder.
func canonicalizeQuery(query map[string]any) map[string]any {
	out := make(map[string]any, len(query))
	for k, v := range query {
		if queryExcludedKeys[k] {
			continue
		}
		out[k] = canonicalizeValue(v)
	}
	return out
}

func canonicalizeValue(v any) any {
	switch val := normalize(v).(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = canonicalizeValue(item)
		}
		return out
	case []any:
		return canonicalizeList(val)
	default:
		return val
	}
}

// canonicalizeList sorts lists made up entirely of strings; element order
// in those lists (pivots, sorts expressed elsewhere) is not semantic for
// change detection. Mixed or structured lists keep their order.
func canonicalizeList(list []any) []any {
	strs := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			out := make([]any, len(list))
			for i, elem := range list {
				out[i] = canonicalizeValue(elem)
			}
			return out
		}
		strs = append(strs, s)
	}
	sort.Strings(strs)
	out := make([]any, len(strs))
	for i, s := range strs {
		out[i] = s
	}
	return out
}
