// Package codec handles the binary encoding of content payloads and the
// canonical hashing used for query change detection.
//
// Content payloads are generic maps (the JSON shape returned by the Looker
// API). They are stored as msgpack with sorted map keys so that equal
// payloads always produce identical bytes, regardless of whether they
// arrived from the API, from a YAML file, or from a previous decode.
package codec

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a content payload deterministically. The payload is
// normalized first (see normalize) so that semantically equal payloads
// from different sources encode to identical bytes.
func Encode(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return nil, fmt.Errorf("cannot encode nil payload")
	}
	normalized, ok := normalize(payload).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload did not normalize to a map")
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	if err := enc.Encode(normalized); err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes content bytes back into a generic payload map. The
// result is normalized: all nested maps are map[string]any, integers are
// int64, floats are float64.
func Decode(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot decode empty content data")
	}
	var raw any
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("msgpack decode: %w", err)
	}
	payload, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("content data is not a map (got %T)", raw)
	}
	return payload, nil
}

// normalize collapses the type variance between msgpack, JSON, and YAML
// decoders into one canonical in-memory shape:
//
//   - map keys become strings, nested maps become map[string]any
//   - every integer kind becomes int64, float32 becomes float64
//   - time.Time (produced by YAML timestamp parsing) becomes an RFC3339
//     string, matching the string form the Looker API returns
//
// Without this, the same logical payload would encode differently
// depending on which parser produced it.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}
		return out
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}

// StringField returns payload[key] as a string when present and non-empty.
// Numeric IDs are formatted, matching how the Looker API mixes string and
// integer identifiers across versions.
func StringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok || v == nil {
		return "", false
	}
	return StringValue(v)
}

// StringValue renders a scalar payload value as a string ID.
func StringValue(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, s != ""
	case int:
		return fmt.Sprintf("%d", s), true
	case int64:
		return fmt.Sprintf("%d", s), true
	case float64:
		// JSON numbers arrive as float64; IDs are integral in practice.
		return fmt.Sprintf("%.0f", s), true
	default:
		return "", false
	}
}

// TimeField parses payload[key] as an RFC3339 timestamp.
func TimeField(payload map[string]any, key string) (time.Time, bool) {
	s, ok := StringField(payload, key)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
