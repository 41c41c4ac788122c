package pack

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// metadataKey is the reserved top-level key carrying the export metadata
// block inside every content file.
const metadataKey = "_metadata"

// fileMetadata is the closed `_metadata` schema. Unknown keys in the block
// are rejected when packing, so typos never silently become content.
type fileMetadata struct {
	DBID        string            `yaml:"db_id"`
	ContentType types.ContentType `yaml:"content_type"`
	ExportedAt  string            `yaml:"exported_at"`
	ContentSize int64             `yaml:"content_size"`
	Checksum    string            `yaml:"checksum"`
	FolderPath  string            `yaml:"folder_path,omitempty"`
}

// metadataKeys is the closed key set of the `_metadata` block.
var metadataKeys = map[string]bool{
	"db_id":        true,
	"content_type": true,
	"exported_at":  true,
	"content_size": true,
	"checksum":     true,
	"folder_path":  true,
}

// canonicalContent serializes a payload to its canonical YAML form: map
// keys sorted at every level, strings quoted whenever a plain rendering
// would re-parse as another type. Identical payloads always produce
// identical bytes, so the checksum of this form detects content edits
// while ignoring cosmetic ones (key order, comments, whitespace).
func canonicalContent(payload map[string]any) ([]byte, error) {
	data, err := yaml.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}
	return data, nil
}

// renderFile produces the bytes of one content file: the canonical payload
// serialization followed by the `_metadata` block, which together form a
// single YAML mapping. The metadata checksum is filled in from the
// canonical payload bytes.
func renderFile(payload map[string]any, meta fileMetadata) ([]byte, error) {
	// The block is reserved; a payload carrying one would corrupt the file.
	delete(payload, metadataKey)

	content, err := canonicalContent(payload)
	if err != nil {
		return nil, err
	}
	meta.Checksum = codec.Checksum(content)

	metaBlock, err := yaml.Marshal(map[string]fileMetadata{metadataKey: meta})
	if err != nil {
		return nil, fmt.Errorf("serialize metadata block: %w", err)
	}
	return append(content, metaBlock...), nil
}

// parseFile splits a content file into its payload and metadata block.
// Syntax errors (including duplicate keys, which yaml.v3 rejects) and
// metadata schema violations are returned as-is for aggregation.
func parseFile(data []byte) (map[string]any, *fileMetadata, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("file is empty")
	}

	block, present := raw[metadataKey]
	if !present {
		return nil, nil, fmt.Errorf("missing %s block", metadataKey)
	}
	rawMeta, ok := block.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%s block is not a mapping", metadataKey)
	}
	meta, err := parseMetadata(rawMeta)
	if err != nil {
		return nil, nil, err
	}

	delete(raw, metadataKey)
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("file has no content fields")
	}
	return raw, meta, nil
}

func parseMetadata(raw map[string]any) (*fileMetadata, error) {
	for key := range raw {
		if !metadataKeys[key] {
			return nil, fmt.Errorf("unknown %s key %q", metadataKey, key)
		}
	}

	meta := &fileMetadata{}
	if id, ok := codec.StringField(raw, "db_id"); ok {
		meta.DBID = id
	} else {
		return nil, fmt.Errorf("%s missing db_id", metadataKey)
	}

	rawType, _ := raw["content_type"].(string)
	ct, err := types.ParseContentType(rawType)
	if err != nil {
		return nil, fmt.Errorf("%s content_type: %w", metadataKey, err)
	}
	meta.ContentType = ct

	checksum, ok := codec.StringField(raw, "checksum")
	if !ok {
		return nil, fmt.Errorf("%s missing checksum", metadataKey)
	}
	meta.Checksum = checksum

	if s, ok := codec.StringField(raw, "exported_at"); ok {
		meta.ExportedAt = s
	}
	if s, ok := codec.StringField(raw, "folder_path"); ok {
		meta.FolderPath = s
	}
	meta.ContentSize = intField(raw, "content_size")
	return meta, nil
}

// intField reads a numeric metadata value leniently; YAML parses integers
// as int but hand-edited files may carry other numeric forms.
func intField(raw map[string]any, key string) int64 {
	switch v := raw[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
