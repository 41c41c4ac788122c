package codec

import (
	"fmt"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// requiredFields is the per-type required-field schema applied before a
// payload is written to a Looker instance. LookML models are keyed by
// name rather than a numeric id.
var requiredFields = map[types.ContentType][]string{
	types.TypeUser:          {"id"},
	types.TypeGroup:         {"id", "name"},
	types.TypeRole:          {"id", "name"},
	types.TypePermissionSet: {"id", "name"},
	types.TypeModelSet:      {"id", "name"},
	types.TypeFolder:        {"id", "name"},
	types.TypeLookMLModel:   {"name"},
	types.TypeLook:          {"id", "title"},
	types.TypeDashboard:     {"id", "title"},
	types.TypeBoard:         {"id", "title"},
	types.TypeScheduledPlan: {"id", "name"},
	types.TypeExplore:       {"id"},
}

// RequiredFields returns the required payload fields for a content type.
func RequiredFields(ct types.ContentType) []string {
	fields := requiredFields[ct]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// PayloadID returns the identifier of a payload: the "id" field, or the
// "name" field for LookML models, which the API keys by name.
func PayloadID(ct types.ContentType, payload map[string]any) (string, bool) {
	if id, ok := StringField(payload, "id"); ok {
		return id, true
	}
	if ct == types.TypeLookMLModel {
		return StringField(payload, "name")
	}
	return "", false
}

// ValidatePayload checks that a decoded payload satisfies the required
// field schema for its content type. It returns the first missing field.
func ValidatePayload(ct types.ContentType, payload map[string]any) error {
	if payload == nil {
		return fmt.Errorf("%s payload is empty", ct)
	}
	for _, field := range requiredFields[ct] {
		if _, ok := StringField(payload, field); !ok {
			return fmt.Errorf("%s payload missing required field %q", ct, field)
		}
	}
	return nil
}

// DisplayName extracts the human-friendly name out of a payload, trying
// the fields each content type actually uses.
func DisplayName(ct types.ContentType, payload map[string]any) string {
	for _, key := range []string{"title", "name", "display_name", "email", "label"} {
		if s, ok := StringField(payload, key); ok {
			return s
		}
	}
	if id, ok := StringField(payload, "id"); ok {
		return string(ct) + " " + id
	}
	return string(ct)
}
