package pack

import (
	"fmt"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// elementTypes are the dashboard element kinds the Looker write API
// accepts.
var elementTypes = map[string]bool{
	"vis":    true,
	"text":   true,
	"look":   true,
	"button": true,
}

// refreshIntervals is the closed set of refresh strings Looker accepts on
// dashboards and their elements. Empty means no auto refresh.
var refreshIntervals = map[string]bool{
	"":           true,
	"10 seconds": true,
	"30 seconds": true,
	"1 minute":   true,
	"5 minutes":  true,
	"15 minutes": true,
	"30 minutes": true,
	"1 hour":     true,
	"2 hours":    true,
	"4 hours":    true,
	"8 hours":    true,
	"12 hours":   true,
	"1 day":      true,
}

// validateContentFile applies the write-model checks one file must pass
// before import: the required-field schema for its type, agreement between
// the payload ID and the metadata db_id, and the dashboard enum checks.
func validateContentFile(ct types.ContentType, dbID string, payload map[string]any) error {
	if err := codec.ValidatePayload(ct, payload); err != nil {
		return err
	}
	if id, _ := codec.PayloadID(ct, payload); id != dbID {
		return fmt.Errorf("payload id %q does not match db_id %q", id, dbID)
	}
	if ct == types.TypeDashboard {
		return validateDashboard(payload)
	}
	return nil
}

func validateDashboard(payload map[string]any) error {
	if err := checkRefreshInterval(payload); err != nil {
		return err
	}
	elements, _ := payload["dashboard_elements"].([]any)
	for i, raw := range elements {
		el, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("dashboard_elements[%d] is not a mapping", i)
		}
		if t, ok := codec.StringField(el, "type"); ok && !elementTypes[t] {
			return fmt.Errorf("dashboard_elements[%d] has unknown type %q", i, t)
		}
		if err := checkRefreshInterval(el); err != nil {
			return fmt.Errorf("dashboard_elements[%d]: %w", i, err)
		}
	}
	return nil
}

func checkRefreshInterval(m map[string]any) error {
	raw, present := m["refresh_interval"]
	if !present || raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok || !refreshIntervals[s] {
		return fmt.Errorf("invalid refresh_interval %v", raw)
	}
	return nil
}
