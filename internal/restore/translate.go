package restore

import (
	"context"
	"errors"

	"github.com/z3z1ma/lookervault-sub000/internal/codec"
	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// fkField is one foreign-key field of a payload. Required fields that
// cannot be translated raise a DependencyError; optional ones (ownership)
// are dropped so the destination assigns its own default.
type fkField struct {
	key      string
	target   types.ContentType
	required bool
}

// scalarFKs lists the single-valued foreign keys walked per content type.
var scalarFKs = map[types.ContentType][]fkField{
	types.TypeFolder: {
		{key: "parent_id", target: types.TypeFolder, required: true},
		{key: "creator_id", target: types.TypeUser},
	},
	types.TypeLook: {
		{key: "folder_id", target: types.TypeFolder, required: true},
		{key: "user_id", target: types.TypeUser},
	},
	types.TypeDashboard: {
		{key: "folder_id", target: types.TypeFolder, required: true},
		{key: "user_id", target: types.TypeUser},
	},
	types.TypeBoard: {
		{key: "user_id", target: types.TypeUser},
	},
	types.TypeScheduledPlan: {
		{key: "user_id", target: types.TypeUser},
		{key: "look_id", target: types.TypeLook, required: true},
		{key: "dashboard_id", target: types.TypeDashboard, required: true},
	},
	types.TypeRole: {
		{key: "permission_set_id", target: types.TypePermissionSet, required: true},
		{key: "model_set_id", target: types.TypeModelSet, required: true},
	},
}

// listFKs lists the array-valued foreign keys walked per content type.
var listFKs = map[types.ContentType][]fkField{
	types.TypeDashboard: {
		{key: "look_ids", target: types.TypeLook, required: true},
	},
	types.TypeGroup: {
		{key: "user_ids", target: types.TypeUser},
	},
}

// translatePayload rewrites every known foreign key in place from source
// IDs to destination IDs recorded during earlier restores. Dashboard
// elements get their look references translated too.
func (o *Orchestrator) translatePayload(ctx context.Context, sourceInstance string, ct types.ContentType, id string, payload map[string]any) error {
	for _, fk := range scalarFKs[ct] {
		if err := o.translateScalar(ctx, sourceInstance, ct, id, payload, fk); err != nil {
			return err
		}
	}
	for _, fk := range listFKs[ct] {
		if err := o.translateList(ctx, sourceInstance, ct, id, payload, fk); err != nil {
			return err
		}
	}

	if ct == types.TypeDashboard {
		elements, _ := payload["dashboard_elements"].([]any)
		for _, el := range elements {
			element, ok := el.(map[string]any)
			if !ok {
				continue
			}
			fk := fkField{key: "look_id", target: types.TypeLook, required: true}
			if err := o.translateScalar(ctx, sourceInstance, ct, id, element, fk); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) translateScalar(ctx context.Context, sourceInstance string, ct types.ContentType, id string, payload map[string]any, fk fkField) error {
	sourceID, ok := codec.StringField(payload, fk.key)
	if !ok {
		return nil
	}
	destID, err := o.lookupMapping(ctx, sourceInstance, fk.target, sourceID)
	if err != nil {
		return err
	}
	if destID == "" {
		if fk.required {
			return &DependencyError{ContentType: ct, ContentID: id, Field: fk.key, RefType: fk.target, RefID: sourceID}
		}
		delete(payload, fk.key)
		return nil
	}
	payload[fk.key] = destID
	return nil
}

func (o *Orchestrator) translateList(ctx context.Context, sourceInstance string, ct types.ContentType, id string, payload map[string]any, fk fkField) error {
	raw, ok := payload[fk.key].([]any)
	if !ok {
		return nil
	}
	out := make([]any, 0, len(raw))
	for _, entry := range raw {
		sourceID, ok := codec.StringValue(entry)
		if !ok {
			out = append(out, entry)
			continue
		}
		destID, err := o.lookupMapping(ctx, sourceInstance, fk.target, sourceID)
		if err != nil {
			return err
		}
		if destID == "" {
			if fk.required {
				return &DependencyError{ContentType: ct, ContentID: id, Field: fk.key, RefType: fk.target, RefID: sourceID}
			}
			continue
		}
		out = append(out, destID)
	}
	payload[fk.key] = out
	return nil
}

// lookupMapping returns the destination ID for a source ID, or "" when no
// mapping exists. Repository failures surface as storage errors.
func (o *Orchestrator) lookupMapping(ctx context.Context, sourceInstance string, ct types.ContentType, sourceID string) (string, error) {
	destID, err := o.store.GetDestinationID(ctx, sourceInstance, ct, sourceID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return "", storeFailure(err)
	}
	return destID, nil
}
