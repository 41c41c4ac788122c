// Package types defines the core data model for lookervault: content
// types, content items, sessions, checkpoints, dead-letter items, and
// ID mappings. Everything persisted by the storage layer is declared here.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentType identifies a kind of Looker content. The order returned by
// RestorationOrder is the authoritative dependency order: a type is never
// restored before every type that precedes it has terminated.
type ContentType string

// Content type constants. Values match the wire format used in YAML
// exports and the content_type column.
const (
	TypeUser          ContentType = "USER"
	TypeGroup         ContentType = "GROUP"
	TypeRole          ContentType = "ROLE"
	TypePermissionSet ContentType = "PERMISSION_SET"
	TypeModelSet      ContentType = "MODEL_SET"
	TypeFolder        ContentType = "FOLDER"
	TypeLookMLModel   ContentType = "LOOKML_MODEL"
	TypeLook          ContentType = "LOOK"
	TypeDashboard     ContentType = "DASHBOARD"
	TypeBoard         ContentType = "BOARD"
	TypeScheduledPlan ContentType = "SCHEDULED_PLAN"

	// TypeExplore is recognized for extraction but is read-only in Looker
	// and never restored.
	TypeExplore ContentType = "EXPLORE"
)

// restorationOrder is the fixed dependency order for restoration:
// identity first, then permission/model sets (roles reference them at the
// API level but Looker accepts role creation before set attachment, so
// the practical order is the one the original tool used), then folders,
// models, content, and finally the surfaces that reference content.
var restorationOrder = []ContentType{
	TypeUser,
	TypeGroup,
	TypeRole,
	TypePermissionSet,
	TypeModelSet,
	TypeFolder,
	TypeLookMLModel,
	TypeLook,
	TypeDashboard,
	TypeBoard,
	TypeScheduledPlan,
}

// RestorationOrder returns the dependency-ordered content types. The
// returned slice is a copy; callers may filter it freely.
func RestorationOrder() []ContentType {
	out := make([]ContentType, len(restorationOrder))
	copy(out, restorationOrder)
	return out
}

// AllContentTypes returns every known content type, including EXPLORE.
func AllContentTypes() []ContentType {
	return append(RestorationOrder(), TypeExplore)
}

// Rank returns the position of the type in the restoration order, or -1
// for types that are not restorable (EXPLORE, unknown).
func (ct ContentType) Rank() int {
	for i, t := range restorationOrder {
		if t == ct {
			return i
		}
	}
	return -1
}

// IsValid reports whether ct is a known content type.
func (ct ContentType) IsValid() bool {
	return ct == TypeExplore || ct.Rank() >= 0
}

// Restorable reports whether content of this type can be written back to
// a Looker instance. EXPLORE is read-only.
func (ct ContentType) Restorable() bool {
	return ct.Rank() >= 0
}

// Paginated reports whether the Looker API exposes a search-style
// paginated listing for this type. Paginated types are eligible for the
// parallel fetch strategy during extraction.
func (ct ContentType) Paginated() bool {
	switch ct {
	case TypeDashboard, TypeLook, TypeUser, TypeGroup, TypeRole:
		return true
	}
	return false
}

// FolderFilterable reports whether the Looker API supports server-side
// folder filtering for this type. Only dashboards and looks do; other
// types are filtered in memory after fetch.
func (ct ContentType) FolderFilterable() bool {
	return ct == TypeDashboard || ct == TypeLook
}

// DirName returns the directory name used for this type in full-strategy
// exports (lowercase form of the enum value).
func (ct ContentType) DirName() string {
	return strings.ToLower(string(ct))
}

// ParseContentType parses a content type from user or file input. It
// accepts any case and both "scheduled_plan" and "scheduled-plan" forms.
func ParseContentType(s string) (ContentType, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	ct := ContentType(normalized)
	if !ct.IsValid() {
		return "", fmt.Errorf("unknown content type: %q", s)
	}
	return ct, nil
}

// ContentItem is a single persisted Looker object plus its metadata.
// ContentData holds the deterministic msgpack encoding of the object as
// returned by the Looker API; ID is the Looker-assigned identifier.
type ContentItem struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"content_type"`
	Name        string      `json:"name"`
	OwnerID     *string     `json:"owner_id,omitempty"`
	FolderID    *string     `json:"folder_id,omitempty"`
	ParentID    *string     `json:"parent_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Deleted     bool        `json:"deleted,omitempty"`
	ContentData []byte      `json:"-"`
	ContentSize int64       `json:"content_size"`
}

// Validate checks that the item can be persisted.
func (c *ContentItem) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("content item id is required")
	}
	if !c.ContentType.IsValid() {
		return fmt.Errorf("invalid content type: %q", c.ContentType)
	}
	if len(c.ContentData) == 0 {
		return fmt.Errorf("content item %s has no content data", c.ID)
	}
	return nil
}

// SessionStatus is the lifecycle state of an extraction or restoration
// session.
type SessionStatus string

// Session status constants.
const (
	StatusPending   SessionStatus = "pending"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
	StatusCancelled SessionStatus = "cancelled"
)

// IsValid reports whether s is a known session status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether the status is a terminal state.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ExtractionSession records one extract run. Config holds the JSON-encoded
// effective configuration; Metadata is a free-form JSON bag for summary
// counters.
type ExtractionSession struct {
	ID           string          `json:"id"`
	StartedAt    time.Time       `json:"started_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Status       SessionStatus   `json:"status"`
	TotalItems   int             `json:"total_items"`
	SuccessCount int             `json:"success_count"`
	ErrorCount   int             `json:"error_count"`
	Config       json.RawMessage `json:"config,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// RestorationSession records one restore run against a destination
// instance. SourceInstance is empty for same-instance restores.
type RestorationSession struct {
	ID                  string          `json:"id"`
	StartedAt           time.Time       `json:"started_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	Status              SessionStatus   `json:"status"`
	TotalItems          int             `json:"total_items"`
	SuccessCount        int             `json:"success_count"`
	ErrorCount          int             `json:"error_count"`
	SourceInstance      string          `json:"source_instance,omitempty"`
	DestinationInstance string          `json:"destination_instance"`
	Config              json.RawMessage `json:"config,omitempty"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
}

// CheckpointData is the JSON payload of a checkpoint row. CompletedIDs
// grows monotonically until the checkpoint is marked complete; LastOffset
// is set only for paginated extraction.
type CheckpointData struct {
	CompletedIDs []string `json:"completed_ids"`
	LastOffset   *int     `json:"last_offset,omitempty"`
}

// CompletedSet returns the completed IDs as a set for resume filtering.
func (d *CheckpointData) CompletedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(d.CompletedIDs))
	for _, id := range d.CompletedIDs {
		set[id] = struct{}{}
	}
	return set
}

// Checkpoint records resumable progress for a (session, content type)
// pair. The natural uniqueness key is (SessionID, ContentType, StartedAt);
// a later save with the same key overwrites the earlier row atomically.
type Checkpoint struct {
	ID           int64          `json:"id"`
	SessionID    string         `json:"session_id"`
	ContentType  ContentType    `json:"content_type"`
	Data         CheckpointData `json:"checkpoint_data"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	ItemCount    int            `json:"item_count"`
	ErrorCount   int            `json:"error_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Complete reports whether this checkpoint's content type was drained.
func (c *Checkpoint) Complete() bool {
	return c.CompletedAt != nil
}

// DeadLetterItem is a restoration failure that exhausted its retries (or
// failed a non-retriable check). It carries the original payload so an
// operator can retry or repair by hand.
type DeadLetterItem struct {
	ID           int64           `json:"id"`
	SessionID    string          `json:"session_id"`
	ContentID    string          `json:"content_id"`
	ContentType  ContentType     `json:"content_type"`
	ContentData  []byte          `json:"-"`
	ErrorMessage string          `json:"error_message"`
	ErrorType    ErrorKind       `json:"error_type"`
	StackTrace   string          `json:"stack_trace,omitempty"`
	RetryCount   int             `json:"retry_count"`
	FailedAt     time.Time       `json:"failed_at"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
}

// IDMapping records that content SourceID on SourceInstance was created as
// DestinationID on the destination. Mappings are upserted; a re-create
// overwrites with the latest destination ID.
type IDMapping struct {
	SourceInstance string      `json:"source_instance"`
	ContentType    ContentType `json:"content_type"`
	SourceID       string      `json:"source_id"`
	DestinationID  string      `json:"destination_id"`
	CreatedAt      time.Time   `json:"created_at"`
	SessionID      string      `json:"session_id,omitempty"`
}

// RestoreAction describes what a restoration attempt did.
type RestoreAction string

// Restore action constants.
const (
	ActionCreated RestoreAction = "created"
	ActionUpdated RestoreAction = "updated"
	ActionSkipped RestoreAction = "skipped"
	ActionFailed  RestoreAction = "failed"
)

// RestorationResult is the outcome of restoring a single content item.
type RestorationResult struct {
	ContentID     string        `json:"content_id"`
	ContentType   ContentType   `json:"content_type"`
	Action        RestoreAction `json:"action"`
	DestinationID string        `json:"destination_id,omitempty"`
	Attempts      int           `json:"attempts"`
	Duration      time.Duration `json:"duration"`
	Err           error         `json:"-"`
}

// ErrorKind classifies a failure for the dead-letter queue and the retry
// layer. Retryable kinds are rate_limited and transient.
type ErrorKind string

// Error kind constants.
const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTransient   ErrorKind = "transient"
	KindNotFound    ErrorKind = "not_found"
	KindValidation  ErrorKind = "validation"
	KindDependency  ErrorKind = "dependency"
	KindStorage     ErrorKind = "storage"
	KindAuth        ErrorKind = "auth"
	KindCancelled   ErrorKind = "cancelled"
	KindUnknown     ErrorKind = "unknown"
)

// Retryable reports whether failures of this kind should re-enter the
// retry path rather than going straight to the DLQ.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindTransient
}

// ContentFilter narrows ListContent and CountContent results.
type ContentFilter struct {
	FolderIDs      []string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// DLQFilter narrows ListDLQ results. Zero values mean "no constraint".
type DLQFilter struct {
	SessionID   string
	ContentType ContentType
	Since       *time.Time
	Limit       int
}
