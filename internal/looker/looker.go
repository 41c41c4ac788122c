// Package looker wraps the consumed surface of the Looker API: paginated
// listing, per-ID fetch, create/update/exists per content type, and the
// connectivity probes.
//
// The Client interface is the seam the orchestrators depend on. The REST
// implementation is deliberately thin: it performs no retries and no rate
// limiting of its own; both live in the orchestrators, which share a
// session-scoped limiter. Payloads are generic maps in the JSON shape the
// API returns; the codec package owns their binary form.
package looker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// DefaultTimeout bounds each API request.
const DefaultTimeout = 30 * time.Second

// ListFilter narrows a List call. FolderID is honored server-side only for
// dashboards and looks; other types ignore it.
type ListFilter struct {
	FolderID string
}

// Client is the Looker API surface the core consumes.
//
// List returns one page of items plus a hasMore flag; an empty page means
// the offset is past the end. Exists probes without transferring the full
// object. Create returns the destination-assigned ID. Update returns
// ErrNotFound when the target does not exist, letting restoration fall
// through to create.
type Client interface {
	List(ctx context.Context, ct types.ContentType, filter ListFilter, offset, limit int) (items []map[string]any, hasMore bool, err error)
	Get(ctx context.Context, ct types.ContentType, id string) (map[string]any, error)
	Exists(ctx context.Context, ct types.ContentType, id string) (bool, error)
	Create(ctx context.Context, ct types.ContentType, payload map[string]any) (newID string, err error)
	Update(ctx context.Context, ct types.ContentType, id string, payload map[string]any) error

	// CreateQuery creates a standalone query object and returns its ID.
	// The pack engine uses it to materialize modified queries.
	CreateQuery(ctx context.Context, payload map[string]any) (string, error)

	// Connectivity probes.
	Me(ctx context.Context) (map[string]any, error)
	Versions(ctx context.Context) (map[string]any, error)
}

// Config holds the connection settings for a Looker instance. Credentials
// come exclusively from the environment and are never persisted.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// ConfigFromEnv reads the standard Looker SDK environment variables:
// LOOKERSDK_BASE_URL, LOOKERSDK_CLIENT_ID, LOOKERSDK_CLIENT_SECRET.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		BaseURL:      os.Getenv("LOOKERSDK_BASE_URL"),
		ClientID:     os.Getenv("LOOKERSDK_CLIENT_ID"),
		ClientSecret: os.Getenv("LOOKERSDK_CLIENT_SECRET"),
		Timeout:      DefaultTimeout,
	}
	if cfg.BaseURL == "" {
		return cfg, fmt.Errorf("LOOKERSDK_BASE_URL is not set")
	}
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return cfg, fmt.Errorf("LOOKERSDK_CLIENT_ID and LOOKERSDK_CLIENT_SECRET must be set")
	}
	return cfg, nil
}
