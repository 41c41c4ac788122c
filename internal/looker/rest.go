package looker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

// apiPrefix is prepended to every route; lookervault speaks API 4.0 only.
const apiPrefix = "/api/4.0"

// maxResponseSize caps response reads; dashboard payloads run to a few MB,
// nothing legitimate approaches this.
const maxResponseSize = 50 * 1024 * 1024

// Verify RESTClient implements Client at compile time
var _ Client = (*RESTClient)(nil)

// RESTClient implements Client over the Looker REST API with OAuth-style
// client-credential authentication. It is safe for concurrent use; workers
// of a session share one instance and one bearer token.
type RESTClient struct {
	cfg        Config
	httpClient *http.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewREST creates a client for the instance described by cfg.
func NewREST(cfg Config) *RESTClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RESTClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient returns a client using a custom HTTP client (tests).
func (c *RESTClient) WithHTTPClient(httpClient *http.Client) *RESTClient {
	return &RESTClient{cfg: c.cfg, httpClient: httpClient}
}

// BaseURL returns the instance URL this client talks to.
func (c *RESTClient) BaseURL() string {
	return c.cfg.BaseURL
}

// login exchanges client credentials for a bearer token. Looker expects
// the credentials form-encoded on the login route.
func (c *RESTClient) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(c.cfg.BaseURL, "/")+apiPrefix+"/login",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: login rejected (status %d)", ErrAuth, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: "login: " + string(body)}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return fmt.Errorf("parse login response: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("%w: login returned no access token", ErrAuth)
	}

	c.accessToken = token.AccessToken
	// Refresh a minute early so in-flight requests never race expiry.
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	return nil
}

// bearerToken returns a valid token, logging in or refreshing as needed.
func (c *RESTClient) bearerToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	if c.accessToken == "" || time.Now().After(c.tokenExpiry) {
		if err := c.login(ctx); err != nil {
			return "", err
		}
	}
	return c.accessToken, nil
}

// do performs one authenticated request and classifies the response. No
// retries happen here; transient failures surface to the orchestrators.
func (c *RESTClient) do(ctx context.Context, method, path string, params url.Values, payload any) ([]byte, error) {
	token, err := c.bearerToken(ctx)
	if err != nil {
		return nil, err
	}

	fullURL := strings.TrimSuffix(c.cfg.BaseURL, "/") + apiPrefix + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrRateLimited)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: %w (status %d)", method, path, ErrAuth, resp.StatusCode)
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(body), 500)}
	}
}

// List returns one page of content. Paginated types go through their
// search endpoint; the rest page through the collection route, which the
// API also bounds by limit/offset.
func (c *RESTClient) List(ctx context.Context, ct types.ContentType, filter ListFilter, offset, limit int) ([]map[string]any, bool, error) {
	if ct == types.TypeExplore {
		items, err := c.listExplores(ctx, offset, limit)
		return items, len(items) == limit, err
	}

	ep, err := routeFor(ct)
	if err != nil {
		return nil, false, err
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	path := ep.collectionPath
	if ep.searchPath != "" {
		path = ep.searchPath
	}
	if filter.FolderID != "" && ep.folderParam != "" {
		params.Set(ep.folderParam, filter.FolderID)
	}

	body, err := c.do(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, false, err
	}

	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, false, fmt.Errorf("parse %s list: %w", ct, err)
	}
	return items, len(items) == limit, nil
}

// listExplores flattens the explores out of the LookML model listing.
// Explore IDs take the model-qualified "model::explore" form.
func (c *RESTClient) listExplores(ctx context.Context, offset, limit int) ([]map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, "/lookml_models", nil, nil)
	if err != nil {
		return nil, err
	}
	var models []map[string]any
	if err := json.Unmarshal(body, &models); err != nil {
		return nil, fmt.Errorf("parse lookml_models: %w", err)
	}

	var explores []map[string]any
	for _, model := range models {
		modelName, _ := model["name"].(string)
		nested, _ := model["explores"].([]any)
		for _, e := range nested {
			explore, ok := e.(map[string]any)
			if !ok {
				continue
			}
			name, _ := explore["name"].(string)
			out := make(map[string]any, len(explore)+2)
			for k, v := range explore {
				out[k] = v
			}
			out["id"] = modelName + "::" + name
			out["model_name"] = modelName
			explores = append(explores, out)
		}
	}

	if offset >= len(explores) {
		return nil, nil
	}
	end := offset + limit
	if end > len(explores) {
		end = len(explores)
	}
	return explores[offset:end], nil
}

// Get fetches one object by ID.
func (c *RESTClient) Get(ctx context.Context, ct types.ContentType, id string) (map[string]any, error) {
	if ct == types.TypeExplore {
		model, explore, ok := strings.Cut(id, "::")
		if !ok {
			return nil, fmt.Errorf("explore id %q is not model::explore", id)
		}
		return c.getObject(ctx, "/lookml_models/"+url.PathEscape(model)+"/explores/"+url.PathEscape(explore))
	}

	ep, err := routeFor(ct)
	if err != nil {
		return nil, err
	}
	return c.getObject(ctx, ep.collectionPath+"/"+url.PathEscape(id))
}

func (c *RESTClient) getObject(ctx context.Context, path string) (map[string]any, error) {
	body, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return obj, nil
}

// Exists probes for an object without transferring it: a fields-restricted
// GET that folds 404 into false.
func (c *RESTClient) Exists(ctx context.Context, ct types.ContentType, id string) (bool, error) {
	ep, err := routeFor(ct)
	if err != nil {
		return false, err
	}
	params := url.Values{}
	params.Set("fields", "id")
	_, err = c.do(ctx, http.MethodGet, ep.collectionPath+"/"+url.PathEscape(id), params, nil)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create posts a new object and returns the destination-assigned ID.
func (c *RESTClient) Create(ctx context.Context, ct types.ContentType, payload map[string]any) (string, error) {
	ep, err := routeFor(ct)
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, http.MethodPost, ep.collectionPath, nil, payload)
	if err != nil {
		return "", err
	}
	return idFromResponse(string(ct), body)
}

// Update patches an existing object. ErrNotFound surfaces unchanged so
// restoration can fall through to create.
func (c *RESTClient) Update(ctx context.Context, ct types.ContentType, id string, payload map[string]any) error {
	ep, err := routeFor(ct)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, ep.collectionPath+"/"+url.PathEscape(id), nil, payload)
	return err
}

// CreateQuery creates a standalone query object.
func (c *RESTClient) CreateQuery(ctx context.Context, payload map[string]any) (string, error) {
	body, err := c.do(ctx, http.MethodPost, "/queries", nil, payload)
	if err != nil {
		return "", err
	}
	return idFromResponse("query", body)
}

// Me returns the authenticated user; the cheapest connectivity probe.
func (c *RESTClient) Me(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/user")
}

// Versions returns the API versions the instance supports.
func (c *RESTClient) Versions(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/versions")
}

// idFromResponse pulls the assigned id out of a create response. Looker
// mixes string and numeric IDs across versions.
func idFromResponse(kind string, body []byte) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return "", fmt.Errorf("parse %s create response: %w", kind, err)
	}
	switch id := obj["id"].(type) {
	case string:
		if id != "" {
			return id, nil
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("%s create response carried no id", kind)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
