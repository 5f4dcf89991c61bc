package paperless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	DefaultTimeout = 30 * time.Second

	correspondentsPath = "/correspondents/"
	tagsPath           = "/tags/"
)

var errNotVisible = errors.New("entity not visible yet")

// Client is an HTTP client for the Paperless-ngx REST API
type Client struct {
	baseURL    string
	token      string
	username   string
	password   string
	httpClient *http.Client

	lookupAttempts uint
	lookupDelay    time.Duration
}

// Option configures a Client
type Option func(*Client)

// WithToken authenticates with a Paperless API token
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBasicAuth authenticates with a username and password
func WithBasicAuth(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithTimeout sets the timeout of the underlying HTTP client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithConflictLookup controls how often a name is looked up again after a
// create was rejected because the entity already exists. At least one lookup
// is always made.
func WithConflictLookup(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		if attempts == 0 {
			attempts = 1
		}
		c.lookupAttempts = attempts
		c.lookupDelay = delay
	}
}

// NewClient creates a new API client. baseURL is the API root, e.g.
// http://localhost:8000/api
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		lookupAttempts: 3,
		lookupDelay:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetDocument fetches a document and resolves its tag names
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	if id == "" {
		return nil, fmt.Errorf("document id cannot be empty")
	}

	var resp documentResponse
	if err := c.get(ctx, "/documents/"+url.PathEscape(id)+"/", nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch document %s: %w", id, err)
	}

	doc := &Document{
		ID:            resp.ID,
		Title:         resp.Title,
		Correspondent: resp.Correspondent,
	}
	if resp.Created != nil {
		doc.Created = *resp.Created
	}

	tags, err := c.tagsByID(ctx, resp.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tags of document %s: %w", id, err)
	}
	doc.Tags = tags

	return doc, nil
}

// GetOrCreateCorrespondent returns the id of the correspondent with the given
// name, creating it when none exists
func (c *Client) GetOrCreateCorrespondent(ctx context.Context, name string) (int, error) {
	id, err := c.getOrCreate(ctx, correspondentsPath, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get or create correspondent %q: %w", name, err)
	}
	return id, nil
}

// GetOrCreateTag returns the id of the tag with the given name, creating it
// when none exists
func (c *Client) GetOrCreateTag(ctx context.Context, name string) (int, error) {
	id, err := c.getOrCreate(ctx, tagsPath, name)
	if err != nil {
		return 0, fmt.Errorf("failed to get or create tag %q: %w", name, err)
	}
	return id, nil
}

// UpdateDocument applies a partial update to a document
func (c *Client) UpdateDocument(ctx context.Context, id string, updates UpdateSet) error {
	if id == "" {
		return fmt.Errorf("document id cannot be empty")
	}
	if len(updates) == 0 {
		return nil
	}

	if err := c.patch(ctx, "/documents/"+url.PathEscape(id)+"/", updates, nil); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	return nil
}

// getOrCreate looks a name up and creates it when missing. A create rejected
// because the name already exists (a concurrent run won the race) falls back
// to looking the name up again, so at most one entity is ever created.
func (c *Client) getOrCreate(ctx context.Context, path, name string) (int, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("name cannot be empty")
	}

	id, found, err := c.findByName(ctx, path, name)
	if err != nil {
		return 0, err
	}
	if found {
		return id, nil
	}

	var created EntityRef
	createErr := c.post(ctx, path, map[string]any{"name": name}, &created)
	if createErr == nil {
		return created.ID, nil
	}
	if !isConflict(createErr) {
		return 0, createErr
	}

	id, err = retry.DoWithData(
		func() (int, error) {
			id, found, err := c.findByName(ctx, path, name)
			if err != nil {
				return 0, retry.Unrecoverable(err)
			}
			if !found {
				return 0, fmt.Errorf("create of %q was rejected: %w", name, errNotVisible)
			}
			return id, nil
		},
		retry.Context(ctx),
		retry.Attempts(c.lookupAttempts),
		retry.Delay(c.lookupDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return 0, fmt.Errorf("%w (create rejected: %w)", err, createErr)
	}
	return id, nil
}

// findByName runs a case-insensitive exact lookup, preferring an exact-case match
func (c *Client) findByName(ctx context.Context, path, name string) (int, bool, error) {
	query := url.Values{}
	query.Set("name__iexact", name)

	var resp listResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return 0, false, err
	}

	if len(resp.Results) == 0 {
		return 0, false, nil
	}
	for _, result := range resp.Results {
		if result.Name == name {
			return result.ID, true, nil
		}
	}
	return resp.Results[0].ID, true, nil
}

// tagsByID resolves tag ids to references, keeping the given order
func (c *Client) tagsByID(ctx context.Context, ids []int) ([]EntityRef, error) {
	if len(ids) == 0 {
		return []EntityRef{}, nil
	}

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}
	query := url.Values{}
	query.Set("id__in", strings.Join(parts, ","))
	query.Set("page_size", strconv.Itoa(len(ids)))

	var resp listResponse
	if err := c.get(ctx, tagsPath, query, &resp); err != nil {
		return nil, err
	}

	names := make(map[int]string, len(resp.Results))
	for _, tag := range resp.Results {
		names[tag.ID] = tag.Name
	}

	refs := make([]EntityRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, EntityRef{ID: id, Name: names[id]})
	}
	return refs, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result any) error {
	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, target, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPost, path, body, result)
}

func (c *Client) patch(ctx context.Context, path string, body, result any) error {
	return c.do(ctx, http.MethodPatch, path, body, result)
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return c.handleResponse(req, resp, result)
}

func (c *Client) authorize(req *http.Request) {
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Token "+c.token)
	case c.username != "":
		req.SetBasicAuth(c.username, c.password)
	}
}

func (c *Client) handleResponse(req *http.Request, resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Method:     req.Method,
			Path:       req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
