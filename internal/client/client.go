// Package client is the typed HTTP client ragctl uses to talk to a running
// catalog API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	v0 "github.com/ragmap-dev/ragmap/internal/ragmap/api/handlers/v0"
	"github.com/ragmap-dev/ragmap/internal/ragmap/ingest"
	"github.com/ragmap-dev/ragmap/internal/ragmap/install"
	"github.com/ragmap-dev/ragmap/internal/ragmap/reach"
	"github.com/ragmap-dev/ragmap/internal/ragmap/service"
	"github.com/ragmap-dev/ragmap/internal/ragmap/stats"
	"github.com/ragmap-dev/ragmap/internal/ragmap/types"
)

const defaultBaseURL = "http://localhost:8080"

// Client is a lightweight API client for the catalog service.
type Client struct {
	BaseURL    string
	httpClient *http.Client
	token      string
}

// APIError carries the status and error envelope of a failed API call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.Status)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// NewClient constructs a client with explicit baseURL and trigger token.
// Empty arguments fall back to RAGCTL_API_BASE_URL and RAGCTL_INGEST_TOKEN.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("RAGCTL_API_BASE_URL")
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if token == "" {
		token = os.Getenv("RAGCTL_INGEST_TOKEN")
	}
	return &Client{
		BaseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) newRequest(method, pathWithQuery string, body io.Reader) (*http.Request, error) {
	fullURL := strings.TrimRight(c.BaseURL, "/") + pathWithQuery
	req, err := http.NewRequest(method, fullURL, body)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read up to 1KB of body and pick the error envelope out of it when
		// there is one.
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(errBody))}
		var envelope struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(errBody, &envelope) == nil && envelope.Error != "" {
			apiErr.Message = envelope.Error
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) getJSON(pathWithQuery string, out any) error {
	req, err := c.newRequest(http.MethodGet, pathWithQuery, nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, out)
}

// postTrigger posts to a token-guarded trigger endpoint.
func (c *Client) postTrigger(path string, in, out any) error {
	var body io.Reader
	if in != nil {
		inBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal %T: %w", in, err)
		}
		body = bytes.NewReader(inBytes)
	}
	req, err := c.newRequest(http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("X-Ingest-Token", c.token)
	}
	return c.doJSON(req, out)
}

// Health fetches the liveness document.
func (c *Client) Health() (*v0.HealthBody, error) {
	var out v0.HealthBody
	if err := c.getJSON("/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListServers fetches one page of the latest catalog snapshot.
func (c *Client) ListServers(cursor string, limit int) (*v0.ServerListBody, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v0.1/servers"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out v0.ServerListBody
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServer fetches a single catalog entry; version may be "latest".
func (c *Client) GetServer(name, version string) (*types.CatalogEntry, error) {
	if version == "" {
		version = "latest"
	}
	path := "/v0.1/servers/" + url.PathEscape(name) + "/versions/" + url.PathEscape(version)

	var out types.CatalogEntry
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetServerVersions fetches every visible version of a server.
func (c *Client) GetServerVersions(name string) (*v0.ServerListBody, error) {
	path := "/v0.1/servers/" + url.PathEscape(name) + "/versions"

	var out v0.ServerListBody
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchOptions narrows a search. Zero values are omitted from the request;
// tri-state booleans travel as "true"/"false" strings.
type SearchOptions struct {
	Limit      int
	MinScore   int
	ServerKind string
	Categories string
	Transport  string
	Reachable  string
	HasRemote  string
}

// Search runs a ranked catalog search.
func (c *Client) Search(query string, opts SearchOptions) (*v0.SearchBody, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.MinScore > 0 {
		q.Set("minScore", strconv.Itoa(opts.MinScore))
	}
	if opts.ServerKind != "" {
		q.Set("serverKind", opts.ServerKind)
	}
	if opts.Categories != "" {
		q.Set("categories", opts.Categories)
	}
	if opts.Transport != "" {
		q.Set("transport", opts.Transport)
	}
	if opts.Reachable != "" {
		q.Set("reachable", opts.Reachable)
	}
	if opts.HasRemote != "" {
		q.Set("hasRemote", opts.HasRemote)
	}

	path := "/rag/search"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out v0.SearchBody
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TopOptions narrows the curated shortlist. MinScore is a pointer because an
// explicit zero widens the server-side default of 10.
type TopOptions struct {
	Limit      int
	MinScore   *int
	ServerKind string
	Reachable  string
}

// Top fetches the quality-ordered shortlist.
func (c *Client) Top(opts TopOptions) (*v0.TopBody, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.MinScore != nil {
		q.Set("minScore", strconv.Itoa(*opts.MinScore))
	}
	if opts.ServerKind != "" {
		q.Set("serverKind", opts.ServerKind)
	}
	if opts.Reachable != "" {
		q.Set("reachable", opts.Reachable)
	}

	path := "/rag/top"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out v0.TopBody
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Categories fetches the enrichment categories in use.
func (c *Client) Categories() (*v0.CategoriesBody, error) {
	var out v0.CategoriesBody
	if err := c.getJSON("/rag/categories", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Install fetches the install projection for a server's latest version.
func (c *Client) Install(name string) (*install.Projection, error) {
	var out install.Projection
	if err := c.getJSON("/rag/install?name="+url.QueryEscape(name), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Explain fetches the enrichment verdict for a server's latest version.
func (c *Client) Explain(name string) (*service.Explanation, error) {
	path := "/rag/servers/" + url.PathEscape(name) + "/explain"

	var out service.Explanation
	if err := c.getJSON(path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches catalog coverage statistics.
func (c *Client) Stats() (*stats.Snapshot, error) {
	var out stats.Snapshot
	if err := c.getJSON("/rag/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunIngest triggers a synchronous ingestion run and returns its statistics.
func (c *Client) RunIngest(mode string) (*ingest.RunResult, error) {
	in := map[string]string{}
	if mode != "" {
		in["mode"] = mode
	}

	var out ingest.RunResult
	if err := c.postTrigger("/internal/ingest/run", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunReachability triggers a synchronous reachability refresh.
func (c *Client) RunReachability(limit int) (*reach.RefreshResult, error) {
	in := map[string]int{}
	if limit > 0 {
		in["limit"] = limit
	}

	var out reach.RefreshResult
	if err := c.postTrigger("/internal/reachability/run", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
