// Package upstream pages through the upstream MCP registry. Entries are
// passed through as raw blobs; normalization happens in the ingestion
// pipeline so unknown upstream fields survive the trip.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxPageLimit is the page size cap the upstream registry imposes.
const maxPageLimit = 100

// bodyExcerptLimit bounds how much of an error body is carried in errors.
const bodyExcerptLimit = 512

// UpstreamError reports a non-2xx registry response.
type UpstreamError struct {
	Status      int
	BodyExcerpt string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream registry returned status %d: %s", e.Status, e.BodyExcerpt)
}

// ShapeError reports a response that did not validate as the expected
// {servers: [...], metadata?: {...}} envelope.
type ShapeError struct {
	Detail string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("upstream response shape invalid: %s", e.Detail)
}

// PageRequest selects one page of the upstream catalog.
type PageRequest struct {
	Cursor       string
	Limit        int
	UpdatedSince *time.Time
}

// Page is one upstream page of raw server entries.
type Page struct {
	Entries    []json.RawMessage
	NextCursor string
	Count      int
}

// Client fetches catalog pages from an upstream registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client for the given registry base URL. A nil
// httpClient gets a bounded default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v0/servers") {
		baseURL = baseURL + "/v0/servers"
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

// pageEnvelope mirrors the upstream list envelope. Servers is a pointer so a
// missing key is distinguishable from an empty page.
type pageEnvelope struct {
	Servers  *[]json.RawMessage `json:"servers"`
	Metadata *pageMetadata      `json:"metadata"`
}

type pageMetadata struct {
	NextCursor string `json:"nextCursor"`
	Count      int    `json:"count"`
}

// FetchPage requests a single page. Non-2xx statuses surface as
// *UpstreamError, invalid envelopes as *ShapeError.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	limit := req.Limit
	if limit <= 0 || limit > maxPageLimit {
		limit = maxPageLimit
	}

	fetchURL := fmt.Sprintf("%s?limit=%d", c.baseURL, limit)
	if req.Cursor != "" {
		fetchURL = fmt.Sprintf("%s&cursor=%s", fetchURL, url.QueryEscape(req.Cursor))
	}
	if req.UpdatedSince != nil {
		fetchURL = fmt.Sprintf("%s&updated_since=%s", fetchURL, url.QueryEscape(req.UpdatedSince.UTC().Format(time.RFC3339)))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch upstream page: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, bodyExcerptLimit))
		return nil, &UpstreamError{
			Status:      resp.StatusCode,
			BodyExcerpt: strings.TrimSpace(string(excerpt)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &ShapeError{Detail: err.Error()}
	}
	if envelope.Servers == nil {
		return nil, &ShapeError{Detail: "missing servers array"}
	}

	page := &Page{Entries: *envelope.Servers}
	if envelope.Metadata != nil {
		page.NextCursor = envelope.Metadata.NextCursor
		page.Count = envelope.Metadata.Count
	}
	if page.Count == 0 {
		page.Count = len(page.Entries)
	}
	return page, nil
}
