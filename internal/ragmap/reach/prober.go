// Package reach verifies that remote server endpoints answer HTTP at all,
// and schedules which servers get probed in each pass.
package reach

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Policy decides which HTTP statuses count as reachable.
type Policy string

const (
	// PolicyStrict treats 2xx, 3xx, 401, 403, 405 and 429 as reachable.
	PolicyStrict Policy = "strict"
	// PolicyLoose additionally accepts any 4xx except 404 and 410.
	PolicyLoose Policy = "loose"
)

// ParsePolicy validates a configured policy string.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyLoose:
		return PolicyLoose, nil
	default:
		return "", fmt.Errorf("unknown reachability policy %q (want strict or loose)", s)
	}
}

// ProbeResult is the outcome of probing one URL. Status is nil when no HTTP
// status was obtained at all.
type ProbeResult struct {
	OK     bool
	Status *int
	Method string
}

// Prober issues reachability probes. Redirects are never followed; a 3xx is
// itself a reachable answer.
type Prober struct {
	httpClient *http.Client
}

// NewProber builds a prober, reusing base's transport when given.
func NewProber(base *http.Client) *Prober {
	client := &http.Client{}
	if base != nil {
		client.Transport = base.Transport
	}
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Prober{httpClient: client}
}

// Probe checks url with a HEAD request and falls back to GET when HEAD is
// rejected with 405 or fails outright. Each method call has its own timeout,
// so Probe returns within 2x timeout in the worst case. A GET transport
// failure after HEAD produced a status falls back to the HEAD classification.
func (p *Prober) Probe(ctx context.Context, url string, timeout time.Duration, policy Policy) ProbeResult {
	headStatus, headErr := p.request(ctx, http.MethodHead, url, timeout)
	if headErr == nil && headStatus != http.StatusMethodNotAllowed {
		return classify(headStatus, http.MethodHead, policy)
	}

	getStatus, getErr := p.request(ctx, http.MethodGet, url, timeout)
	if getErr == nil {
		return classify(getStatus, http.MethodGet, policy)
	}
	if headErr == nil {
		return classify(headStatus, http.MethodHead, policy)
	}
	return ProbeResult{OK: false}
}

func (p *Prober) request(ctx context.Context, method, url string, timeout time.Duration) (int, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

func classify(status int, method string, policy Policy) ProbeResult {
	return ProbeResult{OK: isReachable(status, policy), Status: &status, Method: method}
}

func isReachable(status int, policy Policy) bool {
	switch {
	case status >= 200 && status < 400:
		return true
	case status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status == http.StatusMethodNotAllowed,
		status == http.StatusTooManyRequests:
		return true
	case status == http.StatusNotFound, status == http.StatusGone:
		return false
	case policy == PolicyLoose && status >= 400 && status < 500:
		return true
	default:
		return false
	}
}
