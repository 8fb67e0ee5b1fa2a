package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tockloth/region-elevation-engine/internal/tilegeom"
)

// HTTPFetcher fetches a provider's tiles over HTTP, grounded on the
// teacher-pack's esri/googleearth clients (http.NewRequest + status
// code check). A token-bucket rate.Limiter throttles outgoing requests
// proactively; the Registry's cooldown map (§4.4.5) is the reactive
// layer that kicks in only after the server itself signals a rate
// limit (429, or 401/403, see FetchTile) —
// together they match the "two complementary rate-limit mechanisms"
// design note in §9.
type HTTPFetcher struct {
	BaseURL     string // e.g. "https://example-dem-provider.test/tiles"
	Client      *http.Client
	Limiter     *rate.Limiter
	BearerToken string // empty if RequiresCredential is false
}

// NewHTTPFetcher builds a fetcher with a requestsPerSecond token
// bucket and the given per-request timeout (§6.5
// request_timeout_seconds, default 60s if timeout <= 0).
func NewHTTPFetcher(baseURL string, requestsPerSecond float64, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		Limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// FetchTile implements Fetcher.
func (f *HTTPFetcher) FetchTile(ctx context.Context, lat, lon int, resolutionM int) ([]byte, error) {
	if err := f.Limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: FailureTransient, Err: err}
	}

	filename, err := tilegeom.TileFilename(lat, lon, resolutionM)
	if err != nil {
		return nil, &FetchError{Kind: FailurePermanent, Err: err}
	}

	url := fmt.Sprintf("%s/%s", f.BaseURL, filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Kind: FailurePermanent, Err: err}
	}
	if f.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.BearerToken)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &FetchError{Kind: FailureTransient, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, &FetchError{Kind: FailureTransient, Err: err}
		}
		return data, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &FetchError{Kind: FailureRateLimited, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Err: fmt.Errorf("HTTP 429 from %s", url)}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// §4.4.3 step e: "HTTP 401/403/429 per provider's convention" —
		// some providers throttle by briefly rejecting credentials
		// rather than returning 429, so this is treated as the same
		// rate-limit cooldown signal, not a permanent failure.
		return nil, &FetchError{Kind: FailureRateLimited, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}

	case resp.StatusCode == http.StatusNotFound:
		return nil, &FetchError{Kind: FailureNotAvailable, Err: fmt.Errorf("HTTP 404 from %s: tile not covered by this provider", url)}

	case resp.StatusCode >= 500:
		return nil, &FetchError{Kind: FailureTransient, Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}

	default:
		return nil, &FetchError{Kind: FailurePermanent, Err: fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)}
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		return time.Until(when)
	}
	return 0
}
