/*
Package provider implements the provider registry and rate-limit
coordination of §4.4.3 and §4.4.5: each provider is a capability
descriptor plus a fetch contract (§6.2); a process-wide, mutex-guarded
rate-limit registry tracks cooldowns shared by every concurrent tile
request — the small-shared-actor design called out in §9's design
notes, implemented here as a plain locked record (the simpler of the
two equivalent designs the spec allows).
*/
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/tockloth/region-elevation-engine/internal/planner"
)

// FailureKind classifies why a tile fetch attempt failed (§6.2, §7).
type FailureKind int

const (
	FailureNone FailureKind = iota
	FailureRateLimited
	FailureNotAvailable
	FailureTransient
	FailurePermanent
)

// FetchError is returned by Fetcher.FetchTile on failure.
type FetchError struct {
	Kind       FailureKind
	RetryAfter time.Duration // only meaningful for FailureRateLimited
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error (kind=%d): %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher is the abstract provider protocol of §6.2: fetch_tile(bounds,
// resolution_m) -> bytes, raising a typed FetchError otherwise.
type Fetcher interface {
	FetchTile(ctx context.Context, lat, lon int, resolutionM int) ([]byte, error)
}

// Descriptor is a provider's static capability metadata (§4.4.3).
type Descriptor struct {
	ID                 string
	ResolutionsServed  map[int]bool
	LatBand            planner.LatBand
	LonMin, LonMax     float64 // use [-180, 180] for global coverage
	RequiresCredential bool
	Fetcher            Fetcher
	// AllowAllNoData marks providers that legitimately return
	// all-ocean tiles (§4.4.4: "configurable per provider").
	AllowAllNoData bool
}

// Covers reports whether the provider can serve the given 1° tile at
// resolutionM.
func (d Descriptor) Covers(lat, lon, resolutionM int) bool {
	if !d.ResolutionsServed[resolutionM] {
		return false
	}
	if float64(lat) < d.LatBand.MinLat || float64(lat)+1 > d.LatBand.MaxLat {
		return false
	}
	if float64(lon) < d.LonMin || float64(lon)+1 > d.LonMax {
		return false
	}
	return true
}

// Registry holds the known providers and the shared rate-limit state.
type Registry struct {
	providers []Descriptor

	mu          sync.Mutex
	rateLimited map[string]*cooldown
}

type cooldown struct {
	nextAvailableAt  time.Time
	consecutive429s  int
}

// NewRegistry builds a registry over the given providers, in the order
// they will be used as the default registry fallback order (§4.4.3
// step b: "default registry order (finest-native-match first, then
// no-auth/S3-backed over metered APIs)" — callers are expected to pass
// providers pre-sorted per that rule; NewRegistry does not re-sort,
// since "finest-native-match" depends on the requested resolution,
// which is only known per-tile at fetch time (see CandidatesFor).
func NewRegistry(providers []Descriptor) *Registry {
	return &Registry{
		providers:   providers,
		rateLimited: make(map[string]*cooldown),
	}
}

// CandidatesFor returns, in order, the providers able to serve the
// given tile/resolution. priority, if non-empty, is a caller-supplied
// ordered list of provider IDs (§6.5 ProviderPriority) that takes
// precedence over the registry's default order (§4.4.3 step a).
func (r *Registry) CandidatesFor(lat, lon, resolutionM int, priority []string) []Descriptor {
	var eligible []Descriptor
	for _, p := range r.providers {
		if p.Covers(lat, lon, resolutionM) {
			eligible = append(eligible, p)
		}
	}

	if len(priority) == 0 {
		return eligible
	}

	rank := make(map[string]int, len(priority))
	for i, id := range priority {
		rank[id] = i
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri, iOK := rank[eligible[i].ID]
		rj, jOK := rank[eligible[j].ID]
		switch {
		case iOK && jOK:
			return ri < rj
		case iOK:
			return true
		case jOK:
			return false
		default:
			return false // preserve default registry order among unranked providers
		}
	})

	return eligible
}

// IsRateLimited reports whether provider id is currently in cooldown.
func (r *Registry) IsRateLimited(id string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cd, ok := r.rateLimited[id]
	if !ok {
		return false
	}
	return now.Before(cd.nextAvailableAt)
}

// minCooldown and maxCooldown bound the exponential backoff of §4.4.5.
const (
	minCooldown = 60 * time.Second
	maxCooldown = time.Hour
)

// MarkRateLimited records a 429 (or provider-specific rate-limit
// signal) for id, computing the next cooldown window. If
// retryAfterHint is positive, it is honored as a floor on the cooldown
// (§4.4.3 step e: "longer if a Retry-After is supplied").
func (r *Registry) MarkRateLimited(id string, now time.Time, retryAfterHint time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cd, ok := r.rateLimited[id]
	if !ok {
		cd = &cooldown{}
		r.rateLimited[id] = cd
	}
	cd.consecutive429s++

	backoff := minCooldown * time.Duration(math.Pow(2, float64(cd.consecutive429s-1)))
	if backoff > maxCooldown {
		backoff = maxCooldown
	}
	if retryAfterHint > backoff {
		backoff = retryAfterHint
	}

	cd.nextAvailableAt = now.Add(backoff)
}

// ClearRateLimit is called on any successful response from id (§4.4.5:
// "cleared by any successful response").
func (r *Registry) ClearRateLimit(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rateLimited, id)
}

// ErrAllProvidersFailed is wrapped into ProviderUnavailable by callers
// when every candidate provider permanently fails or cools down.
var ErrAllProvidersFailed = errors.New("all candidate providers failed or are rate-limited")
