/*
Package downloader implements the tile-cached downloader of §4.4: for
a planned dataset and a set of 1° tiles, fetch each tile through the
provider registry (falling back across providers and respecting
rate-limit cooldowns), validate and admit it into the tile pool, and
only ever hand back a merged raster when every required tile is
present — partial coverage never reaches the caller as a usable
artifact (§4.4.8, §8 property 6).

Concurrency is bounded with golang.org/x/sync/errgroup, the same
fan-out-with-a-cap idiom the spec's design notes call for (§5): each
tile fetch is independent, and a single permanently-failed tile must
not cancel the tiles already in flight — it should still let the
others finish so the caller gets a complete, actionable failure report
rather than a truncated one.
*/
package downloader

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
	"github.com/tockloth/region-elevation-engine/internal/planner"
	"github.com/tockloth/region-elevation-engine/internal/provider"
	"github.com/tockloth/region-elevation-engine/internal/raster"
	"github.com/tockloth/region-elevation-engine/internal/region"
	"github.com/tockloth/region-elevation-engine/internal/tilegeom"
	"github.com/tockloth/region-elevation-engine/internal/tilepool"
)

// MaxConcurrentFetches is the default tile fan-out bound (§5, §6.5
// max_concurrent_tiles) used when New is not given an explicit value.
const MaxConcurrentFetches = 4

// baseRetryBackoff and maxRetryBackoff bound the exponential retry
// delay of §4.4.3 step d; jitter is added on top of each interval.
// Declared as vars (not consts) so tests can shrink them instead of
// sleeping through a real backoff window.
var (
	baseRetryBackoff = 2 * time.Second
	maxRetryBackoff  = 30 * time.Second
)

// TileOutcome records what happened for one tile (§8 scenario S4).
type TileOutcome struct {
	Tile       tilegeom.Tile
	Key        string
	ProviderID string
	Err        error
	FromCache  bool
}

// Result is the outcome of downloading every tile required by a plan.
type Result struct {
	Outcomes    []TileOutcome
	SourcePaths []string // paths into the tile pool, in TilesCovering order
	Complete    bool
}

// FailedTiles returns the outcomes that ended in a non-nil error.
func (r Result) FailedTiles() []TileOutcome {
	var failed []TileOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// TileValidator checks a freshly-fetched tile's bytes before they are
// admitted into the pool (§4.4.4). The default, installed by New,
// writes the bytes to a scratch file and runs raster.ValidateTile;
// tests may substitute a stub so they can exercise the fan-out and
// retry logic without a real GeoTIFF or a GDAL binary.
type TileValidator func(tile tilegeom.Tile, data []byte, allowAllNoData bool) error

// Downloader coordinates the provider registry and tile pool.
type Downloader struct {
	Providers *provider.Registry
	Pool      tilepool.Store
	Priority  []string // EngineConfig.ProviderPriority, §6.5

	MaxConcurrentFetch int // §6.5 max_concurrent_tiles
	MaxRetries         int // §6.5 max_retries, per-provider transient retry budget

	Validate TileValidator
}

// New constructs a Downloader. maxConcurrentFetch <= 0 falls back to
// MaxConcurrentFetches; maxRetries <= 0 disables per-provider retry
// (each transient failure falls straight through to the next
// candidate provider).
func New(providers *provider.Registry, pool tilepool.Store, priority []string, maxConcurrentFetch, maxRetries int) *Downloader {
	if maxConcurrentFetch <= 0 {
		maxConcurrentFetch = MaxConcurrentFetches
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Downloader{
		Providers:          providers,
		Pool:               pool,
		Priority:           priority,
		MaxConcurrentFetch: maxConcurrentFetch,
		MaxRetries:         maxRetries,
		Validate:           defaultValidate,
	}
}

// Download fetches every tile TilesCovering(bounds) names for the
// planned dataset's resolution, admitting each into the pool and
// returning their on-disk/backing-store keys in deterministic
// row-major order (§8 property 1, property 5 idempotence under
// reuse). It never returns a Result with Complete true unless every
// tile succeeded.
func (d *Downloader) Download(ctx context.Context, bounds region.Bounds, plan planner.Plan) (Result, error) {
	tiles := tilegeom.TilesCovering(bounds)
	outcomes := make([]TileOutcome, len(tiles))

	maxConcurrent := d.MaxConcurrentFetch
	if maxConcurrent <= 0 {
		maxConcurrent = MaxConcurrentFetches
	}
	sem := make(chan struct{}, maxConcurrent)
	g, gctx := errgroup.WithContext(ctx)

	var mu sync.Mutex

	for i, tile := range tiles {
		i, tile := i, tile
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			outcome := d.fetchOne(gctx, tile, plan)

			mu.Lock()
			outcomes[i] = outcome
			mu.Unlock()

			// A single tile's failure does not cancel its siblings
			// (§4.4.8): errgroup's context cancellation is deliberately
			// not triggered here by returning the tile error, only by
			// ctx.Err() itself (caller-initiated cancellation, e.g. a
			// request timeout).
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return Result{Outcomes: outcomes}, engineerr.New(engineerr.KindTransientNetwork, "downloader.Download", "", err)
	}

	result := Result{Outcomes: outcomes}
	result.Complete = true
	for _, o := range outcomes {
		if o.Err != nil {
			result.Complete = false
			continue
		}
		result.SourcePaths = append(result.SourcePaths, o.Key)
	}

	if !result.Complete {
		failed := result.FailedTiles()
		sort.Slice(failed, func(i, j int) bool {
			return failed[i].Key < failed[j].Key
		})
		return result, engineerr.New(engineerr.KindIncompleteCoverage, "downloader.Download", "", fmt.Errorf("%d of %d tiles failed, first: %v", len(failed), len(tiles), failed[0].Err))
	}

	return result, nil
}

func (d *Downloader) fetchOne(ctx context.Context, tile tilegeom.Tile, plan planner.Plan) TileOutcome {
	key, err := tilegeom.TileFilename(tile.Lat, tile.Lon, int(plan.Dataset.NativeResolutionM))
	if err != nil {
		return TileOutcome{Tile: tile, Err: engineerr.New(engineerr.KindValidationFailed, "downloader.fetchOne", "", err)}
	}

	if exists, err := d.Pool.Exists(ctx, key); err == nil && exists {
		return TileOutcome{Tile: tile, Key: key, FromCache: true}
	}

	candidates := d.Providers.CandidatesFor(tile.Lat, tile.Lon, int(plan.Dataset.NativeResolutionM), d.Priority)
	if len(candidates) == 0 {
		return TileOutcome{Tile: tile, Key: key, Err: engineerr.New(engineerr.KindNotAvailable, "downloader.fetchOne", "", fmt.Errorf("no provider covers tile %v at %v m", tile, plan.Dataset.NativeResolutionM))}
	}

	var lastErr error
	for _, cand := range candidates {
		if d.Providers.IsRateLimited(cand.ID, time.Now()) {
			lastErr = fmt.Errorf("provider %s in cooldown", cand.ID)
			continue
		}

		data, err := d.fetchWithRetry(ctx, cand.Fetcher, tile.Lat, tile.Lon, int(plan.Dataset.NativeResolutionM))
		if err != nil {
			lastErr = err
			if fe, ok := err.(*provider.FetchError); ok && fe.Kind == provider.FailureRateLimited {
				d.Providers.MarkRateLimited(cand.ID, time.Now(), fe.RetryAfter)
			}
			continue
		}

		d.Providers.ClearRateLimit(cand.ID)

		validate := d.Validate
		if validate == nil {
			validate = defaultValidate
		}
		if err := validate(tile, data, cand.AllowAllNoData); err != nil {
			// §4.4.4: "Failure ⇒ delete file and treat as download
			// failure" — nothing was written to the pool yet, so there
			// is nothing to delete; fall through to the next provider.
			lastErr = err
			continue
		}

		if err := d.Pool.Put(ctx, key, data); err != nil {
			return TileOutcome{Tile: tile, Key: key, ProviderID: cand.ID, Err: err}
		}

		return TileOutcome{Tile: tile, Key: key, ProviderID: cand.ID}
	}

	if lastErr == nil {
		lastErr = provider.ErrAllProvidersFailed
	}
	return TileOutcome{Tile: tile, Key: key, Err: engineerr.New(engineerr.KindProviderUnavailable, "downloader.fetchOne", "", lastErr)}
}

// fetchWithRetry retries a transient failure (HTTP 5xx, network error)
// against the same provider with exponential backoff and jitter, up
// to d.MaxRetries retries after the first attempt (§4.4.3 step d), before returning control to
// fetchOne's provider-fallback loop. Non-transient failures (rate
// limit, not-available, permanent) return immediately on the first
// attempt so the caller can fall through to the next candidate.
func (d *Downloader) fetchWithRetry(ctx context.Context, fetcher provider.Fetcher, lat, lon, resolutionM int) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		data, err := fetcher.FetchTile(ctx, lat, lon, resolutionM)
		if err == nil {
			return data, nil
		}

		fe, ok := err.(*provider.FetchError)
		if !ok || fe.Kind != provider.FailureTransient || attempt >= d.MaxRetries {
			return nil, err
		}

		backoff := baseRetryBackoff * time.Duration(1<<uint(attempt))
		if backoff > maxRetryBackoff {
			backoff = maxRetryBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))

		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// defaultValidate is the production TileValidator: it stages the
// fetched bytes to a scratch file and runs raster.ValidateTile, since
// godal needs a real file path to open.
func defaultValidate(tile tilegeom.Tile, data []byte, allowAllNoData bool) error {
	tmp, err := os.CreateTemp("", "tile-validate-*.tif")
	if err != nil {
		return engineerr.New(engineerr.KindStorageError, "downloader.defaultValidate", "", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return engineerr.New(engineerr.KindStorageError, "downloader.defaultValidate", "", err)
	}
	if err := tmp.Close(); err != nil {
		return engineerr.New(engineerr.KindStorageError, "downloader.defaultValidate", "", err)
	}

	return raster.ValidateTile(tmp.Name(), tile.Lat, tile.Lon, allowAllNoData)
}

// MergeResult mosaics a completed Result's tiles into dst via
// raster.Merge. Works against any tilepool.Store backend,
// materializing each tile to a local path via LocalPath first.
func MergeResult(ctx context.Context, pool tilepool.Store, result Result, dst string) error {
	if !result.Complete {
		return engineerr.New(engineerr.KindIncompleteCoverage, "downloader.MergeResult", "", fmt.Errorf("refusing to merge incomplete coverage"))
	}

	var paths []string
	var cleanups []func()
	defer func() {
		for _, c := range cleanups {
			c()
		}
	}()

	for _, key := range result.SourcePaths {
		path, cleanup, err := pool.LocalPath(ctx, key)
		if err != nil {
			return err
		}
		paths = append(paths, path)
		cleanups = append(cleanups, cleanup)
	}

	return raster.Merge(paths, dst)
}
