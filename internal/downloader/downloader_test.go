package downloader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tockloth/region-elevation-engine/internal/planner"
	"github.com/tockloth/region-elevation-engine/internal/provider"
	"github.com/tockloth/region-elevation-engine/internal/region"
	"github.com/tockloth/region-elevation-engine/internal/tilegeom"
	"github.com/tockloth/region-elevation-engine/internal/tilepool"
)

// memStore is an in-memory tilepool.Store for tests that never needs
// to touch the filesystem or a real GDAL binary.
type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

func (m *memStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return io.NopCloser(bytes.NewReader(m.data[key])), nil
}

func (m *memStore) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

func (m *memStore) LocalPath(_ context.Context, key string) (string, func(), error) {
	return key, func() {}, nil
}

// fakeFetcher always succeeds unless its lat/lon is in failAt.
type fakeFetcher struct {
	failAt map[[2]int]bool
}

func (f *fakeFetcher) FetchTile(_ context.Context, lat, lon int, _ int) ([]byte, error) {
	if f.failAt[[2]int{lat, lon}] {
		return nil, &provider.FetchError{Kind: provider.FailurePermanent, Err: errPermanent}
	}
	return []byte("tile-data"), nil
}

var errPermanent = &permanentErr{}

type permanentErr struct{}

func (*permanentErr) Error() string { return "permanent fetch failure" }

// transientThenSucceedFetcher fails with a transient error the first
// failCount calls, then succeeds.
type transientThenSucceedFetcher struct {
	failCount int
	calls     int
}

func (f *transientThenSucceedFetcher) FetchTile(_ context.Context, _, _, _ int) ([]byte, error) {
	f.calls++
	if f.calls <= f.failCount {
		return nil, &provider.FetchError{Kind: provider.FailureTransient, Err: fmt.Errorf("simulated transient failure")}
	}
	return []byte("tile-data"), nil
}

func newTestRegistry(fetcher provider.Fetcher) *provider.Registry {
	desc := provider.Descriptor{
		ID:                "test-provider",
		ResolutionsServed: map[int]bool{30: true},
		LatBand:           planner.LatBand{MinLat: -90, MaxLat: 90},
		LonMin:            -180,
		LonMax:            180,
		Fetcher:           fetcher,
	}
	return provider.NewRegistry([]provider.Descriptor{desc})
}

func testPlan() planner.Plan {
	return planner.Plan{
		Dataset: planner.Dataset{ID: planner.SRTM30m, NativeResolutionM: 30},
	}
}

// noopValidate skips raster.ValidateTile so fakeFetcher's synthetic
// "tile-data" bytes (not a real GeoTIFF) can stand in for a fetched
// tile in tests that exercise fan-out, retry and caching logic.
func noopValidate(tilegeom.Tile, []byte, bool) error { return nil }

func newTestDownloader(registry *provider.Registry, store tilepool.Store) *Downloader {
	d := New(registry, store, nil, 0, 0)
	d.Validate = noopValidate
	return d
}

func TestDownloadAllTilesSucceed(t *testing.T) {
	store := newMemStore()
	registry := newTestRegistry(&fakeFetcher{})
	d := newTestDownloader(registry, store)

	bounds := region.Bounds{West: 0, South: 0, East: 2, North: 2}
	result, err := d.Download(context.Background(), bounds, testPlan())
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !result.Complete {
		t.Fatal("expected Complete = true")
	}
	if len(result.SourcePaths) != 4 {
		t.Fatalf("got %d source paths, want 4", len(result.SourcePaths))
	}
}

func TestDownloadPartialFailureNeverMarkedComplete(t *testing.T) {
	// §8 property 6 / scenario S4: one tile permanently fails; the
	// downloader must still attempt all others and report incomplete,
	// never silently drop the failing tile from the result.
	store := newMemStore()
	registry := newTestRegistry(&fakeFetcher{failAt: map[[2]int]bool{{0, 0}: true}})
	d := newTestDownloader(registry, store)

	bounds := region.Bounds{West: 0, South: 0, East: 2, North: 2}
	result, err := d.Download(context.Background(), bounds, testPlan())
	if err == nil {
		t.Fatal("expected error for partial failure")
	}
	if result.Complete {
		t.Fatal("expected Complete = false")
	}
	if len(result.FailedTiles()) != 1 {
		t.Fatalf("got %d failed tiles, want 1", len(result.FailedTiles()))
	}
	// Three tiles should still have succeeded despite the one failure.
	succeeded := 0
	for _, o := range result.Outcomes {
		if o.Err == nil {
			succeeded++
		}
	}
	if succeeded != 3 {
		t.Errorf("got %d succeeded tiles, want 3", succeeded)
	}
}

func TestDownloadReuseIsIdempotent(t *testing.T) {
	// §8 property 5: downloading the same bounds twice must not
	// re-fetch tiles already present in the pool.
	store := newMemStore()
	fetchCount := 0
	counting := &countingFetcher{fakeFetcher: &fakeFetcher{}, count: &fetchCount}
	registry := newTestRegistry(counting)
	d := newTestDownloader(registry, store)

	bounds := region.Bounds{West: 0, South: 0, East: 1, North: 1}
	if _, err := d.Download(context.Background(), bounds, testPlan()); err != nil {
		t.Fatalf("first Download: %v", err)
	}
	firstCount := fetchCount

	if _, err := d.Download(context.Background(), bounds, testPlan()); err != nil {
		t.Fatalf("second Download: %v", err)
	}
	if fetchCount != firstCount {
		t.Errorf("second download re-fetched tiles already in the pool: fetchCount went from %d to %d", firstCount, fetchCount)
	}
}

func TestFetchWithRetryRetriesTransientFailureAgainstSameProvider(t *testing.T) {
	// §4.4.3 step d: a transient failure is retried against the same
	// provider with backoff, not immediately handed to the next
	// candidate.
	origBase, origMax := baseRetryBackoff, maxRetryBackoff
	baseRetryBackoff, maxRetryBackoff = time.Millisecond, 5*time.Millisecond
	defer func() { baseRetryBackoff, maxRetryBackoff = origBase, origMax }()

	fetcher := &transientThenSucceedFetcher{failCount: 2}
	d := &Downloader{MaxRetries: 3}

	data, err := d.fetchWithRetry(context.Background(), fetcher, 0, 0, 30)
	if err != nil {
		t.Fatalf("fetchWithRetry: %v", err)
	}
	if string(data) != "tile-data" {
		t.Errorf("got %q, want tile-data", data)
	}
	if fetcher.calls != 3 {
		t.Errorf("got %d calls, want 3 (2 failures + 1 success)", fetcher.calls)
	}
}

func TestFetchWithRetryGivesUpAfterMaxRetries(t *testing.T) {
	origBase, origMax := baseRetryBackoff, maxRetryBackoff
	baseRetryBackoff, maxRetryBackoff = time.Millisecond, 5*time.Millisecond
	defer func() { baseRetryBackoff, maxRetryBackoff = origBase, origMax }()

	fetcher := &transientThenSucceedFetcher{failCount: 100}
	d := &Downloader{MaxRetries: 2}

	if _, err := d.fetchWithRetry(context.Background(), fetcher, 0, 0, 30); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fetcher.calls != 3 {
		t.Errorf("got %d calls, want 3 (1 initial + 2 retries)", fetcher.calls)
	}
}

func TestFetchWithRetryDoesNotRetryPermanentFailures(t *testing.T) {
	d := &Downloader{MaxRetries: 5}
	fetcher := &fakeFetcher{failAt: map[[2]int]bool{{0, 0}: true}}

	if _, err := d.fetchWithRetry(context.Background(), fetcher, 0, 0, 30); err == nil {
		t.Fatal("expected error")
	}
}

type countingFetcher struct {
	*fakeFetcher
	count *int
}

func (c *countingFetcher) FetchTile(ctx context.Context, lat, lon, res int) ([]byte, error) {
	*c.count++
	return c.fakeFetcher.FetchTile(ctx, lat, lon, res)
}
