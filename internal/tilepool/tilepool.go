/*
Package tilepool implements the content-addressed flat tile cache of
§4.4.7: filenames double as cache keys, writes land in a staging file
first and are promoted with an atomic rename, and a lookup is a plain
existence check (Exists); a tile already in the pool is not
re-validated on lookup — the same "check, then atomically
materialize" idiom the teacher uses in repository.go's FileExists /
output-path handling, generalized to a pluggable Store so a local disk
tree and an S3 bucket satisfy the same contract (§9 supplemented
feature: S3-backed tile pool).
*/
package tilepool

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
)

// Store is the tile pool backend contract. A tile's Key is its
// canonical filename (tilegeom.TileFilename), which is also its
// content-addressed cache key — two requests for the same lat/lon/
// resolution/provider-dataset always produce the same Key.
type Store interface {
	// Exists reports whether key is already present and non-empty.
	Exists(ctx context.Context, key string) (bool, error)
	// Open returns a reader for key's bytes. Caller must Close it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put stages data under key and atomically promotes it, replacing
	// any prior content (§4.4.7: "duplicate downloads of the same tile
	// resolve to the same destination file", idempotent under reuse —
	// §8 property 5).
	Put(ctx context.Context, key string, data []byte) error
	// LocalPath materializes key as a local filesystem path suitable
	// for handing to a GDAL CLI invocation (raster.Merge/Reproject),
	// downloading to a temp file first for backends that are not
	// already disk-resident.
	LocalPath(ctx context.Context, key string) (path string, cleanup func(), err error)
}

// DiskStore is a local flat-directory Store.
type DiskStore struct {
	Root string
}

// NewDiskStore returns a DiskStore rooted at dir, creating it if
// necessary.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, engineerr.New(engineerr.KindStorageError, "tilepool.NewDiskStore", "", err)
	}
	return &DiskStore{Root: dir}, nil
}

func (s *DiskStore) path(key string) string {
	return filepath.Join(s.Root, key)
}

func (s *DiskStore) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.path(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, engineerr.New(engineerr.KindStorageError, "DiskStore.Exists", "", err)
	}
	return info.Size() > 0, nil
}

func (s *DiskStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engineerr.New(engineerr.KindNotFound, "DiskStore.Open", "", err)
		}
		return nil, engineerr.New(engineerr.KindStorageError, "DiskStore.Open", "", err)
	}
	return f, nil
}

// LocalPath returns the tile's on-disk path directly; no copy needed.
func (s *DiskStore) LocalPath(_ context.Context, key string) (string, func(), error) {
	path := s.path(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", nil, engineerr.New(engineerr.KindNotFound, "DiskStore.LocalPath", "", err)
		}
		return "", nil, engineerr.New(engineerr.KindStorageError, "DiskStore.LocalPath", "", err)
	}
	return path, func() {}, nil
}

// Put writes data to a uuid-suffixed staging file in the same
// directory, then renames it over the final key (§4.4.7: "tiles are
// written to a staging filename first and atomically renamed into
// place on success"). The uuid avoids collisions between concurrent
// downloads of the same tile (errgroup fan-out, §5), matching the
// staging-name pattern in the walkthru-earth-imagery-desktop downloader.
func (s *DiskStore) Put(_ context.Context, key string, data []byte) error {
	final := s.path(key)
	staging := final + ".staging-" + uuid.NewString()

	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return engineerr.New(engineerr.KindStorageError, "DiskStore.Put", "", err)
	}
	if err := os.Rename(staging, final); err != nil {
		_ = os.Remove(staging)
		return engineerr.New(engineerr.KindStorageError, "DiskStore.Put", "", fmt.Errorf("atomic rename: %w", err))
	}
	return nil
}
