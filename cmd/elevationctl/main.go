/*
Purpose:
- elevation data acquisition and preparation engine

Description:
- Given a region ID, plans the source dataset under the Nyquist rule,
  downloads and caches the required tiles, clips/reprojects/downsamples
  the result, and exports a gzip-compressed JSON elevation artifact,
  updating the region manifest on success.

Remarks:
- This is a non-interactive, single-shot command: run it with one of
  the two subcommands below and it exits. It is not a shell, and it
  does not expose a network API — those remain the concern of whatever
  orchestrates calls to this binary.

Usage:
- elevationctl export  -config <path> -region <id>
- elevationctl estimate -config <path> -region <id>
*/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tockloth/region-elevation-engine/internal/boundary"
	"github.com/tockloth/region-elevation-engine/internal/config"
	"github.com/tockloth/region-elevation-engine/internal/downloader"
	"github.com/tockloth/region-elevation-engine/internal/logging"
	"github.com/tockloth/region-elevation-engine/internal/manifest"
	"github.com/tockloth/region-elevation-engine/internal/pipeline"
	"github.com/tockloth/region-elevation-engine/internal/planner"
	"github.com/tockloth/region-elevation-engine/internal/provider"
	"github.com/tockloth/region-elevation-engine/internal/raster"
	"github.com/tockloth/region-elevation-engine/internal/region"
	"github.com/tockloth/region-elevation-engine/internal/tilegeom"
	"github.com/tockloth/region-elevation-engine/internal/tilepool"
	"github.com/tockloth/region-elevation-engine/internal/tilepool/s3store"
)

var progName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(filepath.Base(os.Args[0])))

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <export|estimate> -config <path> -region <id>\n", progName)
		os.Exit(1)
	}

	subcommand := os.Args[1]
	fs := flag.NewFlagSet(subcommand, flag.ExitOnError)
	configPath := fs.String("config", progName+".yaml", "path to engine configuration file")
	regionID := fs.String("region", "", "region ID to process")
	fs.Parse(os.Args[2:])

	if *regionID == "" {
		fmt.Fprintln(os.Stderr, "-region is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error [%v] loading configuration\n", err)
		os.Exit(1)
	}

	logger, lumberjackLogger := logging.New(cfg.LogDirectory, progName, cfg.LogLevel)
	defer lumberjackLogger.Close()
	slog.SetDefault(logger)

	reg, err := region.NewRegistry(region.Builtin())
	if err != nil {
		slog.Error("building region registry", "error", err)
		os.Exit(1)
	}

	r, err := reg.Get(*regionID)
	if err != nil {
		slog.Error("region lookup failed", "error", err, "region", *regionID)
		os.Exit(1)
	}

	switch subcommand {
	case "estimate":
		runEstimate(r, cfg)
	case "export":
		runExport(r, cfg)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		os.Exit(1)
	}
}

// runEstimate plans the dataset and reports the planned byte size
// without downloading anything — the §9 supplemented "estimate" helper
// operators use before committing to a large export.
func runEstimate(r region.Region, cfg *config.EngineConfig) {
	plan, err := planner.Plan(r.Bounds, r.RegionType, planner.Options{
		TargetTotalPixels: cfg.TargetTotalPixels,
		EnableGMTED:       cfg.EnableGMTED,
	})
	if err != nil {
		slog.Error("planning failed", "error", err, "region", r.ID)
		os.Exit(1)
	}

	aligned := tilegeom.SnapToDegreeGrid(r.Bounds)
	tiles := tilegeom.TilesCovering(aligned)

	var totalBytes int64
	for _, t := range tiles {
		totalBytes += tilegeom.EstimateTileBytes(t.Lat, int(plan.Dataset.NativeResolutionM))
	}

	report := struct {
		RegionID          string          `json:"region_id"`
		Dataset           planner.DatasetID `json:"dataset"`
		Quality           planner.Quality `json:"quality"`
		OversamplingRatio float64         `json:"oversampling_ratio"`
		TileCount         int             `json:"tile_count"`
		EstimatedBytes    int64           `json:"estimated_bytes"`
	}{
		RegionID:          r.ID,
		Dataset:           plan.Dataset.ID,
		Quality:           plan.Quality,
		OversamplingRatio: plan.OversamplingRatio,
		TileCount:         len(tiles),
		EstimatedBytes:    totalBytes,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

// runExport runs the full acquisition-and-preparation pipeline for one
// region (§4.4, §4.5) and updates the manifest on success. Regions that
// straddle SRTM's 60°N coverage edge are split, planned, downloaded and
// reprojected per sub-band before being mosaicked into the single
// raster the processing pipeline expects (SPEC_FULL.md SUPPLEMENTED
// FEATURES item 1).
func runExport(r region.Region, cfg *config.EngineConfig) {
	ctx := context.Background()

	subplans, err := planner.PlanCrossBand(r.Bounds, r.RegionType, planner.Options{
		TargetTotalPixels: cfg.TargetTotalPixels,
		EnableGMTED:       cfg.EnableGMTED,
	})
	if err != nil {
		slog.Error("planning failed", "error", err, "region", r.ID)
		os.Exit(1)
	}
	representative := representativePlan(subplans)
	slog.Info("resolution planned", "region", r.ID, "bands", len(subplans), "dataset", representative.Dataset.ID, "quality", representative.Quality)

	pool, err := openTilePool(ctx, cfg)
	if err != nil {
		slog.Error("opening tile pool", "error", err)
		os.Exit(1)
	}

	providers := buildProviderRegistry(cfg)
	dl := downloader.New(providers, pool, cfg.ProviderPriority, cfg.MaxConcurrentTiles, cfg.MaxRetries)

	workDir := filepath.Join(cfg.GeneratedDirectory, r.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		slog.Error("creating work directory", "error", err)
		os.Exit(1)
	}

	var bandRasters []string
	for i, sub := range subplans {
		aligned := tilegeom.SnapToDegreeGrid(sub.Bounds)
		result, err := dl.Download(ctx, aligned, sub.Plan)
		if err != nil {
			slog.Error("tile download incomplete", "error", err, "region", r.ID, "band", i, "failed_tiles", len(result.FailedTiles()))
			os.Exit(1)
		}
		slog.Info("tiles downloaded", "region", r.ID, "band", i, "tile_count", len(result.SourcePaths))

		bandMerged := filepath.Join(workDir, fmt.Sprintf("band-%d-merged.tif", i))
		if err := downloader.MergeResult(ctx, pool, result, bandMerged); err != nil {
			slog.Error("merging tiles", "error", err, "region", r.ID, "band", i)
			os.Exit(1)
		}

		if len(subplans) == 1 {
			bandRasters = append(bandRasters, bandMerged)
			continue
		}

		// Cross-band regions mosaic after reprojection: each sub-band
		// may come from a different dataset's native CRS, so both are
		// brought into the shared EPSG:3857 CRS PlanCrossBand picked
		// before raster.Merge sees them.
		bandProjected := filepath.Join(workDir, fmt.Sprintf("band-%d-projected.tif", i))
		if err := raster.Reproject(raster.ReprojectArgs{
			Src:        bandMerged,
			Dst:        bandProjected,
			TargetSRS:  "EPSG:3857",
			Resampling: "bilinear",
		}); err != nil {
			slog.Error("reprojecting band", "error", err, "region", r.ID, "band", i)
			os.Exit(1)
		}
		bandRasters = append(bandRasters, bandProjected)
	}

	mergedPath := filepath.Join(workDir, "merged.tif")
	if err := raster.Merge(bandRasters, mergedPath); err != nil {
		slog.Error("mosaicking bands", "error", err, "region", r.ID)
		os.Exit(1)
	}

	var boundaryPoly *boundary.Polygon
	if r.ClipBoundary {
		boundaryPath := filepath.Join(cfg.DataDirectory, "boundaries", r.ID+".geojson")
		boundaryPoly, err = boundary.Load(boundaryPath)
		if err != nil {
			slog.Error("loading boundary", "error", err, "region", r.ID)
			os.Exit(1)
		}
	}

	artifact, err := pipeline.Run(mergedPath, representative, r.Bounds, boundaryPoly, pipeline.Options{
		TargetTotalPixels: cfg.TargetTotalPixels,
		WorkDir:           workDir,
		MinCoverageRatio:  cfg.MinCoverageRatio,
	})
	if err != nil {
		slog.Error("processing pipeline failed", "error", err, "region", r.ID)
		os.Exit(1)
	}
	artifact.RegionID = r.ID
	artifact.Region = r.DisplayName

	exportPath := filepath.Join(cfg.GeneratedDirectory, r.ID+".json.gz")
	if err := pipeline.ExportGzipJSON(artifact, exportPath); err != nil {
		slog.Error("exporting artifact", "error", err, "region", r.ID)
		os.Exit(1)
	}

	manifestPath := filepath.Join(cfg.GeneratedDirectory, "manifest.json")
	if err := manifest.Update(manifestPath, manifest.Entry{
		RegionID:      r.ID,
		Filename:      exportPath,
		DisplayName:   r.DisplayName,
		RegionType:    r.RegionType.String(),
		Bounds:        r.Bounds,
		Source:        string(artifact.Source),
		Width:         artifact.Width,
		Height:        artifact.Height,
		GeneratedAt:   artifact.Exported,
		FormatVersion: cfg.ManifestFormatVersion,
		Quality:       string(artifact.Quality),
	}); err != nil {
		slog.Error("updating manifest", "error", err, "region", r.ID)
		os.Exit(1)
	}

	slog.Info("export complete", "region", r.ID, "artifact", exportPath)
}

// representativePlan picks the finer-resolution sub-band's plan to
// drive pipeline.Run's resampling-kernel choice and reported
// source/resolution metadata — the coarser sub-band's pixels are still
// present in the mosaic, but the finer dataset sets the Nyquist-driven
// target pixel size for the combined raster.
func representativePlan(subplans []planner.SubPlan) planner.Plan {
	best := subplans[0].Plan
	for _, sub := range subplans[1:] {
		if sub.Plan.Dataset.NativeResolutionM < best.Dataset.NativeResolutionM {
			best = sub.Plan
		}
	}
	return best
}

func openTilePool(ctx context.Context, cfg *config.EngineConfig) (tilepool.Store, error) {
	if strings.HasPrefix(cfg.TilePoolRoot, "s3://") {
		bucket, prefix, err := s3store.ParseURL(cfg.TilePoolRoot)
		if err != nil {
			return nil, err
		}
		return s3store.New(ctx, cfg.Credentials["aws_region"], bucket, prefix)
	}
	return tilepool.NewDiskStore(cfg.TilePoolRoot)
}

// buildProviderRegistry wires one HTTP fetcher per dataset directory
// in the planner's catalogue (§4.4.3); real deployments would load
// provider base URLs from configuration, here expressed as a small,
// deterministic convention over cfg.Credentials keys.
func buildProviderRegistry(cfg *config.EngineConfig) *provider.Registry {
	type providerSpec struct {
		id             string
		dataset        string
		res            int
		lat            planner.LatBand
		needsCred      bool
		allowAllNoData bool
	}

	specs := []providerSpec{
		{id: "usa-3dep", dataset: "usa3dep10m", res: 10, lat: planner.LatBand{MinLat: -90, MaxLat: 90}},
		// Every provider except usa-3dep sets allowAllNoData, so an
		// all-no-data tile (an open-water cell) passes validation for
		// them (§4.4.4 "configurable per provider").
		{id: "srtm-30", dataset: "srtm30m", res: 30, lat: planner.LatBand{MinLat: -56, MaxLat: 60}, allowAllNoData: true},
		{id: "srtm-90", dataset: "srtm90m", res: 90, lat: planner.LatBand{MinLat: -56, MaxLat: 60}, allowAllNoData: true},
		{id: "copernicus-30", dataset: "copernicus30m", res: 30, lat: planner.LatBand{MinLat: -90, MaxLat: 90}, needsCred: true, allowAllNoData: true},
		{id: "copernicus-90", dataset: "copernicus90m", res: 90, lat: planner.LatBand{MinLat: -90, MaxLat: 90}, needsCred: true, allowAllNoData: true},
		{id: "aw3d-30", dataset: "aw3d30m", res: 30, lat: planner.LatBand{MinLat: -90, MaxLat: 90}, allowAllNoData: true},
		{id: "gmted-250", dataset: "gmted250m", res: 250, lat: planner.LatBand{MinLat: -90, MaxLat: 90}, allowAllNoData: true},
		{id: "gmted-500", dataset: "gmted500m", res: 500, lat: planner.LatBand{MinLat: -90, MaxLat: 90}, allowAllNoData: true},
		{id: "gmted-1000", dataset: "gmted1000m", res: 1000, lat: planner.LatBand{MinLat: -90, MaxLat: 90}, allowAllNoData: true},
	}

	var descriptors []provider.Descriptor
	for _, s := range specs {
		fetcher := provider.NewHTTPFetcher(fmt.Sprintf("https://tiles.internal/%s", s.dataset), 5.0, cfg.RequestTimeout())
		if s.needsCred {
			fetcher.BearerToken = cfg.Credentials[s.id]
		}
		descriptors = append(descriptors, provider.Descriptor{
			ID:                 s.id,
			ResolutionsServed:  map[int]bool{s.res: true},
			LatBand:            s.lat,
			LonMin:             -180,
			LonMax:             180,
			RequiresCredential: s.needsCred,
			AllowAllNoData:     s.allowAllNoData,
			Fetcher:            fetcher,
		})
	}

	return provider.NewRegistry(descriptors)
}
