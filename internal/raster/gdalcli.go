/*
Package raster wraps GDAL: godal for metadata inspection and the
command-line GDAL utilities for the heavier transforms (reprojection,
clipping, resampling, mosaicking) that the spec treats as an external
black box (§4.5 design notes: "delegates to an existing, battle-tested
geospatial library... rather than re-deriving resampling kernels").
This mirrors the teacher's own split in aspect.go/color-relief.go/
contours.go/hillshade.go, which use godal for dataset introspection and
shell out to gdaldem/gdalwarp/gdal_contour for the transforms
themselves.
*/
package raster

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"

	"github.com/tockloth/region-elevation-engine/internal/engineerr"
)

// RunCommand runs a GDAL CLI program, logging failures the way the
// teacher's runCommand does (exit status plus combined output).
func RunCommand(program string, args []string) (exitStatus int, output []byte, err error) {
	cmd := exec.Command(program, args...)
	output, err = cmd.CombinedOutput()

	fullCommand := program + " " + strings.Join(cmd.Args, " ")

	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			if waitStatus, ok := exitError.Sys().(syscall.WaitStatus); ok {
				exitStatus = waitStatus.ExitStatus()
			}
		}
		slog.Error("gdal command failed", "command", fullCommand, "error", err)
		if len(output) > 0 {
			slog.Info("gdal command output", "output", string(output))
		}
		return exitStatus, output, engineerr.New(engineerr.KindReprojectionFailed, "raster.RunCommand", "", fmt.Errorf("%s: %w", program, err))
	}

	return 0, output, nil
}
