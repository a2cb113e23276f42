// Package imaging post-processes sprite sheet images: palette optimization
// of PNGs, AVIF conversion, and perceptual blurhash generation.
package imaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// ChromeHeightLimit is the tallest decoded image height Chromium renders.
// Sprite sheets above it must stay PNG regardless of configuration.
const ChromeHeightLimit = 30780

// SpriteTileHeight is the nominal height of one tile in the sprite grid.
const SpriteTileHeight = 180

// PreferAVIF decides the sprite sheet output format for a grid of the given
// row count. The limit comparison is strict: a sheet exactly at the limit
// still converts.
func PreferAVIF(rows int, disabled bool) bool {
	return !disabled && rows*SpriteTileHeight <= ChromeHeightLimit
}

// PNGOptions tunes the pngquant invocation.
type PNGOptions struct {
	Quality int     // upper quality bound, 1-100
	Colors  int     // palette size, 2-256
	Dither  float64 // floyd dither strength, 0-1
}

// DefaultPNGOptions returns the palette re-encode defaults.
func DefaultPNGOptions() PNGOptions {
	return PNGOptions{Quality: 65, Colors: 256, Dither: 0.9}
}

// OptimizePNG palette-optimizes path in place via pngquant. The optimized
// image is written to a *_optimization.png sibling and renamed over the
// original only on success; a missing binary or failed encode keeps the
// unoptimized PNG and is not an error.
func OptimizePNG(ctx context.Context, bin, path string, opts PNGOptions) {
	if bin == "" {
		bin = "pngquant"
	}
	if opts.Colors < 2 || opts.Colors > 256 {
		opts.Colors = 256
	}

	tmp := strings.TrimSuffix(path, ".png") + "_optimization.png"
	args := []string{
		"--force",
		"--skip-if-larger",
		fmt.Sprintf("--quality=0-%d", opts.Quality),
		fmt.Sprintf("--floyd=%.2f", opts.Dither),
		"--output", tmp,
		fmt.Sprintf("%d", opts.Colors),
		"--",
		path,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		// Exit 98/99 mean the optimized file would have been larger; the
		// original is already the better artifact.
		if code := exitCode(err); code == 98 || code == 99 {
			return
		}
		slog.Warn("png optimization failed, keeping unoptimized image",
			"path", path,
			"error", err,
			"stderr", lastLine(stderr.String()))
		return
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		slog.Warn("png optimization rename failed", "path", path, "error", err)
	}
}

func exitCode(err error) int {
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode()
	}
	return -1
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
