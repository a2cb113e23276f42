package imaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// ErrAVIFFailed reports that the external encoder did not produce a usable
// AVIF. Callers fall back to the PNG artifact.
var ErrAVIFFailed = errors.New("imaging: avif conversion failed")

// AVIFOptions tunes the avifenc invocation.
type AVIFOptions struct {
	Quality int // --max quantizer, 0-63, lower is better
	Speed   int // -s, 0-10, higher is faster
	// Concurrency caps parallel encodes; avifenc saturates several cores on
	// a large sheet. Zero or negative selects the default of 2.
	Concurrency int
}

// AVIFConverter converts PNGs to AVIF via an external avifenc binary.
// Conversions for the same destination are coalesced so a sheet being
// re-requested while its encode is in flight waits for the first encode, and
// distinct encodes wait for one of a bounded number of slots.
type AVIFConverter struct {
	Bin  string
	Opts AVIFOptions

	sem   chan struct{}
	group singleflight.Group
}

func NewAVIFConverter(opts AVIFOptions) *AVIFConverter {
	n := opts.Concurrency
	if n <= 0 {
		n = 2
	}
	return &AVIFConverter{Bin: "avifenc", Opts: opts, sem: make(chan struct{}, n)}
}

// Convert encodes src into dst. When removeSource is set the source PNG is
// deleted after a successful encode. A failed encode removes any partial dst.
func (c *AVIFConverter) Convert(ctx context.Context, src, dst string, removeSource bool) error {
	_, err, _ := c.group.Do(dst, func() (interface{}, error) {
		return nil, c.convert(ctx, src, dst, removeSource)
	})
	return err
}

func (c *AVIFConverter) convert(ctx context.Context, src, dst string, removeSource bool) error {
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	args := []string{
		"--min", "0",
		"--max", strconv.Itoa(c.Opts.Quality),
		"-s", strconv.Itoa(c.Opts.Speed),
		src,
		dst,
	}

	cmd := exec.CommandContext(ctx, c.Bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(dst)
		slog.Warn("avif conversion failed",
			"src", src,
			"error", err,
			"stderr", lastLine(stderr.String()))
		return fmt.Errorf("%w: %s: %v", ErrAVIFFailed, src, err)
	}

	if removeSource {
		if err := os.Remove(src); err != nil {
			slog.Warn("failed to remove source png after avif conversion", "path", src, "error", err)
		}
	}
	return nil
}
