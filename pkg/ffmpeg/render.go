package ffmpeg

import (
	"context"
	"math"
	"time"
)

// FrameHeight is the pixel height of single-frame stills.
const FrameHeight = 140

// SpriteThumbWidth is the logical pixel width of one sprite sheet cell.
const SpriteThumbWidth = 320

// FrameCommand builds the invocation for a single still at the given
// timestamp (seconds or HH:MM:SS). HDR sources go through the tone-mapping
// chain; SDR sources are rendered in rgb24 directly.
func FrameCommand(input, output, timestamp string, hdr bool) *Command {
	opts := []Option{
		SeekRaw(timestamp),
		Frames(1),
	}
	if hdr {
		opts = append(opts, ToneMapHDR)
	} else {
		opts = append(opts, PixelFormat("rgb24"))
	}
	opts = append(opts, ScaleHeight(FrameHeight))
	return NewCommand(input, output, opts...)
}

// FrameSize returns the output dimensions of a still rendered from a source
// of the given size, scaled to FrameHeight preserving aspect.
func FrameSize(srcWidth, srcHeight int) (int, int) {
	if srcWidth <= 0 || srcHeight <= 0 {
		return 0, FrameHeight
	}
	w := int(math.Round(float64(srcWidth) * FrameHeight / float64(srcHeight)))
	return w, FrameHeight
}

// SpriteSheetCommand builds the single-pass sprite sheet invocation: sample
// one frame every interval seconds, tone-map when HDR, scale each cell to
// SpriteThumbWidth and tile into a cols x rows grid. Output should be a PNG
// path; format conversion happens downstream.
func SpriteSheetCommand(input, output string, interval, cols, rows int, hdr bool) *Command {
	opts := []Option{
		SampleInterval(interval),
	}
	if hdr {
		opts = append(opts, ToneMapHDR)
	}
	opts = append(opts,
		ScaleWidth(SpriteThumbWidth),
		Tile(cols, rows),
	)
	return NewCommand(input, output, opts...)
}

// ClipCommand builds a stream-copy trim between start and end seconds. The
// fragmented movflags let the clip play before the container is complete.
func ClipCommand(input, output string, start, end float64) *Command {
	return NewCommand(input, output,
		SeekTo(secondsToDuration(start), secondsToDuration(end)),
		CopyAll,
		MovFlags("frag_keyframe+empty_moov"),
	)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RenderFrame renders a single still and returns its output dimensions,
// derived from the probed source size.
func (r *Runner) RenderFrame(ctx context.Context, input, output, timestamp string, hdr bool) (int, int, error) {
	if err := statSource(input); err != nil {
		return 0, 0, err
	}
	srcW, srcH, err := r.ProbeDimensions(ctx, input)
	if err != nil {
		return 0, 0, err
	}
	if err := FrameCommand(input, output, timestamp, hdr).Run(ctx, r); err != nil {
		return 0, 0, err
	}
	w, h := FrameSize(srcW, srcH)
	return w, h, nil
}

// RenderSpriteSheet renders the tiled preview grid as PNG.
func (r *Runner) RenderSpriteSheet(ctx context.Context, input, output string, interval, cols, rows int, hdr bool) error {
	if err := statSource(input); err != nil {
		return err
	}
	return SpriteSheetCommand(input, output, interval, cols, rows, hdr).Run(ctx, r)
}

// RenderClip stream-copies the container between start and end seconds. A
// non-nil progress channel receives render reports and is closed when no
// further reports will arrive.
func (r *Runner) RenderClip(ctx context.Context, input, output string, start, end float64, progress chan<- Progress) error {
	if err := statSource(input); err != nil {
		if progress != nil {
			close(progress)
		}
		return err
	}
	cmd := ClipCommand(input, output, start, end)
	if progress == nil {
		return cmd.Run(ctx, r)
	}
	return cmd.RunWithProgress(ctx, r, progress)
}
