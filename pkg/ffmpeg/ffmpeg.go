// Package ffmpeg builds and executes ffmpeg/ffprobe commands for the
// derivation pipeline. Commands are assembled from composable options and
// executed through a Runner that bounds subprocess concurrency.
package ffmpeg

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Command represents an ffmpeg invocation being built.
type Command struct {
	input        string
	output       string
	preInput     []string // args before -i (input seeking)
	postInput    []string // args after -i
	filters      []string // collected -vf filters
	audioFilters []string // collected -af filters
	movflags     string   // explicit -movflags; empty selects the default
}

// Option modifies a Command. Options are composable and order-independent;
// Build emits arguments in the order ffmpeg expects regardless of option order.
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc is a function that implements Option.
type OptionFunc func(cmd *Command)

// Apply implements Option.
func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand creates a command with input/output and applies options.
func NewCommand(input, output string, opts ...Option) *Command {
	cmd := &Command{
		input:  input,
		output: output,
	}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// Build returns the complete ffmpeg argument list.
func (c *Command) Build() []string {
	args := []string{"-hide_banner", "-y"}

	args = append(args, c.preInput...)
	args = append(args, "-i", c.input)
	args = append(args, c.postInput...)

	if len(c.filters) > 0 {
		args = append(args, "-vf", strings.Join(c.filters, ","))
	}
	if len(c.audioFilters) > 0 {
		args = append(args, "-af", strings.Join(c.audioFilters, ","))
	}

	// MP4-family outputs get faststart unless the caller picked its own
	// movflags (clips use frag_keyframe+empty_moov instead).
	switch {
	case c.movflags != "":
		args = append(args, "-movflags", c.movflags)
	default:
		ext := strings.ToLower(filepath.Ext(c.output))
		if ext == ".mp4" || ext == ".m4a" || ext == ".mov" {
			args = append(args, "-movflags", "+faststart")
		}
	}

	args = append(args, c.output)
	return args
}

// Run executes the command through the given runner, waiting for a pool slot.
func (c *Command) Run(ctx context.Context, r *Runner) error {
	return r.run(ctx, c.Build(), nil)
}

// RunWithProgress executes the command and streams parsed progress reports
// to the channel, closing it once the process exits.
func (c *Command) RunWithProgress(ctx context.Context, r *Runner, progress chan<- Progress) error {
	args := c.Build()
	progressArgs := []string{args[0], args[1], "-progress", "pipe:1", "-nostats"}
	progressArgs = append(progressArgs, args[2:]...)
	return r.run(ctx, progressArgs, progress)
}

// --- Seeking ---

// Seek sets the start position (input seeking, before -i).
func Seek(start time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append(cmd.preInput, "-ss", formatDuration(start))
	})
}

// SeekRaw sets the start position from a preformatted timestamp string.
func SeekRaw(start string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append(cmd.preInput, "-ss", start)
	})
}

// Duration sets the output duration (-t).
func Duration(d time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-t", formatDuration(d))
	})
}

// SeekTo seeks to start and limits output to end-start.
func SeekTo(start, end time.Duration) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append(cmd.preInput, "-ss", formatDuration(start))
		if d := end - start; d > 0 {
			cmd.postInput = append(cmd.postInput, "-t", formatDuration(d))
		}
	})
}

// --- Codec and stream handling ---

// VideoCodec sets the video codec (-c:v).
func VideoCodec(codec string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-c:v", codec)
	})
}

// PixelFormat sets the pixel format (-pix_fmt).
func PixelFormat(fmt string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-pix_fmt", fmt)
	})
}

// CopyAll copies every stream without re-encoding (-c copy).
var CopyAll Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-c", "copy")
})

// NoAudio disables audio in the output (-an).
var NoAudio Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-an")
})

// MapAll maps all streams from the input (-map 0).
var MapAll Option = OptionFunc(func(cmd *Command) {
	cmd.postInput = append(cmd.postInput, "-map", "0")
})

// MovFlags overrides the container movflags (e.g. "frag_keyframe+empty_moov").
func MovFlags(flags string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.movflags = flags
	})
}

// --- Filters ---

// Filter appends a video filter to the -vf chain.
func Filter(f string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.filters = append(cmd.filters, f)
	})
}

// AudioFilter appends an audio filter to the -af chain.
func AudioFilter(f string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.audioFilters = append(cmd.audioFilters, f)
	})
}

// --- Output ---

// Frames limits the number of output video frames (-frames:v).
func Frames(n int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-frames:v", itoa(n))
	})
}

// Quality sets image output quality (-q:v).
func Quality(q int) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, "-q:v", itoa(q))
	})
}

// --- Misc ---

// LogLevel sets the ffmpeg log level, placed before any other pre-input args.
func LogLevel(level string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.preInput = append([]string{"-loglevel", level}, cmd.preInput...)
	})
}

// ExtraArgs adds raw arguments (escape hatch for unsupported options).
func ExtraArgs(args ...string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.postInput = append(cmd.postInput, args...)
	})
}

func formatDuration(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
