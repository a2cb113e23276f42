package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ColorInfo describes the color metadata of the primary video stream.
type ColorInfo struct {
	Transfer  string
	Space     string
	Primaries string
}

// hdrTransfers are the transfer characteristics that classify a stream as HDR
// (PQ and HLG).
var hdrTransfers = map[string]bool{
	"smpte2084":    true,
	"arib-std-b67": true,
}

// IsHDR reports whether the color transfer marks the stream as HDR.
func (c ColorInfo) IsHDR() bool {
	return hdrTransfers[c.Transfer]
}

// VideoStream describes one video stream found by ffprobe.
type VideoStream struct {
	Index  int
	Codec  string
	Width  int
	Height int
	Color  ColorInfo
}

// AudioStream describes one audio stream. Index is normalized to be
// contiguous starting at 0 regardless of interleaved video streams, so it can
// be used directly as an audio track selector.
type AudioStream struct {
	Index    int
	Codec    string
	Channels int
}

// ProbeResult carries the media properties the derivation pipeline needs.
type ProbeResult struct {
	Duration float64 // seconds
	Width    int
	Height   int
	Color    ColorInfo
	Video    []VideoStream
	Audio    []AudioStream
}

// IsHDR reports whether the primary video stream is HDR.
func (p *ProbeResult) IsHDR() bool {
	return p.Color.IsHDR()
}

// Dimensions returns the primary video stream size as "WxH".
func (p *ProbeResult) Dimensions() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// ffprobeOutput matches the ffprobe -print_format json structure.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Index          int    `json:"index"`
		CodecType      string `json:"codec_type"`
		CodecName      string `json:"codec_name"`
		Width          int    `json:"width"`
		Height         int    `json:"height"`
		Channels       int    `json:"channels"`
		ColorTransfer  string `json:"color_transfer"`
		ColorSpace     string `json:"color_space"`
		ColorPrimaries string `json:"color_primaries"`
	} `json:"streams"`
}

// Probe runs ffprobe on a file and returns duration, dimensions, color
// metadata and the stream layout. Returns ErrSourceMissing when the path does
// not exist and ErrNotProbable when ffprobe yields no usable duration.
func (r *Runner) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if err := statSource(path); err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	raw, err := r.runCaptureOutput(ctx, r.ProbeBin, args)
	if err != nil {
		return nil, err
	}

	var out ffprobeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: ffprobe json: %v", ErrParseFailed, err)
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || dur <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotProbable, path)
	}

	result := &ProbeResult{Duration: dur}
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			vs := VideoStream{
				Index:  s.Index,
				Codec:  s.CodecName,
				Width:  s.Width,
				Height: s.Height,
				Color: ColorInfo{
					Transfer:  s.ColorTransfer,
					Space:     s.ColorSpace,
					Primaries: s.ColorPrimaries,
				},
			}
			if len(result.Video) == 0 {
				result.Width = s.Width
				result.Height = s.Height
				result.Color = vs.Color
			}
			result.Video = append(result.Video, vs)
		case "audio":
			result.Audio = append(result.Audio, AudioStream{
				Index:    len(result.Audio),
				Codec:    s.CodecName,
				Channels: s.Channels,
			})
		}
	}

	return result, nil
}

// ProbeDuration returns just the duration in seconds.
func (r *Runner) ProbeDuration(ctx context.Context, path string) (float64, error) {
	result, err := r.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration, nil
}

// ProbeDimensions returns the primary video stream size.
func (r *Runner) ProbeDimensions(ctx context.Context, path string) (int, int, error) {
	result, err := r.Probe(ctx, path)
	if err != nil {
		return 0, 0, err
	}
	if result.Width <= 0 || result.Height <= 0 {
		return 0, 0, fmt.Errorf("%w: no video stream in %s", ErrNotProbable, path)
	}
	return result.Width, result.Height, nil
}

// ProbeColor returns the color metadata of the primary video stream.
func (r *Runner) ProbeColor(ctx context.Context, path string) (ColorInfo, error) {
	result, err := r.Probe(ctx, path)
	if err != nil {
		return ColorInfo{}, err
	}
	return result.Color, nil
}

// IsHDR reports whether the file's primary video stream is HDR.
func (r *Runner) IsHDR(ctx context.Context, path string) (bool, error) {
	color, err := r.ProbeColor(ctx, path)
	if err != nil {
		return false, err
	}
	return color.IsHDR(), nil
}

// Chapter is one container chapter.
type Chapter struct {
	StartTime float64
	Title     string
}

// chapterOutput matches ffprobe -show_chapters.
type chapterOutput struct {
	Chapters []struct {
		StartTime string `json:"start_time"`
		Tags      struct {
			Title string `json:"title"`
		} `json:"tags"`
	} `json:"chapters"`
}

// Chapters extracts the container chapter list, which may be empty.
func (r *Runner) Chapters(ctx context.Context, path string) ([]Chapter, error) {
	if err := statSource(path); err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_chapters",
		path,
	}
	raw, err := r.runCaptureOutput(ctx, r.ProbeBin, args)
	if err != nil {
		return nil, err
	}

	var out chapterOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: ffprobe chapters json: %v", ErrParseFailed, err)
	}

	chapters := make([]Chapter, 0, len(out.Chapters))
	for _, c := range out.Chapters {
		start, err := strconv.ParseFloat(c.StartTime, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: chapter start %q", ErrParseFailed, c.StartTime)
		}
		chapters = append(chapters, Chapter{StartTime: start, Title: c.Tags.Title})
	}
	return chapters, nil
}

// HasChapters reports whether the container carries any chapters.
func (r *Runner) HasChapters(ctx context.Context, path string) (bool, error) {
	chapters, err := r.Chapters(ctx, path)
	if err != nil {
		return false, err
	}
	return len(chapters) > 0, nil
}
