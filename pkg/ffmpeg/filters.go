package ffmpeg

import (
	"fmt"
)

// Scale adds a scale filter. Use -1 for width or height to auto-calculate
// while maintaining aspect ratio, -2 to also force even dimensions.
func Scale(width, height int) Option {
	return Filter(fmt.Sprintf("scale=%d:%d", width, height))
}

// ScaleWidth scales to a specific width, auto-calculating the height.
func ScaleWidth(width int) Option {
	return Scale(width, -1)
}

// ScaleHeight scales to a specific height, auto-calculating the width.
func ScaleHeight(height int) Option {
	return Scale(-1, height)
}

// FPS adds an fps filter to change the sampling rate. Rate may be fractional
// ("1/5" style values should be built with SampleInterval).
func FPS(rate float64) Option {
	return Filter(fmt.Sprintf("fps=%g", rate))
}

// SampleInterval samples one frame every interval seconds (fps=1/interval).
func SampleInterval(interval int) Option {
	return Filter(fmt.Sprintf("fps=1/%d", interval))
}

// Tile arranges sampled frames into a cols x rows grid.
func Tile(cols, rows int) Option {
	return Filter(fmt.Sprintf("tile=%dx%d", cols, rows))
}

// ToneMapHDR is the HDR-to-SDR conversion chain (PQ -> linear -> hable ->
// bt709) applied ahead of any scaling so thumbnails from HDR sources do not
// come out washed out.
var ToneMapHDR Option = Filter(
	"zscale=t=linear:npl=100," +
		"format=gbrpf32le," +
		"zscale=p=bt709," +
		"tonemap=tonemap=hable:desat=0," +
		"zscale=t=bt709:m=bt709:r=tv," +
		"format=yuv420p")
