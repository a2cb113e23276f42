package ffmpeg

import (
	"bufio"
	"strconv"
	"strings"
)

// Progress is one report block from ffmpeg's -progress output. ffmpeg emits
// a group of key=value lines roughly twice a second, terminated by a
// "progress" line whose value is "continue" or "end".
type Progress struct {
	Frame     int64
	FPS       float64
	Bitrate   string
	TotalSize int64
	OutTimeUS int64
	Speed     string
	Done      bool
}

// OutTimeSeconds returns the output timeline position in seconds.
func (p Progress) OutTimeSeconds() float64 {
	return float64(p.OutTimeUS) / 1e6
}

// Percent maps the output position onto a total render duration, clamped to
// 0-100. A final report always maps to 100.
func (p Progress) Percent(totalSeconds float64) int {
	if p.Done {
		return 100
	}
	if totalSeconds <= 0 {
		return 0
	}
	pct := int(p.OutTimeSeconds() / totalSeconds * 100)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// applyField folds one key=value line into the block being assembled and
// reports whether the terminating "progress" key completed the block.
func (p *Progress) applyField(key, value string) bool {
	switch key {
	case "frame":
		p.Frame, _ = strconv.ParseInt(value, 10, 64)
	case "fps":
		p.FPS, _ = strconv.ParseFloat(value, 64)
	case "bitrate":
		p.Bitrate = value
	case "total_size":
		p.TotalSize, _ = strconv.ParseInt(value, 10, 64)
	case "out_time_us":
		p.OutTimeUS, _ = strconv.ParseInt(value, 10, 64)
	case "speed":
		p.Speed = value
	case "progress":
		p.Done = value == "end"
		return true
	}
	return false
}

// ParseProgressOutput decodes -progress blocks from the scanner and delivers
// each completed block on the channel. It returns when the stream ends or the
// final "progress=end" block has been delivered; closing the channel is the
// caller's responsibility.
func ParseProgressOutput(sc *bufio.Scanner, progress chan<- Progress) {
	var cur Progress
	for sc.Scan() {
		key, value, found := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !found || key == "" {
			continue
		}
		if cur.applyField(key, value) {
			progress <- cur
			if cur.Done {
				return
			}
		}
	}
}
