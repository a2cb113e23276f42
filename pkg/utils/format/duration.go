// Package format holds time formatting helpers shared by the derivation
// pipeline and the VTT writer.
package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Duration converts seconds to "M:SS" or "H:MM:SS" display format.
func Duration(seconds float64) string {
	if seconds < 0 {
		return "0:00"
	}
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// VTTTimestamp formats seconds as "HH:MM:SS.mmm" for WebVTT cues.
func VTTTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// ParseTimestamp accepts plain seconds ("90", "90.5") or clock notation
// ("01:02:03", "02:03", with optional ".mmm") and returns seconds.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if !strings.Contains(ts, ":") {
		sec, err := strconv.ParseFloat(ts, 64)
		if err != nil || sec < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		return sec, nil
	}

	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	var total float64
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total = total*60 + v
	}
	return total, nil
}

// Seconds renders a float seconds value the way it appears in cache
// filenames: integral values without a decimal point, fractional values
// with up to three places.
func Seconds(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
