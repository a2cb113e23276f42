// Package info manages the JSON side-file stored next to each video. The
// side-file carries duration, dimensions, an HDR descriptor and the stable
// video UUID used as the cache-versioning salt.
package info

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

// ErrInfoFailed reports that the side-file could not be materialized even
// after a regeneration attempt.
var ErrInfoFailed = errors.New("info: could not materialize side-file")

// videoUUIDNamespace salts UUIDs derived from video header bytes so the same
// file yields the same identifier on every host.
var videoUUIDNamespace = uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")

// headerBytes is how much of the file feeds the UUID derivation. The mp4
// header fits comfortably; rewriting the tail of a file does not bump caches.
const headerBytes = 64 * 1024

var dimensionsRe = regexp.MustCompile(`^\d+x\d+$`)

// VideoInfo is the side-file schema.
type VideoInfo struct {
	Length             int64          `json:"length"` // milliseconds
	Dimensions         string         `json:"dimensions"`
	HDR                *string        `json:"hdr"`
	UUID               string         `json:"uuid"`
	AdditionalMetadata map[string]any `json:"additionalMetadata"`
}

// valid reports whether a decoded side-file satisfies the schema.
func (v *VideoInfo) valid() bool {
	if v.Length <= 0 || !dimensionsRe.MatchString(v.Dimensions) {
		return false
	}
	_, err := uuid.Parse(v.UUID)
	return err == nil
}

// UUID8 returns the first 8 hex chars of the video UUID, the cache filename
// version component.
func (v *VideoInfo) UUID8() string {
	return v.UUID[:8]
}

// IsHDR reports whether the stored descriptor marks the video as HDR.
func (v *VideoInfo) IsHDR() bool {
	return v.HDR != nil && *v.HDR != ""
}

// Prober is the adapter slice the manager needs; satisfied by
// *ffmpeg.Runner.
type Prober interface {
	Probe(ctx context.Context, path string) (*ffmpeg.ProbeResult, error)
}

// Manager reads and lazily creates side-files. Concurrent requests for the
// same path share one probe.
type Manager struct {
	prober Prober
	group  singleflight.Group
}

func NewManager(prober Prober) *Manager {
	return &Manager{prober: prober}
}

// SidecarPath returns the side-file location for a video path.
func SidecarPath(videoPath string) string {
	return videoPath + ".info"
}

// Get returns the side-file content for a video, probing and writing it when
// absent or schema-invalid. A schema mismatch triggers exactly one
// regeneration; if that fails too the error wraps ErrInfoFailed.
func (m *Manager) Get(ctx context.Context, videoPath string) (*VideoInfo, error) {
	v, err, _ := m.group.Do(videoPath, func() (any, error) {
		return m.get(ctx, videoPath)
	})
	if err != nil {
		return nil, err
	}
	return v.(*VideoInfo), nil
}

func (m *Manager) get(ctx context.Context, videoPath string) (*VideoInfo, error) {
	sidecar := SidecarPath(videoPath)

	if raw, err := os.ReadFile(sidecar); err == nil {
		var info VideoInfo
		if err := json.Unmarshal(raw, &info); err == nil && info.valid() {
			return &info, nil
		}
		slog.Warn("invalid info side-file, regenerating", "path", sidecar)
	}

	info, err := m.generate(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInfoFailed, videoPath, err)
	}
	if err := writeSidecar(sidecar, info); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrInfoFailed, sidecar, err)
	}
	return info, nil
}

func (m *Manager) generate(ctx context.Context, videoPath string) (*VideoInfo, error) {
	probe, err := m.prober.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	id, err := DeriveUUID(videoPath)
	if err != nil {
		return nil, err
	}

	info := &VideoInfo{
		Length:     int64(probe.Duration * 1000),
		Dimensions: probe.Dimensions(),
		UUID:       id,
	}
	if probe.IsHDR() {
		transfer := probe.Color.Transfer
		info.HDR = &transfer
	}
	return info, nil
}

// DeriveUUID computes the stable video identifier from the file's header
// bytes, so identical files yield identical cache versions across hosts.
func DeriveUUID(videoPath string) (string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, headerBytes)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return uuid.NewSHA1(videoUUIDNamespace, header[:n]).String(), nil
}

// writeSidecar writes atomically so a crashed writer never leaves a torn
// side-file behind.
func writeSidecar(path string, info *VideoInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
