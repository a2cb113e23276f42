package info

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/pkg/ffmpeg"
)

type stubProber struct {
	calls  atomic.Int64
	result *ffmpeg.ProbeResult
	err    error
}

func (s *stubProber) Probe(_ context.Context, _ string) (*ffmpeg.ProbeResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func writeVideoFixture(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Example.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func sdrProbe() *ffmpeg.ProbeResult {
	return &ffmpeg.ProbeResult{Duration: 602.4, Width: 1920, Height: 1080}
}

func TestGetGeneratesSidecar(t *testing.T) {
	prober := &stubProber{result: sdrProbe()}
	m := NewManager(prober)
	video := writeVideoFixture(t, "mp4 header bytes")

	info, err := m.Get(context.Background(), video)
	require.NoError(t, err)

	assert.Equal(t, int64(602400), info.Length)
	assert.Equal(t, "1920x1080", info.Dimensions)
	assert.Nil(t, info.HDR)
	assert.Len(t, info.UUID8(), 8)

	_, err = os.Stat(SidecarPath(video))
	require.NoError(t, err, "side-file written next to the video")
}

func TestGetReusesValidSidecar(t *testing.T) {
	prober := &stubProber{result: sdrProbe()}
	m := NewManager(prober)
	video := writeVideoFixture(t, "mp4 header bytes")

	first, err := m.Get(context.Background(), video)
	require.NoError(t, err)
	require.EqualValues(t, 1, prober.calls.Load())

	second, err := m.Get(context.Background(), video)
	require.NoError(t, err)
	assert.EqualValues(t, 1, prober.calls.Load(), "valid side-file skips the probe")
	assert.Equal(t, first, second)
}

func TestGetRegeneratesInvalidSidecar(t *testing.T) {
	prober := &stubProber{result: sdrProbe()}
	m := NewManager(prober)
	video := writeVideoFixture(t, "mp4 header bytes")
	require.NoError(t, os.WriteFile(SidecarPath(video), []byte("{not json"), 0644))

	info, err := m.Get(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, int64(602400), info.Length)
	assert.EqualValues(t, 1, prober.calls.Load())
}

func TestGetRejectsBadSchema(t *testing.T) {
	prober := &stubProber{result: sdrProbe()}
	m := NewManager(prober)
	video := writeVideoFixture(t, "mp4 header bytes")
	// Valid JSON, invalid schema (zero length, junk uuid).
	require.NoError(t, os.WriteFile(SidecarPath(video),
		[]byte(`{"length":0,"dimensions":"wide","uuid":"x"}`), 0644))

	info, err := m.Get(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, "1920x1080", info.Dimensions)
}

func TestGetSurfacesInfoFailed(t *testing.T) {
	prober := &stubProber{err: errors.New("probe exploded")}
	m := NewManager(prober)
	video := writeVideoFixture(t, "mp4 header bytes")

	_, err := m.Get(context.Background(), video)
	assert.ErrorIs(t, err, ErrInfoFailed)
}

func TestHDRDescriptorStored(t *testing.T) {
	probe := sdrProbe()
	probe.Color.Transfer = "smpte2084"
	prober := &stubProber{result: probe}
	m := NewManager(prober)
	video := writeVideoFixture(t, "hdr video")

	info, err := m.Get(context.Background(), video)
	require.NoError(t, err)
	require.NotNil(t, info.HDR)
	assert.Equal(t, "smpte2084", *info.HDR)
	assert.True(t, info.IsHDR())
}

func TestUUIDStableAcrossHosts(t *testing.T) {
	a := writeVideoFixture(t, "identical header")
	b := writeVideoFixture(t, "identical header")
	c := writeVideoFixture(t, "different header")

	ua, err := DeriveUUID(a)
	require.NoError(t, err)
	ub, err := DeriveUUID(b)
	require.NoError(t, err)
	uc, err := DeriveUUID(c)
	require.NoError(t, err)

	assert.Equal(t, ua, ub, "same bytes, same uuid, regardless of path")
	assert.NotEqual(t, ua, uc)
}

func TestSidecarRoundTripIsByteIdentical(t *testing.T) {
	prober := &stubProber{result: sdrProbe()}
	m := NewManager(prober)
	video := writeVideoFixture(t, "mp4 header bytes")

	_, err := m.Get(context.Background(), video)
	require.NoError(t, err)

	raw, err := os.ReadFile(SidecarPath(video))
	require.NoError(t, err)

	var decoded VideoInfo
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.NoError(t, writeSidecar(SidecarPath(video), &decoded))

	rewritten, err := os.ReadFile(SidecarPath(video))
	require.NoError(t, err)
	assert.Equal(t, raw, rewritten)
}
