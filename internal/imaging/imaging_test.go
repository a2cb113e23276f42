package imaging

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/internal/db"
)

func writeTestPNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: 128, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestPreferAVIF(t *testing.T) {
	// 171 rows is exactly the decode limit and still converts.
	assert.True(t, PreferAVIF(171, false))
	assert.False(t, PreferAVIF(172, false))
	assert.True(t, PreferAVIF(1, false))
	assert.False(t, PreferAVIF(1, true), "config override forces png")
}

func TestNativeBlurhash(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestPNG(t, dir, "poster.png")
	g := NewBlurhashGenerator("", true, 2, nil)

	hash, err := g.ForFile(context.Background(), imgPath)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	raw, err := os.ReadFile(BlurhashSidecarPath(imgPath))
	require.NoError(t, err)
	assert.Equal(t, hash, string(raw), "sidecar holds the hash verbatim")
}

func TestBlurhashSidecarShortCircuits(t *testing.T) {
	dir := t.TempDir()
	// No image on disk at all; a populated sidecar must be enough.
	imgPath := filepath.Join(dir, "poster.png")
	require.NoError(t, os.WriteFile(BlurhashSidecarPath(imgPath), []byte("LKO2?U%2Tw=w\n"), 0644))

	g := NewBlurhashGenerator("", true, 1, nil)
	hash, err := g.ForFile(context.Background(), imgPath)
	require.NoError(t, err)
	assert.Equal(t, "LKO2?U%2Tw=w", hash)
}

func TestBlurhashCLIFailure(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestPNG(t, dir, "poster.png")
	g := NewBlurhashGenerator(filepath.Join(dir, "no-such-binary"), false, 1, nil)

	_, err := g.ForFile(context.Background(), imgPath)
	assert.ErrorIs(t, err, ErrBlurhashFailed)
}

func TestBlurhashForURLUsesCache(t *testing.T) {
	ctx := context.Background()
	databases, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { databases.Close() })
	store := db.NewBlurhashStore(databases)

	require.NoError(t, store.Put(ctx, "https://img.example/poster.jpg", "cached-hash"))

	// The image path does not exist; a cache hit must not touch the file.
	g := NewBlurhashGenerator("", true, 1, store)
	hash, err := g.ForURL(ctx, "https://img.example/poster.jpg", "/nonexistent/poster.jpg")
	require.NoError(t, err)
	assert.Equal(t, "cached-hash", hash)
}

func TestBlurhashForURLPopulatesCache(t *testing.T) {
	ctx := context.Background()
	databases, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { databases.Close() })
	store := db.NewBlurhashStore(databases)

	dir := t.TempDir()
	imgPath := writeTestPNG(t, dir, "backdrop.png")

	g := NewBlurhashGenerator("", true, 1, store)
	hash, err := g.ForURL(ctx, "https://img.example/backdrop.jpg", imgPath)
	require.NoError(t, err)

	cached, ok, err := store.Get(ctx, "https://img.example/backdrop.jpg", db.BlurhashTTL)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, hash, cached)
}

func TestOptimizePNGMissingBinaryKeepsOriginal(t *testing.T) {
	dir := t.TempDir()
	imgPath := writeTestPNG(t, dir, "sheet.png")
	before, err := os.ReadFile(imgPath)
	require.NoError(t, err)

	OptimizePNG(context.Background(), filepath.Join(dir, "no-such-pngquant"), imgPath, DefaultPNGOptions())

	after, err := os.ReadFile(imgPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = os.Stat(filepath.Join(dir, "sheet_optimization.png"))
	assert.True(t, os.IsNotExist(err), "no partial artifact left behind")
}

func TestAVIFConvertFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPNG(t, dir, "sheet.png")
	dst := filepath.Join(dir, "sheet.avif")

	c := NewAVIFConverter(AVIFOptions{Quality: 40, Speed: 6})
	c.Bin = filepath.Join(dir, "no-such-avifenc")

	err := c.Convert(context.Background(), src, dst, true)
	assert.ErrorIs(t, err, ErrAVIFFailed)

	_, statErr := os.Stat(src)
	assert.NoError(t, statErr, "source kept on failure")
	_, statErr = os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}

func TestAVIFConverterDefaultPoolSize(t *testing.T) {
	c := NewAVIFConverter(AVIFOptions{Quality: 40, Speed: 6})
	assert.Equal(t, 2, cap(c.sem))

	c = NewAVIFConverter(AVIFOptions{Concurrency: 5})
	assert.Equal(t, 5, cap(c.sem))
}

func TestAVIFConvertWaitsForEncodeSlot(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPNG(t, dir, "sheet.png")
	dst := filepath.Join(dir, "sheet.avif")

	c := NewAVIFConverter(AVIFOptions{Quality: 40, Speed: 6, Concurrency: 1})
	c.Bin = filepath.Join(dir, "no-such-avifenc")

	// Occupy the only slot; the convert must block until the context ends
	// instead of launching an unbounded encode.
	c.sem <- struct{}{}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Convert(ctx, src, dst, false)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	<-c.sem
	err = c.Convert(context.Background(), src, dst, false)
	assert.ErrorIs(t, err, ErrAVIFFailed, "freed slot lets the encode reach the binary")
}

func TestAVIFConvertSkipsExistingDestination(t *testing.T) {
	dir := t.TempDir()
	src := writeTestPNG(t, dir, "sheet.png")
	dst := filepath.Join(dir, "sheet.avif")
	require.NoError(t, os.WriteFile(dst, []byte("already converted"), 0644))

	c := NewAVIFConverter(AVIFOptions{Quality: 40, Speed: 6})
	c.Bin = filepath.Join(dir, "no-such-avifenc")

	require.NoError(t, c.Convert(context.Background(), src, dst, false))
}
