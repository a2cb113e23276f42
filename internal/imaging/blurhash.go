package imaging

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/buckket/go-blurhash"
	"golang.org/x/sync/singleflight"

	"filmstrip.dev/filmstrip/internal/db"
)

// ErrBlurhashFailed reports that no blurhash could be produced for an image.
var ErrBlurhashFailed = errors.New("imaging: blurhash generation failed")

// Blurhash component counts. 4x3 matches the aspect of poster and backdrop
// art closely enough for placeholder rendering.
const (
	blurhashXComponents = 4
	blurhashYComponents = 3
)

// BlurhashGenerator produces perceptual blurhashes for local images, either
// in-process or through an external CLI. Generation is bounded by a worker
// pool and deduplicated per image path; results persist as a sidecar text
// file next to the image and, for remote-keyed lookups, in a SQLite cache.
type BlurhashGenerator struct {
	CLIPath string
	Native  bool

	cache *db.BlurhashStore
	sem   chan struct{}
	group singleflight.Group
}

func NewBlurhashGenerator(cliPath string, native bool, concurrency int, cache *db.BlurhashStore) *BlurhashGenerator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BlurhashGenerator{
		CLIPath: cliPath,
		Native:  native,
		cache:   cache,
		sem:     make(chan struct{}, concurrency),
	}
}

// BlurhashSidecarPath returns the sidecar file holding an image's blurhash.
func BlurhashSidecarPath(imagePath string) string {
	return imagePath + ".blurhash"
}

// ForFile returns the blurhash of a local image, computing and persisting it
// on first use. Concurrent calls for the same path share one computation.
func (g *BlurhashGenerator) ForFile(ctx context.Context, imagePath string) (string, error) {
	v, err, _ := g.group.Do(imagePath, func() (interface{}, error) {
		return g.forFile(ctx, imagePath)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *BlurhashGenerator) forFile(ctx context.Context, imagePath string) (string, error) {
	sidecar := BlurhashSidecarPath(imagePath)
	if raw, err := os.ReadFile(sidecar); err == nil {
		if hash := strings.TrimSpace(string(raw)); hash != "" {
			return hash, nil
		}
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-g.sem }()

	var hash string
	var err error
	if g.Native {
		hash, err = encodeNative(imagePath)
	} else {
		hash, err = g.encodeCLI(ctx, imagePath)
	}
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(sidecar, []byte(hash), 0644); err != nil {
		return "", fmt.Errorf("write blurhash sidecar: %w", err)
	}
	return hash, nil
}

// ForURL returns the blurhash for an image known by a remote URL but stored
// at imagePath locally, consulting the URL-keyed cache before computing.
func (g *BlurhashGenerator) ForURL(ctx context.Context, url, imagePath string) (string, error) {
	if g.cache != nil {
		if hash, ok, err := g.cache.Get(ctx, url, db.BlurhashTTL); err == nil && ok {
			return hash, nil
		}
	}

	hash, err := g.ForFile(ctx, imagePath)
	if err != nil {
		return "", err
	}

	if g.cache != nil {
		if err := g.cache.Put(ctx, url, hash); err != nil {
			return hash, err
		}
	}
	return hash, nil
}

func encodeNative(imagePath string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBlurhashFailed, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %v", ErrBlurhashFailed, imagePath, err)
	}

	hash, err := blurhash.Encode(blurhashXComponents, blurhashYComponents, img)
	if err != nil {
		return "", fmt.Errorf("%w: encode %s: %v", ErrBlurhashFailed, imagePath, err)
	}
	return hash, nil
}

func (g *BlurhashGenerator) encodeCLI(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, g.CLIPath, imagePath)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s: %v: %s",
			ErrBlurhashFailed, imagePath, err, lastLine(stderr.String()))
	}

	hash := strings.TrimSpace(stdout.String())
	if hash == "" {
		return "", fmt.Errorf("%w: %s: empty output", ErrBlurhashFailed, imagePath)
	}
	return hash, nil
}
