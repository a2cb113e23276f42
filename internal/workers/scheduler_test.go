package workers

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/internal/scanner"
)

func TestKickNeverBlocks(t *testing.T) {
	s := NewScheduler(&scanner.Scanner{}, nil, time.Hour)
	for i := 0; i < 10; i++ {
		s.Kick()
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	// Roots that do not exist make the scan a no-op.
	base := t.TempDir()
	sc := &scanner.Scanner{
		MoviesRoot: filepath.Join(base, "missing-movies"),
		TVRoot:     filepath.Join(base, "missing-tv"),
	}
	s := NewScheduler(sc, nil, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		require.Fail(t, "scheduler did not stop")
	}
}
