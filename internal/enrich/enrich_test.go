package enrich

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filmstrip.dev/filmstrip/internal/db"
)

// writeTool writes a shell script that records its invocation environment.
func writeTool(t *testing.T, dir string, exitCode int) (bin, logFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test tool is a shell script")
	}
	bin = filepath.Join(dir, "tmdb-tool")
	logFile = filepath.Join(dir, "invocations.log")
	script := "#!/bin/sh\necho \"$SELECTED_MOVIE|$SELECTED_SHOW\" >> " + logFile +
		"\necho payload\nexit " + strconv.Itoa(exitCode) + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, logFile
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	n := 0
	for _, b := range raw {
		if b == '\n' {
			n++
		}
	}
	return n
}

func TestEnrichMovieSetsSelectionEnv(t *testing.T) {
	dir := t.TempDir()
	bin, logFile := writeTool(t, dir, 0)
	tool := New(bin, nil)

	require.NoError(t, tool.EnrichMovie(context.Background(), "Example"))

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "Example|\n", string(raw))
}

func TestEnrichShowSetsSelectionEnv(t *testing.T) {
	dir := t.TempDir()
	bin, logFile := writeTool(t, dir, 0)
	tool := New(bin, nil)

	require.NoError(t, tool.EnrichShow(context.Background(), "Show X"))

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "|Show X\n", string(raw))
}

func TestEnrichToolFailure(t *testing.T) {
	dir := t.TempDir()
	bin, _ := writeTool(t, dir, 1)
	tool := New(bin, nil)

	err := tool.EnrichMovie(context.Background(), "Example")
	assert.ErrorIs(t, err, ErrToolFailed)
}

func TestEnrichMemoizesSuccessfulRuns(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bin, logFile := writeTool(t, dir, 0)

	databases, err := db.Open(filepath.Join(dir, "db"))
	require.NoError(t, err)
	t.Cleanup(func() { databases.Close() })

	tool := New(bin, db.NewTMDBCacheStore(databases))
	require.NoError(t, tool.EnrichMovie(ctx, "Example"))
	require.NoError(t, tool.EnrichMovie(ctx, "Example"))
	assert.Equal(t, 1, countLines(t, logFile), "second run served from cache")

	// A different title always runs.
	require.NoError(t, tool.EnrichMovie(ctx, "Other"))
	assert.Equal(t, 2, countLines(t, logFile))
}

func TestEmptyPathDisablesTool(t *testing.T) {
	tool := New("", nil)
	assert.NoError(t, tool.EnrichMovie(context.Background(), "Example"))
}

func TestExpiredCacheRuns(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	bin, logFile := writeTool(t, dir, 0)

	databases, err := db.Open(filepath.Join(dir, "db"))
	require.NoError(t, err)
	t.Cleanup(func() { databases.Close() })

	tool := New(bin, db.NewTMDBCacheStore(databases))
	tool.CacheTTL = time.Nanosecond

	require.NoError(t, tool.EnrichMovie(ctx, "Example"))
	time.Sleep(time.Millisecond)
	require.NoError(t, tool.EnrichMovie(ctx, "Example"))
	assert.Equal(t, 2, countLines(t, logFile), "expired entry does not suppress the run")
}
