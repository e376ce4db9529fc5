package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"llmc/internal/config"
	"llmc/internal/indexstore"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestAcquireRepoLockRejectsSecondHolder(t *testing.T) {
	dir := t.TempDir()

	first, err := AcquireRepoLock(dir)
	require.NoError(t, err)

	_, err = AcquireRepoLock(dir)
	require.Error(t, err)

	require.NoError(t, first.Release())

	second, err := AcquireRepoLock(dir)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Daemon.TickSeconds = 1
	cfg.Daemon.IdleBackoffBase = 1
	cfg.Daemon.IdleBackoffMax = 2
	cfg.Daemon.PhaseTimeoutSeconds = 5
	cfg.Daemon.NiceLevel = 0 // skip renice in tests, no permission assumptions
	cfg.Enrichment.Enabled = false
	return cfg
}

func TestLoopRunAppliesFileOnFirstTick(t *testing.T) {
	repoDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(repoDir, ".llmc"), 0o755))

	st, err := indexstore.Open(filepath.Join(repoDir, ".llmc", "index.db"), nil)
	require.NoError(t, err)
	defer st.Close()

	cfg := testConfig()
	loop, err := NewLoop(repoDir, st, cfg, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}

	stats, err := st.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.Files)
	require.Greater(t, stats.Spans, 0)

	status, err := st.GetIndexStatus(repoDir)
	require.NoError(t, err)
	require.Equal(t, indexstore.StateReady, status.State)

	_, err = os.Stat(filepath.Join(repoDir, "logs", "health_snapshot.json"))
	require.NoError(t, err)
}

func TestTickResultDidWorkIsFalseWhenNothingChanged(t *testing.T) {
	require.False(t, TickResult{}.DidWork())
}
