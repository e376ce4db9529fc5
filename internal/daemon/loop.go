// Package daemon implements the per-repo tick cycle of detectChanges ->
// apply -> enrich -> embed -> healthSnapshot, woken by filesystem
// activity or idle-backoff timers.
package daemon

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"llmc/internal/config"
	"llmc/internal/embed"
	"llmc/internal/enrich"
	"llmc/internal/graph"
	"llmc/internal/indexstore"
	"llmc/internal/sync"
)

// TickResult summarizes one full tick's work across all five phases.
type TickResult struct {
	Applied  sync.Result
	Enriched enrich.Result
	Embedded embed.Result
	Health   indexstore.Health
}

// DidWork reports whether this tick changed anything, the signal the
// loop's idle-backoff doubling keys off: any observed change resets the
// backoff to the base tick interval.
func (r TickResult) DidWork() bool {
	return r.Applied.FilesWritten > 0 || r.Applied.FilesDeleted > 0 ||
		r.Enriched.SpansEnriched > 0 || r.Embedded.Embedded > 0
}

// Loop drives one registered repository's detectChanges -> apply ->
// enrich -> embed -> healthSnapshot cycle.
type Loop struct {
	repoPath string
	store    *indexstore.Store
	cfg      *config.Config
	enrich   *enrich.Pipeline
	embed    *embed.Pipeline
	builder  *graph.Builder
	logger   *zap.Logger
	lock     *RepoLock
	watcher  *repoWatcher
}

// NewLoop constructs a Loop for repoPath, taking its advisory lock and
// starting its filesystem watcher. Callers must call Run and, once Run
// returns, discard the Loop (the lock is released on exit).
func NewLoop(repoPath string, store *indexstore.Store, cfg *config.Config, enrichPipeline *enrich.Pipeline, embedPipeline *embed.Pipeline, logger *zap.Logger) (*Loop, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	lock, err := AcquireRepoLock(repoPath)
	if err != nil {
		return nil, err
	}
	watcher, err := newRepoWatcher(repoPath, logger)
	if err != nil {
		lock.Release()
		return nil, err
	}
	lowerPriority(cfg.Daemon.NiceLevel, logger)

	return &Loop{
		repoPath: repoPath,
		store:    store,
		cfg:      cfg,
		enrich:   enrichPipeline,
		embed:    embedPipeline,
		builder:  graph.NewBuilder(),
		logger:   logger,
		lock:     lock,
		watcher:  watcher,
	}, nil
}

// lowerPriority lowers this process's scheduling priority (nice +10
// equivalent) via the standard library's syscall.Setpriority, so a
// background indexing pass doesn't compete with interactive work on the
// same machine. Best-effort: a daemon running without permission to
// renice itself still functions, just at normal priority.
func lowerPriority(niceLevel int, logger *zap.Logger) {
	if niceLevel == 0 {
		return
	}
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, niceLevel); err != nil {
		logger.Debug("failed to lower process priority", zap.Int("nice_level", niceLevel), zap.Error(err))
	}
}

// Run drives tick/sleep cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.lock.Release()
	l.watcher.start(ctx)
	defer l.watcher.stop()

	base := time.Duration(l.cfg.Daemon.TickSeconds) * time.Second
	maxBackoff := time.Duration(l.cfg.Daemon.IdleBackoffMax) * time.Second
	sleep := base

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := l.tick(ctx)
		if err != nil {
			l.logger.Warn("tick failed", zap.String("repo", l.repoPath), zap.Error(err))
		}

		if res.DidWork() {
			sleep = base
		} else {
			sleep *= 2
			if sleep > maxBackoff {
				sleep = maxBackoff
			}
		}

		if !l.interruptibleSleep(ctx, sleep) {
			return nil
		}
	}
}

// interruptibleSleep sleeps for dur in <=5s increments, waking early on
// cancellation or a filesystem wake signal. Returns false when the
// caller should stop the loop.
func (l *Loop) interruptibleSleep(ctx context.Context, dur time.Duration) bool {
	const chunk = 5 * time.Second
	deadline := time.Now().Add(dur)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		wait := chunk
		if remaining < wait {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-l.watcher.wakeCh:
			timer.Stop()
			return true // a real change arrived; don't wait out the rest of the backoff
		case <-timer.C:
		}
	}
	return true
}

// tick runs the five phases in order, checking cancellation between
// each. A phase that times out or errors still lets later ticks retry:
// nothing here is fatal to the loop itself.
func (l *Loop) tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	phaseTimeout := time.Duration(l.cfg.Daemon.PhaseTimeoutSeconds) * time.Second

	status, err := l.store.GetIndexStatus(l.repoPath)
	if err != nil {
		return result, err
	}
	if status.State == indexstore.StateEmpty {
		if err := l.store.SetIndexState(l.repoPath, indexstore.StateIndexing, ""); err != nil {
			return result, err
		}
	}

	// detectChanges and apply are synchronous filesystem/git operations
	// with no context parameter of their own (internal/sync does not
	// make network calls), so the per-phase deadline below only bounds
	// the two phases that actually cross the network: enrich and embed.
	cs, commit, err := sync.DetectChanges(l.repoPath, status.LastIndexedCommit, l.store)
	if err != nil {
		l.store.SetIndexState(l.repoPath, indexstore.StateError, err.Error())
		return result, err
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if !cs.Empty() {
		applied, applyErr := sync.Apply(l.repoPath, l.store, cs, l.builder, l.logger)
		result.Applied = applied
		if applyErr != nil {
			l.store.SetIndexState(l.repoPath, indexstore.StateError, applyErr.Error())
			return result, applyErr
		}
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	indexedCommit := commit
	if indexedCommit == "" {
		indexedCommit = status.LastIndexedCommit
	}
	if err := l.store.MarkIndexed(l.repoPath, indexedCommit); err != nil {
		return result, err
	}
	if _, err := l.store.ReapOrphanedEnrichments(time.Now()); err != nil {
		l.logger.Warn("orphan reaping failed", zap.Error(err))
	}

	if l.enrich != nil {
		enrichCtx, cancelEnrich := context.WithTimeout(ctx, phaseTimeout)
		enriched, enrichErr := l.enrich.RunCycle(enrichCtx)
		cancelEnrich()
		result.Enriched = enriched
		if enrichErr != nil {
			l.logger.Warn("enrichment cycle failed", zap.Error(enrichErr))
		}
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if l.embed != nil {
		embedCtx, cancelEmbed := context.WithTimeout(ctx, phaseTimeout)
		embedded, embedErr := l.embed.RunCycle(embedCtx, l.cfg.Enrichment.MaxSpansPerCycle)
		cancelEmbed()
		result.Embedded = embedded
		if embedErr != nil {
			l.logger.Warn("embedding cycle failed", zap.Error(embedErr))
		}
	}
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	health, err := l.store.Health(l.repoPath)
	if err != nil {
		return result, err
	}
	result.Health = health
	l.writeHealthSnapshot(health)

	return result, nil
}

// writeHealthSnapshot persists the latest Health view to
// <repo>/logs/health_snapshot.json, overwritten each tick. Grounded on
// internal/enrich's metricsWriter JSON-lines idiom, but a single
// current-state file rather than an append-only log since health is a
// point-in-time view, not a history.
func (l *Loop) writeHealthSnapshot(h indexstore.Health) {
	dir := filepath.Join(l.repoPath, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(dir, "health_snapshot.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		l.logger.Debug("failed to write health snapshot", zap.String("path", path), zap.Error(err))
	}
}
