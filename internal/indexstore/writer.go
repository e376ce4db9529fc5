package indexstore

import (
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"
)

// writeOp is a single unit of work applied inside one batch transaction.
type writeOp struct {
	apply func(*sql.Tx) error
	done  chan error
}

// BatchWriter serializes writes onto the single writer connection and
// commits them in batches of at most maxBatch items or every interval,
// whichever comes first — per-item commits are forbidden. SQLite's
// single-writer model means fsyncing every individual insert would make
// a full-repo sync pass commit-bound rather than CPU-bound.
type BatchWriter struct {
	db       *sql.DB
	logger   *zap.Logger
	maxBatch int
	interval time.Duration

	queue chan *writeOp
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func NewBatchWriter(db *sql.DB, logger *zap.Logger, maxBatch int, interval time.Duration) *BatchWriter {
	return &BatchWriter{
		db:       db,
		logger:   logger,
		maxBatch: maxBatch,
		interval: interval,
		queue:    make(chan *writeOp, 256),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (w *BatchWriter) Start() {
	go w.run()
}

func (w *BatchWriter) Stop() {
	w.once.Do(func() {
		close(w.stop)
		<-w.done
	})
}

// Submit enqueues a unit of work and blocks until it has been committed
// (or the batch containing it failed), returning its error.
func (w *BatchWriter) Submit(apply func(*sql.Tx) error) error {
	op := &writeOp{apply: apply, done: make(chan error, 1)}
	w.queue <- op
	return <-op.done
}

func (w *BatchWriter) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	var batch []*writeOp
	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.commit(batch)
		batch = nil
	}

	for {
		select {
		case <-w.stop:
			flush()
			return
		case op := <-w.queue:
			batch = append(batch, op)
			if len(batch) >= w.maxBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (w *BatchWriter) commit(batch []*writeOp) {
	tx, err := w.db.Begin()
	if err != nil {
		for _, op := range batch {
			op.done <- err
		}
		return
	}
	errsPerOp := make([]error, len(batch))
	failed := false
	for i, op := range batch {
		if err := op.apply(tx); err != nil {
			errsPerOp[i] = err
			failed = true
		}
	}
	if failed {
		tx.Rollback()
		for i, op := range batch {
			if errsPerOp[i] == nil {
				errsPerOp[i] = errValidationFailedInBatch
			}
			op.done <- errsPerOp[i]
		}
		return
	}
	if err := tx.Commit(); err != nil {
		for _, op := range batch {
			op.done <- err
		}
		return
	}
	for _, op := range batch {
		op.done <- nil
	}
}

var errValidationFailedInBatch = &batchError{"a sibling write in this batch failed, batch rolled back"}

type batchError struct{ msg string }

func (e *batchError) Error() string { return e.msg }
