package indexstore

import (
	"database/sql"
	"time"

	"llmc/internal/errs"
)

// FailureRecord tracks a span's enrichment failures at a given tier so
// the cascade can apply a cooldown instead of retrying every cycle.
type FailureRecord struct {
	SpanHash      string
	Tier          string
	Reason        string
	Attempts      int
	CooldownUntil time.Time
	LastSeenAt    time.Time
}

// cooldownSchedule returns how long to wait before retrying after
// attempts consecutive failures at a tier: 1m, 5m, 30m, then capped at
// 2h.
func cooldownSchedule(attempts int) time.Duration {
	switch {
	case attempts <= 1:
		return time.Minute
	case attempts == 2:
		return 5 * time.Minute
	case attempts == 3:
		return 30 * time.Minute
	default:
		return 2 * time.Hour
	}
}

// RecordFailure increments the failure count for (spanHash, tier) and
// sets a new cooldown, so QueryPendingEnrichments skips it until the
// cooldown elapses.
func (s *Store) RecordFailure(spanHash, tier, reason string) error {
	now := time.Now()
	err := s.writer.Submit(func(tx *sql.Tx) error {
		var attempts int
		err := tx.QueryRow(`SELECT attempts FROM failure_records WHERE span_hash = ? AND tier = ?`, spanHash, tier).Scan(&attempts)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		attempts++
		cooldownUntil := now.Add(cooldownSchedule(attempts)).Unix()
		_, err = tx.Exec(`
			INSERT INTO failure_records(span_hash, tier, reason, attempts, cooldown_until, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(span_hash, tier) DO UPDATE SET
				reason=excluded.reason, attempts=excluded.attempts,
				cooldown_until=excluded.cooldown_until, last_seen_at=excluded.last_seen_at
		`, spanHash, tier, reason, attempts, cooldownUntil, now.Unix())
		return err
	})
	if err != nil {
		return errs.New(errs.StoreBusy, "indexstore.RecordFailure", err)
	}
	return nil
}

// ClearFailure removes any FailureRecord for (spanHash, tier), called
// after a successful enrichment at that tier.
func (s *Store) ClearFailure(spanHash, tier string) error {
	err := s.writer.Submit(func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM failure_records WHERE span_hash = ? AND tier = ?`, spanHash, tier)
		return err
	})
	if err != nil {
		return errs.New(errs.StoreBusy, "indexstore.ClearFailure", err)
	}
	return nil
}

// IsCoolingDown reports whether (spanHash, tier) is currently under a
// retry cooldown.
func (s *Store) IsCoolingDown(spanHash, tier string) (bool, error) {
	var cooldownUntil int64
	err := s.conn().QueryRow(`SELECT cooldown_until FROM failure_records WHERE span_hash = ? AND tier = ?`, spanHash, tier).Scan(&cooldownUntil)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errs.New(errs.StoreBusy, "indexstore.IsCoolingDown", err)
	}
	return time.Now().Unix() < cooldownUntil, nil
}
