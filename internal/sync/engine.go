package sync

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fintrack/internal/logger"
	"fintrack/internal/models"
)

// Client is the transport the engine pulls from and pushes to.
type Client interface {
	Pull(ctx context.Context, userID string, lastPulledAt int64) (*models.PullResponse, error)
	Push(ctx context.Context, userID string, lastPulledAt int64, changes models.ChangeSet) (int, error)
}

// Store is the subset of the local store the engine needs.
type Store interface {
	AllByUser(userID string) ([]models.Transaction, error)
	ApplyRemote(record *models.Transaction) error
	RemovePulled(id string) error
	MarkSynced(id string, version int64) error
	Checkpoint(userID string) (int64, error)
	SetCheckpoint(userID string, ts int64) error
}

// Result describes the outcome of one sync cycle.
type Result struct {
	Success  bool   `json:"success"`
	Skipped  bool   `json:"skipped"`
	Error    string `json:"error,omitempty"`
	Pulled   int    `json:"pulled"`
	Pushed   int    `json:"pushed"`
	LastSync int64  `json:"last_sync"`

	Duration time.Duration `json:"-"`
}

// Engine drives one full synchronization cycle: pull remote changes, apply
// them to the local store, push the local delta, advance the checkpoint. The
// cycle is idempotent and safe to retry; the engine never retries on its
// own.
type Engine struct {
	store   Store
	client  Client
	userID  string
	syncing atomic.Bool
	log     *zap.SugaredLogger
}

// NewEngine creates a sync engine for one user's store.
func NewEngine(store Store, client Client, userID string) *Engine {
	return &Engine{
		store:  store,
		client: client,
		userID: userID,
		log:    logger.Get(),
	}
}

// Sync runs one cycle. At most one cycle executes at a time; a concurrent
// call returns immediately with a skipped result instead of queueing.
//
// Pull strictly precedes push. If the pull fails the cycle aborts before
// touching local state. If the push fails the pulled records stay applied
// (they are already durable) and only the checkpoint is left behind, so the
// next cycle re-pulls the same window — applying the same records twice is a
// no-op upsert — and retries the push.
func (e *Engine) Sync(ctx context.Context) *Result {
	if !e.syncing.CompareAndSwap(false, true) {
		e.log.Debugw("sync already in progress, skipping", "user_id", e.userID)
		return &Result{Skipped: true}
	}
	defer e.syncing.Store(false)

	start := time.Now()
	result := &Result{}

	since, err := e.store.Checkpoint(e.userID)
	if err != nil {
		return e.fail(result, start, "reading checkpoint", err)
	}
	result.LastSync = since

	// Pull phase.
	pull, err := e.client.Pull(ctx, e.userID, since)
	if err != nil {
		return e.fail(result, start, "pull", err)
	}

	// Apply phase: remote state overwrites local state verbatim. Conflict
	// resolution happened on the server before these records were stored.
	remote := pull.Changes.Transactions
	for _, id := range remote.Deleted {
		if err := e.store.RemovePulled(id); err != nil {
			return e.fail(result, start, "applying pulled deletion", err)
		}
	}
	for _, rec := range remote.Created {
		if err := e.applyRemote(rec); err != nil {
			return e.fail(result, start, "applying pulled record", err)
		}
	}
	for _, rec := range remote.Updated {
		if err := e.applyRemote(rec); err != nil {
			return e.fail(result, start, "applying pulled record", err)
		}
	}
	result.Pulled = remote.Count()

	// Push phase: the delta is computed against the already-updated local
	// baseline, so an edit made concurrently with the pull carries a newer
	// updated_at than anything just applied and is included here.
	records, err := e.store.AllByUser(e.userID)
	if err != nil {
		return e.fail(result, start, "scanning local records", err)
	}
	delta := ComputeDelta(records)

	if !delta.Empty() {
		pushed, err := e.client.Push(ctx, e.userID, since, delta.Changes)
		if err != nil {
			return e.fail(result, start, "push", err)
		}
		result.Pushed = pushed

		tx := delta.Changes.Transactions
		for _, rec := range tx.Created {
			if err := e.store.MarkSynced(rec.ID, delta.Version(rec.ID)); err != nil {
				return e.fail(result, start, "acknowledging push", err)
			}
		}
		for _, rec := range tx.Updated {
			if err := e.store.MarkSynced(rec.ID, delta.Version(rec.ID)); err != nil {
				return e.fail(result, start, "acknowledging push", err)
			}
		}
		for _, id := range tx.Deleted {
			if err := e.store.MarkSynced(id, 0); err != nil {
				return e.fail(result, start, "acknowledging push", err)
			}
		}
	}

	// Checkpoint advance: the server's wall-clock at pull time, never the
	// client's. SetCheckpoint ignores backwards moves.
	if err := e.store.SetCheckpoint(e.userID, pull.Timestamp); err != nil {
		return e.fail(result, start, "advancing checkpoint", err)
	}

	result.Success = true
	result.LastSync = pull.Timestamp
	result.Duration = time.Since(start)
	e.log.Infow("sync cycle completed",
		"user_id", e.userID,
		"pulled", result.Pulled,
		"pushed", result.Pushed,
		"last_sync", result.LastSync,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result
}

func (e *Engine) applyRemote(rec models.Transaction) error {
	r := rec
	return e.store.ApplyRemote(&r)
}

// fail captures a cycle failure as a sync-status error string. Sync is
// best-effort from the caller's perspective: failures are reported, never
// propagated as panics or surfaced to mutation paths.
func (e *Engine) fail(result *Result, start time.Time, phase string, err error) *Result {
	result.Success = false
	result.Error = phase + ": " + err.Error()
	result.Duration = time.Since(start)
	e.log.Warnw("sync cycle failed", "user_id", e.userID, "phase", phase, "error", err)
	return result
}
