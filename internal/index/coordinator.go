// Package index coordinates reindexing: loading chunk documents, guarding
// concurrent builds with a file lock, persisting the accepted corpus, and
// tracking asynchronous reindex jobs by handle.
package index

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	sferrors "github.com/searchfuse/searchfuse/internal/errors"
	"github.com/searchfuse/searchfuse/internal/search"
	"github.com/searchfuse/searchfuse/internal/store"
)

// JobStatus is the lifecycle state of a reindex job.
type JobStatus string

const (
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// JobSnapshot is an immutable view of one reindex job.
type JobSnapshot struct {
	ID         string    `json:"id"`
	Status     JobStatus `json:"status"`
	Generation string    `json:"generation,omitempty"`
	Chunks     int       `json:"chunks"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

type job struct {
	mu       sync.Mutex
	snapshot JobSnapshot
}

func (j *job) update(fn func(*JobSnapshot)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.snapshot)
}

func (j *job) view() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshot
}

// Options configures a Coordinator. Store enables corpus persistence and
// LockPath enables cross-process build exclusion; both are optional.
type Options struct {
	Store    *store.SQLiteStore
	LockPath string
}

// Coordinator drives index builds against an engine. A build is
// build-then-swap: the engine keeps serving the old generation until the
// new one is complete, and the response cache is invalidated only after
// the swap so no cached result outlives its generation.
type Coordinator struct {
	engine *search.Engine
	store  *store.SQLiteStore
	lock   *flock.Flock

	mu   sync.Mutex
	jobs map[string]*job
}

// New creates a coordinator for the given engine.
func New(engine *search.Engine, opts Options) *Coordinator {
	c := &Coordinator{
		engine: engine,
		store:  opts.Store,
		jobs:   make(map[string]*job),
	}
	if opts.LockPath != "" {
		c.lock = flock.New(opts.LockPath)
	}
	return c
}

// Reindex builds a new generation from the chunk batch and swaps it in.
// It blocks until the build completes and returns the new generation ID.
func (c *Coordinator) Reindex(ctx context.Context, chunks []store.Chunk) (string, error) {
	if c.lock != nil {
		locked, err := c.lock.TryLock()
		if err != nil {
			return "", sferrors.InternalError("failed to acquire index lock", err)
		}
		if !locked {
			return "", sferrors.New(sferrors.ErrCodeIndexFailed,
				"another reindex holds the index lock", nil)
		}
		defer func() { _ = c.lock.Unlock() }()
	}

	generation, err := c.engine.SubmitChunks(ctx, chunks)
	if err != nil {
		return "", err
	}

	// Persistence failures don't undo the swap; the live index is already
	// correct and the corpus can be resubmitted.
	if c.store != nil {
		if err := c.store.SaveChunks(ctx, chunks); err != nil {
			slog.Warn("failed to persist corpus", slog.String("error", err.Error()))
		} else if err := c.store.SetState(ctx, "last_generation", generation); err != nil {
			slog.Warn("failed to persist generation marker", slog.String("error", err.Error()))
		}
	}

	if err := c.engine.InvalidateResponseCache(ctx); err != nil {
		slog.Warn("failed to invalidate response cache after reindex",
			slog.String("error", err.Error()))
	}

	return generation, nil
}

// ReindexFile loads a chunks document from disk and reindexes it.
func (c *Coordinator) ReindexFile(ctx context.Context, path string) (string, error) {
	chunks, err := store.LoadChunksJSON(path)
	if err != nil {
		return "", err
	}
	return c.Reindex(ctx, chunks)
}

// ReindexAsync starts a background reindex of a chunks document and
// returns a job handle immediately. Poll Job with the handle for status.
func (c *Coordinator) ReindexAsync(ctx context.Context, path string) string {
	id := uuid.NewString()
	j := &job{snapshot: JobSnapshot{
		ID:        id,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}}

	c.mu.Lock()
	c.jobs[id] = j
	c.mu.Unlock()

	go func() {
		generation, err := c.ReindexFile(ctx, path)
		j.update(func(s *JobSnapshot) {
			s.FinishedAt = time.Now()
			if err != nil {
				s.Status = StatusFailed
				s.Error = err.Error()
				return
			}
			s.Status = StatusDone
			s.Generation = generation
			s.Chunks = c.engine.ChunkCount()
		})
		if err != nil {
			slog.Error("background reindex failed",
				slog.String("job", id),
				slog.String("error", err.Error()))
		}
	}()

	return id
}

// Job returns a snapshot of the job with the given handle.
func (c *Coordinator) Job(id string) (JobSnapshot, bool) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	c.mu.Unlock()
	if !ok {
		return JobSnapshot{}, false
	}
	return j.view(), true
}

// Restore rebuilds the index from the persisted corpus. A missing or
// empty corpus is not an error; the engine just stays unindexed.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	chunks, err := c.store.LoadChunks(ctx)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	generation, err := c.engine.SubmitChunks(ctx, chunks)
	if err != nil {
		return err
	}
	slog.Info("restored persisted corpus",
		slog.Int("chunks", len(chunks)),
		slog.String("generation", generation))
	return nil
}
