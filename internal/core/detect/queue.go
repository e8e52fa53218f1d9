package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/agenthands/notegraph/internal/apperr"
	"github.com/agenthands/notegraph/internal/config"
	"github.com/agenthands/notegraph/internal/core/model"
	"github.com/agenthands/notegraph/internal/metrics"
	"github.com/agenthands/notegraph/internal/store"
)

// Runner runs one detection job.
type Runner interface {
	Run(ctx context.Context, noteID string) (*Result, error)
}

// Queue runs detection jobs on a fixed set of workers. Enqueue never blocks:
// a note already waiting is not queued twice, a note being processed is
// processed again once the current run ends, and a full queue marks the
// note skipped for the sweep to pick up.
type Queue struct {
	runner  Runner
	notes   store.NoteRepository
	cfg     config.DetectionConfig
	metrics *metrics.Collector
	logger  *zap.Logger

	jobs chan string

	mu       sync.Mutex
	pending  map[string]bool
	inflight map[string]bool
	rerun    map[string]bool
	closed   bool

	randMu sync.Mutex
	rand   *rand.Rand

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	sweeper *cron.Cron

	// sleep waits between attempts; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

type QueueOption func(*Queue)

func WithQueueMetrics(m *metrics.Collector) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

func WithQueueLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func NewQueue(runner Runner, notes store.NoteRepository, cfg config.DetectionConfig, opts ...QueueOption) *Queue {
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		runner:   runner,
		notes:    notes,
		cfg:      cfg,
		logger:   zap.NewNop(),
		jobs:     make(chan string, size),
		pending:  make(map[string]bool),
		inflight: make(map[string]bool),
		rerun:    make(map[string]bool),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		ctx:      ctx,
		cancel:   cancel,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Start launches the workers.
func (q *Queue) Start() {
	workers := q.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("detection workers started", zap.Int("workers", workers), zap.Int("queue_size", cap(q.jobs)))
}

func (q *Queue) Enqueue(noteID string) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if q.inflight[noteID] {
		q.rerun[noteID] = true
		q.mu.Unlock()
		return
	}
	if q.pending[noteID] {
		q.mu.Unlock()
		return
	}

	select {
	case q.jobs <- noteID:
		q.pending[noteID] = true
		q.mu.Unlock()
		q.metrics.QueueDepth(len(q.jobs))
	default:
		// Add under the lock: Shutdown waits only after it has set closed.
		q.wg.Add(1)
		q.mu.Unlock()
		q.logger.Warn("detection queue full, note skipped", zap.String("note_id", noteID))
		q.metrics.DetectionJob("dropped")
		go func() {
			defer q.wg.Done()
			q.markSkipped(q.ctx, noteID)
		}()
	}
}

func (q *Queue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case noteID := <-q.jobs:
			q.metrics.QueueDepth(len(q.jobs))
			if !q.begin(noteID) {
				continue
			}
			q.process(q.ctx, noteID)
			if q.finish(noteID) {
				q.Enqueue(noteID)
			}
		}
	}
}

// begin moves a note from pending to inflight. It reports false when another
// worker already runs the note; that run is then repeated.
func (q *Queue) begin(noteID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, noteID)
	if q.inflight[noteID] {
		q.rerun[noteID] = true
		return false
	}
	q.inflight[noteID] = true
	return true
}

// finish clears the inflight mark and reports whether the note changed
// while it was processed.
func (q *Queue) finish(noteID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, noteID)
	again := q.rerun[noteID]
	delete(q.rerun, noteID)
	return again && !q.closed
}

// process runs the job, retrying transient failures with exponential
// backoff. After the last attempt the note is marked skipped.
func (q *Queue) process(ctx context.Context, noteID string) {
	attempts := q.cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, err := q.runner.Run(ctx, noteID)
		if err == nil {
			q.metrics.DetectionJob("done")
			return
		}
		if errors.Is(err, apperr.NotFound) {
			// Deleted while queued.
			q.metrics.DetectionJob("gone")
			return
		}
		if ctx.Err() != nil {
			return
		}
		lastErr = err
		if !apperr.IsTransient(err) {
			break
		}

		if attempt < attempts {
			delay := q.backoff(attempt)
			q.logger.Warn("detection failed, retrying",
				zap.String("note_id", noteID),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			if err := q.sleep(ctx, delay); err != nil {
				return
			}
		}
	}

	q.logger.Error("detection gave up, note skipped",
		zap.String("note_id", noteID), zap.Int("max_attempts", attempts), zap.Error(lastErr))
	q.metrics.DetectionJob("skipped")
	q.markSkipped(ctx, noteID)
}

// backoff returns the delay before the next attempt: exponential growth
// from the initial delay, capped, with ±10% jitter.
func (q *Queue) backoff(attempt int) time.Duration {
	base := float64(q.cfg.InitialBackoff()) * math.Pow(2, float64(attempt-1))
	if ceiling := float64(q.cfg.MaxBackoff()); ceiling > 0 && base > ceiling {
		base = ceiling
	}
	q.randMu.Lock()
	jitter := 0.1 * base * (q.rand.Float64()*2 - 1)
	q.randMu.Unlock()

	delay := base + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func (q *Queue) markSkipped(ctx context.Context, noteID string) {
	note, err := q.notes.GetNote(ctx, noteID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			q.logger.Error("failed to load note to mark it skipped", zap.String("note_id", noteID), zap.Error(err))
		}
		return
	}
	if _, err := q.notes.SetDetectionStatus(ctx, noteID, note.Version, model.DetectionSkipped); err != nil {
		q.logger.Error("failed to mark note skipped", zap.String("note_id", noteID), zap.Error(err))
	}
}

// Sweep re-enqueues notes whose detection was skipped or never finished.
func (q *Queue) Sweep(ctx context.Context) int {
	n := 0
	for _, status := range []model.DetectionStatus{model.DetectionSkipped, model.DetectionPending} {
		ids, err := q.notes.ListByDetectionStatus(ctx, status, q.cfg.QueueSize)
		if err != nil {
			q.logger.Error("detection sweep failed", zap.String("status", string(status)), zap.Error(err))
			continue
		}
		for _, id := range ids {
			q.Enqueue(id)
		}
		n += len(ids)
	}
	if n > 0 {
		q.logger.Info("detection sweep re-enqueued notes", zap.Int("notes", n))
	}
	return n
}

// StartSweeper runs Sweep on a cron schedule such as "@every 10m". An
// empty schedule disables the sweeper.
func (q *Queue) StartSweeper(schedule string) error {
	if schedule == "" {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() { q.Sweep(q.ctx) }); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	q.mu.Lock()
	q.sweeper = c
	q.mu.Unlock()
	c.Start()
	q.logger.Info("detection sweeper started", zap.String("schedule", schedule))
	return nil
}

// Shutdown stops accepting jobs, cancels running ones and waits for the
// workers to exit.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	sweeper := q.sweeper
	q.mu.Unlock()
	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
