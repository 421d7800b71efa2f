// Package worker implements the C11 worker/poller: a single per-replica
// scheduling loop that drains QUEUED tracking rows with distributed
// locking, bounded concurrent processing, and fixed-table retry backoff.
//
// Grounded on the teacher's internal/infra/scheduler/scheduler.go
// (context-cancellation + sync.WaitGroup graceful stop, panic-recovering
// job execution, slog logging shape). Adapted from a fixed-interval
// ticker running N independent jobs to a single re-armed time.Timer
// running one adaptive-interval claim-and-fan-out cycle, since §4.11's
// interval alternates between an "active" and "idle" value depending on
// whether the previous cycle found work — a plain time.Ticker cannot
// change its own period. golang.org/x/sync/errgroup (teacher dependency)
// bounds per-cycle fan-out concurrency.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docgen/docgen-sub000/internal/core/entity"
	"github.com/docgen/docgen-sub000/internal/core/errkind"
	"github.com/docgen/docgen-sub000/internal/core/port"
	"github.com/docgen/docgen-sub000/internal/infra/telemetry"
)

// backoffTable implements §4.11's fixed retry-delay table. Index 0 is
// unused; attempts are 1-based. attempts >= 4 is terminal (no entry).
var backoffTable = map[int]time.Duration{
	1: 60 * time.Second,
	2: 300 * time.Second,
	3: 900 * time.Second,
}

const maxAttemptsDefault = 3

// Runner executes one claimed tracking row end to end: decode -> C10 ->
// publish. It is the worker's view of the generation pipeline plus
// publisher, already wired with the pipeline's own components.
type Runner interface {
	Run(ctx context.Context, env *entity.Envelope, tracking *entity.TrackingRecord) error
}

type Options struct {
	BatchSize      int
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	LockTTL        time.Duration
	MaxAttempts    int
}

// Stats mirrors §4.11's exported counters.
type Stats struct {
	IsRunning         bool
	CurrentQueueDepth int
	LastPollTime      time.Time
	Processed         int64
	Succeeded         int64
	Failed            int64
	Retried           int64
	StartedAt         time.Time
}

// Worker is the C11 worker/poller.
type Worker struct {
	repo   port.TrackingRepository
	runner Runner
	clock  port.Clock
	opts   Options

	mu        sync.Mutex
	running   bool
	queueDep  int
	lastPoll  time.Time
	startedAt time.Time

	processed, succeeded, failed, retried atomic.Int64

	cancel context.CancelFunc
	done   chan struct{}

	rec *telemetry.Recorder // nil-safe; set via SetRecorder
}

// SetRecorder wires the §4.13 instrument registry in. Left unset, every
// Recorder method is a no-op.
func (w *Worker) SetRecorder(rec *telemetry.Recorder) {
	w.rec = rec
}

func New(repo port.TrackingRepository, runner Runner, clock port.Clock, opts Options) *Worker {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = maxAttemptsDefault
	}
	if clock == nil {
		clock = port.SystemClock{}
	}
	return &Worker{repo: repo, runner: runner, clock: clock, opts: opts}
}

// Start launches the scheduling loop in a background goroutine.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.running = true
	w.startedAt = w.clock.Now()
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(ctx)
}

// Stop cancels the scheduling loop and waits for the in-flight cycle to
// finish. Per §4.11, in-flight tasks are allowed to complete; the caller
// applies its own grace-window deadline via ctx.
func (w *Worker) Stop(ctx context.Context) {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			// The cycle runs detached from the loop's cancellation so that
			// Stop lets in-flight tasks complete instead of aborting them.
			foundWork := w.runCycle(context.WithoutCancel(ctx))
			interval := w.opts.IdleInterval
			if foundWork {
				interval = w.opts.ActiveInterval
			}
			timer.Reset(interval)
		}
	}
}

// runCycle implements §4.11's per-cycle steps 1-5. It recovers from a
// panic in any single task so one bad row cannot take down the loop.
func (w *Worker) runCycle(ctx context.Context) (foundWork bool) {
	w.mu.Lock()
	w.lastPoll = w.clock.Now()
	w.mu.Unlock()

	rows, err := w.repo.FetchQueuedBatch(ctx, w.opts.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "worker: fetch batch failed", slog.String("error", err.Error()))
		return false
	}

	w.mu.Lock()
	w.queueDep = len(rows)
	w.mu.Unlock()
	w.rec.SetQueueDepth(ctx, int64(len(rows)))

	if len(rows) == 0 {
		return false
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.BatchSize)

	for _, row := range rows {
		row := row
		g.Go(func() error {
			w.processRow(gctx, row)
			return nil
		})
	}
	_ = g.Wait()

	return true
}

func (w *Worker) processRow(ctx context.Context, row entity.TrackingRecord) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "worker: task panicked",
				slog.String("tracking_id", row.ID),
				slog.String("panic", fmt.Sprintf("%v", r)))
		}
	}()

	lockedUntil := w.clock.Now().Add(w.opts.LockTTL)
	if err := w.repo.Claim(ctx, row.ID, lockedUntil); err != nil {
		if e, ok := err.(*errkind.Error); ok && e.Kind == errkind.RecordStoreConflict {
			return // another replica won; skip this cycle
		}
		slog.ErrorContext(ctx, "worker: claim failed", slog.String("tracking_id", row.ID), slog.String("error", err.Error()))
		return
	}

	w.processed.Add(1)

	env, err := w.repo.DecodeEnvelope(ctx, row)
	if err != nil {
		w.fail(ctx, row, err)
		return
	}
	env.CorrelationID = row.CorrelationID
	env.TrackingRecordID = row.ID

	start := w.clock.Now()
	err = w.runner.Run(ctx, env, &row)
	w.rec.RecordDuration(ctx, row.TemplateID, string(env.OutputFormat), "batch", float64(w.clock.Now().Sub(start).Milliseconds()))
	if err != nil {
		w.fail(ctx, row, err)
		return
	}

	w.succeeded.Add(1)
}

func (w *Worker) fail(ctx context.Context, row entity.TrackingRecord, cause error) {
	kind := errkind.Internal
	if e, ok := cause.(*errkind.Error); ok {
		kind = e.Kind
	}

	nextAttempt := row.Attempts + 1
	if kind.Retryable() {
		if delay, ok := backoffTable[nextAttempt]; ok && nextAttempt <= w.opts.MaxAttempts {
			w.retried.Add(1)
			w.rec.IncRetry(ctx, nextAttempt)
			scheduled := w.clock.Now().Add(delay)
			if err := w.repo.Requeue(ctx, row.ID, nextAttempt, scheduled, cause.Error()); err != nil {
				// the lock expiring naturally at lockTtl also recovers
				// this row for another replica if the requeue patch fails.
				slog.ErrorContext(ctx, "worker: requeue patch failed", slog.String("tracking_id", row.ID), slog.String("error", err.Error()))
			}
			slog.WarnContext(ctx, "worker: task failed, retry scheduled",
				slog.String("tracking_id", row.ID), slog.Int("attempt", nextAttempt),
				slog.String("error", cause.Error()))
			return
		}
	}

	w.failed.Add(1)
	w.rec.IncFailure(ctx, string(kind), "batch")
	if err := w.repo.MarkTerminal(ctx, row.ID, cause.Error()); err != nil {
		slog.ErrorContext(ctx, "worker: terminal patch failed", slog.String("tracking_id", row.ID), slog.String("error", err.Error()))
	}
	slog.ErrorContext(ctx, "worker: task failed terminally",
		slog.String("tracking_id", row.ID), slog.String("error", cause.Error()))
}

func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		IsRunning:         w.running,
		CurrentQueueDepth: w.queueDep,
		LastPollTime:      w.lastPoll,
		Processed:         w.processed.Load(),
		Succeeded:         w.succeeded.Load(),
		Failed:            w.failed.Load(),
		Retried:           w.retried.Load(),
		StartedAt:         w.startedAt,
	}
}
