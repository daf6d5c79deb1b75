package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/metrics"
)

const gigabyte = 1 << 30

// Worker is one unit of work as the controller sees it. Every method is safe
// to call from the controller goroutine while the worker runs.
type Worker interface {
	// Descriptor names the input this worker was created for.
	Descriptor() string
	// Alive reports whether the worker's goroutine is still running.
	Alive() bool
	// Finished reports whether an outcome has been recorded. Once true it
	// stays true.
	Finished() bool
	// Outcome returns the terminal outcome once Finished.
	Outcome() (Outcome, bool)
	// StatusLine renders the worker for humans. It is sticky once finished.
	StatusLine() string
	// Progress returns bytes moved and bytes expected.
	Progress() (transferred, total int64)
}

// workerEnv is what a transfer worker needs from its controller.
type workerEnv struct {
	pollInterval time.Duration
	maxWait      time.Duration
	now          func() time.Time
	logger       *slog.Logger
	metrics      *metrics.Collector
	tracker      *JobTracker
}

// transferWorker drives one accepted job through its phases in its own
// goroutine. Only that goroutine writes counters and the outcome.
type transferWorker struct {
	descriptor string
	kind       api.Kind
	job        Job
	phases     []Phase
	verbs      Verbs
	env        workerEnv

	transferred atomic.Int64
	total       atomic.Int64
	outcome     atomic.Pointer[Outcome]
	done        chan struct{}
}

func startWorker(ctx context.Context, op Operation, descriptor string, job Job, env workerEnv) *transferWorker {
	w := &transferWorker{
		descriptor: descriptor,
		kind:       op.Kind(),
		job:        job,
		phases:     op.Phases(),
		verbs:      op.Verbs(),
		env:        env,
		done:       make(chan struct{}),
	}
	env.metrics.WorkerStarted(string(w.kind))
	go w.run(ctx)
	return w
}

func (w *transferWorker) run(ctx context.Context) {
	var journalID string
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("worker panic: %v", r)
			_ = w.env.tracker.MarkFailed(journalID, err)
			w.finish(Failure(err))
		}
		w.env.metrics.WorkerStopped(string(w.kind))
		close(w.done)
	}()

	log := w.env.logger.With("kind", string(w.kind), "job", w.job.Label(), "remote_id", w.job.RemoteID().String())

	journalID, err := w.env.tracker.InitJob(string(w.kind), w.descriptor, w.job.RemoteID().String())
	if err != nil {
		log.Debug("journal init failed", "error", err)
	}
	_ = w.env.tracker.MarkInProgress(journalID)
	checkpoint := w.env.tracker.NewCheckpointer(journalID)

	var payload string
	for _, phase := range w.phases {
		log.Debug("entering phase", "phase", phase.String())

		switch phase {
		case PhaseTransfer:
			err = w.job.Transfer(ctx, func(transferred, total int64) {
				prev := w.transferred.Swap(transferred)
				w.total.Store(total)
				w.env.metrics.AddBytes(string(w.kind), transferred-prev)
				checkpoint.Update(transferred, total)
			})
		case PhaseSettle:
			err = w.job.Settle(ctx)
		case PhasePoll:
			err = w.poll(ctx)
		case PhaseFinalize:
			payload, err = w.job.Finalize(ctx)
		}

		if err != nil {
			log.Warn("job failed", "phase", phase.String(), "error", err)
			_ = w.env.tracker.MarkFailed(journalID, err)
			w.finish(Failure(err))
			return
		}
	}

	if err := w.job.Destroy(ctx); err != nil {
		log.Debug("best-effort destroy failed", "error", err)
	}
	_ = w.env.tracker.MarkCompleted(journalID, payload)
	log.Info("job complete", "payload", payload)
	w.finish(Success(payload))
}

// poll waits for the server to report the job complete.
func (w *transferWorker) poll(ctx context.Context) error {
	deadline := w.env.now().Add(w.env.maxWait)
	for {
		status, err := w.job.Status(ctx)
		if err != nil {
			return err
		}
		switch status {
		case api.StatusProcessing:
		case api.StatusComplete:
			return nil
		default:
			return fmt.Errorf("%w: %s job had unexpected state of %q", ErrRemoteJob, w.kind, status)
		}

		if !w.env.now().Before(deadline) {
			return fmt.Errorf("%w: waiting for %s job to complete", ErrTimeout, w.kind)
		}

		timer := time.NewTimer(w.env.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (w *transferWorker) finish(o Outcome) {
	if w.outcome.CompareAndSwap(nil, &o) {
		w.env.metrics.JobFinished(string(w.kind), o.OK())
	}
}

func (w *transferWorker) Descriptor() string { return w.descriptor }

func (w *transferWorker) Alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *transferWorker) Finished() bool { return w.outcome.Load() != nil }

func (w *transferWorker) Outcome() (Outcome, bool) {
	if o := w.outcome.Load(); o != nil {
		return *o, true
	}
	return Outcome{}, false
}

func (w *transferWorker) Progress() (int64, int64) {
	return w.transferred.Load(), w.total.Load()
}

func (w *transferWorker) StatusLine() string {
	return w.job.Label() + ": " + w.status()
}

func (w *transferWorker) status() string {
	if o, ok := w.Outcome(); ok {
		if o.OK() {
			return w.verbs.Success + ": " + o.Payload
		}
		return "Error: " + o.Message()
	}

	done, total := w.Progress()
	switch {
	case done == 0:
		return w.verbs.Idle
	case total <= 0:
		return fmt.Sprintf("%s (%.1f GB)", w.verbs.Transfer, float64(done)/gigabyte)
	case done >= total && w.verbs.Settling != "":
		return w.verbs.Settling
	default:
		return fmt.Sprintf("%s %.1f%% (%.1f / %.1f GB)", w.verbs.Transfer,
			100*float64(done)/float64(total), float64(done)/gigabyte, float64(total)/gigabyte)
	}
}

// deadWorker stands in for a descriptor whose job could not be created.
type deadWorker struct {
	descriptor string
	label      string
	err        error
}

func newDeadWorker(descriptor, label string, err error) *deadWorker {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return &deadWorker{descriptor: descriptor, label: label, err: err}
}

func (d *deadWorker) Descriptor() string       { return d.descriptor }
func (d *deadWorker) Alive() bool              { return false }
func (d *deadWorker) Finished() bool           { return true }
func (d *deadWorker) Outcome() (Outcome, bool) { return Failure(d.err), true }
func (d *deadWorker) Progress() (int64, int64) { return 0, 0 }
func (d *deadWorker) StatusLine() string       { return d.label + ": Error: " + d.err.Error() }
