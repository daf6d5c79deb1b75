package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/franksops/vmshift/metrics"
)

// Defaults for Options fields left at zero.
const (
	DefaultMaxConcurrency = 5
	DefaultCheckPeriod    = 15 * time.Second
	DefaultPollInterval   = 5 * time.Second
	DefaultMaxWait        = 48 * time.Hour
)

// Options configures a Controller.
type Options struct {
	MaxConcurrency      int
	CheckPeriod         time.Duration
	CapacityRetryPeriod time.Duration
	PollInterval        time.Duration
	MaxWait             time.Duration

	// OnProgress is called on the controller goroutine once per idle turn.
	OnProgress func(View)

	// Output receives human-readable status blocks. Nil discards them.
	Output io.Writer

	Logger  *slog.Logger
	Metrics *metrics.Collector
	Tracker *JobTracker

	// Now is the clock for the capacity gate and poll deadlines.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = DefaultMaxConcurrency
	}
	if o.CheckPeriod <= 0 {
		o.CheckPeriod = DefaultCheckPeriod
	}
	if o.CapacityRetryPeriod <= 0 {
		o.CapacityRetryPeriod = DefaultCapacityRetryPeriod
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = DefaultMaxWait
	}
	if o.Output == nil {
		o.Output = io.Discard
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// WorkerView is a snapshot of one worker.
type WorkerView struct {
	Descriptor  string
	Status      string
	Transferred int64
	Total       int64
	Alive       bool
	Finished    bool
	OK          bool
}

// View is a read-only snapshot of an orchestrator handed to progress
// callbacks.
type View struct {
	Kind           string
	Pending        int
	Live           int
	MaxConcurrency int // 0 means unbounded
	AtCapacity     bool
	RetryIn        time.Duration
	Workers        []WorkerView
}

// StatusLines returns the status of every worker that has not finished.
func (v View) StatusLines() []string {
	var lines []string
	for _, w := range v.Workers {
		if !w.Finished && w.Status != "" {
			lines = append(lines, w.Status)
		}
	}
	return lines
}

func snapshot(workers []Worker) []WorkerView {
	views := make([]WorkerView, 0, len(workers))
	for _, w := range workers {
		o, finished := w.Outcome()
		transferred, total := w.Progress()
		views = append(views, WorkerView{
			Descriptor:  w.Descriptor(),
			Status:      w.StatusLine(),
			Transferred: transferred,
			Total:       total,
			Alive:       w.Alive(),
			Finished:    finished,
			OK:          finished && o.OK(),
		})
	}
	return views
}

// Controller admits descriptors of one operation kind under a concurrency
// ceiling, backing off while the server reports it is at capacity.
//
// The pending queue, worker list and gate belong to the goroutine calling
// Run. Workers only publish their own counters and outcome.
type Controller struct {
	op   Operation
	opts Options
	gate *Gate
	log  *slog.Logger

	pending []string
	workers []Worker
}

// NewController creates a controller for descriptors. Descriptors are
// admitted in order.
func NewController(op Operation, descriptors []string, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		op:      op,
		opts:    opts,
		gate:    NewGate(opts.CapacityRetryPeriod, opts.Now),
		log:     opts.Logger.With("kind", string(op.Kind())),
		pending: append([]string(nil), descriptors...),
	}
}

// Run admits every descriptor and returns once no descriptor is pending and
// no worker is alive. Cancelling ctx makes collaborator calls fail; pending
// descriptors are then recorded as failed rather than dropped.
func (c *Controller) Run(ctx context.Context) Response {
	for !(len(c.pending) == 0 && c.liveCount() == 0) {
		if ctx.Err() != nil && len(c.pending) > 0 {
			c.abandonPending(ctx.Err())
			continue
		}

		if len(c.pending) > 0 && c.availableSlots() > 0 {
			c.admit(ctx)
			continue
		}

		c.idle()
	}

	c.gate.Clear()

	resp := BuildResponse(c.workers)
	if !resp.Error {
		c.print("Summary\n" + resp.Summary)
	}
	return resp
}

// View snapshots the controller. Call it only from the Run goroutine, which
// includes OnProgress callbacks.
func (c *Controller) View() View {
	retryIn, full := c.gate.RetryIn()
	return View{
		Kind:           string(c.op.Kind()),
		Pending:        len(c.pending),
		Live:           c.liveCount(),
		MaxConcurrency: c.opts.MaxConcurrency,
		AtCapacity:     full,
		RetryIn:        retryIn,
		Workers:        snapshot(c.workers),
	}
}

func (c *Controller) admit(ctx context.Context) {
	descriptor := c.pending[0]
	c.pending = c.pending[1:]

	job, err := c.op.Create(ctx, descriptor)
	switch {
	case err == nil:
		w := startWorker(ctx, c.op, descriptor, job, workerEnv{
			pollInterval: c.opts.PollInterval,
			maxWait:      c.opts.MaxWait,
			now:          c.opts.Now,
			logger:       c.opts.Logger,
			metrics:      c.opts.Metrics,
			tracker:      c.opts.Tracker,
		})
		c.workers = append(c.workers, w)
		c.opts.Metrics.JobAdmitted(string(c.op.Kind()))
		c.log.Info("job admitted", "job", job.Label(), "remote_id", job.RemoteID().String())
		c.print(w.StatusLine() + "\n---")

	case errors.Is(err, ErrNoSlotsAvailable):
		c.pending = append([]string{descriptor}, c.pending...)
		live := c.liveCount()
		c.gate.MarkFull(live)
		c.opts.Metrics.CapacityRejected(string(c.op.Kind()))
		c.log.Warn("server at capacity, requeued", "descriptor", descriptor, "live", live)
		c.print(c.op.Describe(descriptor) + ": " + c.noCapacityMessage() + "\n---")

	default:
		c.addDead(descriptor, err)
	}
}

func (c *Controller) addDead(descriptor string, err error) {
	d := newDeadWorker(descriptor, c.op.Describe(descriptor), err)
	c.workers = append(c.workers, d)
	c.opts.Metrics.JobFinished(string(c.op.Kind()), false)
	if jerr := c.opts.Tracker.RecordFailure(string(c.op.Kind()), descriptor, err); jerr != nil {
		c.log.Debug("journal write failed", "error", jerr)
	}
	c.log.Error("job not started", "descriptor", descriptor, "error", err)
	c.print(d.StatusLine() + "\n---")
}

func (c *Controller) abandonPending(err error) {
	for _, descriptor := range c.pending {
		c.addDead(descriptor, err)
	}
	c.pending = nil
}

func (c *Controller) idle() {
	time.Sleep(c.opts.CheckPeriod)

	live := c.liveCount()
	if lines := c.statusLines(); len(lines) > 0 {
		c.print(strings.Join(lines, "\n") + "\n---")
	}
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(c.View())
	}
	if c.gate.ShouldClear(live) {
		c.log.Debug("capacity gate cleared", "live", live)
		c.gate.Clear()
	}
}

func (c *Controller) availableSlots() int {
	if c.gate.IsFull() {
		return 0
	}
	return c.opts.MaxConcurrency - c.liveCount()
}

func (c *Controller) liveCount() int {
	n := 0
	for _, w := range c.workers {
		if w.Alive() {
			n++
		}
	}
	return n
}

func (c *Controller) statusLines() []string {
	var lines []string
	for _, w := range c.workers {
		if !w.Finished() {
			lines = append(lines, w.StatusLine())
		}
	}
	return lines
}

func (c *Controller) noCapacityMessage() string {
	kind := string(c.op.Kind())
	msg := fmt.Sprintf("No %s capacity is currently available. Will retry in %d minutes",
		kind, int(c.opts.CapacityRetryPeriod/time.Minute))
	if len(c.statusLines()) > 0 {
		return msg + " or when another " + kind + " completes."
	}
	return msg + "."
}

func (c *Controller) print(block string) {
	fmt.Fprintln(c.opts.Output, block)
}
