package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/provider"
	"github.com/franksops/vmshift/transfer"
)

// DefaultCopyCheckPeriod is the idle sleep of a CopyController.
const DefaultCopyCheckPeriod = 20 * time.Second

const (
	manualNetworkAdvisory = "This VM is attached to a manual network, but the new template will instead contain an automatic network. " +
		"You may want to change the network settings of the new template by creating a configuration from it, editing the network, " +
		"and finally creating another template from that configuration."
	manualNetworkSummary = " This template has an automatic network, but the template from which it was copied has a manual network. " +
		"You may want to change the network settings of the new template by creating a configuration from it, editing the network, " +
		"and finally creating another template from that configuration."
)

// CopyOptions configures a CopyController.
type CopyOptions struct {
	// Region is the destination region passed to every import.
	Region string
	// TmpDir holds the per-VM staging directories.
	TmpDir      string
	CheckPeriod time.Duration

	// Child configures the download and upload controllers each copier runs.
	Child Options

	OnProgress func(View)
	Output     io.Writer
	Logger     *slog.Logger
}

// CopyController copies template VMs to another region by exporting each one
// to a private staging directory and importing it from there. It has no
// concurrency ceiling of its own; the child controllers back off on capacity.
type CopyController struct {
	client api.Client
	xfer   transfer.Transferer
	local  provider.Provider
	opts   CopyOptions
	log    *slog.Logger

	pending []string
	copiers []*Copier
}

// NewCopyController creates a controller copying vmIDs.
func NewCopyController(client api.Client, xfer transfer.Transferer, local provider.Provider, vmIDs []string, opts CopyOptions) *CopyController {
	if opts.CheckPeriod <= 0 {
		opts.CheckPeriod = DefaultCopyCheckPeriod
	}
	if opts.TmpDir == "" {
		opts.TmpDir = "."
	}
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CopyController{
		client:  client,
		xfer:    xfer,
		local:   local,
		opts:    opts,
		log:     opts.Logger.With("kind", "copy", "region", opts.Region),
		pending: append([]string(nil), vmIDs...),
	}
}

// Run starts a copier per VM id and returns once all have finished.
func (c *CopyController) Run(ctx context.Context) Response {
	for !(len(c.pending) == 0 && c.liveCount() == 0) {
		if len(c.pending) > 0 {
			vmID := c.pending[0]
			c.pending = c.pending[1:]

			cp := c.startCopier(ctx, vmID)
			c.copiers = append(c.copiers, cp)
			if line := cp.StatusLine(); line != "" {
				c.print(line + "\n---")
			}
			continue
		}

		time.Sleep(c.opts.CheckPeriod)
		if lines := c.statusLines(); len(lines) > 0 {
			c.print(strings.Join(lines, "\n") + "\n---")
		}
		if c.opts.OnProgress != nil {
			c.opts.OnProgress(c.View())
		}
	}

	workers := make([]Worker, len(c.copiers))
	for i, cp := range c.copiers {
		workers[i] = cp
	}
	resp := BuildResponse(workers)
	if !resp.Error {
		c.print("Summary:\n" + resp.Summary)
	}
	return resp
}

// View snapshots the controller. Call it only from the Run goroutine.
func (c *CopyController) View() View {
	workers := make([]Worker, len(c.copiers))
	for i, cp := range c.copiers {
		workers[i] = cp
	}
	return View{
		Kind:    "copy",
		Pending: len(c.pending),
		Live:    c.liveCount(),
		Workers: snapshot(workers),
	}
}

func (c *CopyController) startCopier(ctx context.Context, vmID string) *Copier {
	cp := &Copier{
		vmID:   vmID,
		region: c.opts.Region,
		root:   c.opts.TmpDir,
		client: c.client,
		xfer:   c.xfer,
		local:  c.local,
		child:  c.opts.Child,
		log:    c.log.With("vm_id", vmID),
		done:   make(chan struct{}),
	}

	vm, err := c.client.ShowVM(ctx, api.ID(vmID))
	if err != nil {
		cp.log.Warn("could not inspect source network", "error", err)
	} else if len(vm.Interfaces) > 0 && vm.Interfaces[0].NetworkType == api.NetworkManual {
		cp.manual = true
		c.print("VM " + vmID + ": " + manualNetworkAdvisory + "\n---")
	}

	go cp.run(ctx)
	return cp
}

func (c *CopyController) liveCount() int {
	n := 0
	for _, cp := range c.copiers {
		if cp.Alive() {
			n++
		}
	}
	return n
}

func (c *CopyController) statusLines() []string {
	var lines []string
	for _, cp := range c.copiers {
		if cp.Finished() {
			continue
		}
		if line := cp.StatusLine(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func (c *CopyController) print(block string) {
	fmt.Fprintln(c.opts.Output, block)
}

// Copier moves one VM: a download controller into a private staging
// directory, then an upload controller into the destination region.
type Copier struct {
	vmID   string
	region string
	root   string
	client api.Client
	xfer   transfer.Transferer
	local  provider.Provider
	child  Options
	log    *slog.Logger
	manual bool

	// Written by the copier goroutine through child progress callbacks.
	status      atomic.Pointer[string]
	noSlots     atomic.Pointer[string]
	transferred atomic.Int64
	total       atomic.Int64
	outcome     atomic.Pointer[Outcome]
	done        chan struct{}

	// skipPrint is owned by the controller goroutine.
	skipPrint bool
}

// ensure interface is implemented
var _ Worker = (*Copier)(nil)

func (cp *Copier) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			cp.finish(Failure(fmt.Errorf("copier panic: %v", r)))
		}
		close(cp.done)
	}()

	payload, err := cp.copy(ctx)
	if err != nil {
		cp.log.Warn("copy failed", "error", err)
		cp.finish(Failure(err))
		return
	}
	cp.finish(Success(payload))
}

func (cp *Copier) copy(ctx context.Context) (string, error) {
	if err := cp.local.MkdirAll(ctx, cp.root); err != nil {
		return "", fmt.Errorf("%w: create %s: %w", ErrSetup, cp.root, err)
	}
	staging, err := cp.local.TempDir(ctx, cp.root, "tmp_vm_"+cp.vmID+"_*")
	if err != nil {
		return "", fmt.Errorf("%w: staging directory: %w", ErrSetup, err)
	}

	exportOp := NewExportOperation(cp.client, cp.xfer, cp.local, staging)
	downloads := NewController(exportOp, []string{cp.vmID}, cp.childOptions()).Run(ctx)
	cp.noSlots.Store(nil)
	if downloads.Error {
		return "", errors.New(downloads.Summary)
	}

	vmDir := exportOp.ExportDir(cp.vmID)
	if len(downloads.Results) != 1 || downloads.Results[0].Payload != vmDir {
		return "", fmt.Errorf("response dir unexpected (was: %s; expected to contain %s)", downloads.Summary, vmDir)
	}

	importOp := NewImportOperation(cp.client, cp.xfer, cp.local, api.Params{"region": cp.region})
	uploads := NewController(importOp, []string{vmDir}, cp.childOptions()).Run(ctx)
	cp.noSlots.Store(nil)
	if uploads.Error {
		return "", errors.New(uploads.Summary)
	}

	if err := cp.local.RemoveAll(ctx, staging); err != nil {
		cp.log.Warn("failed to remove staging directory", "dir", staging, "error", err)
	}
	return uploads.Summary, nil
}

func (cp *Copier) childOptions() Options {
	opts := cp.child
	opts.Output = io.Discard
	opts.OnProgress = cp.observe
	return opts
}

// observe runs on the copier goroutine as the child controllers' progress
// callback.
func (cp *Copier) observe(v View) {
	if v.AtCapacity {
		msg := fmt.Sprintf("VM %s: No %s capacity is currently available. Will retry ", cp.vmID, v.Kind)
		if m := int(v.RetryIn / time.Minute); m < 1 {
			msg += "soon."
		} else {
			msg += fmt.Sprintf("in %d minutes or when more capacity is detected.", m)
		}
		cp.noSlots.Store(&msg)
	} else {
		cp.noSlots.Store(nil)
	}

	status := strings.Join(v.StatusLines(), "\n")
	cp.status.Store(&status)

	var transferred, total int64
	for _, w := range v.Workers {
		transferred += w.Transferred
		total += w.Total
	}
	cp.transferred.Store(transferred)
	cp.total.Store(total)
}

func (cp *Copier) finish(o Outcome) {
	cp.outcome.CompareAndSwap(nil, &o)
}

func (cp *Copier) Descriptor() string { return cp.vmID }

func (cp *Copier) Alive() bool {
	select {
	case <-cp.done:
		return false
	default:
		return true
	}
}

func (cp *Copier) Finished() bool { return cp.outcome.Load() != nil }

func (cp *Copier) Outcome() (Outcome, bool) {
	if o := cp.outcome.Load(); o != nil {
		return *o, true
	}
	return Outcome{}, false
}

func (cp *Copier) Progress() (int64, int64) {
	return cp.transferred.Load(), cp.total.Load()
}

// StatusLine returns the final payload once finished. While the child
// controllers are blocked on capacity the notice is shown once, then the
// regular status until the block clears and recurs.
func (cp *Copier) StatusLine() string {
	if o, ok := cp.Outcome(); ok {
		if o.OK() {
			return o.Payload
		}
		return "VM " + cp.vmID + ": Error: " + o.Message()
	}

	if msg := cp.noSlots.Load(); msg != nil {
		if !cp.skipPrint {
			cp.skipPrint = true
			return *msg
		}
	} else {
		cp.skipPrint = false
	}

	if s := cp.status.Load(); s != nil {
		return *s
	}
	return ""
}

// Summary is the final line for this copier, with a network advisory when the
// source used a manual network.
func (cp *Copier) Summary() string {
	line := cp.StatusLine()
	if cp.manual {
		line += manualNetworkSummary
	}
	return line
}
