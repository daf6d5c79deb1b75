package engine

import (
	"context"
	"fmt"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/provider"
	"github.com/franksops/vmshift/transfer"
	"gopkg.in/yaml.v3"
)

// ExportOperation downloads template VMs into dir/vm_<id>/ together with a
// vm.yaml metadata file. Descriptors are VM ids.
type ExportOperation struct {
	client api.Client
	xfer   transfer.Transferer
	local  provider.Provider
	dir    string
}

// ensure interface is implemented
var _ Operation = (*ExportOperation)(nil)

// NewExportOperation creates an export operation writing below dir on local.
func NewExportOperation(client api.Client, xfer transfer.Transferer, local provider.Provider, dir string) *ExportOperation {
	if dir == "" {
		dir = "."
	}
	return &ExportOperation{client: client, xfer: xfer, local: local, dir: dir}
}

func (o *ExportOperation) Kind() api.Kind { return api.KindExport }

func (o *ExportOperation) Phases() []Phase {
	// The server has to produce the image before it can be fetched.
	return []Phase{PhasePoll, PhaseTransfer, PhaseFinalize}
}

func (o *ExportOperation) Describe(vmID string) string { return "VM " + vmID }

func (o *ExportOperation) Verbs() Verbs {
	return Verbs{Idle: "Exporting", Transfer: "Downloading", Success: "Downloaded"}
}

// ExportDir is where the export of vmID lands.
func (o *ExportOperation) ExportDir(vmID string) string {
	return o.local.Join(o.dir, "vm_"+vmID)
}

func (o *ExportOperation) Create(ctx context.Context, vmID string) (Job, error) {
	vm, err := o.client.ShowVM(ctx, api.ID(vmID))
	if err != nil {
		return nil, err
	}

	exportDir := o.ExportDir(vmID)
	if err := o.local.MkdirAll(ctx, exportDir); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrSetup, exportDir, err)
	}

	rec, err := o.client.CreateJob(ctx, api.KindExport, api.Params{"vm_id": vmID})
	if err != nil {
		if api.AtCapacity(api.KindExport, err) {
			return nil, fmt.Errorf("%w: %w", ErrNoSlotsAvailable, err)
		}
		return nil, err
	}

	return &exportJob{op: o, vmID: api.ID(vmID), vm: vm, dir: exportDir, rec: rec, id: rec.ID}, nil
}

type exportJob struct {
	op   *ExportOperation
	vmID api.ID
	vm   *api.VM
	dir  string
	id   api.ID

	// rec is refreshed by Status on the worker goroutine.
	rec *api.JobRecord
}

func (j *exportJob) Label() string {
	label := "VM " + j.vmID.String()
	if j.vm != nil && j.vm.Name != "" {
		label += " (" + j.vm.Name + ")"
	}
	return label
}

func (j *exportJob) RemoteID() api.ID { return j.id }

func (j *exportJob) Status(ctx context.Context) (api.Status, error) {
	rec, err := j.op.client.GetJob(ctx, api.KindExport, j.id)
	if err != nil {
		return "", err
	}
	j.rec = rec
	return rec.Status, nil
}

func (j *exportJob) Transfer(ctx context.Context, onBytes transfer.ProgressFunc) error {
	remote := j.rec.Locator(api.KindExport)
	_, err := j.op.xfer.Download(ctx, remote, j.op.local.Join(j.dir, remote.File), onBytes)
	return err
}

func (j *exportJob) Settle(ctx context.Context) error { return nil }

// Finalize writes vm.yaml from a fresh look at the VM and its template.
func (j *exportJob) Finalize(ctx context.Context) (string, error) {
	vm, err := j.op.client.ShowVM(ctx, j.vmID)
	if err != nil {
		return "", err
	}
	tmpl, err := j.op.client.ShowTemplate(ctx, j.rec.TemplateID())
	if err != nil {
		return "", err
	}
	md, err := ExportableVM(vm, tmpl)
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}
	w, err := j.op.local.OpenWrite(ctx, j.op.local.Join(j.dir, MetadataFile))
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return j.dir, nil
}

func (j *exportJob) Destroy(ctx context.Context) error {
	return j.op.client.DestroyJob(ctx, api.KindExport, j.id)
}
