package engine

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/provider"
	"github.com/franksops/vmshift/transfer"
	"gopkg.in/yaml.v3"
)

// ArchiveFile is the image name expected inside an exported VM directory.
const ArchiveFile = "vm.7z"

// ImportOperation uploads VM archives or exported VM directories.
// Descriptors are local paths.
type ImportOperation struct {
	client api.Client
	xfer   transfer.Transferer
	local  provider.Provider
	params api.Params
}

// ensure interface is implemented
var _ Operation = (*ImportOperation)(nil)

// NewImportOperation creates an import operation. params are sent with every
// create call and take precedence over values read from vm.yaml.
func NewImportOperation(client api.Client, xfer transfer.Transferer, local provider.Provider, params api.Params) *ImportOperation {
	return &ImportOperation{client: client, xfer: xfer, local: local, params: params.Clone()}
}

func (o *ImportOperation) Kind() api.Kind { return api.KindImport }

func (o *ImportOperation) Phases() []Phase {
	return []Phase{PhaseTransfer, PhaseSettle, PhasePoll, PhaseFinalize}
}

func (o *ImportOperation) Describe(p string) string { return p }

func (o *ImportOperation) Verbs() Verbs {
	return Verbs{Idle: "Starting", Transfer: "Uploading", Settling: "Importing", Success: "Uploaded to"}
}

// ImportRequest is the resolved input for one import.
type ImportRequest struct {
	Archive string
	Params  api.Params
	// Deferred credentials are attached after the import completes.
	Deferred []string
}

// Prepare resolves p to an archive and the parameters to create it with. A
// directory must contain vm.7z and may contain vm.yaml, whose values are
// overridden by explicit parameters. A credentials list is split: the first
// goes with the create call, the rest are deferred.
func (o *ImportOperation) Prepare(ctx context.Context, p string) (*ImportRequest, error) {
	info, err := o.local.Stat(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: file does not exist: %s", ErrSetup, p)
	}

	req := &ImportRequest{Archive: p, Params: api.Params{}}
	if info.IsDir() {
		req.Archive = o.local.Join(p, ArchiveFile)
		if _, err := o.local.Stat(ctx, req.Archive); err != nil {
			return nil, fmt.Errorf("%w: directory provided (%s) but no %s file found inside", ErrSetup, p, ArchiveFile)
		}

		metaPath := o.local.Join(p, MetadataFile)
		if _, err := o.local.Stat(ctx, metaPath); err == nil {
			extra, err := o.readMetadata(ctx, metaPath)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", ErrSetup, metaPath, err)
			}
			req.Params = extra
		}
	}

	for k, v := range o.params {
		req.Params[k] = v
	}

	if creds, ok := stringList(req.Params["credentials"]); ok {
		if len(creds) == 0 {
			delete(req.Params, "credentials")
		} else {
			req.Params["credentials"] = creds[0]
			req.Deferred = creds[1:]
		}
	}
	return req, nil
}

func (o *ImportOperation) readMetadata(ctx context.Context, p string) (api.Params, error) {
	r, err := o.local.OpenRead(ctx, p)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	params := api.Params{}
	if err := yaml.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out, true
	default:
		return nil, false
	}
}

func (o *ImportOperation) Create(ctx context.Context, p string) (Job, error) {
	req, err := o.Prepare(ctx, p)
	if err != nil {
		return nil, err
	}

	rec, err := o.client.CreateJob(ctx, api.KindImport, req.Params)
	if err != nil {
		if api.AtCapacity(api.KindImport, err) {
			return nil, fmt.Errorf("%w: %w", ErrNoSlotsAvailable, err)
		}
		return nil, err
	}

	label := path.Join(filepath.Base(filepath.Dir(req.Archive)), filepath.Base(req.Archive))
	if name, ok := req.Params["template_name"].(string); ok && name != "" {
		label += " (" + name + ")"
	}

	return &importJob{op: o, req: req, label: label, id: rec.ID, rec: rec}, nil
}

type importJob struct {
	op    *ImportOperation
	req   *ImportRequest
	label string
	id    api.ID

	// rec is refreshed by Status on the worker goroutine.
	rec *api.JobRecord
}

func (j *importJob) Label() string    { return j.label }
func (j *importJob) RemoteID() api.ID { return j.id }

func (j *importJob) Transfer(ctx context.Context, onBytes transfer.ProgressFunc) error {
	return j.op.xfer.Upload(ctx, j.req.Archive, j.rec.Locator(api.KindImport), onBytes)
}

// Settle marks the upload done so the server starts importing.
func (j *importJob) Settle(ctx context.Context) error {
	_, err := j.op.client.UpdateJob(ctx, api.KindImport, j.id, api.Params{"status": string(api.StatusProcessing)})
	return err
}

func (j *importJob) Status(ctx context.Context) (api.Status, error) {
	rec, err := j.op.client.GetJob(ctx, api.KindImport, j.id)
	if err != nil {
		return "", err
	}
	j.rec = rec
	return rec.Status, nil
}

// Finalize attaches deferred credentials to the imported VM, in order.
func (j *importJob) Finalize(ctx context.Context) (string, error) {
	if len(j.req.Deferred) > 0 {
		tmpl, err := j.op.client.ShowTemplate(ctx, j.rec.TemplateID())
		if err != nil {
			return "", err
		}
		if len(tmpl.VMs) == 0 {
			return "", fmt.Errorf("%w: template %s has no VMs to attach credentials to", ErrRemoteJob, tmpl.ID)
		}
		vmID := tmpl.VMs[0].ID
		for _, cred := range j.req.Deferred {
			if err := j.op.client.CreateCredential(ctx, vmID, cred); err != nil {
				return "", fmt.Errorf("attach credential to VM %s: %w", vmID, err)
			}
		}
	}
	return j.rec.TemplateURL, nil
}

func (j *importJob) Destroy(ctx context.Context) error {
	return j.op.client.DestroyJob(ctx, api.KindImport, j.id)
}
