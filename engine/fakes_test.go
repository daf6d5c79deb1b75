package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/provider"
	"github.com/franksops/vmshift/transfer"
)

// callLog records collaborator calls across goroutines.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type credentialCall struct {
	vmID api.ID
	text string
}

type fakeClient struct {
	log *callLog

	mu          sync.Mutex
	next        int
	vms         map[api.ID]*api.VM
	templates   map[api.ID]*api.Template
	jobs        map[api.ID]*api.JobRecord
	statuses    map[api.ID][]api.Status
	createErrs  []error
	created     []api.Params
	credentials []credentialCall
}

func newFakeClient(log *callLog) *fakeClient {
	return &fakeClient{
		log:       log,
		vms:       map[api.ID]*api.VM{},
		templates: map[api.ID]*api.Template{},
		jobs:      map[api.ID]*api.JobRecord{},
		statuses:  map[api.ID][]api.Status{},
	}
}

func (f *fakeClient) CreateJob(ctx context.Context, kind api.Kind, params api.Params) (*api.JobRecord, error) {
	f.log.add("CreateJob %s", kind)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, params.Clone())
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return nil, err
		}
	}

	f.next++
	id := api.ID(fmt.Sprint(f.next))
	rec := &api.JobRecord{
		ID:          id,
		Status:      api.StatusProcessing,
		FTPHost:     "ftp.test",
		FTPUserName: "user" + id.String(),
		FTPPassword: "secret",
	}
	switch kind {
	case api.KindExport:
		rec.VMID = api.ID(fmt.Sprint(params["vm_id"]))
		rec.Filename = "/exports/" + id.String() + "/vm.7z"
		rec.TemplateURL = "https://cloud.test/templates/300"
	case api.KindImport:
		rec.FTPURL = "ftp://user" + id.String() + ":secret@ftp.test/upload/"
		rec.TemplateURL = "https://cloud.test/templates/500"
	}
	f.jobs[id] = rec
	cp := *rec
	return &cp, nil
}

func (f *fakeClient) GetJob(ctx context.Context, kind api.Kind, id api.ID) (*api.JobRecord, error) {
	f.log.add("GetJob %s %s", kind, id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.jobs[id]
	if !ok {
		return nil, &api.Error{StatusCode: http.StatusNotFound, Message: "no such job"}
	}
	status := api.StatusComplete
	if seq := f.statuses[id]; len(seq) > 0 {
		status = seq[0]
		if len(seq) > 1 {
			f.statuses[id] = seq[1:]
		}
	}
	cp := *rec
	cp.Status = status
	return &cp, nil
}

func (f *fakeClient) UpdateJob(ctx context.Context, kind api.Kind, id api.ID, params api.Params) (*api.JobRecord, error) {
	f.log.add("UpdateJob %s %s status=%v", kind, id, params["status"])
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *f.jobs[id]
	return &cp, nil
}

func (f *fakeClient) DestroyJob(ctx context.Context, kind api.Kind, id api.ID) error {
	f.log.add("DestroyJob %s %s", kind, id)
	return nil
}

func (f *fakeClient) ShowVM(ctx context.Context, id api.ID) (*api.VM, error) {
	f.log.add("ShowVM %s", id)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	vm, ok := f.vms[id]
	if !ok {
		return nil, &api.Error{StatusCode: http.StatusNotFound, Message: "VM not found"}
	}
	return vm, nil
}

func (f *fakeClient) ShowTemplate(ctx context.Context, id api.ID) (*api.Template, error) {
	f.log.add("ShowTemplate %s", id)
	f.mu.Lock()
	defer f.mu.Unlock()
	tmpl, ok := f.templates[id]
	if !ok {
		return nil, &api.Error{StatusCode: http.StatusNotFound, Message: "template not found"}
	}
	return tmpl, nil
}

func (f *fakeClient) CreateCredential(ctx context.Context, vmID api.ID, text string) error {
	f.log.add("CreateCredential %s %s", vmID, text)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentials = append(f.credentials, credentialCall{vmID: vmID, text: text})
	return nil
}

func (f *fakeClient) createdParams() []api.Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.Params(nil), f.created...)
}

// fakeTransferer moves bytes through the local provider only.
type fakeTransferer struct {
	log     *callLog
	local   provider.Provider
	payload []byte
}

func (f *fakeTransferer) Download(ctx context.Context, remote transfer.Locator, localPath string, onBytes transfer.ProgressFunc) (int64, error) {
	f.log.add("Download %s", remote)
	w, err := f.local.OpenWrite(ctx, localPath)
	if err != nil {
		return 0, err
	}
	cw := transfer.NewCountingWriter(w, int64(len(f.payload)), onBytes)
	if _, err := cw.Write(f.payload); err != nil {
		_ = w.Close()
		return 0, err
	}
	return cw.Count(), w.Close()
}

func (f *fakeTransferer) Upload(ctx context.Context, localPath string, remote transfer.Locator, onBytes transfer.ProgressFunc) error {
	f.log.add("Upload %s", remote)
	r, err := f.local.OpenRead(ctx, localPath)
	if err != nil {
		return err
	}
	defer r.Close()
	info, err := f.local.Stat(ctx, localPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(io.Discard, transfer.NewCountingReader(r, info.Size(), onBytes))
	return err
}
