// Package api is the control-plane side of vmshift: creating, inspecting and
// destroying export/import jobs, plus the VM and template lookups needed to
// fill in default metadata.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"path"
	"regexp"

	"github.com/franksops/vmshift/transfer"
)

// Kind selects the job collection a call operates on.
type Kind string

const (
	KindExport Kind = "export"
	KindImport Kind = "import"
)

func (k Kind) collection() string {
	return "/" + string(k) + "s"
}

// Status is the server-side state of an export or import job.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusError      Status = "error"
)

// Network types reported on a VM interface.
const (
	NetworkAutomatic = "automatic"
	NetworkManual    = "manual"
)

// ID is a resource identifier. The service emits ids both as JSON strings and
// as bare numbers, so it decodes either.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Params is a free-form parameter document sent when creating or updating a
// job.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// JobRecord is the server resource for one export or import.
type JobRecord struct {
	ID          ID     `json:"id"`
	Status      Status `json:"status"`
	VMID        ID     `json:"vm_id,omitempty"`
	FTPHost     string `json:"ftp_host,omitempty"`
	FTPUserName string `json:"ftp_user_name,omitempty"`
	FTPPassword string `json:"ftp_password,omitempty"`
	FTPURL      string `json:"ftp_url,omitempty"`
	Filename    string `json:"filename,omitempty"`
	TemplateURL string `json:"template_url,omitempty"`
}

var templateIDPattern = regexp.MustCompile(`/templates/(\d+)`)

// TemplateID extracts the template id from TemplateURL, or "" when absent.
func (r *JobRecord) TemplateID() ID {
	m := templateIDPattern.FindStringSubmatch(r.TemplateURL)
	if m == nil {
		return ""
	}
	return ID(m[1])
}

// Locator returns where the bulk transfer for this job happens. Exports name
// the full remote file path; imports name an upload directory inside
// ftp_url and take the local file name.
func (r *JobRecord) Locator(kind Kind) transfer.Locator {
	loc := transfer.Locator{
		Host:     r.FTPHost,
		User:     r.FTPUserName,
		Password: r.FTPPassword,
	}
	switch kind {
	case KindExport:
		loc.Dir = path.Dir(r.Filename)
		loc.File = path.Base(r.Filename)
	case KindImport:
		if u, err := url.Parse(r.FTPURL); err == nil {
			loc.Dir = u.Path
			if loc.Host == "" {
				loc.Host = u.Host
			}
		}
	}
	return loc
}

// Interface is one network adapter of a VM.
type Interface struct {
	ID          ID     `json:"id"`
	NetworkID   ID     `json:"network_id"`
	NetworkType string `json:"network_type"`
	IP          string `json:"ip"`
	Hostname    string `json:"hostname"`
}

// Credential is a stored login attached to a VM.
type Credential struct {
	ID   ID     `json:"id,omitempty"`
	Text string `json:"text"`
}

// VM is the subset of a VM resource vmshift reads.
type VM struct {
	ID          ID           `json:"id"`
	Name        string       `json:"name"`
	Interfaces  []Interface  `json:"interfaces"`
	Credentials []Credential `json:"credentials"`
}

// Network is a template network.
type Network struct {
	ID     ID     `json:"id"`
	Subnet string `json:"subnet"`
	Domain string `json:"domain"`
}

// Template is the subset of a template resource vmshift reads.
type Template struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Networks    []Network `json:"networks"`
	VMs         []VM      `json:"vms"`
}

// Network returns the template network with the given id.
func (t *Template) Network(id ID) (*Network, bool) {
	for i := range t.Networks {
		if t.Networks[i].ID == id {
			return &t.Networks[i], true
		}
	}
	return nil, false
}

// Client is the set of control-plane calls the orchestrators depend on.
// Every call is synchronous and either returns the resource document or fails.
type Client interface {
	CreateJob(ctx context.Context, kind Kind, params Params) (*JobRecord, error)
	GetJob(ctx context.Context, kind Kind, id ID) (*JobRecord, error)
	UpdateJob(ctx context.Context, kind Kind, id ID, params Params) (*JobRecord, error)
	DestroyJob(ctx context.Context, kind Kind, id ID) error

	ShowVM(ctx context.Context, id ID) (*VM, error)
	ShowTemplate(ctx context.Context, id ID) (*Template, error)
	CreateCredential(ctx context.Context, vmID ID, text string) error
}
