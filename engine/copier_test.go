package engine

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyController_CopiesThroughStaging(t *testing.T) {
	log := &callLog{}
	local := provider.NewLocalProvider("")
	client := newFakeClient(log)
	client.vms["42"] = manualVM()
	client.templates["300"] = sourceTemplate()
	xfer := &fakeTransferer{log: log, local: local, payload: []byte("image")}

	tmp := t.TempDir()
	var out bytes.Buffer
	c := NewCopyController(client, xfer, local, []string{"42"}, CopyOptions{
		Region:      "eu-west",
		TmpDir:      tmp,
		CheckPeriod: 2 * time.Millisecond,
		Child:       fastOptions(),
		Output:      &out,
	})
	resp := c.Run(context.Background())

	require.False(t, resp.Error, resp.Summary)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "42", resp.Results[0].Descriptor)
	assert.Equal(t, "vm_42/vm.7z (web): Uploaded to: https://cloud.test/templates/500", resp.Results[0].Payload)
	assert.True(t, strings.HasPrefix(resp.Summary, resp.Results[0].Payload+manualNetworkSummary))

	created := client.createdParams()
	require.Len(t, created, 2)
	assert.Equal(t, "42", created[0]["vm_id"])
	assert.Equal(t, "eu-west", created[1]["region"])
	assert.Equal(t, "192.168.7.1", created[1]["interface_ip"])
	assert.Equal(t, "root / hunter2", created[1]["credentials"])

	entries, err := os.ReadDir(tmp)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging directory removed")

	assert.Contains(t, out.String(), "VM 42: "+manualNetworkAdvisory)
	assert.Contains(t, out.String(), "Summary:\n")
}

func TestCopyController_ExportFailure(t *testing.T) {
	log := &callLog{}
	local := provider.NewLocalProvider("")
	client := newFakeClient(log)
	xfer := &fakeTransferer{log: log, local: local}

	var out bytes.Buffer
	c := NewCopyController(client, xfer, local, []string{"404"}, CopyOptions{
		Region:      "eu-west",
		TmpDir:      t.TempDir(),
		CheckPeriod: 2 * time.Millisecond,
		Child:       fastOptions(),
		Output:      &out,
	})
	resp := c.Run(context.Background())

	assert.True(t, resp.Error)
	assert.Contains(t, resp.Summary, "VM 404: Error: VM 404: Error: server error (code 404): VM not found")
	assert.NotContains(t, out.String(), "Summary:")
	assert.Empty(t, client.createdParams())
}

func TestCopier_CapacityNoticeShownOnce(t *testing.T) {
	cp := &Copier{vmID: "42", done: make(chan struct{})}
	cp.observe(View{
		Kind:       string(api.KindImport),
		AtCapacity: true,
		RetryIn:    15 * time.Minute,
		Workers:    []WorkerView{{Status: "vm_42/vm.7z: Starting"}},
	})

	notice := "VM 42: No import capacity is currently available. Will retry in 15 minutes or when more capacity is detected."
	assert.Equal(t, notice, cp.StatusLine())
	assert.Equal(t, "vm_42/vm.7z: Starting", cp.StatusLine())
	assert.Equal(t, "vm_42/vm.7z: Starting", cp.StatusLine())

	cp.observe(View{Kind: string(api.KindImport), Workers: []WorkerView{
		{Status: "vm_42/vm.7z: Uploading 50.0% (0.5 / 1.0 GB)", Transferred: 512, Total: 1024},
	}})
	assert.Equal(t, "vm_42/vm.7z: Uploading 50.0% (0.5 / 1.0 GB)", cp.StatusLine())
	transferred, total := cp.Progress()
	assert.Equal(t, int64(512), transferred)
	assert.Equal(t, int64(1024), total)

	cp.observe(View{Kind: string(api.KindImport), AtCapacity: true})
	assert.Equal(t, "VM 42: No import capacity is currently available. Will retry soon.", cp.StatusLine())
}
