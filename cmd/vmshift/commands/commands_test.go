package commands

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/store"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{
		"template_name=web",
		"credentials=root / a",
		"interface_ip=10.0.0.9",
		"credentials=admin / b",
		"note=a=b",
	})
	require.NoError(t, err)
	assert.Equal(t, api.Params{
		"template_name": "web",
		"interface_ip":  "10.0.0.9",
		"credentials":   []string{"root / a", "admin / b"},
		"note":          "a=b",
	}, params)

	for _, bad := range []string{"novalue", "=x"} {
		_, err := parseParams([]string{bad})
		assert.Error(t, err, bad)
	}
}

func sampleJobs() []*store.JobRecord {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []*store.JobRecord{
		{
			ID: "0b7c1d2e-aaaa-bbbb-cccc-000000000001", Kind: "export", Descriptor: "42", RemoteID: "901",
			State: store.StateCompleted, BytesTransferred: 100, TotalBytes: 100, Result: "/data/vm_42",
			CreatedAt: ts, UpdatedAt: ts,
		},
		{
			ID: "short", Kind: "import", Descriptor: "/data/missing",
			State: store.StateFailed, Error: "file does not exist", CreatedAt: ts, UpdatedAt: ts,
		},
	}
}

func TestPrintJobs_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, sampleJobs(), "table"))

	out := buf.String()
	for _, want := range []string{"ID", "STATE", "0b7c1d2e", "42", "100.0%", "/data/vm_42", "file does not exist", "2026-03-01T12:00:00Z"} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "0b7c1d2e-aaaa")
}

func TestPrintJobs_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, sampleJobs(), "json"))

	var decoded []store.JobRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "901", decoded[0].RemoteID)
	assert.Equal(t, store.StateFailed, decoded[1].State)
}

func TestPrintJobs_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, nil, ""))
	assert.Equal(t, "No jobs recorded.\n", buf.String())
}

func TestPrintJobs_InvalidFormat(t *testing.T) {
	assert.Error(t, printJobs(&bytes.Buffer{}, nil, "xml"))
}

func TestRootCommandTree(t *testing.T) {
	root := GetRootCmd()
	for _, path := range [][]string{
		{"vm", "download"},
		{"vm", "upload"},
		{"vm", "copytoregion"},
		{"jobs"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
