package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.JobAdmitted("export")
	c.JobAdmitted("export")
	c.JobFinished("export", true)
	c.JobFinished("export", false)
	c.CapacityRejected("import")
	c.WorkerStarted("export")
	c.WorkerStarted("export")
	c.WorkerStarted("export")
	c.WorkerStopped("export")
	c.AddBytes("export", 1024)
	c.AddBytes("export", -5)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.admitted.WithLabelValues("export")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("export", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.finished.WithLabelValues("export", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("import")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.live.WithLabelValues("export")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.bytes.WithLabelValues("export")))
}

func TestCollector_Nil(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.JobAdmitted("export")
		c.JobFinished("export", true)
		c.CapacityRejected("export")
		c.WorkerStarted("export")
		c.WorkerStopped("export")
		c.AddBytes("export", 10)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).JobAdmitted("import")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `vmshift_jobs_admitted_total{kind="import"} 1`)
}
