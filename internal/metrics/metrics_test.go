package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterCounters(t *testing.T) {
	e := NewExporter()

	e.IndexBuilt(0, 4096, 15*time.Millisecond)
	e.PatchPass(true)
	e.PatchPass(false)
	e.PatchPass(true)
	e.ChunkDecoded("ok", time.Millisecond)
	e.ChunkDecoded("no_data", time.Microsecond)
	e.CacheLookup(true)
	e.CacheLookup(false)
	e.CacheLookup(false)

	assert.Equal(t, 4096.0, testutil.ToFloat64(e.blocksIndexed.WithLabelValues("0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.patchPasses.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.decodes.WithLabelValues("no_data")))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.cacheLookups.WithLabelValues("miss")))
}

func TestExporterNilSafe(t *testing.T) {
	var e *Exporter

	assert.NotPanics(t, func() {
		e.IndexBuilt(0, 1, time.Second)
		e.PatchPass(true)
		e.ChunkDecoded("ok", time.Second)
		e.CacheLookup(true)
		e.StartHTTP(":0")
		assert.NoError(t, e.Stop(context.Background()))
	})
	assert.Nil(t, e.Registry())
}

func TestExporterHandler(t *testing.T) {
	e := NewExporter()
	e.PatchPass(true)

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `mapengine_patch_passes_total{redirected="true"} 1`))
}
