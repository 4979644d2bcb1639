package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPMiddlewareLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTP(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/inout/slip/{number}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/inout/slip/IO1", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReqTotal.WithLabelValues(http.MethodGet, "/api/inout/slip/{number}", "204")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ReqDur))
	assert.Zero(t, testutil.ToFloat64(m.InFlight))
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := NewDomain(reg)
	b := NewDomain(reg)
	a.Calculated()
	b.Calculated()
	assert.Equal(t, 2.0, testutil.ToFloat64(a.Calculations))
}

func TestDomainCounters(t *testing.T) {
	d := NewDomain(prometheus.NewRegistry())
	d.SlipSaved(11, 3, 1)
	d.SlipSaved(12, 2, 0)
	d.UnitReload(nil)
	d.UnitReload(errors.New("missing"))
	d.ClientAdded()
	d.SlipDeleted()

	assert.Equal(t, 1.0, testutil.ToFloat64(d.SlipsSaved.WithLabelValues("11")))
	assert.Equal(t, 3.0, testutil.ToFloat64(d.LinesSaved.WithLabelValues("11")))
	assert.Equal(t, 2.0, testutil.ToFloat64(d.LinesSaved.WithLabelValues("12")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.LinesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.UnitReloads.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.ClientsAdded))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.SlipsDeleted))
}

func TestNilDomainIsSafe(t *testing.T) {
	var d *Domain
	assert.NotPanics(t, func() {
		d.SlipSaved(11, 1, 0)
		d.Calculated()
		d.UnitReload(nil)
		d.ClientAdded()
		d.SlipDeleted()
	})
}
