package metrics

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestEscrowSingleton(t *testing.T) {
	assert.Same(t, Escrow(), Escrow())
}

func TestObserveFlow(t *testing.T) {
	m := Escrow()
	before := testutil.ToFloat64(m.flowRuns.WithLabelValues("charge", "error"))
	m.ObserveFlow("charge", errors.New("boom"))
	m.ObserveFlow("charge", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(m.flowRuns.WithLabelValues("charge", "error")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.flowRuns.WithLabelValues("charge", "success")), 1.0)
}

func TestCacheAndEvents(t *testing.T) {
	m := Escrow()
	hits := testutil.ToFloat64(m.viewCache.WithLabelValues("kpis", "hit"))
	m.CacheResult("kpis", true)
	assert.Equal(t, hits+1, testutil.ToFloat64(m.viewCache.WithLabelValues("kpis", "hit")))

	fetched := testutil.ToFloat64(m.eventsFetched.WithLabelValues("captured"))
	m.EventsFetched("captured", 3)
	assert.Equal(t, fetched+3, testutil.ToFloat64(m.eventsFetched.WithLabelValues("captured")))
}

func TestObserveHTTPUnknownRoute(t *testing.T) {
	m := Escrow()
	before := testutil.ToFloat64(m.httpRequests.WithLabelValues("unknown", "404"))
	m.ObserveHTTP("", http.StatusNotFound, time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(m.httpRequests.WithLabelValues("unknown", "404")))
}

func TestNilReceiver(t *testing.T) {
	var m *EscrowMetrics
	assert.NotPanics(t, func() {
		m.ObserveFlow("void", nil)
		m.TxSubmitted("void")
		m.ReceiptWait(time.Second)
		m.CacheResult("payments", false)
		m.EventsFetched("voided", 1)
		m.EventSkipped("voided")
		m.ObserveHTTP("/health", http.StatusOK, time.Millisecond)
	})
}
