package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePurchase("paid")
	m.ObservePurchase("paid")
	m.ObservePurchase("payment_declined")
	m.ObserveHTTP("POST", "/orders/pokemon", 200, 10*time.Millisecond)
	m.ObserveReconciliation("published")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.purchaseOutcome.WithLabelValues("paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.purchaseOutcome.WithLabelValues("payment_declined")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("POST", "/orders/pokemon", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciliation.WithLabelValues("published")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePurchase("paid")
		m.ObserveHTTP("GET", "/pokemons", 200, time.Millisecond)
		m.ObserveCharge("paid", time.Millisecond)
		m.ObserveReconciliation("dropped")
	})
}
