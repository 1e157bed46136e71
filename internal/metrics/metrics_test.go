package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Transition("claim", "ok")
	m.Transition("claim", "ok")
	m.Expired(3)
	m.Webhook("deal.approved", "delivered")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `dealflow_transitions_total{outcome="ok",transition="claim"} 2`)
	assert.Contains(t, string(body), `dealflow_sweep_expired_total 3`)
	assert.Contains(t, string(body), `dealflow_webhook_deliveries_total{kind="deal.approved",outcome="delivered"} 1`)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.Transition("claim", "ok")
	m.Expired(1)
	m.Webhook("x", "y")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
