package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRemoteWritePusherSendsCountersAndGauges(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSettlementMetrics(registry, Config{ServiceName: "recyclesim", Environment: "test"})
	m.ObserveSettlement(OutcomeSettled, 0)
	m.SetOutboxPending(4)

	var got prompb.WriteRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		raw, err := snappy.Decode(nil, body)
		require.NoError(t, err)
		require.NoError(t, got.Unmarshal(raw))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "token")
	require.NoError(t, pusher.Push(t.Context(), registry))

	names := map[string]bool{}
	for _, ts := range got.Timeseries {
		for _, label := range ts.Labels {
			if label.Name == "__name__" {
				names[label.Value] = true
			}
		}
	}
	assert.True(t, names["recyclesim_settlements_total"])
	assert.True(t, names["recyclesim_outbox_pending"])
	assert.False(t, names["recyclesim_settle_duration_seconds"], "histograms are not pushed")
}

func TestNewPusherDisabledOnMisconfiguration(t *testing.T) {
	log := zap.NewNop()
	assert.Nil(t, NewPusher(PushConfig{Enabled: false}, log))
	assert.Nil(t, NewPusher(PushConfig{Enabled: true, Exporter: ExporterPrometheusRemoteWrite}, log))
	assert.Nil(t, NewPusher(PushConfig{Enabled: true, Exporter: "statsd", Endpoint: "http://x"}, log))
	assert.NotNil(t, NewPusher(PushConfig{Enabled: true, Exporter: ExporterPrometheusPushgateway, Endpoint: "http://gw:9091"}, log))
}
