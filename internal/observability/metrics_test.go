package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordEnqueue(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.JobsDeduplicated.WithLabelValues("swap"))
	enq := testutil.ToFloat64(DefaultMetrics.JobsEnqueued.WithLabelValues("swap"))

	RecordEnqueue("swap", false)
	RecordEnqueue("swap", true)
	RecordEnqueue("swap", true)

	assert.Equal(t, before+2, testutil.ToFloat64(DefaultMetrics.JobsDeduplicated.WithLabelValues("swap")))
	assert.Equal(t, enq+1, testutil.ToFloat64(DefaultMetrics.JobsEnqueued.WithLabelValues("swap")))
}

func TestRecordJobDone(t *testing.T) {
	ok := testutil.ToFloat64(DefaultMetrics.JobsCompleted.WithLabelValues("notification", "success"))
	failed := testutil.ToFloat64(DefaultMetrics.JobsCompleted.WithLabelValues("notification", "failure"))

	RecordJobDone("notification", nil)
	RecordJobDone("notification", errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(DefaultMetrics.JobsCompleted.WithLabelValues("notification", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(DefaultMetrics.JobsCompleted.WithLabelValues("notification", "failure")))
}

func TestRecordNotification(t *testing.T) {
	limited := testutil.ToFloat64(DefaultMetrics.NotificationLimited)
	RecordNotification("send-buy-confirmation", errors.New("429"), true)
	assert.Equal(t, limited+1, testutil.ToFloat64(DefaultMetrics.NotificationLimited))
}

func TestHandler_ExposesNamespace(t *testing.T) {
	RecordRPCLatency("getTransaction", 20*time.Millisecond, nil)
	RecordRPCLatency("getTransaction", time.Millisecond, context.Canceled)
	RecordTrade("PUMPFUN", "buy", "success", 3*time.Second)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `trade_engine_rpc_call_latency_seconds_count{method="getTransaction",status="canceled"}`))
	assert.True(t, strings.Contains(body, `trade_engine_trade_executions_total{outcome="success",protocol="PUMPFUN",side="buy"}`))
}
