package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	require.NotNil(t, fetchTotal)
	require.NotNil(t, recordsTotal)
	require.NotNil(t, deliveryTotal)
	require.NotNil(t, runDurationSeconds)
	require.NotNil(t, rateLimitDelaySeconds)
}

func TestObserveRateLimitDelay(t *testing.T) {
	before := testutil.CollectAndCount(rateLimitDelaySeconds)
	ObserveRateLimitDelay("rate-limit-test.example", 200*time.Millisecond)
	assert.Equal(t, before+1, testutil.CollectAndCount(rateLimitDelaySeconds))
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(fetchTotal.WithLabelValues("timeout"))
	ObserveFetch("timeout")
	assert.Equal(t, before+1, testutil.ToFloat64(fetchTotal.WithLabelValues("timeout")))

	before = testutil.ToFloat64(recordsTotal.WithLabelValues("unique"))
	AddRecords("unique", 7)
	AddRecords("unique", 0)
	AddRecords("unique", -3)
	assert.Equal(t, before+7, testutil.ToFloat64(recordsTotal.WithLabelValues("unique")))

	before = testutil.ToFloat64(deliveryTotal.WithLabelValues("connect_failed"))
	ObserveDelivery("connect_failed")
	assert.Equal(t, before+1, testutil.ToFloat64(deliveryTotal.WithLabelValues("connect_failed")))

	ObserveRun(3 * time.Second)
	assert.Positive(t, testutil.CollectAndCount(runDurationSeconds))
}

func TestPush(t *testing.T) {
	Init()
	ObserveFetch("ok")

	var gotPath, gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		gotBody = buf.String()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	require.NoError(t, Push(context.Background(), server.URL, "govcontracts"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/govcontracts", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushSkippedWithoutURL(t *testing.T) {
	assert.NoError(t, Push(context.Background(), "", ""))
	assert.Error(t, Push(context.Background(), "http://localhost:9091", ""))
}

func TestPushFailure(t *testing.T) {
	Init()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	assert.Error(t, Push(context.Background(), server.URL, "govcontracts"))
}
