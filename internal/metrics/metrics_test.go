package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, importRunsTotal)
	require.NotNil(t, importMessagesTotal)
	require.NotNil(t, importActiveRuns)
}

func TestObservers(t *testing.T) {
	ObserveMessage("metrics_test", "parsed_ok")
	ObserveMessage("metrics_test", "parsed_ok")
	ObserveListingCreated("metrics_test")
	ObservePhoto("metrics_test")
	ObserveMediaFailure("metrics_test")

	assert.Equal(t, 2.0, testutil.ToFloat64(importMessagesTotal.WithLabelValues("metrics_test", "parsed_ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(listingsCreatedTotal.WithLabelValues("metrics_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(photosDownloadedTotal.WithLabelValues("metrics_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(mediaDownloadFailuresTotal.WithLabelValues("metrics_test")))
}

func TestRunGauge(t *testing.T) {
	before := testutil.ToFloat64(importActiveRuns)

	RunStarted()
	assert.Equal(t, before+1, testutil.ToFloat64(importActiveRuns))

	RunFinished("metrics_test", "success", 2*time.Second)
	assert.Equal(t, before, testutil.ToFloat64(importActiveRuns))
	assert.Equal(t, 1.0, testutil.ToFloat64(importRunsTotal.WithLabelValues("metrics_test", "success")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveMessage("metrics_handler", "skipped")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "carfeed_import_messages_total"))
}
