package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerUsesRouteTemplate(t *testing.T) {
	router := mux.NewRouter()
	router.Use(InstrumentHandler)
	router.HandleFunc("/meetups/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}).Methods(http.MethodDelete)

	before := testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "/meetups/{id}", "418"))

	for _, id := range []string{"a", "b"} {
		req := httptest.NewRequest(http.MethodDelete, "/meetups/"+id, nil)
		router.ServeHTTP(httptest.NewRecorder(), req)
	}

	after := testutil.ToFloat64(httpRequests.WithLabelValues("DELETE", "/meetups/{id}", "418"))
	assert.Equal(t, before+2, after)
}

func TestDomainCounters(t *testing.T) {
	before := testutil.ToFloat64(subscriptionAttempts.WithLabelValues("created"))
	RecordSubscription("created")
	assert.Equal(t, before+1, testutil.ToFloat64(subscriptionAttempts.WithLabelValues("created")))

	SetQueueDepth("SubscriptionMail", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(queueDepth.WithLabelValues("SubscriptionMail")))

	RecordJobProcessed("SubscriptionMail", 0, true)
	assert.GreaterOrEqual(t, testutil.ToFloat64(jobsProcessed.WithLabelValues("SubscriptionMail", "true")), float64(1))
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordMeetup("created")
	RecordRateLimited()
	RecordJobPublished("SubscriptionMail", false)
	RecordJobProcessed("SubscriptionMail", time.Second, false)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "meetapp_meetups_events_total")
	assert.Contains(t, body, "meetapp_http_rate_limited_total")
	assert.Contains(t, body, "meetapp_jobs_published_total")
}
