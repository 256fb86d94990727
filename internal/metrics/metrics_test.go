package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveDelegateCall(t *testing.T) {
	okBefore := testutil.ToFloat64(DelegateCallsTotal.WithLabelValues("lite", "ok"))
	errBefore := testutil.ToFloat64(DelegateCallsTotal.WithLabelValues("lite", "error"))

	ObserveDelegateCall("lite", nil, 200*time.Millisecond)
	ObserveDelegateCall("lite", errors.New("boom"), time.Second)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(DelegateCallsTotal.WithLabelValues("lite", "ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(DelegateCallsTotal.WithLabelValues("lite", "error")))
}

func TestObserveStage(t *testing.T) {
	before := testutil.ToFloat64(StageFailuresTotal.WithLabelValues("query"))

	ObserveStage("query", 10*time.Millisecond, false)
	assert.Equal(t, before, testutil.ToFloat64(StageFailuresTotal.WithLabelValues("query")))

	ObserveStage("query", 10*time.Millisecond, true)
	assert.Equal(t, before+1, testutil.ToFloat64(StageFailuresTotal.WithLabelValues("query")))
}

func TestMiddleware(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := Middleware(mux)

	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/ping", "418"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/ping", "418")))
}
