package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	metricHTTPRequestDuration = "http_request_duration"
	metricHTTPRequestsTotal   = "http_requests_total"

	labelMethod = "method"
	labelRoute  = "route"
	labelStatus = "status"

	logMsgRequestHandled = "http request handled"

	logAttrMethod     = "method"
	logAttrRoute      = "route"
	logAttrDurationMS = "duration_ms"
)

// observeRequests logs every request and records duration and count
// metrics, labeled by the chi route pattern rather than the raw path so
// cardinality stays bounded.
func (a *API) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}

		if a.logger != nil {
			a.logger.Debug(logMsgRequestHandled,
				logAttrMethod, r.Method,
				logAttrRoute, route,
				logAttrStatus, wrapped.Status(),
				logAttrDurationMS, float64(duration.Microseconds())/1000.0)
		}

		if a.metrics != nil {
			labels := map[string]string{
				labelMethod: r.Method,
				labelRoute:  route,
				labelStatus: strconv.Itoa(wrapped.Status()),
			}
			a.metrics.RecordDuration(metricHTTPRequestDuration, duration, labels)
			a.metrics.IncrementCounter(metricHTTPRequestsTotal, labels)
		}
	})
}
