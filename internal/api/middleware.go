package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Request headers read and echoed by the middleware.
const (
	TenantIDHeader  = "X-Tenant-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

var tracer = otel.Tracer("riskscore-api")

// requestInfo is shared by the middleware chain of one request. The tenant
// is filled in by tenantMiddleware after the request middleware created it.
type requestInfo struct {
	requestID string
	traceID   string
	tenantID  string
}

type requestInfoKey struct{}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

// GetTenantID returns the tenant admitted for the request.
func GetTenantID(ctx context.Context) string { return infoFrom(ctx).tenantID }

// GetRequestID returns the request id echoed in X-Request-ID.
func GetRequestID(ctx context.Context) string { return infoFrom(ctx).requestID }

// GetTraceID returns the trace id, or the request id when tracing is off.
func GetTraceID(ctx context.Context) string { return infoFrom(ctx).traceID }

// requestMiddleware continues any incoming W3C trace, starts the server
// span and logs the request once it is routed. The span is renamed to the
// matched route and tagged with the run and transaction ids it touched.
func requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		info := &requestInfo{requestID: requestID, traceID: requestID}
		if sc := span.SpanContext(); sc.HasTraceID() {
			info.traceID = sc.TraceID().String()
		}
		ctx = context.WithValue(ctx, requestInfoKey{}, info)

		w.Header().Set(RequestIDHeader, info.requestID)
		w.Header().Set(TraceIDHeader, info.traceID)

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		route := r.URL.Path
		var runID, txID string
		if rctx := chi.RouteContext(ctx); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
			runID = rctx.URLParam("id")
			txID = rctx.URLParam("txId")
		}

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", rw.status),
		)
		if runID != "" {
			span.SetAttributes(attribute.String("run.id", runID))
		}
		if txID != "" {
			span.SetAttributes(attribute.String("transaction.id", txID))
		}
		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		}

		level := slog.LevelInfo
		if rw.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(ctx, level, "http request",
			"method", r.Method,
			"route", route,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"tenant_id", info.tenantID,
			"run_id", runID,
			"request_id", info.requestID,
			"trace_id", info.traceID,
		)
	})
}

// tenantMiddleware admits requests carrying X-Tenant-ID. A non-empty
// allow-list rejects tenants outside it with 403.
func tenantMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenantID := strings.TrimSpace(r.Header.Get(TenantIDHeader))
			if tenantID == "" {
				writeError(w, http.StatusBadRequest, TenantIDHeader+" header is required")
				return
			}
			if len(allowed) > 0 && !slices.Contains(allowed, tenantID) {
				writeError(w, http.StatusForbidden, "unknown tenant")
				return
			}

			infoFrom(r.Context()).tenantID = tenantID
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("tenant.id", tenantID))
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware answers preflights for the GET and POST routes. With no
// configured origins any origin is allowed, without credentials.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()

			switch {
			case origin == "":
			case len(origins) == 0:
				h.Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(origins, origin):
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			default:
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && origin != "" {
				h.Set("Access-Control-Allow-Methods", "GET, POST")
				h.Set("Access-Control-Allow-Headers", "Content-Type, "+TenantIDHeader+", "+RequestIDHeader+", traceparent, tracestate")
				h.Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if origin != "" {
				h.Set("Access-Control-Expose-Headers", RequestIDHeader+", "+TraceIDHeader)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recoverMiddleware turns a handler panic into a 500.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				slog.Error("panic recovered",
					"error", v,
					"path", r.URL.Path,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
