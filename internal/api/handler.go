package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/punchamoorthee/bankfeed/internal/service"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankfeed_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bankfeed_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5, 30},
	}, []string{"method", "endpoint"})
)

// Processor runs one inbound notification through the pipeline.
type Processor interface {
	Process(ctx context.Context, raw []byte, origin domain.Origin) (service.Result, error)
}

// Repository serves the read endpoints.
type Repository interface {
	FindTransactions(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

// RuleRefresher forces the category rule cache to reload.
type RuleRefresher interface {
	Refresh(ctx context.Context) ([]domain.CategoryRule, error)
}

// ReportGenerator builds monthly reports.
type ReportGenerator interface {
	Monthly(ctx context.Context, year int, month time.Month) (domain.MonthlyReport, error)
	PreviousMonth() (int, time.Month)
}

type Handler struct {
	pipeline Processor
	repo     Repository
	rules    RuleRefresher
	reports  ReportGenerator
	log      logrus.FieldLogger
}

func NewHandler(p Processor, repo Repository, rules RuleRefresher, reports ReportGenerator, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		pipeline: p,
		repo:     repo,
		rules:    rules,
		reports:  reports,
		log:      log.WithField(logging.FieldComponent, "api"),
	}
}

// NewRouter registers every route, /metrics included.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestMiddleware)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", h.StatsHandler).Methods(http.MethodGet)

	tx := r.PathPrefix("/transactions").Subrouter()
	tx.HandleFunc("/recent", h.RecentTransactionsHandler).Methods(http.MethodGet)
	tx.HandleFunc("/by-account/{account}", h.TransactionsByAccountHandler).Methods(http.MethodGet)
	tx.HandleFunc("/by-category/{category}", h.TransactionsByCategoryHandler).Methods(http.MethodGet)

	wh := r.PathPrefix("/webhook").Subrouter()
	wh.HandleFunc("/sepay", h.SepayWebhookHandler).Methods(http.MethodPost)
	wh.HandleFunc("/email", h.EmailWebhookHandler).Methods(http.MethodPost)

	r.HandleFunc("/rules/refresh", h.RefreshRulesHandler).Methods(http.MethodPost)
	r.HandleFunc("/reports/monthly", h.MonthlyReportHandler).Methods(http.MethodGet)
	return r
}

type ctxKey struct{}

// statusRecorder remembers the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestMiddleware assigns a request ID, logs the request and records HTTP metrics
// against the route template.
func (h *Handler) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		log := h.log.WithFields(logrus.Fields{
			logging.FieldRequestID: requestID,
			"method":               r.Method,
			"endpoint":             endpoint,
		})
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, log)))

		elapsed := time.Since(start)
		httpRequestDuration.WithLabelValues(r.Method, endpoint).Observe(elapsed.Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
		log.WithFields(logrus.Fields{
			"status":              rec.status,
			logging.FieldDuration: elapsed.Milliseconds(),
		}).Debug("Request served")
	})
}

// requestLogger returns the request-scoped logger set by the middleware.
func (h *Handler) requestLogger(r *http.Request) logrus.FieldLogger {
	if log, ok := r.Context().Value(ctxKey{}).(logrus.FieldLogger); ok {
		return log
	}
	return h.log
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
