package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	appanalysis "github.com/bryanwahyu/mediscan/internal/application/analysis"
	appconsult "github.com/bryanwahyu/mediscan/internal/application/consultations"
	"github.com/bryanwahyu/mediscan/internal/domain/consultations"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

type Options struct {
	Analysis      *appanalysis.Service
	Consultations *appconsult.Service
	Log           logrus.FieldLogger

	APIKeys     map[string]string
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.Metrics
	CORSOrigins []string

	// Health runs every checker, Ready only the ones the service needs.
	Health map[string]middleware.HealthChecker
	Ready  map[string]middleware.HealthChecker

	MaxUploadBytes int64
	AllowedTypes   []string
}

type Router struct {
	analysis      *appanalysis.Service
	consultations *appconsult.Service
	log           logrus.FieldLogger
	maxUpload     int64
	allowedTypes  []string
	upgrader      websocket.Upgrader
}

func NewRouter(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = middleware.DefaultMaxUploadBytes
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := &Router{
		analysis:      opts.Analysis,
		consultations: opts.Consultations,
		log:           opts.Log,
		maxUpload:     opts.MaxUploadBytes,
		allowedTypes:  opts.AllowedTypes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logging(opts.Log))
	if opts.Metrics != nil {
		mux.Use(opts.Metrics.Middleware)
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "X-Retry-Attempts"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	if opts.RateLimiter != nil {
		mux.Use(opts.RateLimiter.Middleware)
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/livez", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler(opts.Ready))
	if opts.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/images", r.wrap(r.handleUpload))
		rt.Get("/images", r.wrap(r.handleImages))
		rt.Get("/images/{id}/url", r.wrap(r.handleImageURL))
		rt.Post("/images/{id}/analyze", r.wrap(r.handleAnalyzeImage))
		rt.Get("/images/{id}/errors", r.wrap(r.handleImageErrors))

		rt.Get("/analyses", r.wrap(r.handleAnalyses))
		rt.Get("/analyses/{id}", r.wrap(r.handleAnalysis))
		rt.Get("/analyses/{id}/findings", r.wrap(r.handleFindings))
		rt.Get("/summary", r.wrap(r.handleSummary))
		rt.Get("/reports/analyses.xlsx", r.wrap(r.handleExport))

		if r.consultations != nil {
			rt.Post("/consultations", r.wrap(r.handleOpenConsultation))
			rt.Get("/consultations/{id}", r.wrap(r.handleConsultation))
			rt.Get("/consultations/{id}/messages", r.wrap(r.handleMessages))
			rt.Post("/consultations/{id}/messages", r.wrap(r.handlePostMessage))
			rt.Get("/consultations/{id}/stream", r.wrap(r.handleStream))
		}
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			status, failure := r.mapError(err)
			entry := r.log.WithError(err).WithFields(logrus.Fields{
				"path":       req.URL.Path,
				"kind":       failure.Kind,
				"request_id": middleware.GetRequestID(req.Context()),
			})
			if status >= 500 {
				entry.Error("request failed")
			} else {
				entry.Info("request failed")
			}
			writeJSON(w, status, map[string]any{"error": failure})
		}
	}
}

// mapError turns an error into a status code and a user-facing failure.
// Raw error text is logged by wrap, never written to the client.
func (r *Router) mapError(err error) (int, appanalysis.Failure) {
	var upload *middleware.UploadError
	switch {
	case errors.As(err, &upload):
		status := http.StatusBadRequest
		if upload.Title == middleware.TooLarge(0).Title {
			status = http.StatusRequestEntityTooLarge
		}
		return status, appanalysis.Failure{Kind: appanalysis.KindInvalidInput, Title: upload.Title, Message: upload.Message}
	case errors.Is(err, appconsult.ErrForbidden):
		return http.StatusForbidden, appanalysis.Failure{Kind: "forbidden", Title: "Forbidden", Message: "You are not part of this consultation."}
	case errors.Is(err, appconsult.ErrClosed):
		return http.StatusConflict, appanalysis.Failure{Kind: "closed", Title: "Consultation Closed", Message: "This consultation is closed."}
	case errors.Is(err, appconsult.ErrInvalidInput):
		return http.StatusBadRequest, appanalysis.Failure{Kind: appanalysis.KindInvalidInput, Title: "Invalid Request", Message: userMessage(err, appconsult.ErrInvalidInput)}
	case errors.Is(err, consultations.ErrNotFound):
		return http.StatusNotFound, appanalysis.Failure{Kind: appanalysis.KindNotFound, Title: "Not Found", Message: "The requested record does not exist."}
	}

	f := appanalysis.Classify(err)
	return statusFor(f.Kind), f
}

func statusFor(kind appanalysis.Kind) int {
	switch kind {
	case appanalysis.KindRejected:
		return http.StatusUnprocessableEntity
	case appanalysis.KindInvalidInput:
		return http.StatusBadRequest
	case appanalysis.KindRateLimited:
		return http.StatusTooManyRequests
	case appanalysis.KindQuotaExceeded, appanalysis.KindUnavailable:
		return http.StatusServiceUnavailable
	case appanalysis.KindMalformedOutput:
		return http.StatusBadGateway
	case appanalysis.KindNotFound:
		return http.StatusNotFound
	case appanalysis.KindInProgress:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func userMessage(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", appanalysis.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func userID(req *http.Request) string {
	return middleware.GetUserFromContext(req.Context())
}

// pathID validates the {id} URL parameter as a UUID.
func pathID(req *http.Request, kind string) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateID(kind, id); err != nil {
		return "", invalid("%s", err.Error())
	}
	return id, nil
}

func queryInt(req *http.Request, key string) int {
	n, _ := strconv.Atoi(req.URL.Query().Get(key))
	return n
}

func queryTime(req *http.Request, key string) (time.Time, bool, error) {
	raw := req.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, invalid("%s must be an RFC 3339 timestamp", key)
	}
	return t, true, nil
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(req *http.Request) bool {
		origin := req.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
