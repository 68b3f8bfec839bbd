package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// Handler expose le moteur de feed en HTTP/JSON
type Handler struct {
	svc      ports.FeedService
	identity ports.IdentityResolver
}

func NewHandler(svc ports.FeedService, identity ports.IdentityResolver) *Handler {
	return &Handler{svc: svc, identity: identity}
}

// Routes monte les endpoints et la chaîne de middlewares (logging -> CORS -> OTEL en racine)
func (h *Handler) Routes(allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/feed", h.handleGetFeed)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	var handler http.Handler = withLogging(mux)

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "baggage", "traceparent"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})
	handler = c.Handler(handler)

	return otelhttp.NewHandler(handler, "feed-engine", otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))
}

type feedResponse struct {
	Success    bool              `json:"success"`
	Items      []domain.FeedItem `json:"items"`
	NextCursor *string           `json:"nextCursor"`
	HasMore    bool              `json:"hasMore"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (h *Handler) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	req := domain.FeedRequest{
		Type:     domain.FeedType(q.Get("type")),
		OwnerID:  q.Get("ownerId"),
		Cursor:   q.Get("cursor"),
		ClientIP: clientIP(r),
	}

	if raw := q.Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			h.writeFeedError(w, req, domain.NewValidationError("pageSize", "must be an integer"))
			return
		}
		req.PageSize = size
	}

	// Une seule résolution d'identité par requête
	viewerID, err := h.identity.Resolve(r.Context(), bearerToken(r))
	if err != nil {
		h.writeFeedError(w, req, fmt.Errorf("resolve identity: %w", err))
		return
	}
	req.ViewerID = viewerID

	page, err := h.svc.GetFeed(r.Context(), req)
	if err != nil {
		h.writeFeedError(w, req, err)
		return
	}

	writeJSON(w, http.StatusOK, feedResponse{
		Success:    true,
		Items:      page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// writeFeedError est le point unique de traduction erreur -> statut HTTP
func (h *Handler) writeFeedError(w http.ResponseWriter, req domain.FeedRequest, err error) {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		var vErr *domain.ValidationError
		errors.As(err, &vErr)
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: vErr.Error(), Code: "VALIDATION_ERROR"})
	case domain.KindAuthRequired:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "authentication required", Code: "AUTH_REQUIRED"})
	case domain.KindRateLimited:
		var rlErr *domain.RateLimitedError
		errors.As(err, &rlErr)
		w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds()))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: "too many requests", Code: "RATE_LIMITED"})
	default:
		slog.Error("Failed to get feed",
			"feed", req.Type,
			"owner", req.OwnerID,
			"viewer", req.ViewerID,
			"cursor", req.Cursor,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error", Code: "INTERNAL_ERROR"})
	}
}

// bearerToken : "Bearer <token>", tout autre format vaut anonyme
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// clientIP : premier saut de X-Forwarded-For (derrière le gateway), sinon l'adresse TCP
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		slog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
