package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/feed-engine/internal/core/ports"
)

// FeedRequestMessage est le payload d'une requête interne sur NATS.
// Le viewer est déjà authentifié par l'appelant (service interne), pas de token ici.
type FeedRequestMessage struct {
	Type     string `json:"type"`
	OwnerID  string `json:"ownerId,omitempty"`
	Cursor   string `json:"cursor,omitempty"`
	PageSize int    `json:"pageSize,omitempty"`
	ViewerID string `json:"viewerId,omitempty"`
}

// FeedReplyMessage reprend l'enveloppe HTTP, avec le statut équivalent
type FeedReplyMessage struct {
	Success    bool              `json:"success"`
	Status     int               `json:"status"`
	Items      []domain.FeedItem `json:"items"`
	NextCursor *string           `json:"nextCursor"`
	HasMore    bool              `json:"hasMore"`
	Message    string            `json:"message,omitempty"`
	Code       string            `json:"code,omitempty"`
	RetryAfter int               `json:"retryAfter,omitempty"`
}

type EventHandler struct {
	service ports.FeedService
	timeout time.Duration
	tracer  trace.Tracer
}

func NewEventHandler(service ports.FeedService, timeout time.Duration) *EventHandler {
	return &EventHandler{
		service: service,
		timeout: timeout,
		tracer:  otel.Tracer("feed-engine"),
	}
}

// Subscribe branche le handler en queue group : une seule instance répond à chaque requête
func (h *EventHandler) Subscribe(nc *nats.Conn, subject, queue string) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, h.HandleFeedRequest)
}

func (h *EventHandler) HandleFeedRequest(msg *nats.Msg) {
	// Reprend la trace de l'appelant depuis les headers NATS
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), propagation.HeaderCarrier(msg.Header))
	ctx, span := h.tracer.Start(ctx, "feed.request", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	reply := h.process(ctx, msg.Data)

	if msg.Reply == "" {
		slog.Warn("⚠️ Feed request without reply subject, dropping", "subject", msg.Subject)
		return
	}

	data, err := json.Marshal(reply)
	if err != nil {
		span.RecordError(err)
		slog.Error("❌ Failed to encode feed reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		span.RecordError(err)
		slog.Error("❌ Failed to send feed reply", "error", err)
	}
}

func (h *EventHandler) process(ctx context.Context, data []byte) FeedReplyMessage {
	var in FeedRequestMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return errorReply(domain.FeedRequest{}, domain.NewValidationError("body", "invalid JSON payload"))
	}

	// Le viewer arrive en clair dans le payload : même contrôle qu'un id de token
	if err := domain.ValidateViewerID(in.ViewerID); err != nil {
		return errorReply(domain.FeedRequest{Type: domain.FeedType(in.Type)}, err)
	}

	req := domain.FeedRequest{
		Type:     domain.FeedType(in.Type),
		OwnerID:  in.OwnerID,
		Cursor:   in.Cursor,
		PageSize: in.PageSize,
		ViewerID: in.ViewerID,
	}

	page, err := h.service.GetFeed(ctx, req)
	if err != nil {
		return errorReply(req, err)
	}

	items := page.Items
	if items == nil {
		items = []domain.FeedItem{}
	}

	return FeedReplyMessage{
		Success:    true,
		Status:     http.StatusOK,
		Items:      items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
}

func errorReply(req domain.FeedRequest, err error) FeedReplyMessage {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		var vErr *domain.ValidationError
		errors.As(err, &vErr)
		return FeedReplyMessage{Status: http.StatusBadRequest, Message: vErr.Error(), Code: "VALIDATION_ERROR"}
	case domain.KindAuthRequired:
		return FeedReplyMessage{Status: http.StatusUnauthorized, Message: "authentication required", Code: "AUTH_REQUIRED"}
	case domain.KindRateLimited:
		var rlErr *domain.RateLimitedError
		errors.As(err, &rlErr)
		return FeedReplyMessage{
			Status:     http.StatusTooManyRequests,
			Message:    "too many requests",
			Code:       "RATE_LIMITED",
			RetryAfter: rlErr.RetryAfterSeconds(),
		}
	default:
		slog.Error("❌ Failed to get feed",
			"feed", req.Type,
			"owner", req.OwnerID,
			"viewer", req.ViewerID,
			"cursor", req.Cursor,
			"error", err,
		)
		return FeedReplyMessage{Status: http.StatusInternalServerError, Message: "internal error", Code: "INTERNAL_ERROR"}
	}
}
