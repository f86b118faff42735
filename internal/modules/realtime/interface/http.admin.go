package transport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/usecase"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/infrastructure"
	"github.com/ktg0215/Management-sub000/internal/shared/httputil"
)

// EventTranslator turns a domain event into broadcasts.
type EventTranslator interface {
	Translate(ctx context.Context, evt domain.Event) error
}

// AnnouncementRequest is the body of POST /api/realtime/announcements.
type AnnouncementRequest struct {
	Title            string     `json:"title"`
	Message          string     `json:"message"`
	Severity         string     `json:"severity"`
	StartsAt         *time.Time `json:"startsAt,omitempty"`
	EndsAt           *time.Time `json:"endsAt,omitempty"`
	AffectedServices []string   `json:"affectedServices,omitempty"`
}

// PublishResponse reports how many connections a publish reached.
type PublishResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Reached int    `json:"reached"`
}

var eventErrors = httputil.NewErrorMapper().
	WithMapping(domain.ErrUnsupportedEvent, http.StatusBadRequest, "unsupported event type").
	WithMapping(domain.ErrInvalidEvent, http.StatusBadRequest, "invalid event payload")

func NewStatsHandler(hub *infrastructure.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, hub.Stats())
	}
}

// NewAnnouncementHandler publishes an announcement to every open connection.
func NewAnnouncementHandler(broadcast *usecase.BroadcastUseCase) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req AnnouncementRequest
		if err := c.Bind(&req); err != nil {
			slog.Warn("announcement http: invalid request body", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if strings.TrimSpace(req.Message) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": "message is required"})
		}
		severity := domain.Severity(strings.ToLower(strings.TrimSpace(req.Severity)))
		if severity != "" && !severity.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": "unknown severity"})
		}

		announcement := usecase.Announcement{
			ID:               uuid.NewString(),
			Title:            strings.TrimSpace(req.Title),
			Message:          strings.TrimSpace(req.Message),
			Severity:         severity,
			AffectedServices: req.AffectedServices,
		}
		if req.StartsAt != nil && req.EndsAt != nil {
			if !req.EndsAt.After(*req.StartsAt) {
				return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": "endsAt must be after startsAt"})
			}
			announcement.Window = &usecase.MaintenanceWindow{StartsAt: req.StartsAt.UTC(), EndsAt: req.EndsAt.UTC()}
		}
		if identity, ok := identityFrom(c); ok {
			announcement.Data = map[string]any{"announcedBy": identity.UserID}
		}

		reached := broadcast.BroadcastSystemAnnouncement(c.Request().Context(), announcement)
		return c.JSON(http.StatusOK, PublishResponse{Success: true, ID: announcement.ID, Reached: reached})
	}
}

// NewEventIngressHandler accepts domain events from the write path when no
// broker is deployed. Delivery stays best-effort: once the event decodes the
// caller gets 202 whatever the reach.
func NewEventIngressHandler(translator EventTranslator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var evt domain.Event
		if err := c.Bind(&evt); err != nil {
			slog.Warn("event ingress: invalid request body", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
		if err := translator.Translate(c.Request().Context(), evt); err != nil {
			slog.Warn("event ingress: event rejected", slog.String("type", string(evt.Type)), slog.Any("error", err))
			return eventErrors.HTTPError(err)
		}
		return c.JSON(http.StatusAccepted, map[string]any{"success": true, "type": evt.Type})
	}
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler reports liveness and open connections. A failing database
// ping turns the answer into 503; db may be nil.
func NewHealthHandler(hub *infrastructure.Hub, db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		status, code := "ok", http.StatusOK
		if db != nil {
			if err := db.Ping(c.Request().Context()); err != nil {
				slog.Warn("health check: database unreachable", slog.Any("error", err))
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		return c.JSON(code, map[string]any{
			"status":      status,
			"connections": hub.Stats().TotalConnections,
			"time":        hub.Now().UTC(),
		})
	}
}
