package transport

import (
	"github.com/labstack/echo/v4"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/usecase"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/infrastructure"
	"github.com/ktg0215/Management-sub000/internal/shared/auth"
)

// Routes bundles what the HTTP surface needs.
type Routes struct {
	Hub        *infrastructure.Hub
	Validator  auth.TokenValidator
	Broadcast  *usecase.BroadcastUseCase
	Translator EventTranslator
	Client     infrastructure.ClientConfig
	APIKey     string
	Database   Pinger
}

func RegisterRoutes(e *echo.Echo, r Routes) {
	e.GET("/healthz", NewHealthHandler(r.Hub, r.Database))
	e.GET("/ws", NewWebsocketHandler(r.Hub, r.Validator, r.Client))

	api := e.Group("/api/realtime")
	admin := api.Group("", RequireRole(r.Validator, domain.RoleAdmin))
	admin.GET("/stats", NewStatsHandler(r.Hub))
	admin.POST("/announcements", NewAnnouncementHandler(r.Broadcast))

	api.POST("/events", NewEventIngressHandler(r.Translator), RequireAPIKey(r.APIKey))
}
