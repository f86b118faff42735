package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/infrastructure"
	"github.com/ktg0215/Management-sub000/internal/shared/auth"
	"github.com/ktg0215/Management-sub000/internal/shared/httputil"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var handshakeErrors = httputil.NewErrorMapper().
	WithMapping(auth.ErrMissingToken, http.StatusBadRequest, "missing token").
	WithMapping(auth.ErrInvalidToken, http.StatusUnauthorized, "invalid token").
	WithMapping(errInvalidIdentity, http.StatusUnauthorized, "invalid token")

// WelcomePayload is sent as the first data message on every connection.
type WelcomePayload struct {
	ConnectionID string          `json:"connectionId"`
	ServerTime   time.Time       `json:"serverTime"`
	Identity     IdentityPayload `json:"identity"`
}

type IdentityPayload struct {
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	StoreID int64  `json:"storeId,omitempty"`
}

// NewWebsocketHandler exposes GET /ws. The token comes from ?token= or an
// Authorization bearer header. Failed verification refuses the upgrade and
// no client is created.
func NewWebsocketHandler(hub *infrastructure.Hub, validator auth.TokenValidator, clientCfg infrastructure.ClientConfig) echo.HandlerFunc {
	return func(c echo.Context) error {
		logger := c.Logger()
		requestID := c.Response().Header().Get(echo.HeaderXRequestID)
		peerIP := c.RealIP()

		identity, err := authenticate(validator, auth.ExtractToken(c.Request(), "token"))
		if err != nil {
			info := handshakeErrors.Map(err)
			slog.Warn("ws handshake rejected", slog.String("ip", peerIP), slog.String("reqID", requestID), slog.Int("status", info.Status), slog.Any("error", err))
			logger.Warnf("ws rejected ip=%s reqID=%s status=%d: %v", peerIP, requestID, info.Status, err)
			return handshakeErrors.HTTPError(err)
		}

		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			slog.Error("ws upgrade failed", slog.String("userId", identity.UserID), slog.String("ip", peerIP), slog.Any("error", err))
			logger.Errorf("ws upgrade failed user=%s ip=%s reqID=%s: %v", identity.UserID, peerIP, requestID, err)
			return nil
		}

		client := infrastructure.NewClient(hub, conn, identity, clientCfg)

		// Queued before Register so no broadcast can overtake it.
		welcome := domain.NewDataMessage(domain.EventWelcome, WelcomePayload{
			ConnectionID: client.ID(),
			ServerTime:   hub.Now().UTC(),
			Identity: IdentityPayload{
				UserID:  identity.UserID,
				Role:    string(identity.Role),
				StoreID: identity.StoreID,
			},
		})
		if err := client.SendEnvelope(welcome); err != nil && !errors.Is(err, infrastructure.ErrClientClosing) {
			slog.Warn("ws welcome not delivered", slog.String("connectionId", client.ID()), slog.Any("error", err))
		}
		if !hub.Register(client) {
			logger.Infof("ws refused during shutdown user=%s ip=%s reqID=%s", identity.UserID, peerIP, requestID)
			return nil
		}

		go client.WritePump()
		go client.ReadPump()

		logger.Infof("ws connected conn=%s user=%s role=%s store=%d ip=%s reqID=%s",
			client.ID(), identity.UserID, identity.Role, identity.StoreID, peerIP, requestID)
		return nil
	}
}
