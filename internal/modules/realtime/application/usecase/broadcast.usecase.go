package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// SalesDataPayload is the body of sales-data-updated and sales-data-created messages.
type SalesDataPayload struct {
	StoreID       int64          `json:"storeId"`
	StoreName     string         `json:"storeName,omitempty"`
	Year          int            `json:"year"`
	Month         int            `json:"month"`
	Date          string         `json:"date,omitempty"`
	Period        string         `json:"period"`
	Data          map[string]any `json:"data,omitempty"`
	UpdatedBy     string         `json:"updatedBy,omitempty"`
	UpdatedByName string         `json:"updatedByName,omitempty"`
}

// StoreUpdatePayload is the body of store-update messages.
type StoreUpdatePayload struct {
	StoreID    int64  `json:"storeId"`
	StoreName  string `json:"storeName,omitempty"`
	UpdateType string `json:"updateType"`
	Data       any    `json:"data,omitempty"`
}

// MaintenanceWindow bounds a maintenance announcement.
type MaintenanceWindow struct {
	StartsAt time.Time `json:"startsAt"`
	EndsAt   time.Time `json:"endsAt"`
}

// Announcement is the body of system-announcement messages.
type Announcement struct {
	ID               string             `json:"id"`
	Title            string             `json:"title,omitempty"`
	Message          string             `json:"message"`
	Severity         domain.Severity    `json:"severity"`
	Window           *MaintenanceWindow `json:"window,omitempty"`
	AffectedServices []string           `json:"affectedServices,omitempty"`
	Data             any                `json:"data,omitempty"`
}

// Notification is the body of user-notification messages.
type Notification struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Message   string     `json:"message,omitempty"`
	Data      any        `json:"data,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// BroadcastUseCase is the programmatic publish API used by the write path.
// Each call is a plain fan-out and returns the number of connections reached.
type BroadcastUseCase struct {
	publisher port.Publisher
}

func NewBroadcastUseCase(p port.Publisher) *BroadcastUseCase {
	return &BroadcastUseCase{publisher: p}
}

func (uc *BroadcastUseCase) BroadcastSalesDataUpdate(ctx context.Context, payload SalesDataPayload, created bool) int {
	event := domain.EventSalesDataUpdated
	if created {
		event = domain.EventSalesDataCreated
	}
	reached := uc.publisher.PublishToTopic(domain.SalesTopic(payload.StoreID), domain.NewDataMessage(event, payload))
	slog.DebugContext(ctx, "sales data broadcast", slog.Int64("storeId", payload.StoreID), slog.String("period", payload.Period), slog.Int("reached", reached))
	return reached
}

// BroadcastSystemAnnouncement reaches every open connection regardless of
// subscriptions. The message carries the system-announcements topic so
// clients can route it.
func (uc *BroadcastUseCase) BroadcastSystemAnnouncement(ctx context.Context, announcement Announcement) int {
	if strings.TrimSpace(announcement.ID) == "" {
		announcement.ID = uuid.NewString()
	}
	if announcement.Severity == "" {
		announcement.Severity = domain.SeverityInfo
	}
	msg := domain.NewDataMessage(domain.EventSystemAnnouncement, announcement)
	msg.Topic = domain.TopicSystemAnnouncements
	reached := uc.publisher.PublishToAll(msg)
	slog.InfoContext(ctx, "system announcement broadcast", slog.String("announcementId", announcement.ID), slog.String("severity", string(announcement.Severity)), slog.Int("reached", reached))
	return reached
}

func (uc *BroadcastUseCase) BroadcastUserNotification(ctx context.Context, userID string, notification Notification) int {
	if strings.TrimSpace(userID) == "" {
		return 0
	}
	if strings.TrimSpace(notification.ID) == "" {
		notification.ID = uuid.NewString()
	}
	msg := domain.NewDataMessage(domain.EventUserNotification, notification)
	msg.Topic = domain.TopicUserNotifications
	reached := uc.publisher.PublishToUser(userID, msg)
	slog.DebugContext(ctx, "user notification broadcast", slog.String("userId", userID), slog.String("kind", notification.Kind), slog.Int("reached", reached))
	return reached
}

func (uc *BroadcastUseCase) BroadcastStoreUpdate(ctx context.Context, storeID int64, updateType string, data any) int {
	return uc.broadcastStoreUpdate(ctx, StoreUpdatePayload{StoreID: storeID, UpdateType: updateType, Data: data})
}

func (uc *BroadcastUseCase) broadcastStoreUpdate(ctx context.Context, payload StoreUpdatePayload) int {
	reached := uc.publisher.PublishToTopic(domain.StoreUpdatesTopic(payload.StoreID), domain.NewDataMessage(domain.EventStoreUpdate, payload))
	slog.DebugContext(ctx, "store update broadcast", slog.Int64("storeId", payload.StoreID), slog.String("updateType", payload.UpdateType), slog.Int("reached", reached))
	return reached
}

// broadcastBusinessTypeUpdate mirrors a store summary to the admins watching
// every store of one business type.
func (uc *BroadcastUseCase) broadcastBusinessTypeUpdate(ctx context.Context, businessTypeID int64, payload StoreUpdatePayload) int {
	reached := uc.publisher.PublishToTopic(domain.BusinessTypeTopic(businessTypeID), domain.NewDataMessage(domain.EventStoreUpdate, payload))
	slog.DebugContext(ctx, "business type update broadcast", slog.Int64("businessTypeId", businessTypeID), slog.Int64("storeId", payload.StoreID), slog.Int("reached", reached))
	return reached
}
