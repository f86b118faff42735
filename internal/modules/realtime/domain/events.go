package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnsupportedEvent is returned when an event type has no translation.
	ErrUnsupportedEvent = errors.New("unsupported domain event")
	// ErrInvalidEvent is returned when an event lacks the context needed to route it.
	ErrInvalidEvent = errors.New("invalid domain event")
)

// EventType names a domain event on the wire.
type EventType string

const (
	EventTypeSalesDataChanged     EventType = "sales.upserted"
	EventTypeBatchSalesUpdated    EventType = "sales.batch_upserted"
	EventTypeStoreStatusChanged   EventType = "store.status_changed"
	EventTypeUserLoggedIn         EventType = "user.logged_in"
	EventTypeExportCompleted      EventType = "export.completed"
	EventTypeMaintenanceScheduled EventType = "system.maintenance"
	EventTypeSystemAnnouncement   EventType = "system.announcement"
)

// Event is the wire wrapper the write path publishes after a committed mutation.
type Event struct {
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt,omitempty"`
}

// Decode unmarshals the payload into the concrete event for Type and validates it.
func (e Event) Decode() (any, error) {
	var (
		target interface{ Validate() error }
	)
	switch EventType(strings.TrimSpace(string(e.Type))) {
	case EventTypeSalesDataChanged:
		target = &SalesDataChanged{}
	case EventTypeBatchSalesUpdated:
		target = &BatchSalesUpdated{}
	case EventTypeStoreStatusChanged:
		target = &StoreStatusChanged{}
	case EventTypeUserLoggedIn:
		target = &UserLoggedIn{}
	case EventTypeExportCompleted:
		target = &ExportCompleted{}
	case EventTypeMaintenanceScheduled:
		target = &MaintenanceScheduled{}
	case EventTypeSystemAnnouncement:
		target = &SystemAnnouncement{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, e.Type)
	}
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s: empty payload", ErrInvalidEvent, e.Type)
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, e.Type, err)
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return target, nil
}

// SalesDataChanged is emitted after a daily or monthly sales record is created or updated.
type SalesDataChanged struct {
	StoreID   int64          `json:"storeId"`
	Year      int            `json:"year"`
	Month     int            `json:"month"`
	Date      string         `json:"date,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	ActorID   string         `json:"actorId"`
	ActorName string         `json:"actorName,omitempty"`
	Created   bool           `json:"created,omitempty"`
}

// Period renders the affected period as YYYY-MM, or the day when Date is set.
func (e SalesDataChanged) Period() string {
	if d := strings.TrimSpace(e.Date); d != "" {
		return d
	}
	return fmt.Sprintf("%04d-%02d", e.Year, e.Month)
}

func (e SalesDataChanged) Validate() error {
	if e.StoreID <= 0 {
		return fmt.Errorf("%w: sales data missing store id", ErrInvalidEvent)
	}
	if e.Month < 1 || e.Month > 12 {
		return fmt.Errorf("%w: sales data month %d out of range", ErrInvalidEvent, e.Month)
	}
	if e.Year <= 0 {
		return fmt.Errorf("%w: sales data missing year", ErrInvalidEvent)
	}
	return nil
}

// BatchStatus is the outcome of a single record in a batch import.
type BatchStatus string

const (
	BatchStatusSuccess BatchStatus = "success"
	BatchStatusFailed  BatchStatus = "failed"
)

// BatchRecordResult is one row of a batch sales import.
type BatchRecordResult struct {
	StoreID int64       `json:"storeId"`
	Year    int         `json:"year"`
	Month   int         `json:"month"`
	Date    string      `json:"date,omitempty"`
	Status  BatchStatus `json:"status"`
	Error   string      `json:"error,omitempty"`
}

// BatchSalesUpdated is emitted once a batch import finishes.
type BatchSalesUpdated struct {
	Results []BatchRecordResult `json:"results"`
	ActorID string              `json:"actorId"`
}

func (e BatchSalesUpdated) Validate() error {
	if len(e.Results) == 0 {
		return fmt.Errorf("%w: batch without results", ErrInvalidEvent)
	}
	return nil
}

// StoreStatusChanged is emitted when a store is opened, closed or suspended.
type StoreStatusChanged struct {
	StoreID        int64  `json:"storeId"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previousStatus,omitempty"`
	Reason         string `json:"reason,omitempty"`
	ActorID        string `json:"actorId"`
}

func (e StoreStatusChanged) Validate() error {
	if e.StoreID <= 0 {
		return fmt.Errorf("%w: store status missing store id", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.Status) == "" {
		return fmt.Errorf("%w: store status missing status", ErrInvalidEvent)
	}
	return nil
}

// UserLoggedIn is emitted by the login flow after a token is issued.
type UserLoggedIn struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName,omitempty"`
	StoreID        int64  `json:"storeId,omitempty"`
	NotifyManagers bool   `json:"notifyManagers,omitempty"`
}

func (e UserLoggedIn) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: login missing user id", ErrInvalidEvent)
	}
	return nil
}

// ExportCompleted is emitted when a CSV/Excel export is ready for download.
type ExportCompleted struct {
	UserID      string `json:"userId"`
	ExportType  string `json:"exportType"`
	FileName    string `json:"fileName,omitempty"`
	DownloadURL string `json:"downloadUrl"`
	RecordCount int    `json:"recordCount,omitempty"`
}

func (e ExportCompleted) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return fmt.Errorf("%w: export missing user id", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.DownloadURL) == "" {
		return fmt.Errorf("%w: export missing download reference", ErrInvalidEvent)
	}
	return nil
}

// MaintenanceScheduled announces a maintenance window.
type MaintenanceScheduled struct {
	Title            string    `json:"title,omitempty"`
	Message          string    `json:"message,omitempty"`
	StartsAt         time.Time `json:"startsAt"`
	EndsAt           time.Time `json:"endsAt"`
	AffectedServices []string  `json:"affectedServices,omitempty"`
}

func (e MaintenanceScheduled) Validate() error {
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return fmt.Errorf("%w: maintenance window missing bounds", ErrInvalidEvent)
	}
	if !e.EndsAt.After(e.StartsAt) {
		return fmt.Errorf("%w: maintenance window ends before it starts", ErrInvalidEvent)
	}
	return nil
}

// Severity grades a system announcement.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is one of the known grades.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// SystemAnnouncement is a free-form message for every connected client.
type SystemAnnouncement struct {
	Title    string   `json:"title,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity,omitempty"`
	ActorID  string   `json:"actorId,omitempty"`
}

func (e SystemAnnouncement) Validate() error {
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Errorf("%w: announcement missing message", ErrInvalidEvent)
	}
	return nil
}
