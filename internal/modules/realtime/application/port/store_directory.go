package port

import (
	"context"
	"errors"
	"time"
)

// ErrStoreNotFound is returned by a StoreDirectory when the store id is unknown.
var ErrStoreNotFound = errors.New("store not found")

// StoreProfile is the display data used to enrich store broadcasts.
type StoreProfile struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Status           string `json:"status,omitempty"`
	BusinessTypeID   int64  `json:"businessTypeId,omitempty"`
	BusinessTypeName string `json:"businessTypeName,omitempty"`
}

// StaffMember is an employee or manager targeted by per-user notifications.
type StaffMember struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// StoreDirectory resolves enrichment data from the relational store.
type StoreDirectory interface {
	StoreProfile(ctx context.Context, storeID int64) (StoreProfile, error)
	ActiveEmployees(ctx context.Context, storeID int64) ([]StaffMember, error)
	Managers(ctx context.Context, storeID int64) ([]StaffMember, error)
}

// AuditEntry is one audit-log row appended on behalf of a broadcast.
type AuditEntry struct {
	ActorID     string
	StoreID     int64
	Action      string
	Description string
	Details     map[string]any
	OccurredAt  time.Time
}

// AuditWriter appends audit rows.
type AuditWriter interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
}

// ProfileInvalidator is implemented by directories that cache store profiles.
type ProfileInvalidator interface {
	Invalidate(storeID int64)
}
