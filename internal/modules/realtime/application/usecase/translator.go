package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// ExportLinkTTL is how long an export download reference stays valid.
const ExportLinkTTL = 24 * time.Hour

// Store update types carried in store-update payloads.
const (
	StoreUpdateSalesData    = "sales-data"
	StoreUpdateBatchSales   = domain.EventBatchSalesUpdate
	StoreUpdateStatusChange = "status-changed"
)

// Notification kinds.
const (
	NotificationWelcome     = "welcome"
	NotificationStaffLogin  = "staff-login"
	NotificationStoreStatus = "store-status"
	NotificationExportReady = "export-ready"
)

// Audit actions.
const (
	AuditSalesDataCreated = "sales_data_created"
	AuditSalesDataUpdated = "sales_data_updated"
	AuditBatchSales       = "sales_data_batch_updated"
	AuditStoreStatus      = "store_status_changed"
)

// EventTranslator turns committed domain events into broadcasts plus
// best-effort side effects. Nothing it does fails the caller.
type EventTranslator struct {
	broadcast *BroadcastUseCase
	directory port.StoreDirectory
	audit     port.AuditWriter
	effects   *SideEffects
	now       func() time.Time
}

// NewEventTranslator wires the translator. directory and audit may be nil,
// in which case enrichment and audit writes are skipped.
func NewEventTranslator(broadcast *BroadcastUseCase, directory port.StoreDirectory, audit port.AuditWriter, effects *SideEffects) *EventTranslator {
	if effects == nil {
		effects = NewSideEffects(0)
	}
	return &EventTranslator{
		broadcast: broadcast,
		directory: directory,
		audit:     audit,
		effects:   effects,
		now:       time.Now,
	}
}

// Translate decodes evt and routes it. Only decoding errors are returned;
// translation failures are logged.
func (t *EventTranslator) Translate(ctx context.Context, evt domain.Event) error {
	decoded, err := evt.Decode()
	if err != nil {
		slog.WarnContext(ctx, "domain event rejected", slog.String("type", string(evt.Type)), slog.Any("error", err))
		return err
	}
	bestEffort(ctx, "translate "+string(evt.Type), func(ctx context.Context) error {
		switch e := decoded.(type) {
		case *domain.SalesDataChanged:
			t.SalesDataChanged(ctx, *e)
		case *domain.BatchSalesUpdated:
			t.BatchSalesUpdated(ctx, *e)
		case *domain.StoreStatusChanged:
			t.StoreStatusChanged(ctx, *e)
		case *domain.UserLoggedIn:
			t.UserLoggedIn(ctx, *e)
		case *domain.ExportCompleted:
			t.ExportCompleted(ctx, *e)
		case *domain.MaintenanceScheduled:
			t.MaintenanceScheduled(ctx, *e)
		case *domain.SystemAnnouncement:
			t.SystemAnnouncement(ctx, *e)
		default:
			return fmt.Errorf("%w: %T", domain.ErrUnsupportedEvent, decoded)
		}
		return nil
	})
	return nil
}

// SalesDataChanged publishes the record to sales-data-{store}, a summary to
// store-{store}-updates (and business-type-{id} when the store has one) and
// appends an audit row.
func (t *EventTranslator) SalesDataChanged(ctx context.Context, e domain.SalesDataChanged) {
	profile := t.storeProfile(ctx, e.StoreID)
	payload := SalesDataPayload{
		StoreID:       e.StoreID,
		StoreName:     profile.Name,
		Year:          e.Year,
		Month:         e.Month,
		Date:          e.Date,
		Period:        e.Period(),
		Data:          e.Data,
		UpdatedBy:     e.ActorID,
		UpdatedByName: e.ActorName,
	}
	t.broadcast.BroadcastSalesDataUpdate(ctx, payload, e.Created)

	action := AuditSalesDataUpdated
	verb := "updated"
	if e.Created {
		action = AuditSalesDataCreated
		verb = "created"
	}
	summary := StoreUpdatePayload{
		StoreID:    e.StoreID,
		StoreName:  profile.Name,
		UpdateType: StoreUpdateSalesData,
		Data: map[string]any{
			"period":    payload.Period,
			"action":    verb,
			"updatedBy": e.ActorID,
		},
	}
	t.broadcast.broadcastStoreUpdate(ctx, summary)
	if profile.BusinessTypeID > 0 {
		t.broadcast.broadcastBusinessTypeUpdate(ctx, profile.BusinessTypeID, summary)
	}

	t.appendAudit(ctx, port.AuditEntry{
		ActorID:     e.ActorID,
		StoreID:     e.StoreID,
		Action:      action,
		Description: fmt.Sprintf("Sales data for %s %s by %s", payload.Period, verb, actorLabel(e.ActorName, e.ActorID)),
		Details:     map[string]any{"year": e.Year, "month": e.Month, "date": e.Date},
	})
}

// BatchRecordStatus is one row listed in a batch store update.
type BatchRecordStatus struct {
	Year   int                `json:"year"`
	Month  int                `json:"month"`
	Date   string             `json:"date,omitempty"`
	Status domain.BatchStatus `json:"status"`
}

// BatchSalesUpdated publishes one store update per store with successful
// records and, when anything failed, one global announcement with the count.
func (t *EventTranslator) BatchSalesUpdated(ctx context.Context, e domain.BatchSalesUpdated) {
	byStore := make(map[int64][]BatchRecordStatus)
	failed := 0
	for _, r := range e.Results {
		if r.Status != domain.BatchStatusSuccess {
			failed++
			continue
		}
		if r.StoreID <= 0 {
			slog.WarnContext(ctx, "batch record without store counted as failed", slog.Int("year", r.Year), slog.Int("month", r.Month))
			failed++
			continue
		}
		byStore[r.StoreID] = append(byStore[r.StoreID], BatchRecordStatus{Year: r.Year, Month: r.Month, Date: r.Date, Status: r.Status})
	}

	storeIDs := make([]int64, 0, len(byStore))
	for id := range byStore {
		storeIDs = append(storeIDs, id)
	}
	sort.Slice(storeIDs, func(i, j int) bool { return storeIDs[i] < storeIDs[j] })

	for _, id := range storeIDs {
		records := byStore[id]
		profile := t.storeProfile(ctx, id)
		t.broadcast.broadcastStoreUpdate(ctx, StoreUpdatePayload{
			StoreID:    id,
			StoreName:  profile.Name,
			UpdateType: StoreUpdateBatchSales,
			Data: map[string]any{
				"records":      records,
				"successCount": len(records),
				"updatedBy":    e.ActorID,
			},
		})
		t.appendAudit(ctx, port.AuditEntry{
			ActorID:     e.ActorID,
			StoreID:     id,
			Action:      AuditBatchSales,
			Description: fmt.Sprintf("Batch import updated %d sales records", len(records)),
			Details:     map[string]any{"records": len(records)},
		})
	}

	if failed > 0 {
		t.broadcast.BroadcastSystemAnnouncement(ctx, Announcement{
			Title:    "Batch sales update finished with errors",
			Message:  fmt.Sprintf("%d of %d records failed to import", failed, len(e.Results)),
			Severity: domain.SeverityWarning,
			Data: map[string]any{
				"failedCount": failed,
				"totalCount":  len(e.Results),
				"actorId":     e.ActorID,
			},
		})
	}
	slog.InfoContext(ctx, "batch sales translated", slog.Int("stores", len(storeIDs)), slog.Int("failed", failed), slog.Int("total", len(e.Results)))
}

// StoreStatusChanged publishes to store-{store}-updates and notifies every
// active employee of the store.
func (t *EventTranslator) StoreStatusChanged(ctx context.Context, e domain.StoreStatusChanged) {
	if cache, ok := t.directory.(port.ProfileInvalidator); ok {
		cache.Invalidate(e.StoreID)
	}
	profile := t.storeProfile(ctx, e.StoreID)
	t.broadcast.broadcastStoreUpdate(ctx, StoreUpdatePayload{
		StoreID:    e.StoreID,
		StoreName:  profile.Name,
		UpdateType: StoreUpdateStatusChange,
		Data: map[string]any{
			"status":         e.Status,
			"previousStatus": e.PreviousStatus,
			"reason":         e.Reason,
			"changedBy":      e.ActorID,
		},
	})

	storeLabel := profile.Name
	if storeLabel == "" {
		storeLabel = fmt.Sprintf("Store %d", e.StoreID)
	}
	for _, member := range t.staff(ctx, "active employees", e.StoreID, t.activeEmployees) {
		t.broadcast.BroadcastUserNotification(ctx, member.UserID, Notification{
			Kind:    NotificationStoreStatus,
			Title:   "Store status changed",
			Message: fmt.Sprintf("%s is now %s", storeLabel, e.Status),
			Data:    map[string]any{"storeId": e.StoreID, "status": e.Status},
		})
	}

	t.appendAudit(ctx, port.AuditEntry{
		ActorID:     e.ActorID,
		StoreID:     e.StoreID,
		Action:      AuditStoreStatus,
		Description: fmt.Sprintf("Store status changed to %s", e.Status),
		Details:     map[string]any{"status": e.Status, "previousStatus": e.PreviousStatus},
	})
}

// UserLoggedIn welcomes the user and, on request, tells the store's managers.
func (t *EventTranslator) UserLoggedIn(ctx context.Context, e domain.UserLoggedIn) {
	name := strings.TrimSpace(e.UserName)
	message := "Welcome back"
	if name != "" {
		message = "Welcome back, " + name
	}
	t.broadcast.BroadcastUserNotification(ctx, e.UserID, Notification{
		Kind:    NotificationWelcome,
		Title:   "Signed in",
		Message: message,
	})

	if !e.NotifyManagers || e.StoreID <= 0 {
		return
	}
	for _, manager := range t.staff(ctx, "managers", e.StoreID, t.managers) {
		if manager.UserID == e.UserID {
			continue
		}
		t.broadcast.BroadcastUserNotification(ctx, manager.UserID, Notification{
			Kind:    NotificationStaffLogin,
			Title:   "Staff signed in",
			Message: fmt.Sprintf("%s signed in", actorLabel(name, e.UserID)),
			Data:    map[string]any{"userId": e.UserID, "storeId": e.StoreID},
		})
	}
}

// ExportCompleted sends the download reference to its owner with an expiry
// ExportLinkTTL after publish time.
func (t *EventTranslator) ExportCompleted(ctx context.Context, e domain.ExportCompleted) {
	expiresAt := t.now().UTC().Add(ExportLinkTTL)
	t.broadcast.BroadcastUserNotification(ctx, e.UserID, Notification{
		Kind:    NotificationExportReady,
		Title:   "Export ready",
		Message: fmt.Sprintf("Your %s export is ready to download", strings.TrimSpace(e.ExportType)),
		Data: map[string]any{
			"exportType":  e.ExportType,
			"fileName":    e.FileName,
			"downloadUrl": e.DownloadURL,
			"recordCount": e.RecordCount,
		},
		ExpiresAt: &expiresAt,
	})
}

func (t *EventTranslator) MaintenanceScheduled(ctx context.Context, e domain.MaintenanceScheduled) {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = "Scheduled maintenance"
	}
	message := strings.TrimSpace(e.Message)
	if message == "" {
		message = fmt.Sprintf("Maintenance from %s to %s", e.StartsAt.UTC().Format(time.RFC3339), e.EndsAt.UTC().Format(time.RFC3339))
	}
	t.broadcast.BroadcastSystemAnnouncement(ctx, Announcement{
		Title:            title,
		Message:          message,
		Severity:         domain.SeverityWarning,
		Window:           &MaintenanceWindow{StartsAt: e.StartsAt.UTC(), EndsAt: e.EndsAt.UTC()},
		AffectedServices: e.AffectedServices,
	})
}

func (t *EventTranslator) SystemAnnouncement(ctx context.Context, e domain.SystemAnnouncement) {
	t.broadcast.BroadcastSystemAnnouncement(ctx, Announcement{
		Title:    e.Title,
		Message:  e.Message,
		Severity: e.Severity,
	})
}

func (t *EventTranslator) storeProfile(ctx context.Context, storeID int64) port.StoreProfile {
	profile := port.StoreProfile{ID: storeID}
	if t.directory == nil {
		return profile
	}
	bestEffort(ctx, "store profile enrichment", func(ctx context.Context) error {
		loaded, err := t.directory.StoreProfile(ctx, storeID)
		if err != nil {
			if errors.Is(err, port.ErrStoreNotFound) {
				slog.DebugContext(ctx, "store profile missing", slog.Int64("storeId", storeID))
				return nil
			}
			return fmt.Errorf("store %d: %w", storeID, err)
		}
		profile = loaded
		return nil
	})
	return profile
}

func (t *EventTranslator) activeEmployees(ctx context.Context, storeID int64) ([]port.StaffMember, error) {
	return t.directory.ActiveEmployees(ctx, storeID)
}

func (t *EventTranslator) managers(ctx context.Context, storeID int64) ([]port.StaffMember, error) {
	return t.directory.Managers(ctx, storeID)
}

func (t *EventTranslator) staff(ctx context.Context, what string, storeID int64, load func(context.Context, int64) ([]port.StaffMember, error)) []port.StaffMember {
	if t.directory == nil {
		return nil
	}
	var members []port.StaffMember
	bestEffort(ctx, "lookup "+what, func(ctx context.Context) error {
		loaded, err := load(ctx, storeID)
		if err != nil {
			return fmt.Errorf("store %d: %w", storeID, err)
		}
		members = loaded
		return nil
	})
	return members
}

func (t *EventTranslator) appendAudit(ctx context.Context, entry port.AuditEntry) {
	if t.audit == nil {
		return
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = t.now().UTC()
	}
	t.effects.Go(ctx, "audit "+entry.Action, func(ctx context.Context) error {
		return t.audit.AppendAudit(ctx, entry)
	})
}

func actorLabel(name, id string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return "system"
}
