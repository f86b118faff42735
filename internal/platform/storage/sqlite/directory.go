package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

const timeFormat = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeFormat, s)
	return t
}

func (d *DB) StoreProfile(ctx context.Context, storeID int64) (port.StoreProfile, error) {
	var (
		p        port.StoreProfile
		typeID   sql.NullInt64
		typeName sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, s.status, s.business_type_id, bt.name
		FROM stores s
		LEFT JOIN business_types bt ON bt.id = s.business_type_id
		WHERE s.id = ?`, storeID,
	).Scan(&p.ID, &p.Name, &p.Status, &typeID, &typeName)
	if errors.Is(err, sql.ErrNoRows) {
		return port.StoreProfile{}, fmt.Errorf("%w: %d", port.ErrStoreNotFound, storeID)
	}
	if err != nil {
		return port.StoreProfile{}, err
	}
	p.BusinessTypeID = typeID.Int64
	p.BusinessTypeName = typeName.String
	return p, nil
}

func (d *DB) ActiveEmployees(ctx context.Context, storeID int64) ([]port.StaffMember, error) {
	return d.staff(ctx, `
		SELECT user_id, full_name, role FROM employees
		WHERE store_id = ? AND is_active = 1
		ORDER BY full_name, user_id`, storeID)
}

// Managers lists active staff ranked admin or above at the store.
func (d *DB) Managers(ctx context.Context, storeID int64) ([]port.StaffMember, error) {
	return d.staff(ctx, `
		SELECT user_id, full_name, role FROM employees
		WHERE store_id = ? AND is_active = 1 AND role IN (?, ?)
		ORDER BY full_name, user_id`, storeID, string(domain.RoleAdmin), string(domain.RoleSuperAdmin))
}

func (d *DB) staff(ctx context.Context, query string, args ...any) ([]port.StaffMember, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.StaffMember
	for rows.Next() {
		var m port.StaffMember
		if err := rows.Scan(&m.UserID, &m.Name, &m.Role); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// UpsertBusinessType writes a business type row.
func (d *DB) UpsertBusinessType(ctx context.Context, id int64, name string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO business_types (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, strings.TrimSpace(name),
	)
	return err
}

// UpsertStore writes a store row. A zero BusinessTypeID stores NULL.
func (d *DB) UpsertStore(ctx context.Context, p port.StoreProfile) error {
	status := strings.TrimSpace(p.Status)
	if status == "" {
		status = "active"
	}
	var typeID any
	if p.BusinessTypeID > 0 {
		typeID = p.BusinessTypeID
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, status, business_type_id, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			business_type_id = excluded.business_type_id,
			updated_at = excluded.updated_at`,
		p.ID, strings.TrimSpace(p.Name), status, typeID, formatTime(time.Now()),
	)
	return err
}

// UpsertEmployee writes a staff row. Role aliases are normalized.
func (d *DB) UpsertEmployee(ctx context.Context, storeID int64, m port.StaffMember, active bool) error {
	if strings.TrimSpace(m.UserID) == "" {
		return errors.New("employee user id required")
	}
	isActive := 0
	if active {
		isActive = 1
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO employees (user_id, full_name, role, store_id, is_active, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			full_name = excluded.full_name,
			role = excluded.role,
			store_id = excluded.store_id,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		m.UserID, strings.TrimSpace(m.Name), string(domain.ParseRole(m.Role)), storeID, isActive, formatTime(time.Now()),
	)
	return err
}
