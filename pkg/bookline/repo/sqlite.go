package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteRepository is a Repository backed by SQLite. It is suitable for
// single-process production use.
type SQLiteRepository struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteRepository opens (and if necessary initializes) a booking database
// at path. Use ":memory:" for testing.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 60,
			price REAL NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS availability_slots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_id INTEGER NOT NULL,
			provider_name TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'available',
			service_id INTEGER
		);

		CREATE INDEX IF NOT EXISTS idx_slots_date_status
		ON availability_slots(date, status);

		CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type_id INTEGER NOT NULL,
			seeker_id INTEGER NOT NULL,
			provider_id INTEGER NOT NULL,
			slot_id INTEGER NOT NULL,
			scheduled_time TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// CreateAppointment implements Repository.
func (r *SQLiteRepository) CreateAppointment(ctx context.Context, a Appointment) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrRepoClosed
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO appointments (
			type_id, seeker_id, provider_id, slot_id, scheduled_time, status, notes, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.TypeID, a.SeekerID, a.ProviderID, a.SlotID, a.ScheduledTime, string(a.Status), a.Notes, now, now)
	if err != nil {
		return 0, fmt.Errorf("create appointment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("appointment id: %w", err)
	}
	return id, nil
}

// GetAppointment implements Repository.
func (r *SQLiteRepository) GetAppointment(ctx context.Context, id int64) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepoClosed
	}

	var a Appointment
	var status, createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, type_id, seeker_id, provider_id, slot_id, scheduled_time, status, notes, created_at, updated_at
		FROM appointments WHERE id = ?
	`, id).Scan(&a.ID, &a.TypeID, &a.SeekerID, &a.ProviderID, &a.SlotID, &a.ScheduledTime, &status, &a.Notes, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	a.Status = AppointmentStatus(status)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &a, nil
}

// UpdateAppointmentStatus implements Repository.
func (r *SQLiteRepository) UpdateAppointmentStatus(ctx context.Context, id int64, status AppointmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRepoClosed
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return false, fmt.Errorf("update appointment status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update appointment status: %w", err)
	}
	return n > 0, nil
}

// DeleteAppointment implements Repository.
func (r *SQLiteRepository) DeleteAppointment(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRepoClosed
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}
	return n > 0, nil
}

// FindSlots implements Repository.
func (r *SQLiteRepository) FindSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepoClosed
	}

	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT s.id, s.provider_id, s.provider_name, s.date, s.start_time, s.end_time, s.status,
		       COALESCE(s.service_id, 0), COALESCE(sv.name, '')
		FROM availability_slots s
		LEFT JOIN services sv ON sv.id = s.service_id
		WHERE s.date = ?
		AND s.status = ?
		AND (
			(s.start_time >= ? AND s.start_time < ?) OR
			(s.end_time > ? AND s.end_time <= ?) OR
			(s.start_time <= ? AND s.end_time >= ?)
		)
	`
	args := []any{
		q.Date, string(q.Status),
		q.StartTime, q.EndTime,
		q.StartTime, q.EndTime,
		q.StartTime, q.EndTime,
	}
	if q.ServiceName != "" {
		query += ` AND LOWER(sv.name) LIKE ?`
		args = append(args, "%"+strings.ToLower(q.ServiceName)+"%")
	}
	query += ` ORDER BY s.start_time, s.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find slots: %w", err)
	}
	defer rows.Close()

	return scanSlots(rows)
}

// SlotsByProvider implements Repository.
func (r *SQLiteRepository) SlotsByProvider(ctx context.Context, providerID int64, fromDate, toDate string) ([]Slot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepoClosed
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.provider_id, s.provider_name, s.date, s.start_time, s.end_time, s.status,
		       COALESCE(s.service_id, 0), COALESCE(sv.name, '')
		FROM availability_slots s
		LEFT JOIN services sv ON sv.id = s.service_id
		WHERE s.provider_id = ?
		AND s.date >= ? AND s.date <= ?
		AND s.status = 'available'
		ORDER BY s.date, s.start_time
	`, providerID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("slots by provider: %w", err)
	}
	defer rows.Close()

	return scanSlots(rows)
}

func scanSlots(rows *sql.Rows) ([]Slot, error) {
	var slots []Slot
	for rows.Next() {
		var s Slot
		var status string
		if err := rows.Scan(&s.ID, &s.ProviderID, &s.ProviderName, &s.Date, &s.StartTime, &s.EndTime,
			&status, &s.ServiceID, &s.ServiceName); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		s.Status = SlotStatus(status)
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slots: %w", err)
	}
	return slots, nil
}

// UpdateSlotStatus implements Repository.
func (r *SQLiteRepository) UpdateSlotStatus(ctx context.Context, slotID int64, status SlotStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRepoClosed
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE availability_slots SET status = ? WHERE id = ?
	`, string(status), slotID)
	if err != nil {
		return false, fmt.Errorf("update slot status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update slot status: %w", err)
	}
	return n > 0, nil
}

// ClaimSlot implements Repository. The conditional WHERE clause makes the
// claim atomic at the storage layer: two concurrent claims of the same slot
// cannot both see rowsAffected > 0.
func (r *SQLiteRepository) ClaimSlot(ctx context.Context, slotID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return false, ErrRepoClosed
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE availability_slots SET status = 'booked'
		WHERE id = ? AND status = 'available'
	`, slotID)
	if err != nil {
		return false, fmt.Errorf("claim slot: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim slot: %w", err)
	}
	return n > 0, nil
}

// CreateSlot implements Repository.
func (r *SQLiteRepository) CreateSlot(ctx context.Context, s Slot) (Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Slot{}, ErrRepoClosed
	}

	if s.Status == "" {
		s.Status = SlotAvailable
	}

	var serviceID any
	if s.ServiceID != 0 {
		serviceID = s.ServiceID
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO availability_slots (provider_id, provider_name, date, start_time, end_time, status, service_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.ProviderID, s.ProviderName, s.Date, s.StartTime, s.EndTime, string(s.Status), serviceID)
	if err != nil {
		return Slot{}, fmt.Errorf("create slot: %w", err)
	}

	s.ID, err = res.LastInsertId()
	if err != nil {
		return Slot{}, fmt.Errorf("slot id: %w", err)
	}
	return s, nil
}

// CreateService implements Repository.
func (r *SQLiteRepository) CreateService(ctx context.Context, s Service) (Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Service{}, ErrRepoClosed
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO services (provider_id, name, duration_minutes, price)
		VALUES (?, ?, ?, ?)
	`, s.ProviderID, s.Name, s.DurationMinutes, s.Price)
	if err != nil {
		return Service{}, fmt.Errorf("create service: %w", err)
	}

	s.ID, err = res.LastInsertId()
	if err != nil {
		return Service{}, fmt.Errorf("service id: %w", err)
	}
	return s, nil
}

// ServiceNames implements Repository.
func (r *SQLiteRepository) ServiceNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRepoClosed
	}

	rows, err := r.db.QueryContext(ctx, `SELECT name FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("service names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan service name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service names: %w", err)
	}
	return names, nil
}

// Close implements Repository.
func (r *SQLiteRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.db.Close()
}
