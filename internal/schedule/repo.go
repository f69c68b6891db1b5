package schedule

import (
	"context"
	"database/sql"
	"errors"

	"campusattend/internal/store"
)

// Repository persists schedule slots in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const slotColumns = `schedule_id, course_id, room_id, day_of_week,
	to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI'),
	repeat_pattern, created_at, updated_at`

func scanSlot(row interface{ Scan(...any) error }) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.CourseID, &s.RoomID, &s.DayOfWeek,
		&s.StartTime, &s.EndTime, &s.RepeatPattern, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// pgTx implements Tx over a database transaction. When the slot targets a
// room, Begin takes a transaction-scoped advisory lock keyed on (room, day)
// so concurrent writers for the same room/day serialize around the
// conflict-scan-then-write sequence.
type pgTx struct {
	tx *sql.Tx
}

// Begin opens a write transaction, locking the room/day when one is assigned.
func (r *Repository) Begin(ctx context.Context, roomID *int64, dayOfWeek string) (Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	if roomID != nil {
		_, err = tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1::text || ':' || $2))`,
			*roomID, dayOfWeek)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
	}
	return &pgTx{tx: tx}, nil
}

func (t *pgTx) Slots(ctx context.Context, roomID int64, dayOfWeek string, excludeID int64) ([]Slot, error) {
	return querySlotsForRoomDay(ctx, t.tx, roomID, dayOfWeek, excludeID)
}

func (t *pgTx) Insert(ctx context.Context, s *Slot) error {
	row := t.tx.QueryRowContext(ctx, `
		INSERT INTO schedule (course_id, room_id, day_of_week, start_time, end_time, repeat_pattern)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING schedule_id, created_at, updated_at
	`, s.CourseID, s.RoomID, s.DayOfWeek, s.StartTime, s.EndTime, s.RepeatPattern)
	return row.Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (t *pgTx) Update(ctx context.Context, s *Slot) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE schedule
		SET course_id = $2, room_id = $3, day_of_week = $4,
		    start_time = $5, end_time = $6, repeat_pattern = $7, updated_at = NOW()
		WHERE schedule_id = $1
	`, s.ID, s.CourseID, s.RoomID, s.DayOfWeek, s.StartTime, s.EndTime, s.RepeatPattern)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) Commit() error   { return t.tx.Commit() }
func (t *pgTx) Rollback() error { return t.tx.Rollback() }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func querySlotsForRoomDay(ctx context.Context, q querier, roomID int64, dayOfWeek string, excludeID int64) ([]Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule WHERE room_id = $1 AND day_of_week = $2`
	args := []any{roomID, dayOfWeek}
	if excludeID != 0 {
		query += ` AND schedule_id != $3`
		args = append(args, excludeID)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// SlotsForRoomDay returns slots sharing a room and weekday, outside any
// transaction. Used by the read-only conflict check.
func (r *Repository) SlotsForRoomDay(ctx context.Context, roomID int64, dayOfWeek string, excludeID int64) ([]Slot, error) {
	return querySlotsForRoomDay(ctx, r.db, roomID, dayOfWeek, excludeID)
}

// Get returns a slot by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Slot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+slotColumns+` FROM schedule WHERE schedule_id = $1`, id)
	return scanSlot(row)
}

// List returns all slots ordered by day then start time.
func (r *Repository) List(ctx context.Context) ([]Slot, error) {
	return r.listWhere(ctx, ``)
}

// ListByCourse returns a course's slots.
func (r *Repository) ListByCourse(ctx context.Context, courseID int64) ([]Slot, error) {
	return r.listWhere(ctx, `WHERE course_id = $1`, courseID)
}

func (r *Repository) listWhere(ctx context.Context, where string, args ...any) ([]Slot, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+slotColumns+` FROM schedule `+where+` ORDER BY day_of_week, start_time`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Delete removes a slot.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedule WHERE schedule_id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CourseExists reports whether a course row exists.
func (r *Repository) CourseExists(ctx context.Context, courseID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM courses WHERE course_id = $1)`, courseID,
	).Scan(&exists)
	return exists, err
}
