package qrtoken

import (
	"context"
	"database/sql"
	"errors"

	"campusattend/internal/store"
)

// Repository persists tokens in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const tokenColumns = `qr_id, course_id, schedule_id, qr_code, COALESCE(qr_image_url, ''),
	session_date, expires_at, COALESCE(duration_minutes, 0), is_active, created_by,
	generated_at, created_at, updated_at`

func scanToken(row interface{ Scan(...any) error }) (*Token, error) {
	var t Token
	err := row.Scan(&t.ID, &t.CourseID, &t.ScheduleID, &t.Ciphertext, &t.ImageURL,
		&t.SessionDate, &t.ExpiresAt, &t.DurationMin, &t.IsActive, &t.CreatedBy,
		&t.GeneratedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// Insert writes a new token row and fills in the generated id and
// timestamps.
func (r *Repository) Insert(ctx context.Context, t *Token) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO qr_codes (course_id, schedule_id, qr_code, qr_image_url,
			session_date, expires_at, duration_minutes, created_by, generated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING qr_id, is_active, created_at, updated_at
	`, t.CourseID, t.ScheduleID, t.Ciphertext, t.ImageURL,
		t.SessionDate, t.ExpiresAt, t.DurationMin, t.CreatedBy, t.GeneratedAt)
	return row.Scan(&t.ID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID returns a single token row.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM qr_codes WHERE qr_id = $1`, id)
	return scanToken(row)
}

// ActiveByCiphertext looks up a token by its exact ciphertext, requiring the
// active flag. This is the validator's content-addressed lookup.
func (r *Repository) ActiveByCiphertext(ctx context.Context, ciphertext string) (*Token, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM qr_codes WHERE qr_code = $1 AND is_active = TRUE`,
		ciphertext)
	return scanToken(row)
}

// Deactivate flips the active flag off. Already-inactive rows are left
// untouched; a missing row is reported as not found.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE qr_codes SET is_active = FALSE, updated_at = NOW() WHERE qr_id = $1
	`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns all token rows, newest first.
func (r *Repository) List(ctx context.Context) ([]Token, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenColumns+` FROM qr_codes ORDER BY generated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Delete removes a token row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM qr_codes WHERE qr_id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CourseForSchedule resolves the owning course of a schedule slot.
func (r *Repository) CourseForSchedule(ctx context.Context, scheduleID int64) (int64, error) {
	var courseID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT course_id FROM schedule WHERE schedule_id = $1`, scheduleID,
	).Scan(&courseID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return courseID, err
}
