package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"campusattend/internal/store"
)

// Repository persists attendance records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `attendance_id, student_id, course_id, schedule_id, qr_id,
	status, session_date, scanned_at, COALESCE(location, ''), COALESCE(device_info, ''),
	COALESCE(ip_address, ''), COALESCE(notes, ''), COALESCE(reason, ''),
	created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.StudentID, &rec.CourseID, &rec.ScheduleID, &rec.QRID,
		&rec.Status, &rec.SessionDate, &rec.ScannedAt, &rec.Location, &rec.DeviceInfo,
		&rec.IPAddress, &rec.Notes, &rec.Reason, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Insert writes a new record, translating the (student, course, session_date)
// unique violation into ErrDuplicateAttendance. This is the backstop for two
// scans racing past the pre-check.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, course_id, schedule_id, qr_id, status,
			session_date, scanned_at, location, device_info, ip_address, notes, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		RETURNING attendance_id, created_at, updated_at
	`, rec.StudentID, rec.CourseID, rec.ScheduleID, rec.QRID, rec.Status,
		rec.SessionDate, rec.ScannedAt, rec.Location, rec.DeviceInfo,
		rec.IPAddress, rec.Notes, rec.Reason)
	if err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if store.IsUniqueViolation(err) {
			return ErrDuplicateAttendance
		}
		return err
	}
	return nil
}

// Exists reports whether a record for the tuple already exists.
func (r *Repository) Exists(ctx context.Context, studentID, courseID int64, sessionDate time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM attendance
			WHERE student_id = $1 AND course_id = $2 AND session_date = $3
		)`, studentID, courseID, sessionDate).Scan(&exists)
	return exists, err
}

// Get returns a record by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM attendance WHERE attendance_id = $1`, id)
	return scanRecord(row)
}

// Amend updates status/notes/reason, leaving the identifying tuple alone.
func (r *Repository) Amend(ctx context.Context, id int64, status *Status, notes, reason *string) (*Record, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	if status != nil {
		args = append(args, *status)
		sets = append(sets, "status = $"+strconv.Itoa(len(args)))
	}
	if notes != nil {
		args = append(args, *notes)
		sets = append(sets, "notes = $"+strconv.Itoa(len(args)))
	}
	if reason != nil {
		args = append(args, *reason)
		sets = append(sets, "reason = $"+strconv.Itoa(len(args)))
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE attendance SET `+strings.Join(sets, ", ")+
			` WHERE attendance_id = $1 RETURNING `+recordColumns, args...)
	return scanRecord(row)
}

// ListByStudent returns a student's records, newest session first.
func (r *Repository) ListByStudent(ctx context.Context, studentID int64) ([]Record, error) {
	return r.list(ctx, `WHERE student_id = $1 ORDER BY session_date DESC`, studentID)
}

// ListBySchedule returns records for a schedule slot.
func (r *Repository) ListBySchedule(ctx context.Context, scheduleID int64) ([]Record, error) {
	return r.list(ctx, `WHERE schedule_id = $1 ORDER BY session_date DESC, student_id`, scheduleID)
}

// ListByDateRange returns records in the inclusive session-date range.
func (r *Repository) ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	return r.list(ctx, `WHERE session_date BETWEEN $1 AND $2 ORDER BY session_date`, from, to)
}

func (r *Repository) list(ctx context.Context, tail string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM attendance `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes a record.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE attendance_id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// StudentExists reports whether a student row exists.
func (r *Repository) StudentExists(ctx context.Context, studentID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM students WHERE student_id = $1)`, studentID,
	).Scan(&exists)
	return exists, err
}

// Statistics aggregates per-status counts, optionally scoped to a course.
func (r *Repository) Statistics(ctx context.Context, courseID *int64) (*Statistics, error) {
	query := `SELECT status, COUNT(*) FROM attendance`
	args := []any{}
	if courseID != nil {
		query += ` WHERE course_id = $1`
		args = append(args, *courseID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &Statistics{StatusCounts: map[Status]int64{}}
	for rows.Next() {
		var status Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.StatusCounts[status] = count
		stats.TotalCount += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalCount > 0 {
		total := float64(stats.TotalCount)
		stats.PresentRate = float64(stats.StatusCounts[StatusPresent]) / total * 100
		stats.AbsentRate = float64(stats.StatusCounts[StatusAbsent]) / total * 100
		stats.LateRate = float64(stats.StatusCounts[StatusLate]) / total * 100
		stats.ExcusedRate = float64(stats.StatusCounts[StatusExcused]) / total * 100
	}
	return stats, nil
}
