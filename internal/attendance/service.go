// Package attendance converts validated QR scans and staff entries into
// durable attendance records. At most one record may exist per
// (student, course, session date); the database constraint is the
// authoritative guard, the service's pre-check only improves the error in the
// non-racing case.
package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"campusattend/internal/notify"
	"campusattend/internal/qrtoken"
	"campusattend/internal/store"
)

// Sentinel errors surfaced to handlers as client failures.
var (
	// ErrInvalidToken covers every token rejection: decryption failure,
	// expiry, tampering, unknown or deactivated token. One error for all of
	// them, so callers cannot probe which check failed.
	ErrInvalidToken = errors.New("invalid or expired QR code")
	// ErrDuplicateAttendance is returned whether the duplicate is caught by
	// the pre-check or by the unique constraint.
	ErrDuplicateAttendance = errors.New("attendance already recorded for this student, course and date")
	// ErrInvalidStatus rejects statuses outside the attendance_status enum.
	ErrInvalidStatus = errors.New("invalid attendance status")
)

// Status enumerates attendance outcomes.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	}
	return false
}

// Record mirrors a row of the attendance table. ScheduleID and QRID are nil
// for manual entries.
type Record struct {
	ID          int64      `json:"attendance_id"`
	StudentID   int64      `json:"student_id"`
	CourseID    int64      `json:"course_id"`
	ScheduleID  *int64     `json:"schedule_id,omitempty"`
	QRID        *int64     `json:"qr_id,omitempty"`
	Status      Status     `json:"status"`
	SessionDate time.Time  `json:"session_date"`
	ScannedAt   *time.Time `json:"scanned_at,omitempty"`
	Location    string     `json:"location,omitempty"`
	DeviceInfo  string     `json:"device_info,omitempty"`
	IPAddress   string     `json:"ip_address,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validator is the token check the QR path delegates to.
type Validator interface {
	Validate(ctx context.Context, tokenString string) (qrtoken.Validation, error)
}

// Store is the persistence surface the service needs. Insert must return
// ErrDuplicateAttendance when the (student, course, session_date) constraint
// fires.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Exists(ctx context.Context, studentID, courseID int64, sessionDate time.Time) (bool, error)
	Get(ctx context.Context, id int64) (*Record, error)
	Amend(ctx context.Context, id int64, status *Status, notes, reason *string) (*Record, error)
	ListByStudent(ctx context.Context, studentID int64) ([]Record, error)
	ListBySchedule(ctx context.Context, scheduleID int64) ([]Record, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error)
	Delete(ctx context.Context, id int64) error
	StudentExists(ctx context.Context, studentID int64) (bool, error)
	Statistics(ctx context.Context, courseID *int64) (*Statistics, error)
}

// Service records attendance via QR scans and the manual staff path.
type Service struct {
	store     Store
	validator Validator
	queue     notify.Queue
	now       func() time.Time
}

// NewService wires the recorder. queue may be nil when event publishing is
// disabled.
func NewService(st Store, v Validator, q notify.Queue) *Service {
	return &Service{store: st, validator: v, queue: q, now: time.Now}
}

// RecordRequest carries a QR scan submission. DeviceInfo and Location are
// attributive blobs, stored verbatim and never interpreted.
type RecordRequest struct {
	QRCode     string
	StudentID  int64
	DeviceInfo json.RawMessage
	Location   json.RawMessage
	IPAddress  string
}

// Record validates the scanned token and persists a present record for
// today. Duplicate submissions fail with ErrDuplicateAttendance whether they
// lose to the pre-check or to the unique constraint.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*Record, error) {
	v, err := s.validator.Validate(ctx, req.QRCode)
	if err != nil {
		return nil, err
	}
	if !v.IsValid {
		return nil, ErrInvalidToken
	}

	ok, err := s.store.StudentExists(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}

	now := s.now().UTC()
	sessionDate := now.Truncate(24 * time.Hour)
	exists, err := s.store.Exists(ctx, req.StudentID, v.CourseID, sessionDate)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateAttendance
	}

	rec := &Record{
		StudentID:   req.StudentID,
		CourseID:    v.CourseID,
		ScheduleID:  &v.ScheduleID,
		QRID:        &v.TokenID,
		Status:      StatusPresent,
		SessionDate: sessionDate,
		ScannedAt:   &now,
		Location:    string(req.Location),
		DeviceInfo:  string(req.DeviceInfo),
		IPAddress:   req.IPAddress,
		Notes:       "Recorded via QR code",
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// CreateRequest carries a manual staff entry.
type CreateRequest struct {
	StudentID   int64
	CourseID    int64
	Status      Status
	SessionDate time.Time
	Notes       string
	Reason      string
}

// CreateManual records attendance without a token. Status and session date
// are explicit; the uniqueness guarantee is the same as the QR path.
func (s *Service) CreateManual(ctx context.Context, req CreateRequest) (*Record, error) {
	if !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	ok, err := s.store.StudentExists(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}

	sessionDate := req.SessionDate.UTC().Truncate(24 * time.Hour)
	exists, err := s.store.Exists(ctx, req.StudentID, req.CourseID, sessionDate)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateAttendance
	}

	rec := &Record{
		StudentID:   req.StudentID,
		CourseID:    req.CourseID,
		Status:      req.Status,
		SessionDate: sessionDate,
		Notes:       req.Notes,
		Reason:      req.Reason,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return rec, nil
}

// Amend updates the status, notes or reason of an existing record. The
// identifying (student, course, session date) tuple never changes.
func (s *Service) Amend(ctx context.Context, id int64, status *Status, notes, reason *string) (*Record, error) {
	if status != nil && !status.Valid() {
		return nil, ErrInvalidStatus
	}
	return s.store.Amend(ctx, id, status, notes, reason)
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id int64) (*Record, error) {
	return s.store.Get(ctx, id)
}

// ListByStudent returns a student's records, newest session first.
func (s *Service) ListByStudent(ctx context.Context, studentID int64) ([]Record, error) {
	return s.store.ListByStudent(ctx, studentID)
}

// ListBySchedule returns the records tied to a schedule slot.
func (s *Service) ListBySchedule(ctx context.Context, scheduleID int64) ([]Record, error) {
	return s.store.ListBySchedule(ctx, scheduleID)
}

// ListByDateRange returns records whose session date falls in [from, to].
func (s *Service) ListByDateRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	return s.store.ListByDateRange(ctx, from, to)
}

// Delete removes a record.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Statistics aggregates per-status counts, optionally scoped to a course.
func (s *Service) Statistics(ctx context.Context, courseID *int64) (*Statistics, error) {
	return s.store.Statistics(ctx, courseID)
}

// publish emits an attendance.recorded event. Best-effort: a queue failure is
// logged and never fails the request that already committed.
func (s *Service) publish(ctx context.Context, rec *Record) {
	if s.queue == nil {
		return
	}
	err := s.queue.Publish(ctx, notify.Message{
		Type:         "attendance.recorded",
		AttendanceID: rec.ID,
		StudentID:    rec.StudentID,
		CourseID:     rec.CourseID,
		Status:       string(rec.Status),
		SessionDate:  rec.SessionDate.Format("2006-01-02"),
		RecordedAt:   s.now().UTC(),
	})
	if err != nil {
		log.Printf("attendance event publish failed: %v", err)
	}
}

// Statistics summarizes attendance outcomes.
type Statistics struct {
	TotalCount   int64            `json:"totalCount"`
	StatusCounts map[Status]int64 `json:"statusCounts"`
	PresentRate  float64          `json:"presentRate"`
	AbsentRate   float64          `json:"absentRate"`
	LateRate     float64          `json:"lateRate"`
	ExcusedRate  float64          `json:"excusedRate"`
}
