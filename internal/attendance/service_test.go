package attendance

import (
	"context"
	"errors"
	"testing"
	"time"

	"campusattend/internal/notify"
	"campusattend/internal/qrtoken"
	"campusattend/internal/store"
)

type tuple struct {
	student, course int64
	date            string
}

// fakeStore is an in-memory Store enforcing the same uniqueness constraint as
// the attendance table.
type fakeStore struct {
	nextID   int64
	records  map[int64]*Record
	byTuple  map[tuple]int64
	students map[int64]bool
	// hidePreCheck simulates a racing insert: Exists lies, the constraint
	// still fires.
	hidePreCheck bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  map[int64]*Record{},
		byTuple:  map[tuple]int64{},
		students: map[int64]bool{42: true, 43: true},
	}
}

func key(studentID, courseID int64, date time.Time) tuple {
	return tuple{studentID, courseID, date.Format("2006-01-02")}
}

func (f *fakeStore) Insert(_ context.Context, rec *Record) error {
	k := key(rec.StudentID, rec.CourseID, rec.SessionDate)
	if _, dup := f.byTuple[k]; dup {
		return ErrDuplicateAttendance
	}
	f.nextID++
	rec.ID = f.nextID
	cp := *rec
	f.records[rec.ID] = &cp
	f.byTuple[k] = rec.ID
	return nil
}

func (f *fakeStore) Exists(_ context.Context, studentID, courseID int64, date time.Time) (bool, error) {
	if f.hidePreCheck {
		return false, nil
	}
	_, ok := f.byTuple[key(studentID, courseID, date)]
	return ok, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (*Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) Amend(_ context.Context, id int64, status *Status, notes, reason *string) (*Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status != nil {
		rec.Status = *status
	}
	if notes != nil {
		rec.Notes = *notes
	}
	if reason != nil {
		rec.Reason = *reason
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeStore) ListByStudent(_ context.Context, studentID int64) ([]Record, error) {
	var out []Record
	for _, r := range f.records {
		if r.StudentID == studentID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListBySchedule(_ context.Context, scheduleID int64) ([]Record, error) {
	var out []Record
	for _, r := range f.records {
		if r.ScheduleID != nil && *r.ScheduleID == scheduleID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) ListByDateRange(_ context.Context, from, to time.Time) ([]Record, error) {
	var out []Record
	for _, r := range f.records {
		if !r.SessionDate.Before(from) && !r.SessionDate.After(to) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) error {
	rec, ok := f.records[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(f.byTuple, key(rec.StudentID, rec.CourseID, rec.SessionDate))
	delete(f.records, id)
	return nil
}

func (f *fakeStore) StudentExists(_ context.Context, id int64) (bool, error) {
	return f.students[id], nil
}

func (f *fakeStore) Statistics(_ context.Context, courseID *int64) (*Statistics, error) {
	stats := &Statistics{StatusCounts: map[Status]int64{}}
	for _, r := range f.records {
		if courseID != nil && r.CourseID != *courseID {
			continue
		}
		stats.StatusCounts[r.Status]++
		stats.TotalCount++
	}
	return stats, nil
}

// fakeValidator accepts a single token string.
type fakeValidator struct {
	accept string
	result qrtoken.Validation
}

func (v *fakeValidator) Validate(_ context.Context, tokenString string) (qrtoken.Validation, error) {
	if tokenString == v.accept {
		return v.result, nil
	}
	return qrtoken.Validation{}, nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *notify.InMemory) {
	t.Helper()
	st := newFakeStore()
	v := &fakeValidator{
		accept: "good-token",
		result: qrtoken.Validation{IsValid: true, ScheduleID: 5, CourseID: 7, TokenID: 11},
	}
	q := notify.NewInMemory(8)
	svc := NewService(st, v, q)
	svc.now = func() time.Time { return time.Date(2025, 5, 12, 9, 30, 0, 0, time.UTC) }
	return svc, st, q
}

func TestRecordViaToken(t *testing.T) {
	svc, _, q := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Record(ctx, RecordRequest{
		QRCode:     "good-token",
		StudentID:  42,
		DeviceInfo: []byte(`{"os":"android"}`),
		Location:   []byte(`{"lat":1,"lng":2}`),
		IPAddress:  "10.0.0.1",
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Status != StatusPresent {
		t.Fatalf("status = %s, want present", rec.Status)
	}
	if rec.CourseID != 7 || rec.ScheduleID == nil || *rec.ScheduleID != 5 || rec.QRID == nil || *rec.QRID != 11 {
		t.Fatalf("attribution = %+v, want course 7, schedule 5, qr 11", rec)
	}
	if rec.SessionDate.Format("2006-01-02") != "2025-05-12" {
		t.Fatalf("session date = %v, want 2025-05-12", rec.SessionDate)
	}
	if rec.DeviceInfo != `{"os":"android"}` {
		t.Fatalf("device info not stored verbatim: %q", rec.DeviceInfo)
	}

	msgs, _ := q.Consume(ctx)
	select {
	case msg := <-msgs:
		if msg.Type != "attendance.recorded" || msg.StudentID != 42 {
			t.Fatalf("event = %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no attendance event published")
	}
}

func TestRecordInvalidToken(t *testing.T) {
	svc, st, _ := newTestService(t)

	_, err := svc.Record(context.Background(), RecordRequest{QRCode: "bogus", StudentID: 42})
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	if len(st.records) != 0 {
		t.Fatal("record persisted despite invalid token")
	}
}

func TestRecordUnknownStudent(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Record(context.Background(), RecordRequest{QRCode: "good-token", StudentID: 999})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecordDuplicate(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	_, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42})
	if !errors.Is(err, ErrDuplicateAttendance) {
		t.Fatalf("second record err = %v, want ErrDuplicateAttendance", err)
	}
}

func TestRecordDuplicateRace(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42}); err != nil {
		t.Fatalf("first record: %v", err)
	}

	// Simulate losing the race: the pre-check misses the committed row, the
	// constraint still rejects and the error is the same typed failure.
	st.hidePreCheck = true
	_, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42})
	if !errors.Is(err, ErrDuplicateAttendance) {
		t.Fatalf("raced insert err = %v, want ErrDuplicateAttendance", err)
	}
}

func TestManualAndTokenPathsShareUniqueness(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42}); err != nil {
		t.Fatalf("qr record: %v", err)
	}

	// Manual entry for the same (student, course, date) must be rejected.
	_, err := svc.CreateManual(ctx, CreateRequest{
		StudentID:   42,
		CourseID:    7,
		Status:      StatusLate,
		SessionDate: time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrDuplicateAttendance) {
		t.Fatalf("manual after qr err = %v, want ErrDuplicateAttendance", err)
	}

	// A different date is a different session.
	rec, err := svc.CreateManual(ctx, CreateRequest{
		StudentID:   42,
		CourseID:    7,
		Status:      StatusExcused,
		SessionDate: time.Date(2025, 5, 13, 0, 0, 0, 0, time.UTC),
		Reason:      "medical",
	})
	if err != nil {
		t.Fatalf("manual next day: %v", err)
	}
	if rec.Status != StatusExcused || rec.QRID != nil {
		t.Fatalf("manual record = %+v, want excused with no qr attribution", rec)
	}
}

func TestCreateManualValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateManual(ctx, CreateRequest{StudentID: 42, CourseID: 7, Status: "noshow", SessionDate: time.Now()})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
	_, err = svc.CreateManual(ctx, CreateRequest{StudentID: 999, CourseID: 7, Status: StatusAbsent, SessionDate: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAmendKeepsIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	late := StatusLate
	notes := "arrived 20 minutes in"
	amended, err := svc.Amend(ctx, rec.ID, &late, &notes, nil)
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if amended.Status != StatusLate || amended.Notes != notes {
		t.Fatalf("amended = %+v", amended)
	}
	if amended.StudentID != rec.StudentID || amended.CourseID != rec.CourseID ||
		!amended.SessionDate.Equal(rec.SessionDate) {
		t.Fatal("amend changed the identifying tuple")
	}

	bad := Status("vanished")
	if _, err := svc.Amend(ctx, rec.ID, &bad, nil, nil); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestStatistics(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Record(ctx, RecordRequest{QRCode: "good-token", StudentID: 42}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.CreateManual(ctx, CreateRequest{
		StudentID: 43, CourseID: 7, Status: StatusAbsent,
		SessionDate: time.Date(2025, 5, 12, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("manual: %v", err)
	}

	stats, err := svc.Statistics(ctx, nil)
	if err != nil {
		t.Fatalf("statistics: %v", err)
	}
	if stats.TotalCount != 2 || stats.StatusCounts[StatusPresent] != 1 || stats.StatusCounts[StatusAbsent] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}
