package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"campusattend/internal/attendance"
	"campusattend/internal/auth"
	"campusattend/internal/config"
	"campusattend/internal/notify"
	"campusattend/internal/qrtoken"
	"campusattend/internal/schedule"
	"campusattend/internal/store"
)

// ---- in-memory stores ----

type memTokens struct {
	nextID    int64
	tokens    map[int64]*qrtoken.Token
	schedules map[int64]int64
}

func (m *memTokens) Insert(_ context.Context, t *qrtoken.Token) error {
	m.nextID++
	t.ID = m.nextID
	cp := *t
	m.tokens[t.ID] = &cp
	return nil
}

func (m *memTokens) GetByID(_ context.Context, id int64) (*qrtoken.Token, error) {
	t, ok := m.tokens[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTokens) ActiveByCiphertext(_ context.Context, ct string) (*qrtoken.Token, error) {
	for _, t := range m.tokens {
		if t.Ciphertext == ct && t.IsActive {
			cp := *t
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memTokens) Deactivate(_ context.Context, id int64) error {
	t, ok := m.tokens[id]
	if !ok {
		return store.ErrNotFound
	}
	t.IsActive = false
	return nil
}

func (m *memTokens) List(context.Context) ([]qrtoken.Token, error) {
	var out []qrtoken.Token
	for _, t := range m.tokens {
		out = append(out, *t)
	}
	return out, nil
}

func (m *memTokens) Delete(_ context.Context, id int64) error {
	if _, ok := m.tokens[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.tokens, id)
	return nil
}

func (m *memTokens) CourseForSchedule(_ context.Context, scheduleID int64) (int64, error) {
	c, ok := m.schedules[scheduleID]
	if !ok {
		return 0, store.ErrNotFound
	}
	return c, nil
}

type memAttendance struct {
	nextID   int64
	records  map[int64]*attendance.Record
	students map[int64]bool
}

func (m *memAttendance) key(rec *attendance.Record) string {
	return fmt.Sprintf("%d/%d/%s", rec.StudentID, rec.CourseID, rec.SessionDate.Format("2006-01-02"))
}

func (m *memAttendance) Insert(_ context.Context, rec *attendance.Record) error {
	for _, r := range m.records {
		if m.key(r) == m.key(rec) {
			return attendance.ErrDuplicateAttendance
		}
	}
	m.nextID++
	rec.ID = m.nextID
	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *memAttendance) Exists(_ context.Context, studentID, courseID int64, date time.Time) (bool, error) {
	probe := &attendance.Record{StudentID: studentID, CourseID: courseID, SessionDate: date}
	for _, r := range m.records {
		if m.key(r) == m.key(probe) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAttendance) Get(_ context.Context, id int64) (*attendance.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memAttendance) Amend(_ context.Context, id int64, status *attendance.Status, notes, reason *string) (*attendance.Record, error) {
	r, ok := m.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if status != nil {
		r.Status = *status
	}
	if notes != nil {
		r.Notes = *notes
	}
	if reason != nil {
		r.Reason = *reason
	}
	cp := *r
	return &cp, nil
}

func (m *memAttendance) ListByStudent(_ context.Context, id int64) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, r := range m.records {
		if r.StudentID == id {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memAttendance) ListBySchedule(_ context.Context, id int64) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, r := range m.records {
		if r.ScheduleID != nil && *r.ScheduleID == id {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memAttendance) ListByDateRange(_ context.Context, from, to time.Time) ([]attendance.Record, error) {
	var out []attendance.Record
	for _, r := range m.records {
		if !r.SessionDate.Before(from) && !r.SessionDate.After(to) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memAttendance) Delete(_ context.Context, id int64) error {
	if _, ok := m.records[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *memAttendance) StudentExists(_ context.Context, id int64) (bool, error) {
	return m.students[id], nil
}

func (m *memAttendance) Statistics(context.Context, *int64) (*attendance.Statistics, error) {
	return &attendance.Statistics{StatusCounts: map[attendance.Status]int64{}}, nil
}

type memSchedules struct {
	nextID  int64
	slots   map[int64]*schedule.Slot
	courses map[int64]bool
}

type memScheduleTx struct{ st *memSchedules }

func (m *memSchedules) Begin(context.Context, *int64, string) (schedule.Tx, error) {
	return &memScheduleTx{st: m}, nil
}

func (t *memScheduleTx) Slots(ctx context.Context, roomID int64, day string, excludeID int64) ([]schedule.Slot, error) {
	return t.st.SlotsForRoomDay(ctx, roomID, day, excludeID)
}

func (t *memScheduleTx) Insert(_ context.Context, s *schedule.Slot) error {
	t.st.nextID++
	s.ID = t.st.nextID
	cp := *s
	t.st.slots[s.ID] = &cp
	return nil
}

func (t *memScheduleTx) Update(_ context.Context, s *schedule.Slot) error {
	if _, ok := t.st.slots[s.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *s
	t.st.slots[s.ID] = &cp
	return nil
}

func (t *memScheduleTx) Commit() error   { return nil }
func (t *memScheduleTx) Rollback() error { return nil }

func (m *memSchedules) SlotsForRoomDay(_ context.Context, roomID int64, day string, excludeID int64) ([]schedule.Slot, error) {
	var out []schedule.Slot
	for _, s := range m.slots {
		if s.RoomID != nil && *s.RoomID == roomID && s.DayOfWeek == day && s.ID != excludeID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSchedules) Get(_ context.Context, id int64) (*schedule.Slot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSchedules) List(context.Context) ([]schedule.Slot, error) {
	var out []schedule.Slot
	for _, s := range m.slots {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memSchedules) ListByCourse(_ context.Context, courseID int64) ([]schedule.Slot, error) {
	var out []schedule.Slot
	for _, s := range m.slots {
		if s.CourseID == courseID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSchedules) Delete(_ context.Context, id int64) error {
	if _, ok := m.slots[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *memSchedules) CourseExists(_ context.Context, id int64) (bool, error) {
	return m.courses[id], nil
}

// ---- fixtures ----

func testConfig() config.App {
	return config.App{
		JWTIssuer:      "campus-auth",
		JWTSigningKey:  "test-signing-key",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()

	cipher, err := qrtoken.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	tokens := qrtoken.NewService(&memTokens{
		tokens:    map[int64]*qrtoken.Token{},
		schedules: map[int64]int64{5: 7},
	}, cipher, 10*time.Minute)
	att := attendance.NewService(&memAttendance{
		records:  map[int64]*attendance.Record{},
		students: map[int64]bool{42: true},
	}, tokens, notify.NewInMemory(8))
	sched := schedule.NewService(&memSchedules{
		slots:   map[int64]*schedule.Slot{},
		courses: map[int64]bool{7: true},
	})

	return New(cfg, tokens, att, sched, nil, nil).Router()
}

func bearerFor(t *testing.T, role string) string {
	t.Helper()
	claims := auth.Claims{
		UserID: 1,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "campus-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-signing-key"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---- tests ----

func TestMintAndValidateOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	staff := bearerFor(t, auth.RoleInstructor)
	student := bearerFor(t, auth.RoleStudent)

	w := doJSON(r, http.MethodPost, "/qr-codes", staff, gin.H{"schedule_id": 5, "duration": 10})
	if w.Code != http.StatusCreated {
		t.Fatalf("mint code = %d, body %s", w.Code, w.Body.String())
	}
	var minted qrtoken.Token
	if err := json.Unmarshal(w.Body.Bytes(), &minted); err != nil {
		t.Fatalf("decode mint: %v", err)
	}

	w = doJSON(r, http.MethodPost, "/qr-codes/validate", student, gin.H{"qr_code": minted.Ciphertext})
	if w.Code != http.StatusOK {
		t.Fatalf("validate code = %d", w.Code)
	}
	var v qrtoken.Validation
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode validation: %v", err)
	}
	if !v.IsValid || v.ScheduleID != 5 || v.CourseID != 7 {
		t.Fatalf("validation = %+v", v)
	}
}

func TestMintRequiresStaffRole(t *testing.T) {
	r := newTestRouter(t)

	w := doJSON(r, http.MethodPost, "/qr-codes", bearerFor(t, auth.RoleStudent), gin.H{"schedule_id": 5})
	if w.Code != http.StatusForbidden {
		t.Fatalf("student mint code = %d, want 403", w.Code)
	}
	w = doJSON(r, http.MethodPost, "/qr-codes", "", gin.H{"schedule_id": 5})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous mint code = %d, want 401", w.Code)
	}
}

func TestRecordAttendanceOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	staff := bearerFor(t, auth.RoleInstructor)
	student := bearerFor(t, auth.RoleStudent)

	w := doJSON(r, http.MethodPost, "/qr-codes", staff, gin.H{"schedule_id": 5})
	if w.Code != http.StatusCreated {
		t.Fatalf("mint code = %d", w.Code)
	}
	var minted qrtoken.Token
	_ = json.Unmarshal(w.Body.Bytes(), &minted)

	w = doJSON(r, http.MethodPost, "/attendance/record", student, gin.H{
		"qr_code":    minted.Ciphertext,
		"student_id": 42,
		"location":   gin.H{"lat": 1.0},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("record code = %d, body %s", w.Code, w.Body.String())
	}

	// Second scan the same day: duplicate.
	w = doJSON(r, http.MethodPost, "/attendance/record", student, gin.H{
		"qr_code":    minted.Ciphertext,
		"student_id": 42,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("duplicate record code = %d, want 400", w.Code)
	}

	// Tampered token: generic invalid.
	w = doJSON(r, http.MethodPost, "/attendance/record", student, gin.H{
		"qr_code":    minted.Ciphertext + "x",
		"student_id": 42,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("tampered record code = %d, want 400", w.Code)
	}
}

func TestScheduleConflictOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	staff := bearerFor(t, auth.RoleAdmin)

	create := func(start, end string) *httptest.ResponseRecorder {
		return doJSON(r, http.MethodPost, "/schedule", staff, gin.H{
			"course_id": 7, "room_id": 101, "day_of_week": "Monday",
			"start_time": start, "end_time": end,
		})
	}

	if w := create("08:00", "10:00"); w.Code != http.StatusCreated {
		t.Fatalf("first create code = %d, body %s", w.Code, w.Body.String())
	}
	w := create("09:00", "11:00")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("overlapping create code = %d, want 400", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("conflicting_schedule_id")) {
		t.Fatalf("conflict body %s does not name the slot", w.Body.String())
	}
	if w := create("10:00", "12:00"); w.Code != http.StatusCreated {
		t.Fatalf("boundary create code = %d, want 201", w.Code)
	}
}
