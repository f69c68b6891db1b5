// Package schedule manages recurring meeting slots and guarantees that no two
// slots double-book a room on the same weekday. Intervals are half-open:
// a slot ending at 10:00 and one starting at 10:00 may share a room.
package schedule

import (
	"context"
	"errors"
	"time"

	"campusattend/internal/store"
)

// ErrInvalidSlot is returned when a slot's times cannot be parsed or are not
// ordered start < end.
var ErrInvalidSlot = errors.New("invalid schedule slot")

// Slot is a recurring meeting definition for a course, optionally bound to a
// room. Times are wall-clock "HH:MM" strings; RoomID nil means unassigned,
// which is exempt from conflict checking.
type Slot struct {
	ID            int64     `json:"schedule_id"`
	CourseID      int64     `json:"course_id"`
	RoomID        *int64    `json:"room_id,omitempty"`
	DayOfWeek     string    `json:"day_of_week"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	RepeatPattern string    `json:"repeat_pattern"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Tx is a write transaction scoped to one room/day. Implementations hold
// whatever lock is needed so that the conflict scan and the write are atomic
// against concurrent schedule writes for the same room/day.
type Tx interface {
	Slots(ctx context.Context, roomID int64, dayOfWeek string, excludeID int64) ([]Slot, error)
	Insert(ctx context.Context, s *Slot) error
	Update(ctx context.Context, s *Slot) error
	Commit() error
	Rollback() error
}

// Store is the persistence surface the service needs.
type Store interface {
	Begin(ctx context.Context, roomID *int64, dayOfWeek string) (Tx, error)
	SlotsForRoomDay(ctx context.Context, roomID int64, dayOfWeek string, excludeID int64) ([]Slot, error)
	Get(ctx context.Context, id int64) (*Slot, error)
	List(ctx context.Context) ([]Slot, error)
	ListByCourse(ctx context.Context, courseID int64) ([]Slot, error)
	Delete(ctx context.Context, id int64) error
	CourseExists(ctx context.Context, courseID int64) (bool, error)
}

// Service validates and persists schedule slots.
type Service struct {
	store Store
}

// NewService creates a service backed by a store.
func NewService(st Store) *Service {
	return &Service{store: st}
}

// CheckConflict returns the first slot occupying the given room and weekday
// whose interval overlaps [start, end), or nil. Unassigned rooms never
// conflict. excludeID skips the slot being updated in place.
func (s *Service) CheckConflict(ctx context.Context, roomID *int64, dayOfWeek, start, end string, excludeID int64) (*Slot, error) {
	if roomID == nil {
		return nil, nil
	}
	startMin, endMin, err := parseInterval(start, end)
	if err != nil {
		return nil, err
	}
	candidates, err := s.store.SlotsForRoomDay(ctx, *roomID, dayOfWeek, excludeID)
	if err != nil {
		return nil, err
	}
	return firstConflict(candidates, startMin, endMin), nil
}

// Create persists a new slot after checking for room conflicts. The scan and
// the insert run in one locked transaction so two concurrent creates for the
// same room/day cannot both pass the check.
func (s *Service) Create(ctx context.Context, slot *Slot) error {
	startMin, endMin, err := parseInterval(slot.StartTime, slot.EndTime)
	if err != nil {
		return err
	}
	if slot.DayOfWeek == "" {
		return ErrInvalidSlot
	}
	if slot.RepeatPattern == "" {
		slot.RepeatPattern = "weekly"
	}
	ok, err := s.store.CourseExists(ctx, slot.CourseID)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}

	tx, err := s.store.Begin(ctx, slot.RoomID, slot.DayOfWeek)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if slot.RoomID != nil {
		candidates, err := tx.Slots(ctx, *slot.RoomID, slot.DayOfWeek, 0)
		if err != nil {
			return err
		}
		if c := firstConflict(candidates, startMin, endMin); c != nil {
			return &ConflictError{Conflicting: c}
		}
	}
	if err := tx.Insert(ctx, slot); err != nil {
		return err
	}
	return tx.Commit()
}

// UpdateRequest carries the mutable fields of a slot; nil means unchanged.
type UpdateRequest struct {
	CourseID      *int64
	RoomID        *int64
	ClearRoom     bool
	DayOfWeek     *string
	StartTime     *string
	EndTime       *string
	RepeatPattern *string
}

// Update applies a partial update, re-running the conflict check against the
// slot's effective room/day/interval and excluding the slot itself.
func (s *Service) Update(ctx context.Context, id int64, req UpdateRequest) (*Slot, error) {
	slot, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.CourseID != nil {
		ok, err := s.store.CourseExists(ctx, *req.CourseID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, store.ErrNotFound
		}
		slot.CourseID = *req.CourseID
	}
	switch {
	case req.ClearRoom:
		slot.RoomID = nil
	case req.RoomID != nil:
		slot.RoomID = req.RoomID
	}
	if req.DayOfWeek != nil {
		slot.DayOfWeek = *req.DayOfWeek
	}
	if req.StartTime != nil {
		slot.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		slot.EndTime = *req.EndTime
	}
	if req.RepeatPattern != nil {
		slot.RepeatPattern = *req.RepeatPattern
	}
	startMin, endMin, err := parseInterval(slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx, slot.RoomID, slot.DayOfWeek)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if slot.RoomID != nil {
		candidates, err := tx.Slots(ctx, *slot.RoomID, slot.DayOfWeek, id)
		if err != nil {
			return nil, err
		}
		if c := firstConflict(candidates, startMin, endMin); c != nil {
			return nil, &ConflictError{Conflicting: c}
		}
	}
	if err := tx.Update(ctx, slot); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return slot, nil
}

// Get returns a slot by id.
func (s *Service) Get(ctx context.Context, id int64) (*Slot, error) {
	return s.store.Get(ctx, id)
}

// List returns all slots.
func (s *Service) List(ctx context.Context) ([]Slot, error) {
	return s.store.List(ctx)
}

// ListByCourse returns a course's slots.
func (s *Service) ListByCourse(ctx context.Context, courseID int64) ([]Slot, error) {
	return s.store.ListByCourse(ctx, courseID)
}

// Delete removes a slot.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

func parseInterval(start, end string) (int, int, error) {
	startMin, err := parseClock(start)
	if err != nil {
		return 0, 0, ErrInvalidSlot
	}
	endMin, err := parseClock(end)
	if err != nil {
		return 0, 0, ErrInvalidSlot
	}
	if startMin >= endMin {
		return 0, 0, ErrInvalidSlot
	}
	return startMin, endMin, nil
}
