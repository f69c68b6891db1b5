// Package qrtoken mints and validates the encrypted QR tokens that prove a
// class session was running when a student scanned it. The ciphertext itself
// is the stored lookup key: a token that was modified in transit either fails
// to decrypt or matches no stored row, so tamper detection needs no separate
// integrity code.
package qrtoken

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"campusattend/internal/store"
)

// ErrExpiryInPast is returned by Mint when the requested expiry is not
// strictly in the future.
var ErrExpiryInPast = errors.New("expiry must be in the future")

// Token mirrors a row of the qr_codes table.
type Token struct {
	ID          int64     `json:"qr_id"`
	CourseID    int64     `json:"course_id"`
	ScheduleID  int64     `json:"schedule_id"`
	Ciphertext  string    `json:"qr_code"`
	ImageURL    string    `json:"qr_image_url,omitempty"`
	SessionDate time.Time `json:"session_date"`
	ExpiresAt   time.Time `json:"expires_at"`
	DurationMin int       `json:"duration_minutes"`
	IsActive    bool      `json:"is_active"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// payload is the encrypted content of a token. Timestamps are epoch millis.
type payload struct {
	ScheduleID int64 `json:"schedule_id"`
	MintedAt   int64 `json:"minted_at"`
	ExpiresAt  int64 `json:"expires_at"`
}

// Store is the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, t *Token) error
	GetByID(ctx context.Context, id int64) (*Token, error)
	ActiveByCiphertext(ctx context.Context, ciphertext string) (*Token, error)
	Deactivate(ctx context.Context, id int64) error
	List(ctx context.Context) ([]Token, error)
	Delete(ctx context.Context, id int64) error
	// CourseForSchedule resolves the owning course of a schedule slot, or
	// store.ErrNotFound when the slot does not exist.
	CourseForSchedule(ctx context.Context, scheduleID int64) (int64, error)
}

// Validation is the outcome of checking a presented token string. All failure
// modes collapse into IsValid=false so callers cannot probe which check
// rejected the token.
type Validation struct {
	IsValid    bool  `json:"isValid"`
	ScheduleID int64 `json:"schedule_id,omitempty"`
	CourseID   int64 `json:"course_id,omitempty"`
	TokenID    int64 `json:"qr_id,omitempty"`
}

// MintRequest carries the inputs for issuing a token. Exactly one of
// ExpiresAt or Duration is expected; with neither, the configured default
// validity window applies.
type MintRequest struct {
	ScheduleID  int64
	ExpiresAt   time.Time
	Duration    time.Duration
	SessionDate time.Time
	IssuerID    *int64
}

// Service is the token issuer and validator.
type Service struct {
	store      Store
	cipher     *Cipher
	defaultTTL time.Duration
	now        func() time.Time
}

// NewService wires the issuer/validator. defaultTTL bounds tokens minted
// without an explicit expiry.
func NewService(st Store, c *Cipher, defaultTTL time.Duration) *Service {
	if defaultTTL <= 0 {
		defaultTTL = 10 * time.Minute
	}
	return &Service{store: st, cipher: c, defaultTTL: defaultTTL, now: time.Now}
}

// Mint issues a fresh token for a schedule slot. The slot must exist; the
// owning course is taken from it rather than trusted from the caller.
func (s *Service) Mint(ctx context.Context, req MintRequest) (*Token, error) {
	courseID, err := s.store.CourseForSchedule(ctx, req.ScheduleID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := req.ExpiresAt
	if expiresAt.IsZero() {
		ttl := req.Duration
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		expiresAt = now.Add(ttl)
	}
	if !expiresAt.After(now) {
		return nil, ErrExpiryInPast
	}

	sessionDate := req.SessionDate
	if sessionDate.IsZero() {
		sessionDate = now
	}
	sessionDate = sessionDate.Truncate(24 * time.Hour)

	ciphertext, err := s.seal(req.ScheduleID, now, expiresAt)
	if err != nil {
		return nil, err
	}
	imageURL, err := renderDataURL(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("render qr image: %w", err)
	}

	t := &Token{
		CourseID:    courseID,
		ScheduleID:  req.ScheduleID,
		Ciphertext:  ciphertext,
		ImageURL:    imageURL,
		SessionDate: sessionDate,
		ExpiresAt:   expiresAt,
		DurationMin: int(expiresAt.Sub(now) / time.Minute),
		IsActive:    true,
		CreatedBy:   req.IssuerID,
		GeneratedAt: now,
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Reissue retires a token and mints a replacement with a new expiry. The
// ciphertext is the lookup key and is never patched in place.
func (s *Service) Reissue(ctx context.Context, id int64, expiresAt time.Time) (*Token, error) {
	old, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !expiresAt.After(s.now().UTC()) {
		return nil, ErrExpiryInPast
	}
	if err := s.store.Deactivate(ctx, id); err != nil {
		return nil, err
	}
	return s.Mint(ctx, MintRequest{
		ScheduleID:  old.ScheduleID,
		ExpiresAt:   expiresAt,
		SessionDate: old.SessionDate,
		IssuerID:    old.CreatedBy,
	})
}

// Deactivate flips a token inactive. The flag only moves forward; there is no
// reactivation path.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.store.Deactivate(ctx, id)
}

// Get returns a token row by id.
func (s *Service) Get(ctx context.Context, id int64) (*Token, error) {
	return s.store.GetByID(ctx, id)
}

// List returns all token rows.
func (s *Service) List(ctx context.Context) ([]Token, error) {
	return s.store.List(ctx)
}

// Delete removes a token row.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Validate checks a presented token string. It is a pure read: decrypt, check
// the payload's expiry (the tamper-evident source of truth, not the stored
// column), then require an active stored row with this exact ciphertext.
func (s *Service) Validate(ctx context.Context, tokenString string) (Validation, error) {
	plain, err := s.cipher.Open(tokenString)
	if err != nil {
		return Validation{}, nil
	}
	var p payload
	if err := json.Unmarshal(plain, &p); err != nil {
		return Validation{}, nil
	}
	if s.now().UTC().UnixMilli() > p.ExpiresAt {
		return Validation{}, nil
	}
	row, err := s.store.ActiveByCiphertext(ctx, tokenString)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Validation{}, nil
		}
		return Validation{}, err
	}
	return Validation{
		IsValid:    true,
		ScheduleID: p.ScheduleID,
		CourseID:   row.CourseID,
		TokenID:    row.ID,
	}, nil
}

func (s *Service) seal(scheduleID int64, mintedAt, expiresAt time.Time) (string, error) {
	raw, err := json.Marshal(payload{
		ScheduleID: scheduleID,
		MintedAt:   mintedAt.UnixMilli(),
		ExpiresAt:  expiresAt.UnixMilli(),
	})
	if err != nil {
		return "", err
	}
	return s.cipher.Seal(raw)
}

// renderDataURL encodes the ciphertext as a 256px PNG data URL, the form the
// dashboard embeds directly in an <img> tag.
func renderDataURL(ciphertext string) (string, error) {
	png, err := qrcode.Encode(ciphertext, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
