// Package otptest provides in-memory collaborators for code that issues
// one-time codes.
package otptest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-social/internal/otp/entity"
	"github.com/ovaphlow/pitchfork/service-social/pkg/mailer"
)

type key struct {
	userID  int64
	purpose entity.Purpose
}

// Store keeps challenges in memory with the same upsert and conditional
// consume semantics as the Postgres repository.
type Store struct {
	mu     sync.Mutex
	nextID int64
	rows   map[key]*entity.Challenge
	// Err, when set, is returned from every call.
	Err error
}

func NewStore() *Store { return &Store{rows: map[key]*entity.Challenge{}} }

func (s *Store) Issue(_ context.Context, userID int64, purpose entity.Purpose, code string, issuedAt time.Time, expiresAt *time.Time) (*entity.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	k := key{userID, purpose}
	c, ok := s.rows[k]
	if !ok {
		s.nextID++
		c = &entity.Challenge{ID: s.nextID, UserID: userID, Purpose: purpose}
		s.rows[k] = c
	}
	c.Code = code
	c.IssuedAt = issuedAt
	c.ExpiresAt = expiresAt
	c.ConsumedAt = nil
	cp := *c
	return &cp, nil
}

func (s *Store) Get(_ context.Context, userID int64, purpose entity.Purpose) (*entity.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	c, ok := s.rows[key{userID, purpose}]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *Store) Consume(_ context.Context, id int64, code string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	for _, c := range s.rows {
		if c.ID == id && c.Code == code && c.ConsumedAt == nil {
			t := now
			c.ConsumedAt = &t
			return true, nil
		}
	}
	return false, nil
}

// Code returns the last code issued for the pair, or "".
func (s *Store) Code(userID int64, purpose entity.Purpose) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.rows[key{userID, purpose}]; ok {
		return c.Code
	}
	return ""
}

// Mailer records every message it is asked to send.
type Mailer struct {
	mu   sync.Mutex
	Sent []mailer.Message
	// Fail makes Send return an error.
	Fail bool
}

func (m *Mailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail {
		return errors.New("smtp unavailable")
	}
	m.Sent = append(m.Sent, msg)
	return nil
}

// Last returns the most recent message, or the zero value.
func (m *Mailer) Last() mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return mailer.Message{}
	}
	return m.Sent[len(m.Sent)-1]
}

func (m *Mailer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
