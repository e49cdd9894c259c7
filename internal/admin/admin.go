// Package admin serves the moderation endpoints under /api/admin.
package admin

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
)

var ErrUserNotFound = apperr.New(apperr.NotFound, "User not found")

// Store is implemented by the users repository.
type Store interface {
	List(ctx context.Context) ([]entity.User, error)
	SetRestricted(ctx context.Context, id int64, value *bool) (*entity.User, error)
}

type Service struct {
	store  Store
	logger *zap.SugaredLogger
}

func NewService(store Store, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) ListUsers(ctx context.Context) ([]entity.AdminView, error) {
	users, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to retrieve users", err)
	}
	out := make([]entity.AdminView, len(users))
	for i := range users {
		out[i] = users[i].AdminView()
	}
	return out, nil
}

// SetRestricted stores value as the user's restriction flag, or flips the
// current flag when value is nil. The flag is informational; no other
// endpoint consults it.
func (s *Service) SetRestricted(ctx context.Context, actorID, userID int64, value *bool) (*entity.AdminView, error) {
	u, err := s.store.SetRestricted(ctx, userID, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to update user restriction status", err)
	}
	s.logger.Infow("user restriction changed", "admin_id", actorID, "user_id", userID, "is_restricted", u.IsRestricted)
	v := u.AdminView()
	return &v, nil
}
