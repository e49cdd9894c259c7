package user

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-social/internal/user/repo"
)

// memStore enforces the same unique constraints as the users table.
type memStore struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*entity.User
	verifies int
	clock    func() time.Time
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]*entity.User{}, clock: time.Now}
}

func (m *memStore) Create(_ context.Context, u *entity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.users {
		if x.Username == u.Username {
			return userrepo.ErrDuplicateUsername
		}
		if strings.EqualFold(x.Email, u.Email) {
			return userrepo.ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.CreatedAt = m.clock().Add(time.Duration(m.nextID) * time.Millisecond)
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) find(match func(*entity.User) bool) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return u.ID == id })
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*entity.User, error) {
	return m.find(func(u *entity.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memStore) update(id int64, fn func(*entity.User)) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	fn(u)
	cp := *u
	return &cp, nil
}

func (m *memStore) MarkEmailVerified(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.EmailVerified {
		return false, nil
	}
	m.verifies++
	u.EmailVerified = true
	return true, nil
}

func (m *memStore) RecordLogin(_ context.Context, id int64, at time.Time) (*entity.User, error) {
	return m.update(id, func(u *entity.User) { u.LastLoginTime = &at })
}

func (m *memStore) UpdatePassword(_ context.Context, id int64, hash string) error {
	_, err := m.update(id, func(u *entity.User) { u.PasswordHash = hash })
	return err
}

func (m *memStore) UpdateProfile(_ context.Context, id int64, p entity.ProfileUpdate) (*entity.User, error) {
	return m.update(id, func(u *entity.User) {
		if p.FirstName != nil {
			u.FirstName = *p.FirstName
		}
		if p.LastName != nil {
			u.LastName = *p.LastName
		}
		if p.ProfileImage != nil {
			u.ProfileImage = p.ProfileImage
		}
	})
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

func (m *memStore) SummaryByUsername(_ context.Context, username string) (*entity.Summary, error) {
	u, err := m.find(func(u *entity.User) bool { return u.Username == username })
	if err != nil {
		return nil, err
	}
	return &entity.Summary{ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName, ProfileImage: u.ProfileImage}, nil
}

func (m *memStore) Recent(_ context.Context, limit int) ([]entity.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*entity.User, 0, len(m.users))
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	out := []entity.Summary{}
	for i := 0; i < len(all) && i < limit; i++ {
		created := all[i].CreatedAt
		out = append(out, entity.Summary{ID: all[i].ID, Username: all[i].Username, FirstName: all[i].FirstName, LastName: all[i].LastName, CreatedAt: &created})
	}
	return out, nil
}
