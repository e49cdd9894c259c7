package social

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-social/internal/social/entity"
	socialrepo "github.com/ovaphlow/pitchfork/service-social/internal/social/repo"
)

// memStore mirrors the constraints of the SQL schema: foreign keys, the
// pending-pair index, one like per user and post, and cascading deletes.
type memStore struct {
	mu       sync.Mutex
	users    map[int64]entity.Author
	requests map[int64]*entity.FriendRequest
	posts    map[int64]*entity.Post
	comments []entity.Comment
	likes    []entity.Like
	activity []entity.Activity
	seq      int64
	clock    time.Time
	// lastOffset is the row offset of the most recent paged read
	lastOffset int
}

func newMemStore(users ...entity.Author) *memStore {
	m := &memStore{
		users:    map[int64]entity.Author{},
		requests: map[int64]*entity.FriendRequest{},
		posts:    map[int64]*entity.Post{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memStore) next() (int64, time.Time) {
	m.seq++
	m.clock = m.clock.Add(time.Second)
	return m.seq, m.clock
}

func (m *memStore) CreateFriendRequest(_ context.Context, senderID, receiverID int64) (*entity.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if senderID == receiverID {
		return nil, socialrepo.ErrSelfRequest
	}
	if _, ok := m.users[receiverID]; !ok {
		return nil, socialrepo.ErrUnknownUser
	}
	for _, fr := range m.requests {
		if fr.SenderID == senderID && fr.ReceiverID == receiverID && fr.Status == entity.StatusPending {
			return nil, socialrepo.ErrDuplicateRequest
		}
	}
	id, now := m.next()
	fr := &entity.FriendRequest{ID: id, SenderID: senderID, ReceiverID: receiverID, Status: entity.StatusPending, CreatedAt: now, UpdatedAt: now}
	m.requests[id] = fr
	cp := *fr
	return &cp, nil
}

func (m *memStore) GetFriendRequest(_ context.Context, id int64) (*entity.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr, ok := m.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *fr
	return &cp, nil
}

func (m *memStore) RespondFriendRequest(_ context.Context, id, receiverID int64, status entity.FriendRequestStatus) (*entity.FriendRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr, ok := m.requests[id]
	if !ok || fr.ReceiverID != receiverID || fr.Status != entity.StatusPending {
		return nil, sql.ErrNoRows
	}
	_, now := m.next()
	fr.Status = status
	fr.UpdatedAt = now
	cp := *fr
	return &cp, nil
}

func (m *memStore) DeletePendingFriendRequest(_ context.Context, id, senderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fr, ok := m.requests[id]
	if !ok || fr.SenderID != senderID || fr.Status != entity.StatusPending {
		return socialrepo.ErrNotPending
	}
	delete(m.requests, id)
	return nil
}

func (m *memStore) logActivity(userID int64, category entity.ActivityCategory, action string, postID int64) {
	id, now := m.next()
	m.activity = append(m.activity, entity.Activity{ID: id, UserID: userID, Action: action, Category: category, PostID: &postID, CreatedAt: now})
}

func (m *memStore) CreatePost(_ context.Context, userID int64, content string) (*entity.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, now := m.next()
	p := &entity.Post{ID: id, UserID: userID, Content: content, CreatedAt: now, UpdatedAt: now}
	m.posts[id] = p
	m.logActivity(userID, entity.CategoryPostCreated, fmt.Sprintf("Created post: %d", id), id)
	cp := *p
	return &cp, nil
}

func (m *memStore) UpdatePost(_ context.Context, id, userID int64, content string) (*entity.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.UserID != userID {
		return nil, sql.ErrNoRows
	}
	_, now := m.next()
	p.Content = content
	p.UpdatedAt = now
	cp := *p
	return &cp, nil
}

func (m *memStore) DeletePost(_ context.Context, id, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok || p.UserID != userID {
		return sql.ErrNoRows
	}
	delete(m.posts, id)
	m.activity = filter(m.activity, func(a entity.Activity) bool { return a.PostID == nil || *a.PostID != id })
	m.comments = filter(m.comments, func(c entity.Comment) bool { return c.PostID != id })
	m.likes = filter(m.likes, func(l entity.Like) bool { return l.PostID != id })
	return nil
}

func filter[T any](in []T, keep func(T) bool) []T {
	out := in[:0]
	for _, v := range in {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (m *memStore) LikePost(_ context.Context, postID, userID int64) (*entity.Like, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return nil, socialrepo.ErrUnknownPost
	}
	for _, l := range m.likes {
		if l.PostID == postID && l.UserID == userID {
			return nil, socialrepo.ErrAlreadyLiked
		}
	}
	id, now := m.next()
	l := entity.Like{ID: id, PostID: postID, UserID: userID, CreatedAt: now}
	m.likes = append(m.likes, l)
	return &l, nil
}

func (m *memStore) AddComment(_ context.Context, postID, userID int64, content string) (*entity.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[postID]; !ok {
		return nil, socialrepo.ErrUnknownPost
	}
	id, now := m.next()
	c := entity.Comment{ID: id, PostID: postID, UserID: userID, Content: content, CreatedAt: now}
	m.comments = append(m.comments, c)
	m.logActivity(userID, entity.CategoryCommentAdded, fmt.Sprintf("Commented on post: %d", postID), postID)
	return &c, nil
}

func (m *memStore) view(p *entity.Post) entity.PostView {
	v := entity.PostView{Post: *p, User: m.users[p.UserID], Comments: []entity.Comment{}, Likes: []entity.Like{}}
	for _, c := range m.comments {
		if c.PostID == p.ID {
			v.Comments = append(v.Comments, c)
		}
	}
	for _, l := range m.likes {
		if l.PostID == p.ID {
			v.Likes = append(v.Likes, l)
		}
	}
	return v
}

func (m *memStore) newestPosts(keep func(*entity.Post) bool) []entity.PostView {
	var out []entity.PostView
	for _, p := range m.posts {
		if keep(p) {
			out = append(out, m.view(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func window[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return nil
	}
	end := min(offset+limit, len(rows))
	return rows[offset:end]
}

func (m *memStore) ListPosts(_ context.Context, limit, offset int) ([]entity.PostView, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOffset = offset
	all := m.newestPosts(func(*entity.Post) bool { return true })
	return window(all, limit, offset), len(all), nil
}

func (m *memStore) PostsByUsername(_ context.Context, username string) ([]entity.PostView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newestPosts(func(p *entity.Post) bool { return m.users[p.UserID].Username == username }), nil
}

func (m *memStore) ActivityFeed(_ context.Context, userID int64, limit, offset int) ([]entity.ActivityView, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOffset = offset
	var all []entity.ActivityView
	for i := len(m.activity) - 1; i >= 0; i-- {
		a := m.activity[i]
		if a.UserID != userID {
			continue
		}
		v := entity.ActivityView{Activity: a, User: m.users[a.UserID]}
		if a.Category == entity.CategoryPostCreated && a.PostID != nil {
			if p, ok := m.posts[*a.PostID]; ok {
				content := p.Content
				v.PostContent = &content
			}
		}
		all = append(all, v)
	}
	return window(all, limit, offset), len(all), nil
}
