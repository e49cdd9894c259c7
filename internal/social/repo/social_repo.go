package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-social/internal/social/entity"
	"github.com/ovaphlow/pitchfork/service-social/pkg/database"
)

var (
	ErrSelfRequest      = errors.New("sender and receiver are the same user")
	ErrUnknownUser      = errors.New("user does not exist")
	ErrDuplicateRequest = errors.New("a pending request already exists")
	ErrUnknownPost      = errors.New("post does not exist")
	ErrAlreadyLiked     = errors.New("post already liked")
	ErrNotPending       = errors.New("friend request is not pending")
)

const (
	pendingPairKey = "friend_requests_pending_pair_key"
	likeKey        = "likes_post_user_key"
)

// SocialRepo stores posts, comments, likes, friend requests and the activity
// log. Single-row lookups return sql.ErrNoRows when nothing matches.
type SocialRepo struct {
	db *sqlx.DB
}

func NewSocialRepo(db *sqlx.DB) *SocialRepo { return &SocialRepo{db: db} }

// EnsureTable creates the social tables if not exists (idempotent). The users
// table must already exist.
func (r *SocialRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS posts (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  content TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts(user_id);

CREATE TABLE IF NOT EXISTS comments (
  id BIGSERIAL PRIMARY KEY,
  post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  content TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);

CREATE TABLE IF NOT EXISTS likes (
  id BIGSERIAL PRIMARY KEY,
  post_id BIGINT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT likes_post_user_key UNIQUE (post_id, user_id)
);

CREATE TABLE IF NOT EXISTS friend_requests (
  id BIGSERIAL PRIMARY KEY,
  sender_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  receiver_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  status TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','ACCEPTED','REJECTED')),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT friend_requests_not_self CHECK (sender_id <> receiver_id)
);
CREATE UNIQUE INDEX IF NOT EXISTS friend_requests_pending_pair_key
  ON friend_requests(sender_id, receiver_id) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS activity_logs (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
  action TEXT NOT NULL,
  category TEXT NOT NULL CHECK (category IN ('POST_CREATED','COMMENT_ADDED')),
  post_id BIGINT REFERENCES posts(id) ON DELETE CASCADE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_activity_logs_user_created ON activity_logs(user_id, created_at DESC);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const friendRequestColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

// CreateFriendRequest inserts a PENDING request.
func (r *SocialRepo) CreateFriendRequest(ctx context.Context, senderID, receiverID int64) (*entity.FriendRequest, error) {
	var fr entity.FriendRequest
	err := r.db.GetContext(ctx, &fr,
		`INSERT INTO friend_requests (sender_id, receiver_id) VALUES ($1, $2) RETURNING `+friendRequestColumns,
		senderID, receiverID)
	switch {
	case err == nil:
		return &fr, nil
	case database.IsCheckViolation(err):
		return nil, ErrSelfRequest
	case database.IsForeignKeyViolation(err):
		return nil, ErrUnknownUser
	case database.IsUniqueViolation(err, pendingPairKey):
		return nil, ErrDuplicateRequest
	default:
		return nil, err
	}
}

func (r *SocialRepo) GetFriendRequest(ctx context.Context, id int64) (*entity.FriendRequest, error) {
	var fr entity.FriendRequest
	if err := r.db.GetContext(ctx, &fr,
		`SELECT `+friendRequestColumns+` FROM friend_requests WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &fr, nil
}

// RespondFriendRequest moves a PENDING request addressed to receiverID to
// status. Anything else is sql.ErrNoRows.
func (r *SocialRepo) RespondFriendRequest(ctx context.Context, id, receiverID int64, status entity.FriendRequestStatus) (*entity.FriendRequest, error) {
	var fr entity.FriendRequest
	err := r.db.GetContext(ctx, &fr,
		`UPDATE friend_requests SET status = $3, updated_at = NOW()
		  WHERE id = $1 AND receiver_id = $2 AND status = 'PENDING'
		  RETURNING `+friendRequestColumns, id, receiverID, status)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

// DeletePendingFriendRequest removes a request still PENDING and sent by
// senderID. It returns ErrNotPending when the row exists but has moved on.
func (r *SocialRepo) DeletePendingFriendRequest(ctx context.Context, id, senderID int64) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM friend_requests WHERE id = $1 AND sender_id = $2 AND status = 'PENDING'`, id, senderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotPending
	}
	return nil
}

func logActivity(ctx context.Context, tx *sqlx.Tx, userID int64, category entity.ActivityCategory, action string, postID int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO activity_logs (user_id, action, category, post_id) VALUES ($1, $2, $3, $4)`,
		userID, action, category, postID)
	return err
}

const postColumns = `id, user_id, content, created_at, updated_at`

// CreatePost inserts the post and its POST_CREATED activity in one
// transaction.
func (r *SocialRepo) CreatePost(ctx context.Context, userID int64, content string) (*entity.Post, error) {
	var p entity.Post
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &p,
			`INSERT INTO posts (user_id, content) VALUES ($1, $2) RETURNING `+postColumns, userID, content); err != nil {
			return err
		}
		return logActivity(ctx, tx, userID, entity.CategoryPostCreated, fmt.Sprintf("Created post: %d", p.ID), p.ID)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePost rewrites a post owned by userID.
func (r *SocialRepo) UpdatePost(ctx context.Context, id, userID int64, content string) (*entity.Post, error) {
	var p entity.Post
	err := r.db.GetContext(ctx, &p,
		`UPDATE posts SET content = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2 RETURNING `+postColumns,
		id, userID, content)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// DeletePost removes a post owned by userID together with the activity rows
// that point at it.
func (r *SocialRepo) DeletePost(ctx context.Context, id, userID int64) error {
	return database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		var owner int64
		if err := tx.GetContext(ctx, &owner,
			`SELECT user_id FROM posts WHERE id = $1 AND user_id = $2 FOR UPDATE`, id, userID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM activity_logs WHERE post_id = $1`, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
		return err
	})
}

func (r *SocialRepo) LikePost(ctx context.Context, postID, userID int64) (*entity.Like, error) {
	var l entity.Like
	err := r.db.GetContext(ctx, &l,
		`INSERT INTO likes (post_id, user_id) VALUES ($1, $2) RETURNING id, post_id, user_id, created_at`,
		postID, userID)
	switch {
	case err == nil:
		return &l, nil
	case database.IsUniqueViolation(err, likeKey):
		return nil, ErrAlreadyLiked
	case database.IsForeignKeyViolation(err):
		return nil, ErrUnknownPost
	default:
		return nil, err
	}
}

// AddComment inserts the comment and its COMMENT_ADDED activity in one
// transaction.
func (r *SocialRepo) AddComment(ctx context.Context, postID, userID int64, content string) (*entity.Comment, error) {
	var c entity.Comment
	err := database.WithTx(ctx, r.db, nil, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &c,
			`INSERT INTO comments (post_id, user_id, content) VALUES ($1, $2, $3)
			 RETURNING id, post_id, user_id, content, created_at`, postID, userID, content); err != nil {
			return err
		}
		return logActivity(ctx, tx, userID, entity.CategoryCommentAdded, fmt.Sprintf("Commented on post: %d", postID), postID)
	})
	if database.IsForeignKeyViolation(err) {
		return nil, ErrUnknownPost
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const postViewSelect = `SELECT p.id, p.user_id, p.content, p.created_at, p.updated_at,
	u.id AS "user.id", u.username AS "user.username", u.first_name AS "user.first_name",
	u.last_name AS "user.last_name", u.profile_image AS "user.profile_image"
  FROM posts p JOIN users u ON u.id = p.user_id`

// ListPosts returns one page of posts, newest first, and the total count.
// Both reads share a snapshot.
func (r *SocialRepo) ListPosts(ctx context.Context, limit, offset int) ([]entity.PostView, int, error) {
	var (
		posts []entity.PostView
		total int
	)
	err := database.WithTx(ctx, r.db, database.SnapshotTx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &posts,
			postViewSelect+` ORDER BY p.created_at DESC, p.id DESC LIMIT $1 OFFSET $2`, limit, offset); err != nil {
			return err
		}
		if err := tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM posts`); err != nil {
			return err
		}
		return attachReactions(ctx, tx, posts)
	})
	if err != nil {
		return nil, 0, err
	}
	return posts, total, nil
}

// PostsByUsername returns every post by the named user, newest first.
func (r *SocialRepo) PostsByUsername(ctx context.Context, username string) ([]entity.PostView, error) {
	var posts []entity.PostView
	err := database.WithTx(ctx, r.db, database.SnapshotTx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &posts,
			postViewSelect+` WHERE u.username = $1 ORDER BY p.created_at DESC, p.id DESC`, username); err != nil {
			return err
		}
		return attachReactions(ctx, tx, posts)
	})
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func attachReactions(ctx context.Context, tx *sqlx.Tx, posts []entity.PostView) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, len(posts))
	byID := make(map[int64]*entity.PostView, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
		posts[i].Comments = []entity.Comment{}
		posts[i].Likes = []entity.Like{}
		byID[posts[i].ID] = &posts[i]
	}

	q, args, err := sqlx.In(`SELECT id, post_id, user_id, content, created_at FROM comments
		WHERE post_id IN (?) ORDER BY created_at, id`, ids)
	if err != nil {
		return err
	}
	var comments []entity.Comment
	if err := tx.SelectContext(ctx, &comments, tx.Rebind(q), args...); err != nil {
		return err
	}
	for _, c := range comments {
		byID[c.PostID].Comments = append(byID[c.PostID].Comments, c)
	}

	q, args, err = sqlx.In(`SELECT id, post_id, user_id, created_at FROM likes
		WHERE post_id IN (?) ORDER BY created_at, id`, ids)
	if err != nil {
		return err
	}
	var likes []entity.Like
	if err := tx.SelectContext(ctx, &likes, tx.Rebind(q), args...); err != nil {
		return err
	}
	for _, l := range likes {
		byID[l.PostID].Likes = append(byID[l.PostID].Likes, l)
	}
	return nil
}

// ActivityFeed returns one page of userID's own activity, newest first, and
// the total count. POST_CREATED entries carry the post's content.
func (r *SocialRepo) ActivityFeed(ctx context.Context, userID int64, limit, offset int) ([]entity.ActivityView, int, error) {
	const q = `SELECT a.id, a.user_id, a.action, a.category, a.post_id, a.created_at,
		u.id AS "user.id", u.username AS "user.username", u.first_name AS "user.first_name",
		u.last_name AS "user.last_name", u.profile_image AS "user.profile_image",
		CASE WHEN a.category = 'POST_CREATED' THEN p.content END AS post_content
	  FROM activity_logs a
	  JOIN users u ON u.id = a.user_id
	  LEFT JOIN posts p ON p.id = a.post_id
	 WHERE a.user_id = $1 AND a.category IN ('POST_CREATED','COMMENT_ADDED')
	 ORDER BY a.created_at DESC, a.id DESC
	 LIMIT $2 OFFSET $3`
	var (
		feed  []entity.ActivityView
		total int
	)
	err := database.WithTx(ctx, r.db, database.SnapshotTx, func(tx *sqlx.Tx) error {
		if err := tx.SelectContext(ctx, &feed, q, userID, limit, offset); err != nil {
			return err
		}
		return tx.GetContext(ctx, &total,
			`SELECT COUNT(*) FROM activity_logs WHERE user_id = $1 AND category IN ('POST_CREATED','COMMENT_ADDED')`, userID)
	})
	if err != nil {
		return nil, 0, err
	}
	return feed, total, nil
}
