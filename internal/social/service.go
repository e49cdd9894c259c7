// Package social serves friend requests, posts, likes, comments and the
// activity feed under /api/user.
package social

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-social/internal/social/entity"
	socialrepo "github.com/ovaphlow/pitchfork/service-social/internal/social/repo"
)

// PageSize is the number of rows in one page of posts or activity.
const PageSize = 10

var (
	ErrSelfRequest       = apperr.New(apperr.Validation, "Cannot send friend request to yourself")
	ErrSendFailed        = apperr.New(apperr.Conflict, "Failed to send friend request")
	ErrRequestNotFound   = apperr.New(apperr.NotFound, "Friend request not found")
	ErrNotRequestSender  = apperr.New(apperr.Forbidden, "Not authorized to cancel this request")
	ErrRequestNotPending = apperr.New(apperr.Validation, "Can only cancel pending requests")
	ErrPostNotFound      = apperr.New(apperr.NotFound, "Post not found")
	ErrNoUserPosts       = apperr.New(apperr.NotFound, "No posts found for this user")
	ErrLikeFailed        = apperr.New(apperr.Conflict, "Failed to like post")
	ErrCommentFailed     = apperr.New(apperr.Conflict, "Failed to comment on post")
	ErrEmptyContent      = apperr.New(apperr.Validation, "content must not be empty")
	ErrInvalidStatus     = apperr.New(apperr.Validation, "status must be ACCEPTED or REJECTED")
)

// Store is the persistence the service needs. *repo.SocialRepo implements it.
type Store interface {
	CreateFriendRequest(ctx context.Context, senderID, receiverID int64) (*entity.FriendRequest, error)
	GetFriendRequest(ctx context.Context, id int64) (*entity.FriendRequest, error)
	RespondFriendRequest(ctx context.Context, id, receiverID int64, status entity.FriendRequestStatus) (*entity.FriendRequest, error)
	DeletePendingFriendRequest(ctx context.Context, id, senderID int64) error
	CreatePost(ctx context.Context, userID int64, content string) (*entity.Post, error)
	UpdatePost(ctx context.Context, id, userID int64, content string) (*entity.Post, error)
	DeletePost(ctx context.Context, id, userID int64) error
	LikePost(ctx context.Context, postID, userID int64) (*entity.Like, error)
	AddComment(ctx context.Context, postID, userID int64, content string) (*entity.Comment, error)
	ListPosts(ctx context.Context, limit, offset int) ([]entity.PostView, int, error)
	PostsByUsername(ctx context.Context, username string) ([]entity.PostView, error)
	ActivityFeed(ctx context.Context, userID int64, limit, offset int) ([]entity.ActivityView, int, error)
}

type Service struct {
	store  Store
	policy *bluemonday.Policy
	logger *zap.SugaredLogger
}

func NewService(store Store, logger *zap.SugaredLogger) *Service {
	return &Service{store: store, policy: bluemonday.StrictPolicy(), logger: logger}
}

// clean strips markup from user text. The result is HTML-safe; text that is
// empty once stripped is rejected.
func (s *Service) clean(content string) (string, error) {
	out := strings.TrimSpace(s.policy.Sanitize(strings.TrimSpace(content)))
	if out == "" {
		return "", ErrEmptyContent
	}
	return out, nil
}

func (s *Service) SendFriendRequest(ctx context.Context, senderID, receiverID int64) (*entity.FriendRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}
	fr, err := s.store.CreateFriendRequest(ctx, senderID, receiverID)
	switch {
	case errors.Is(err, socialrepo.ErrSelfRequest):
		return nil, ErrSelfRequest
	case errors.Is(err, socialrepo.ErrUnknownUser), errors.Is(err, socialrepo.ErrDuplicateRequest):
		return nil, apperr.Because(ErrSendFailed, err)
	case err != nil:
		return nil, apperr.Wrap(apperr.Persistence, "Failed to send friend request", err)
	}
	s.logger.Infow("friend request sent", "request_id", fr.ID, "sender_id", senderID, "receiver_id", receiverID)
	return fr, nil
}

// RespondFriendRequest lets the receiver accept or reject a pending request.
// Requests that are missing, addressed to someone else or already answered
// all read as not found.
func (s *Service) RespondFriendRequest(ctx context.Context, receiverID, requestID int64, status entity.FriendRequestStatus) (*entity.FriendRequest, error) {
	if status != entity.StatusAccepted && status != entity.StatusRejected {
		return nil, ErrInvalidStatus
	}
	fr, err := s.store.RespondFriendRequest(ctx, requestID, receiverID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to respond to friend request", err)
	}
	s.logger.Infow("friend request answered", "request_id", fr.ID, "status", fr.Status)
	return fr, nil
}

// CancelFriendRequest deletes a pending request on behalf of its sender.
func (s *Service) CancelFriendRequest(ctx context.Context, senderID, requestID int64) error {
	fr, err := s.store.GetFriendRequest(ctx, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRequestNotFound
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "Failed to cancel friend request", err)
	}
	if fr.SenderID != senderID {
		return ErrNotRequestSender
	}
	if fr.Status != entity.StatusPending {
		return ErrRequestNotPending
	}
	err = s.store.DeletePendingFriendRequest(ctx, requestID, senderID)
	if errors.Is(err, socialrepo.ErrNotPending) {
		return ErrRequestNotPending
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "Failed to cancel friend request", err)
	}
	return nil
}

func (s *Service) CreatePost(ctx context.Context, userID int64, content string) (*entity.Post, error) {
	text, err := s.clean(content)
	if err != nil {
		return nil, err
	}
	p, err := s.store.CreatePost(ctx, userID, text)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to create post", err)
	}
	s.logger.Debugw("post created", "post_id", p.ID, "user_id", userID)
	return p, nil
}

// UpdatePost edits a post the caller owns. Posts owned by others read as not
// found.
func (s *Service) UpdatePost(ctx context.Context, userID, postID int64, content string) (*entity.Post, error) {
	text, err := s.clean(content)
	if err != nil {
		return nil, err
	}
	p, err := s.store.UpdatePost(ctx, postID, userID, text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to update post", err)
	}
	return p, nil
}

func (s *Service) DeletePost(ctx context.Context, userID, postID int64) error {
	err := s.store.DeletePost(ctx, postID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPostNotFound
	}
	if err != nil {
		return apperr.Wrap(apperr.Persistence, "Failed to delete post", err)
	}
	s.logger.Debugw("post deleted", "post_id", postID, "user_id", userID)
	return nil
}

func (s *Service) LikePost(ctx context.Context, userID, postID int64) (*entity.Like, error) {
	l, err := s.store.LikePost(ctx, postID, userID)
	switch {
	case errors.Is(err, socialrepo.ErrAlreadyLiked), errors.Is(err, socialrepo.ErrUnknownPost):
		return nil, apperr.Because(ErrLikeFailed, err)
	case err != nil:
		return nil, apperr.Wrap(apperr.Persistence, "Failed to like post", err)
	}
	return l, nil
}

func (s *Service) AddComment(ctx context.Context, userID, postID int64, content string) (*entity.Comment, error) {
	text, err := s.clean(content)
	if err != nil {
		return nil, err
	}
	c, err := s.store.AddComment(ctx, postID, userID, text)
	if errors.Is(err, socialrepo.ErrUnknownPost) {
		return nil, apperr.Because(ErrCommentFailed, err)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to comment on post", err)
	}
	return c, nil
}

// maxPage is the last page whose row offset still fits in an int.
const maxPage = math.MaxInt / PageSize

// pageBounds clamps page to [1, maxPage] and returns it with its row offset.
func pageBounds(page int) (int, int) {
	page = max(1, min(page, maxPage))
	return page, (page - 1) * PageSize
}

func totalPages(total int) int {
	return (total + PageSize - 1) / PageSize
}

func (s *Service) ListPosts(ctx context.Context, page int) (*entity.PostPage, error) {
	page, offset := pageBounds(page)
	posts, total, err := s.store.ListPosts(ctx, PageSize, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to fetch posts", err)
	}
	if posts == nil {
		posts = []entity.PostView{}
	}
	return &entity.PostPage{
		Posts:       posts,
		CurrentPage: page,
		TotalPages:  totalPages(total),
		TotalPosts:  total,
	}, nil
}

func (s *Service) PostsByUsername(ctx context.Context, username string) ([]entity.PostView, error) {
	posts, err := s.store.PostsByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to fetch user posts", err)
	}
	if len(posts) == 0 {
		return nil, ErrNoUserPosts
	}
	return posts, nil
}

// ActivityFeed pages through the caller's own post and comment activity.
func (s *Service) ActivityFeed(ctx context.Context, userID int64, page int) (*entity.ActivityPage, error) {
	page, offset := pageBounds(page)
	feed, total, err := s.store.ActivityFeed(ctx, userID, PageSize, offset)
	if err != nil {
		return nil, apperr.Wrap(apperr.Persistence, "Failed to fetch activity feed", err)
	}
	if feed == nil {
		feed = []entity.ActivityView{}
	}
	return &entity.ActivityPage{
		Activities:      feed,
		CurrentPage:     page,
		TotalPages:      totalPages(total),
		TotalActivities: total,
	}, nil
}
