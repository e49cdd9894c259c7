package entity

import "time"

type FriendRequestStatus string

const (
	StatusPending  FriendRequestStatus = "PENDING"
	StatusAccepted FriendRequestStatus = "ACCEPTED"
	StatusRejected FriendRequestStatus = "REJECTED"
)

type FriendRequest struct {
	ID         int64               `db:"id" json:"id"`
	SenderID   int64               `db:"sender_id" json:"senderId"`
	ReceiverID int64               `db:"receiver_id" json:"receiverId"`
	Status     FriendRequestStatus `db:"status" json:"status"`
	CreatedAt  time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time           `db:"updated_at" json:"updatedAt"`
}

type Post struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

type Comment struct {
	ID        int64     `db:"id" json:"id"`
	PostID    int64     `db:"post_id" json:"postId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Like struct {
	ID        int64     `db:"id" json:"id"`
	PostID    int64     `db:"post_id" json:"postId"`
	UserID    int64     `db:"user_id" json:"userId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Author is the user summary embedded in posts and feed entries. Queries
// select its columns as "user.<column>".
type Author struct {
	ID           int64   `db:"id" json:"id"`
	Username     string  `db:"username" json:"username"`
	FirstName    string  `db:"first_name" json:"firstName"`
	LastName     string  `db:"last_name" json:"lastName"`
	ProfileImage *string `db:"profile_image" json:"profileImage"`
}

// PostView is a post with its author, comments and likes.
type PostView struct {
	Post
	User     Author    `db:"user" json:"user"`
	Comments []Comment `db:"-" json:"comments"`
	Likes    []Like    `db:"-" json:"likes"`
}

type ActivityCategory string

const (
	CategoryPostCreated  ActivityCategory = "POST_CREATED"
	CategoryCommentAdded ActivityCategory = "COMMENT_ADDED"
)

// Activity is an audit row. PostID references the post the action touched.
type Activity struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"userId"`
	Action    string           `db:"action" json:"action"`
	Category  ActivityCategory `db:"category" json:"category"`
	PostID    *int64           `db:"post_id" json:"postId"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}

// ActivityView is a feed entry. PostContent is set for POST_CREATED entries
// whose post still exists.
type ActivityView struct {
	Activity
	User        Author  `db:"user" json:"user"`
	PostContent *string `db:"post_content" json:"postContent,omitempty"`
}

type PostPage struct {
	Posts       []PostView `json:"posts"`
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	TotalPosts  int        `json:"totalPosts"`
}

type ActivityPage struct {
	Activities      []ActivityView `json:"activities"`
	CurrentPage     int            `json:"currentPage"`
	TotalPages      int            `json:"totalPages"`
	TotalActivities int            `json:"totalActivities"`
}
