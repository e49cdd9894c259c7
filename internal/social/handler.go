package social

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-social/internal/middleware"
	"github.com/ovaphlow/pitchfork/service-social/internal/social/entity"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type messageResponse struct {
	Message string `json:"message"`
}

type FriendRequestBody struct {
	ReceiverID httpx.FlexID `json:"receiverId" validate:"required,gt=0"`
}

func (h *Handler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req FriendRequestBody
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	fr, err := h.svc.SendFriendRequest(r.Context(), me.ID, int64(req.ReceiverID))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, fr)
}

type RespondBody struct {
	Status entity.FriendRequestStatus `json:"status" validate:"required,oneof=ACCEPTED REJECTED"`
}

func (h *Handler) RespondFriendRequest(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "requestId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req RespondBody
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	fr, err := h.svc.RespondFriendRequest(r.Context(), me.ID, id, req.Status)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, fr)
}

func (h *Handler) CancelFriendRequest(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "requestId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.CancelFriendRequest(r.Context(), me.ID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"Friend request cancelled successfully"})
}

type ContentBody struct {
	Content string `json:"content" validate:"required,max=5000"`
}

func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req ContentBody
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	p, err := h.svc.CreatePost(r.Context(), me.ID, req.Content)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "postId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req ContentBody
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	p, err := h.svc.UpdatePost(r.Context(), me.ID, id, req.Content)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "postId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.DeletePost(r.Context(), me.ID, id); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LikePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "postId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	l, err := h.svc.LikePost(r.Context(), me.ID, id)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, l)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "postId")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req ContentBody
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	me, _ := middleware.IdentityFrom(r.Context())
	c, err := h.svc.AddComment(r.Context(), me.ID, id, req.Content)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListPosts(r.Context(), httpx.Page(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) PostsByUsername(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.PostsByUsername(r.Context(), r.PathValue("username"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, posts)
}

func (h *Handler) ActivityFeed(w http.ResponseWriter, r *http.Request) {
	me, _ := middleware.IdentityFrom(r.Context())
	page, err := h.svc.ActivityFeed(r.Context(), me.ID, httpx.Page(r))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

// Register mounts the /api/user routes. Every route sits behind authed.
func (h *Handler) Register(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	routes := map[string]http.HandlerFunc{
		"POST /api/user/friend-request":               h.SendFriendRequest,
		"PUT /api/user/friend-request/{requestId}":    h.RespondFriendRequest,
		"DELETE /api/user/friend-request/{requestId}": h.CancelFriendRequest,
		"GET /api/user/posts":                         h.ListPosts,
		"POST /api/user/posts":                        h.CreatePost,
		"GET /api/user/posts/user/{username}":         h.PostsByUsername,
		"PUT /api/user/posts/{postId}":                h.UpdatePost,
		"DELETE /api/user/posts/{postId}":             h.DeletePost,
		"POST /api/user/posts/{postId}/like":          h.LikePost,
		"POST /api/user/posts/{postId}/comment":       h.AddComment,
		"GET /api/user/activity-feed":                 h.ActivityFeed,
	}
	for pattern, fn := range routes {
		mux.Handle(pattern, authed(fn))
	}
}
