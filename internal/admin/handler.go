package admin

import (
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-social/internal/middleware"
	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.ListUsers(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, users)
}

// RestrictRequest sets the flag when IsRestricted is present and toggles it
// otherwise.
type RestrictRequest struct {
	IsRestricted *bool `json:"isRestricted"`
}

type RestrictResponse struct {
	Message string            `json:"message"`
	User    *entity.AdminView `json:"user"`
}

func (h *Handler) Restrict(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	var req RestrictRequest
	// an empty body, chunked or not, means toggle
	if err := httpx.Decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	actor, _ := middleware.IdentityFrom(r.Context())
	u, err := h.svc.SetRestricted(r.Context(), actor.ID, id, req.IsRestricted)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, RestrictResponse{Message: "User restriction status updated", User: u})
}

// Register mounts the admin routes behind guard, which must authenticate the
// caller and require the admin role.
func (h *Handler) Register(mux *http.ServeMux, guard func(http.Handler) http.Handler) {
	mux.Handle("GET /api/admin/users", guard(http.HandlerFunc(h.ListUsers)))
	mux.Handle("PUT /api/admin/users/{id}/restrict", guard(http.HandlerFunc(h.Restrict)))
}
