package user

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-social/internal/middleware"
	"github.com/ovaphlow/pitchfork/service-social/internal/user/entity"
)

// Handler exposes the /api/auth endpoints.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type messageResponse struct {
	Message string `json:"message"`
}

// SignupRequest is the signup body. A role in the body is ignored.
type SignupRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,max=72"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	_, err := h.svc.Signup(r.Context(), SignupInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, messageResponse{"User created successfully. Please verify your email."})
}

type EmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"OTP sent to email"})
}

type VerifyEmailRequest struct {
	Email string           `json:"email" validate:"required,email"`
	OTP   httpx.FlexString `json:"otp" validate:"required"`
}

func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req.Email, string(req.OTP)); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"Email verified successfully"})
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	id, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Message: "OTP sent to email", UserID: id})
}

type VerifyLoginOTPRequest struct {
	UserID httpx.FlexID     `json:"userId" validate:"required,gt=0"`
	OTP    httpx.FlexString `json:"otp" validate:"required"`
}

type VerifyLoginOTPResponse struct {
	Message string         `json:"message"`
	Token   string         `json:"token"`
	User    entity.Profile `json:"user"`
}

func (h *Handler) VerifyLoginOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyLoginOTPRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	res, err := h.svc.VerifyLoginOTP(r.Context(), int64(req.UserID), string(req.OTP))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, VerifyLoginOTPResponse{Message: "Login successful", Token: res.Token, User: res.User})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"Password reset instructions sent"})
}

type VerifyResetOTPRequest struct {
	Email string           `json:"email" validate:"required,email"`
	OTP   httpx.FlexString `json:"otp" validate:"required"`
}

func (h *Handler) VerifyResetOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetOTPRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.svc.VerifyResetOTP(r.Context(), req.Email, string(req.OTP)); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"OTP verified successfully"})
}

type ResetPasswordRequest struct {
	Email       string           `json:"email" validate:"required,email"`
	OTP         httpx.FlexString `json:"otp" validate:"required"`
	NewPassword string           `json:"newPassword" validate:"required,max=72"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, string(req.OTP), req.NewPassword); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"Password reset successfully"})
}

type UpdateProfileRequest struct {
	FirstName    *string `json:"firstName" validate:"omitnil,min=1,max=100"`
	LastName     *string `json:"lastName" validate:"omitnil,min=1,max=100"`
	ProfileImage *string `json:"profileImage" validate:"omitempty,url"`
}

type UserResponse struct {
	Message string          `json:"message"`
	User    *entity.Profile `json:"user"`
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	var req UpdateProfileRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	p, err := h.svc.UpdateProfile(r.Context(), id.ID, entity.ProfileUpdate{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, UserResponse{Message: "User updated successfully", User: p})
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFrom(r.Context())
	if err := h.svc.DeleteAccount(r.Context(), id.ID); err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, messageResponse{"User deleted successfully"})
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.SearchByUsername(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, sum)
}

type RecentUsersResponse struct {
	Message string           `json:"message,omitempty"`
	Users   []entity.Summary `json:"users"`
}

func (h *Handler) RecentUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.RecentUsers(r.Context())
	if err != nil {
		httpx.WriteError(w, r, h.logger, err)
		return
	}
	resp := RecentUsersResponse{Users: users}
	if len(users) == 0 {
		resp = RecentUsersResponse{Message: "No users to show", Users: []entity.Summary{}}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// Register mounts the auth routes. authed wraps handlers that need a bearer
// token.
func (h *Handler) Register(mux *http.ServeMux, authed func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/auth/signup", h.Signup)
	mux.HandleFunc("POST /api/auth/resend-otp", h.ResendOTP)
	mux.HandleFunc("POST /api/auth/verify-otp", h.VerifyEmail)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/verify-login-otp", h.VerifyLoginOTP)
	mux.HandleFunc("POST /api/auth/forgot-password", h.ForgotPassword)
	mux.HandleFunc("POST /api/auth/verify-reset-otp", h.VerifyResetOTP)
	mux.HandleFunc("POST /api/auth/reset-password", h.ResetPassword)

	mux.Handle("PUT /api/auth/user", authed(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("DELETE /api/auth/user", authed(http.HandlerFunc(h.DeleteAccount)))
	mux.Handle("GET /api/auth/user/search", authed(http.HandlerFunc(h.Search)))
	mux.Handle("GET /api/auth/recent-users", authed(http.HandlerFunc(h.RecentUsers)))
}
