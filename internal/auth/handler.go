package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/middleware"
	"github.com/timegarden/backend/internal/models"
)

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type RegisterResponse struct {
	User    UserResponse `json:"user"`
	Balance string       `json:"balance"`
}

type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	acc, err := h.svc.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			httputil.WriteError(w, http.StatusConflict, err.Error())
			return
		}
		h.log.Error("register failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "registration failed")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, RegisterResponse{
		User:    userToResponse(acc.User),
		Balance: acc.Wallet.Available.StringFixed(2),
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing email or password")
		return
	}
	token, u, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httputil.WriteError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.log.Error("login failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LoginResponse{Token: token, User: userToResponse(u)})
}

// Me handles GET /users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.CallerID(r.Context())
	if !ok {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.Me(r.Context(), caller)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		h.log.Error("load current user failed", "error", err, "caller_id", caller)
		httputil.WriteError(w, http.StatusInternalServerError, "internal error")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, userToResponse(u))
}

func userToResponse(u *models.User) UserResponse {
	return UserResponse{ID: u.ID.String(), Email: u.Email, DisplayName: u.DisplayName}
}
