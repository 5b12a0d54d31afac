package handler

import (
	"net/http"

	"github.com/karingamassive/membership-service/internal/http/response"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/security"
	"github.com/karingamassive/membership-service/internal/service"
)

type AuthHandler struct {
	auth service.AuthServiceInterface
}

func NewAuthHandler(auth service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Contact  string `json:"contact"`
	Password string `json:"password"`
}

type contactRequest struct {
	Contact string `json:"contact"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	UserID       uint   `json:"user_id"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.auth.Register(r.Context(), in)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "account.registered", "user_id", user.ID)
	response.JSON(w, r, http.StatusCreated, map[string]any{"user": user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.auth.Login(r.Context(), in.Contact, in.Password, security.ClientIP(r))
	if err != nil {
		observability.Audit(r, "auth.login.failed", "remote_ip", security.ClientIP(r))
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.login", "user_id", res.User.ID)
	w.Header().Set("token", res.AccessToken)
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var in contactRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := h.auth.RequestCode(r.Context(), in.Contact, security.ClientIP(r)); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "a verification code has been sent"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in service.ChangePasswordInput
	if !decodeJSON(w, r, &in) {
		return
	}
	res, err := h.auth.ChangePassword(r.Context(), in, security.ClientIP(r))
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.password.changed", "user_id", res.User.ID)
	if res.AccessToken != "" {
		w.Header().Set("token", res.AccessToken)
	}
	response.JSON(w, r, http.StatusOK, res)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if !decodeJSON(w, r, &in) {
		return
	}
	pair, err := h.auth.Refresh(r.Context(), in.RefreshToken, in.UserID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.refresh", "user_id", in.UserID)
	w.Header().Set("token", pair.AccessToken)
	response.JSON(w, r, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.auth.Logout(r.Context(), id.UserID); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "auth.logout", "user_id", id.UserID)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

// Verify reports the identity carried by a valid access token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user_id": id.UserID,
		"rank":    id.Rank,
		"status":  id.Status,
		"area":    id.Area,
	})
}
