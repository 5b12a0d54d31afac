package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/karingamassive/membership-service/internal/http/response"
	"github.com/karingamassive/membership-service/internal/observability"
	"github.com/karingamassive/membership-service/internal/service"
)

type UserHandler struct {
	users service.UserServiceInterface
}

func NewUserHandler(users service.UserServiceInterface) *UserHandler {
	return &UserHandler{users: users}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	user, err := h.users.Get(r.Context(), id.UserID)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var in service.UpdateUserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	user, err := h.users.Update(r.Context(), id, in)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	if in.Status != nil || in.Rank != nil {
		observability.Audit(r, "account.updated", "actor_id", id.UserID, "user_id", user.ID, "status", user.Status, "rank", user.Rank)
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.users.List(r.Context(), listInput(r))
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *UserHandler) ListForAdmin(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	page, err := h.users.ListForAdmin(r.Context(), id, listInput(r))
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	var in service.SearchUsersInput
	if !decodeJSON(w, r, &in) {
		return
	}
	page, err := h.users.Search(r.Context(), in)
	if err != nil {
		response.ServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, page)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity(w, r)
	if !ok {
		return
	}
	target, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request", map[string]string{"id": "must be a positive integer"})
		return
	}
	if err := h.users.Delete(r.Context(), actor, target); err != nil {
		response.ServiceError(w, r, err)
		return
	}
	observability.Audit(r, "account.deleted", "actor_id", actor.UserID, "user_id", target)
	response.JSON(w, r, http.StatusOK, map[string]string{"message": "user deleted"})
}

func listInput(r *http.Request) service.ListUsersInput {
	q := r.URL.Query()
	return service.ListUsersInput{
		Page:      queryInt(r, "page"),
		PageSize:  queryInt(r, "page_size"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Status:    q.Get("status"),
		Rank:      q.Get("rank"),
		Area:      q.Get("area"),
	}
}
