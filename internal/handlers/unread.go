package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/topic"
)

// UnreadResponse represents a user's unread count.
type UnreadResponse struct {
	User   string `json:"user"`
	Unread int64  `json:"unread"`
}

// GetUnread handles GET /users/{id}/unread. Reading does not reset the count.
func (h *Handler) GetUnread(w http.ResponseWriter, r *http.Request) {
	user := sanitizeIdentity(chi.URLParam(r, "id"))
	if !topic.ValidIdentity(user) {
		h.Error(w, http.StatusBadRequest, "invalid user")
		return
	}

	count, err := h.store.UnreadCount(r.Context(), user)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to read unread count")
		return
	}

	h.JSON(w, http.StatusOK, UnreadResponse{User: user, Unread: count})
}
