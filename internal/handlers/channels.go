package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/models"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/store"
	"github.com/prgrms-be-devcourse/NBE4-5-3-Team02-sub000/internal/topic"
)

// ChannelListResponse represents the channels list response.
type ChannelListResponse struct {
	User     string   `json:"user"`
	Channels []string `json:"channels"`
	Total    int      `json:"total"`
}

// HistoryResponse represents a channel's history.
type HistoryResponse struct {
	Channel  string           `json:"channel"`
	Messages []models.Message `json:"messages"`
}

// ListChannels handles GET /channels?user={id}.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	user := sanitizeIdentity(r.URL.Query().Get("user"))
	if !topic.ValidIdentity(user) {
		h.Error(w, http.StatusBadRequest, "user is required")
		return
	}

	channels, err := h.store.ListChannels(r.Context(), user)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list channels")
		return
	}

	h.JSON(w, http.StatusOK, ChannelListResponse{
		User:     user,
		Channels: channels,
		Total:    len(channels),
	})
}

// GetHistory handles GET /channels/{channel}/messages.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	channel, ok := channelParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel")
		return
	}

	messages, err := h.store.History(r.Context(), channel)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	h.JSON(w, http.StatusOK, HistoryResponse{
		Channel:  channel,
		Messages: messages,
	})
}

// DeleteChannel handles DELETE /channels/{channel}.
func (h *Handler) DeleteChannel(w http.ResponseWriter, r *http.Request) {
	channel, ok := channelParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel")
		return
	}

	if err := h.store.DeleteChannel(r.Context(), channel); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete channel")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SoftDeleteMessage handles DELETE /channels/{channel}/messages/{id}?user={id}.
// The message stays in history with the caller's side flagged as deleted.
func (h *Handler) SoftDeleteMessage(w http.ResponseWriter, r *http.Request) {
	channel, ok := channelParam(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid channel")
		return
	}
	user := sanitizeIdentity(r.URL.Query().Get("user"))
	if !topic.ValidIdentity(user) {
		h.Error(w, http.StatusBadRequest, "user is required")
		return
	}

	msg, err := h.store.SoftDelete(r.Context(), channel, chi.URLParam(r, "id"), user)
	switch {
	case errors.Is(err, store.ErrNotParticipant):
		h.Error(w, http.StatusForbidden, "user is not part of this conversation")
		return
	case errors.Is(err, store.ErrMessageNotFound):
		h.Error(w, http.StatusNotFound, "message not found")
		return
	case err != nil:
		h.Error(w, http.StatusInternalServerError, "failed to delete message")
		return
	}

	h.JSON(w, http.StatusOK, msg)
}
