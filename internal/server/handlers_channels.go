package server

import (
	"errors"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"github.com/Chase-Garrett/towhee/internal/store"
)

type directChannelRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
}

// handleUpsertDirectChannel opens (or returns) the direct channel between
// the caller and a friend. Idempotent: a second call for the same pair
// returns the existing channel, never a duplicate.
func (s *Server) handleUpsertDirectChannel(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req directChannelRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.TargetUserID == userID {
		s.respondError(w, httpError(http.StatusBadRequest, "cannot start a direct chat with yourself"))
		return
	}

	// friendship gates channel creation once, not every message
	if _, err := s.store.Friendship(r.Context(), userID, req.TargetUserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, httpError(http.StatusForbidden, "this user is not in your friend list"))
			return
		}
		s.respondError(w, err)
		return
	}

	existing, err := s.store.DirectChannelBetween(r.Context(), userID, req.TargetUserID)
	if err == nil {
		members, err := s.store.ChannelMembers(r.Context(), existing.ID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		s.respond(w, http.StatusOK, map[string]any{"channel": existing, "members": members})
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		s.respondError(w, err)
		return
	}

	channel, err := s.store.CreateDirectChannel(r.Context(), userID, req.TargetUserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	members, err := s.store.ChannelMembers(r.Context(), channel.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"channel": channel, "members": members})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelId"]
	userID := userIDFrom(r.Context())

	if _, err := s.gw.Authorizer().Authorize(r.Context(), userID, channelID); err != nil {
		s.respondError(w, err)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			s.respondError(w, httpError(http.StatusBadRequest, "limit must be 1-100"))
			return
		}
		limit = n
	}
	cursor := r.URL.Query().Get("cursor")

	messages, err := s.store.ListMessages(r.Context(), channelID, cursor, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}

	var nextCursor *string
	if len(messages) == limit {
		nextCursor = &messages[len(messages)-1].ID
	}
	if messages == nil {
		messages = []store.Message{}
	}
	s.respond(w, http.StatusOK, map[string]any{"messages": messages, "nextCursor": nextCursor})
}

type createMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// handleCreateMessage is the REST send path. It shares the socket
// pipeline's gates and broadcast, so sessions joined to the channel see the
// message in real time regardless of how it was sent.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelId"]
	userID := userIDFrom(r.Context())

	var req createMessageRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if utf8.RuneCountInString(req.Content) > s.gw.MaxMessageLength() {
		s.respondError(w, httpError(http.StatusBadRequest, "message too long"))
		return
	}

	if _, err := s.gw.Authorizer().Authorize(r.Context(), userID, channelID); err != nil {
		s.respondError(w, err)
		return
	}

	message, err := s.gw.SendMessage(r.Context(), channelID, userID, req.Content)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.respond(w, http.StatusCreated, map[string]any{"message": message})
}
