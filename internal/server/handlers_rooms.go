package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Chase-Garrett/towhee/internal/protocol"
	"github.com/Chase-Garrett/towhee/internal/store"
)

type createRoomRequest struct {
	Name        string  `json:"name" validate:"required,min=2,max=60"`
	Description *string `json:"description" validate:"omitempty,max=180"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	room, channel, err := s.store.CreateRoom(r.Context(), req.Name, req.Description, userIDFrom(r.Context()))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"room": room, "channel": channel})
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.store.ListRoomsForUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if rooms == nil {
		rooms = []store.RoomWithDetail{}
	}
	s.respond(w, http.StatusOK, map[string]any{"rooms": rooms})
}

// requireRoomMembership guards room-scoped endpoints.
func (s *Server) requireRoomMembership(r *http.Request, roomID string) error {
	_, err := s.store.RoomMembership(r.Context(), userIDFrom(r.Context()), roomID)
	if errors.Is(err, store.ErrNotFound) {
		return httpError(http.StatusForbidden, "you are not a member of this room")
	}
	return err
}

func (s *Server) handleListRoomChannels(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	if err := s.requireRoomMembership(r, roomID); err != nil {
		s.respondError(w, err)
		return
	}
	channels, err := s.store.ListRoomChannels(r.Context(), roomID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if channels == nil {
		channels = []store.Channel{}
	}
	s.respond(w, http.StatusOK, map[string]any{"channels": channels})
}

type createChannelRequest struct {
	Name string `json:"name" validate:"required,min=2,max=60"`
}

func (s *Server) handleCreateRoomChannel(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	var req createChannelRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.requireRoomMembership(r, roomID); err != nil {
		s.respondError(w, err)
		return
	}

	channel, err := s.store.CreateRoomChannel(r.Context(), roomID, req.Name)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"channel": channel})
}

type inviteRequest struct {
	UserID string `json:"userId" validate:"required"`
}

// handleInviteToRoom adds a friend to a room. Owner-only; the invitee's
// sessions get a rooms:refresh signal so they re-fetch their room list.
func (s *Server) handleInviteToRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	userID := userIDFrom(r.Context())

	var req inviteRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.UserID == userID {
		s.respondError(w, httpError(http.StatusBadRequest, "cannot invite yourself"))
		return
	}

	room, err := s.store.RoomByID(r.Context(), roomID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if room.OwnerID != userID {
		s.respondError(w, httpError(http.StatusForbidden, "only the owner can invite members"))
		return
	}
	target, err := s.store.UserByID(r.Context(), req.UserID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if _, err := s.store.RoomMembership(r.Context(), req.UserID, roomID); err == nil {
		s.respondError(w, httpError(http.StatusConflict, "user is already a member of this room"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.respondError(w, err)
		return
	}
	if _, err := s.store.Friendship(r.Context(), userID, req.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, httpError(http.StatusForbidden, "you can invite only your friends"))
			return
		}
		s.respondError(w, err)
		return
	}

	membership, err := s.store.CreateRoomMembership(r.Context(), req.UserID, roomID, store.RoleMember)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.notifier.NotifyUser(req.UserID, protocol.EventRoomsRefresh)

	s.respond(w, http.StatusCreated, map[string]any{
		"membership": map[string]any{
			"id":        membership.ID,
			"role":      membership.Role,
			"createdAt": membership.CreatedAt,
			"user":      target.Public(),
		},
	})
}

// handleRemoveRoomMember revokes a membership. Members may leave on their
// own; removing anyone else is owner-only. The revocation takes effect on
// the target's next channel action, open sessions included.
func (s *Server) handleRemoveRoomMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	roomID, targetID := vars["roomId"], vars["userId"]
	userID := userIDFrom(r.Context())

	room, err := s.store.RoomByID(r.Context(), roomID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if targetID == room.OwnerID {
		s.respondError(w, httpError(http.StatusBadRequest, "the owner cannot leave their own room"))
		return
	}
	if targetID != userID && room.OwnerID != userID {
		s.respondError(w, httpError(http.StatusForbidden, "only the owner can remove members"))
		return
	}

	if err := s.store.DeleteRoomMembership(r.Context(), targetID, roomID); err != nil {
		s.respondError(w, err)
		return
	}

	s.notifier.NotifyUser(targetID, protocol.EventRoomsRefresh)

	s.respond(w, http.StatusOK, map[string]any{"success": true})
}
