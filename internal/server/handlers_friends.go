package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Chase-Garrett/towhee/internal/protocol"
	"github.com/Chase-Garrett/towhee/internal/store"
)

type friendRequestRequest struct {
	ReceiverID string `json:"receiverId" validate:"required"`
}

func (s *Server) handleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req friendRequestRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}
	if req.ReceiverID == userID {
		s.respondError(w, httpError(http.StatusBadRequest, "cannot send request to yourself"))
		return
	}

	if _, err := s.store.UserByID(r.Context(), req.ReceiverID); err != nil {
		s.respondError(w, err)
		return
	}
	if _, err := s.store.Friendship(r.Context(), userID, req.ReceiverID); err == nil {
		s.respondError(w, httpError(http.StatusConflict, "already friends"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.respondError(w, err)
		return
	}
	if _, err := s.store.PendingFriendRequest(r.Context(), userID, req.ReceiverID); err == nil {
		s.respondError(w, httpError(http.StatusConflict, "friend request already pending"))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		s.respondError(w, err)
		return
	}

	request, err := s.store.CreateFriendRequest(r.Context(), userID, req.ReceiverID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	// both parties re-sync their friends state
	s.notifier.NotifyUser(req.ReceiverID, protocol.EventFriendsRefresh)
	s.notifier.NotifyUser(userID, protocol.EventFriendsRefresh)

	s.respond(w, http.StatusCreated, map[string]any{"request": request})
}

func (s *Server) handleListFriendRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.store.ListFriendRequests(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if requests == nil {
		requests = []store.FriendRequest{}
	}
	s.respond(w, http.StatusOK, map[string]any{"requests": requests})
}

// pendingRequestForReceiver loads a request and checks the caller is its
// receiver and it is still pending.
func (s *Server) pendingRequestForReceiver(r *http.Request, requestID string) (*store.FriendRequest, error) {
	request, err := s.store.FriendRequestByID(r.Context(), requestID)
	if err != nil {
		return nil, err
	}
	if request.Receiver.ID != userIDFrom(r.Context()) {
		return nil, httpError(http.StatusNotFound, "friend request not found")
	}
	if request.Status != store.RequestPending {
		return nil, httpError(http.StatusBadRequest, "friend request already processed")
	}
	return request, nil
}

func (s *Server) handleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	request, err := s.pendingRequestForReceiver(r, mux.Vars(r)["requestId"])
	if err != nil {
		s.respondError(w, err)
		return
	}

	friendship, err := s.store.CreateFriendship(r.Context(), userID, request.Sender.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	if err := s.store.ResolveFriendRequest(r.Context(), request.ID, store.RequestAccepted); err != nil {
		s.respondError(w, err)
		return
	}

	s.notifier.NotifyUser(userID, protocol.EventFriendsRefresh)
	s.notifier.NotifyUser(request.Sender.ID, protocol.EventFriendsRefresh)

	s.respond(w, http.StatusOK, map[string]any{"friendship": friendship})
}

func (s *Server) handleDeclineFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	request, err := s.pendingRequestForReceiver(r, mux.Vars(r)["requestId"])
	if err != nil {
		s.respondError(w, err)
		return
	}

	if err := s.store.ResolveFriendRequest(r.Context(), request.ID, store.RequestDeclined); err != nil {
		s.respondError(w, err)
		return
	}

	s.notifier.NotifyUser(userID, protocol.EventFriendsRefresh)
	s.notifier.NotifyUser(request.Sender.ID, protocol.EventFriendsRefresh)

	s.respond(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.store.ListFriends(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if friends == nil {
		friends = []store.PublicUser{}
	}
	s.respond(w, http.StatusOK, map[string]any{"friends": friends})
}
