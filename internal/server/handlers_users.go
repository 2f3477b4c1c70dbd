package server

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/Chase-Garrett/towhee/internal/store"
)

// userWithPresence decorates the public projection with live presence.
type userWithPresence struct {
	store.PublicUser
	IsOnline bool `json:"isOnline"`
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" || len(q) > 50 {
		s.respondError(w, httpError(http.StatusBadRequest, "query must be 1-50 characters"))
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 20 {
			s.respondError(w, httpError(http.StatusBadRequest, "limit must be 1-20"))
			return
		}
		limit = n
	}

	users, err := s.store.SearchUsers(r.Context(), q, userIDFrom(r.Context()), limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	results := make([]userWithPresence, 0, len(users))
	for _, u := range users {
		results = append(results, userWithPresence{PublicUser: u, IsOnline: s.gw.Presence().IsOnline(u.ID)})
	}
	s.respond(w, http.StatusOK, map[string]any{"users": results})
}

func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	user, err := s.store.UserByID(r.Context(), userID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"user": userWithPresence{PublicUser: user.Public(), IsOnline: s.gw.Presence().IsOnline(user.ID)},
	})
}
