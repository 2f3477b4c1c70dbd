package server

import (
	"errors"
	"net/http"

	"github.com/Chase-Garrett/towhee/internal/auth"
	"github.com/Chase-Garrett/towhee/internal/store"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	DisplayName string `json:"displayName" validate:"required,min=2,max=50"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), req.Email, hash, req.DisplayName)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			s.respondError(w, httpError(http.StatusConflict, "email already registered"))
			return
		}
		s.respondError(w, err)
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusCreated, map[string]any{"user": user.Public(), "token": token})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	user, err := s.store.UserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, httpError(http.StatusUnauthorized, "invalid credentials"))
			return
		}
		s.respondError(w, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		s.respondError(w, httpError(http.StatusUnauthorized, "invalid credentials"))
		return
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"user": user.Public(), "token": token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.UserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"user": user.Public()})
}

type updateProfileRequest struct {
	DisplayName   *string `json:"displayName" validate:"omitempty,min=2,max=50"`
	StatusMessage *string `json:"statusMessage" validate:"omitempty,max=120"`
	AvatarURL     *string `json:"avatarUrl" validate:"omitempty,url"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondError(w, err)
		return
	}

	// an explicit empty string clears the field, absence leaves it unchanged
	upd := store.ProfileUpdate{
		DisplayName:   req.DisplayName,
		StatusMessage: req.StatusMessage,
		AvatarURL:     req.AvatarURL,
	}
	if req.StatusMessage != nil && *req.StatusMessage == "" {
		upd.StatusMessage, upd.ClearStatus = nil, true
	}
	if req.AvatarURL != nil && *req.AvatarURL == "" {
		upd.AvatarURL, upd.ClearAvatar = nil, true
	}
	user, err := s.store.UpdateProfile(r.Context(), userIDFrom(r.Context()), upd)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"user": user.Public()})
}
