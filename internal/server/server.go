package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Chase-Garrett/towhee/internal/auth"
	"github.com/Chase-Garrett/towhee/internal/gateway"
	"github.com/Chase-Garrett/towhee/internal/store"
)

// Server holds the HTTP surface: the CRUD endpoints, the websocket upgrade
// and operational endpoints. Friend and room handlers reach the real-time
// layer only through the narrow notifier capability.
type Server struct {
	logger   *slog.Logger
	store    *store.Store
	tokens   *auth.Tokens
	gw       *gateway.Gateway
	notifier gateway.Notifier
	validate *validator.Validate
	http     *http.Server

	shutdownTimeout time.Duration
}

func New(logger *slog.Logger, st *store.Store, tokens *auth.Tokens, gw *gateway.Gateway, reg *prometheus.Registry, addr string, shutdownTimeout time.Duration) *Server {
	s := &Server{
		logger:          logger.With(slog.String("component", "http")),
		store:           st,
		tokens:          tokens,
		gw:              gw,
		notifier:        gw,
		validate:        validator.New(),
		shutdownTimeout: shutdownTimeout,
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/ws", gw.HandleWS)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.requireAuth(s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/auth/profile", s.requireAuth(s.handleUpdateProfile)).Methods(http.MethodPatch)

	api.HandleFunc("/users/search", s.requireAuth(s.handleSearchUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users/{userId}", s.requireAuth(s.handleUserProfile)).Methods(http.MethodGet)

	api.HandleFunc("/rooms", s.requireAuth(s.handleCreateRoom)).Methods(http.MethodPost)
	api.HandleFunc("/rooms", s.requireAuth(s.handleListRooms)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/channels", s.requireAuth(s.handleListRoomChannels)).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomId}/channels", s.requireAuth(s.handleCreateRoomChannel)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/invite", s.requireAuth(s.handleInviteToRoom)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomId}/members/{userId}", s.requireAuth(s.handleRemoveRoomMember)).Methods(http.MethodDelete)

	api.HandleFunc("/channels/direct", s.requireAuth(s.handleUpsertDirectChannel)).Methods(http.MethodPost)
	api.HandleFunc("/channels/{channelId}/messages", s.requireAuth(s.handleListMessages)).Methods(http.MethodGet)
	api.HandleFunc("/channels/{channelId}/messages", s.requireAuth(s.handleCreateMessage)).Methods(http.MethodPost)

	api.HandleFunc("/friends/requests", s.requireAuth(s.handleSendFriendRequest)).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests", s.requireAuth(s.handleListFriendRequests)).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests/{requestId}/accept", s.requireAuth(s.handleAcceptFriendRequest)).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests/{requestId}/decline", s.requireAuth(s.handleDeclineFriendRequest)).Methods(http.MethodPost)
	api.HandleFunc("/friends", s.requireAuth(s.handleListFriends)).Methods(http.MethodGet)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler exposes the router, primarily for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}
