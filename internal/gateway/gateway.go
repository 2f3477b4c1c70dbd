package gateway

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gorilla/websocket"

	"github.com/Chase-Garrett/towhee/internal/metrics"
	"github.com/Chase-Garrett/towhee/internal/protocol"
	"github.com/Chase-Garrett/towhee/internal/store"
)

// Store is the slice of the record store the gateway consumes. The gateway
// never owns records; its message copies are transient projections of the
// store's return values.
type Store interface {
	AccessStore
	CreateMessage(ctx context.Context, channelID, authorID, content string) (*store.Message, error)
}

// TokenVerifier validates a handshake credential and yields the identity it
// was issued for. Satisfied by auth.Tokens.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// Notifier is the narrow capability handed to collaborators that need to
// wake a user's sessions after an out-of-band state change. It deliberately
// carries no payload: receivers re-fetch authoritative state themselves.
type Notifier interface {
	NotifyUser(userID, event string)
}

type Config struct {
	MaxMessageLength int
}

// Gateway is the real-time core: it authenticates connections, tracks
// presence, authorizes channel access per action, and fans events out to
// subscribed sessions.
type Gateway struct {
	logger     *slog.Logger
	store      Store
	tokens     TokenVerifier
	presence   *PresenceRegistry
	groups     *GroupManager
	authorizer *Authorizer
	metrics    *metrics.Metrics
	upgrader   websocket.Upgrader
	cfg        Config
	sendMu     sendLocks

	// baseCtx backs store calls instead of any per-connection context: a
	// send that reached persistence completes and broadcasts even if the
	// sender disconnects mid-flight.
	baseCtx context.Context
}

func New(ctx context.Context, logger *slog.Logger, st Store, tokens TokenVerifier, m *metrics.Metrics, cfg Config) *Gateway {
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = 2000
	}
	return &Gateway{
		logger:     logger.With(slog.String("component", "gateway")),
		store:      st,
		tokens:     tokens,
		presence:   NewPresenceRegistry(),
		groups:     NewGroupManager(),
		authorizer: NewAuthorizer(st),
		metrics:    m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg:     cfg,
		baseCtx: ctx,
	}
}

// Presence exposes the registry for collaborators that report liveness
// (user search, profile lookups).
func (g *Gateway) Presence() *PresenceRegistry { return g.presence }

// Authorizer exposes the per-action access check for the HTTP layer's
// membership-guarded endpoints.
func (g *Gateway) Authorizer() *Authorizer { return g.authorizer }

// MaxMessageLength is the content limit in runes, shared by both send paths.
func (g *Gateway) MaxMessageLength() int { return g.cfg.MaxMessageLength }

// extractToken pulls the bearer credential from the handshake, first
// present value wins: explicit auth header, authorization header, query
// parameter.
func extractToken(r *http.Request) string {
	if token := r.Header.Get("X-Auth-Token"); token != "" {
		return token
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimPrefix(header, "Bearer "); token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// HandleWS is the connection handshake. A bad credential refuses the
// transport before the upgrade; nothing about the attempt is registered.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	userID, err := g.tokens.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	s := newSession(g, conn, userID, g.logger)
	g.groups.Register(s)
	cameOnline := g.presence.Increment(userID)
	g.groups.Subscribe(s, UserGroup(userID))

	g.metrics.Connections.Inc()
	g.metrics.OnlineUsers.Set(float64(g.presence.OnlineCount()))

	g.sendEvent(s, protocol.EventSessionReady, protocol.SessionReadyPayload{UserID: userID})
	if cameOnline {
		g.broadcastPresence()
	}
	g.logger.Info("session established", slog.String("userID", userID))

	go s.writePump()
	s.readPump()
}

// handleDisconnect runs unconditionally when a session's transport closes,
// however abruptly: every group subscription is dropped and presence is
// decremented, so no subscription or count can stick.
func (g *Gateway) handleDisconnect(s *Session) {
	g.groups.Deregister(s)
	wentOffline := g.presence.Decrement(s.userID)

	g.metrics.Connections.Dec()
	g.metrics.OnlineUsers.Set(float64(g.presence.OnlineCount()))

	if wentOffline {
		g.broadcastPresence()
	}
	g.logger.Info("session closed", slog.String("userID", s.userID))
}

// dispatch routes one inbound event. Called from the session's read pump,
// so events from one connection never overlap.
func (g *Gateway) dispatch(s *Session, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		g.sendError(s, protocol.EventError, ErrInvalidPayload)
		return
	}

	switch env.Event {
	case protocol.EventChannelJoin, protocol.EventChannelLeave, protocol.EventMessageSend,
		protocol.EventTyping, protocol.EventPresenceRequest:
		// label only known events; client-chosen names would blow up the
		// metric's cardinality
		g.metrics.EventsReceived.WithLabelValues(env.Event).Inc()
	}

	switch env.Event {
	case protocol.EventChannelJoin:
		g.handleJoin(s, env.Payload)
	case protocol.EventChannelLeave:
		g.handleLeave(s, env.Payload)
	case protocol.EventMessageSend:
		g.handleSend(s, env.Payload)
	case protocol.EventTyping:
		g.handleTyping(s, env.Payload)
	case protocol.EventPresenceRequest:
		g.sendEvent(s, protocol.EventPresenceList, protocol.PresenceListPayload{Users: g.presence.ListOnline()})
	default:
		g.sendError(s, env.Event, ErrInvalidPayload)
	}
}

// handleJoin re-authorizes, subscribes, and only then acknowledges: callers
// may not assume delivery of broadcasts until the ack is observed.
func (g *Gateway) handleJoin(s *Session, raw json.RawMessage) {
	var payload protocol.ChannelJoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChannelID == "" {
		g.sendError(s, protocol.EventChannelJoin, ErrInvalidPayload)
		return
	}
	channel, err := g.authorizer.Authorize(g.baseCtx, s.userID, payload.ChannelID)
	if err != nil {
		g.sendError(s, protocol.EventChannelJoin, err)
		return
	}
	g.groups.Subscribe(s, ChannelGroup(channel.ID))
	g.sendEvent(s, protocol.EventChannelJoined, protocol.ChannelJoinedPayload{ChannelID: channel.ID})
}

// handleLeave is best-effort; a malformed payload is silently ignored.
func (g *Gateway) handleLeave(s *Session, raw json.RawMessage) {
	var payload protocol.ChannelJoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChannelID == "" {
		return
	}
	g.groups.Unsubscribe(s, ChannelGroup(payload.ChannelID))
}

// handleSend runs the ingestion pipeline: validate, authorize, persist,
// broadcast. Each step is a hard gate; failure leaves no partial effect.
func (g *Gateway) handleSend(s *Session, raw json.RawMessage) {
	var payload protocol.MessageSendPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChannelID == "" {
		g.sendError(s, protocol.EventMessageSend, ErrInvalidPayload)
		return
	}
	if payload.Content == "" || utf8.RuneCountInString(payload.Content) > g.cfg.MaxMessageLength {
		g.sendError(s, protocol.EventMessageSend, ErrInvalidPayload)
		return
	}
	if _, err := g.authorizer.Authorize(g.baseCtx, s.userID, payload.ChannelID); err != nil {
		g.sendError(s, protocol.EventMessageSend, err)
		return
	}
	if _, err := g.SendMessage(g.baseCtx, payload.ChannelID, s.userID, payload.Content); err != nil {
		g.logger.Error("message persistence failed", slog.Any("error", err))
		g.sendError(s, protocol.EventMessageSend, err)
	}
}

// sendLocks serializes the persist+broadcast step per channel. Striped so
// unrelated channels never contend.
type sendLocks [64]sync.Mutex

func (l *sendLocks) forChannel(channelID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(channelID))
	return &l[h.Sum32()%uint32(len(l))]
}

// SendMessage persists the message and broadcasts it to the channel group
// under the channel's ordering lock: racing sends commit and publish in the
// same order, so subscribers always observe the store's write order. The
// HTTP message endpoint shares this path with the socket pipeline.
func (g *Gateway) SendMessage(ctx context.Context, channelID, authorID, content string) (*store.Message, error) {
	mu := g.sendMu.forChannel(channelID)
	mu.Lock()
	defer mu.Unlock()

	message, err := g.store.CreateMessage(ctx, channelID, authorID, content)
	if err != nil {
		return nil, err
	}
	n := g.groups.Publish(ChannelGroup(message.ChannelID), protocol.EventMessageNew, message)
	g.metrics.MessagesBroadcast.Inc()
	g.metrics.EventsDelivered.Add(float64(n))
	return message, nil
}

// handleTyping relays an advisory typing signal to everyone else in the
// channel. Malformed payloads are dropped without an error event.
func (g *Gateway) handleTyping(s *Session, raw json.RawMessage) {
	var payload protocol.TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ChannelID == "" {
		return
	}
	if _, err := g.authorizer.Authorize(g.baseCtx, s.userID, payload.ChannelID); err != nil {
		g.sendError(s, protocol.EventTyping, err)
		return
	}
	n := g.groups.PublishExcept(ChannelGroup(payload.ChannelID), s, protocol.EventTyping, protocol.TypingEvent{
		ChannelID: payload.ChannelID,
		UserID:    s.userID,
		IsTyping:  payload.IsTyping,
	})
	g.metrics.EventsDelivered.Add(float64(n))
}

// NotifyUser publishes a contentless refresh signal to every session the
// user holds.
func (g *Gateway) NotifyUser(userID, event string) {
	n := g.groups.Publish(UserGroup(userID), event, nil)
	g.metrics.EventsDelivered.Add(float64(n))
}

func (g *Gateway) broadcastPresence() {
	n := g.groups.BroadcastAll(protocol.EventPresenceList, protocol.PresenceListPayload{Users: g.presence.ListOnline()})
	g.metrics.EventsDelivered.Add(float64(n))
}

// sendEvent delivers directly to one session, bypassing groups.
func (g *Gateway) sendEvent(s *Session, event string, payload any) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		g.logger.Error("encode event failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	s.enqueue(data)
	g.metrics.EventsDelivered.Inc()
}

// sendError emits a scoped, non-fatal error event to the failing session
// only. The connection stays open.
func (g *Gateway) sendError(s *Session, action string, err error) {
	g.sendEvent(s, protocol.EventError, protocol.ErrorPayload{
		Type:    action,
		Message: errorCode(err),
	})
}
