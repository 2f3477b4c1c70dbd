package protocol

import "encoding/json"

// Event names exchanged over a gateway connection. Inbound events are sent by
// the client, outbound events by the server; "typing" travels both ways.
const (
	EventSessionReady    = "session:ready"
	EventChannelJoin     = "channel:join"
	EventChannelJoined   = "channel:joined"
	EventChannelLeave    = "channel:leave"
	EventMessageSend     = "message:send"
	EventMessageNew      = "message:new"
	EventTyping          = "typing"
	EventPresenceRequest = "presence:request"
	EventPresenceList    = "presence:list"
	EventFriendsRefresh  = "friends:refresh"
	EventRoomsRefresh    = "rooms:refresh"
	EventError           = "error"
)

// Error codes carried in the error event payload.
const (
	CodeValidationFailed   = "VALIDATION_FAILED"
	CodeNotFound           = "NOT_FOUND"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodePersistenceFailure = "PERSISTENCE_FAILURE"
)

// Envelope frames every event on the wire. Payload stays raw until the
// handler for the named event decodes it.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type SessionReadyPayload struct {
	UserID string `json:"userId"`
}

type ChannelJoinPayload struct {
	ChannelID string `json:"channelId"`
}

type ChannelJoinedPayload struct {
	ChannelID string `json:"channelId"`
}

type MessageSendPayload struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

type TypingPayload struct {
	ChannelID string `json:"channelId"`
	IsTyping  bool   `json:"isTyping"`
}

// TypingEvent is the outbound form of a typing relay, stamped with the
// originating user.
type TypingEvent struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	IsTyping  bool   `json:"isTyping"`
}

type PresenceListPayload struct {
	Users []string `json:"users"`
}

// ErrorPayload is scoped to the action that failed; it is delivered only to
// the session that issued the failing event.
type ErrorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
