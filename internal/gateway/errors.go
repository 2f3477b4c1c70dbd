package gateway

import (
	"errors"

	"github.com/Chase-Garrett/towhee/internal/protocol"
)

var (
	// ErrChannelNotFound means the target channel does not exist.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrAccessDenied means the user holds no membership granting access to
	// the channel.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvalidPayload means the event payload failed shape validation.
	ErrInvalidPayload = errors.New("invalid payload")
)

// errorCode maps a handler failure onto the wire taxonomy. Anything not
// recognized is a store failure.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return protocol.CodeNotFound
	case errors.Is(err, ErrAccessDenied):
		return protocol.CodeAccessDenied
	case errors.Is(err, ErrInvalidPayload):
		return protocol.CodeValidationFailed
	default:
		return protocol.CodePersistenceFailure
	}
}
