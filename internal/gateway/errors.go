package gateway

import (
	"errors"

	"swiftdrop/server/internal/connstate"
	"swiftdrop/server/internal/store"
)

var ErrInvalidRequest = errors.New("invalid request")

// ErrorCode maps an error to the code sent in failed replies.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, store.ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, store.ErrSessionExpired):
		return "SessionExpired"
	case errors.Is(err, store.ErrDeviceNotFound):
		return "DeviceNotFound"
	case errors.Is(err, store.ErrAlreadyInSession), errors.Is(err, connstate.ErrAlreadyBound):
		return "AlreadyInSession"
	case errors.Is(err, connstate.ErrClosed):
		return "ConnectionClosed"
	case errors.Is(err, store.ErrCodeSpaceExhausted):
		return "CodeUnavailable"
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, store.ErrInvalidFile):
		return "InvalidRequest"
	}
	return "InternalError"
}
