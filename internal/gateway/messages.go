package gateway

import (
	"encoding/json"

	"swiftdrop/server/internal/types"
)

// Inbound request types.
const (
	CreateSessionRequest = "create-session"
	JoinSessionRequest   = "join-session"
	FileUploadStart      = "file-upload-start"
	PublishFileRequest   = "publish-file"
	LeaveSessionRequest  = "leave-session"
	PingRequest          = "ping"
)

// Outbound message types besides the notifications in package types.
const (
	ReplyMessage = "reply"
	PongMessage  = "pong"
)

// Inbound is a client message. RequestID is echoed on the reply.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type Outbound struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`

	closeAfter bool
}

type JoinRequest struct {
	SessionCode string `json:"sessionCode"`
}

type PublishRequest struct {
	DeviceID string         `json:"deviceId"`
	FileData types.FileData `json:"fileData"`
}

type ErrorReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type LeaveReply struct {
	Success bool `json:"success"`
}
