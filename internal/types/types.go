package types

import "time"

// Notification types delivered to session members.
const (
	DeviceJoined   = "device-joined"
	DeviceLeft     = "device-left"
	FileReceived   = "file-received"
	SessionExpired = "session-expired"
)

// Session is the public view of a session. Membership and files are held by the store.
type Session struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExpiredAt reports whether the session deadline has been reached at t.
func (s Session) ExpiredAt(t time.Time) bool { return !t.Before(s.ExpiresAt) }

type Device struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Conn      Conn      `json:"-"`
	JoinedAt  time.Time `json:"joinedAt"`
}

// FileData is the client supplied part of a file announcement.
type FileData struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

type FileMetadata struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	MimeType   string    `json:"type"`
	UploadedBy string    `json:"uploadedBy"`
	Timestamp  time.Time `json:"timestamp"`
}

// Membership is the payload of device-joined and device-left.
type Membership struct {
	DeviceID    string `json:"deviceId"`
	DeviceCount int    `json:"deviceCount"`
}

type Notification struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Conn is the delivery handle of a device. Send must not block. Implementations
// are used as map keys and must be comparable (pointer types).
type Conn interface {
	Send(n Notification) error
}
