package store

import (
	"fmt"

	"github.com/google/uuid"

	"swiftdrop/server/internal/joincode"
	"swiftdrop/server/internal/types"
)

// CreateSession inserts an empty session with a code unused by any session in the store.
func (s *Store) CreateSession() (types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := ""
	for i := 0; i < s.codeAttempts; i++ {
		c := s.codes()
		if _, taken := s.byCode[c]; !taken {
			code = c
			break
		}
		metricCodeCollisions.Inc()
	}
	if code == "" {
		return types.Session{}, fmt.Errorf("create session after %d attempts: %w", s.codeAttempts, ErrCodeSpaceExhausted)
	}

	now := s.now()
	sess := &session{
		Session: types.Session{
			ID:        uuid.New().String(),
			Code:      code,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		},
		devices: make(map[string]struct{}),
		files:   []types.FileMetadata{},
	}
	s.sessions[sess.ID] = sess
	s.byCode[code] = sess.ID
	metricSessionsCreated.Inc()
	gaugeSessions.Set(float64(len(s.sessions)))
	return sess.Session, nil
}

// FindByCode only returns sessions that are still accepting joins.
func (s *Store) FindByCode(code string) (types.Session, error) {
	code = joincode.Normalize(code)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byCode[code]
	if !ok {
		return types.Session{}, ErrSessionNotFound
	}
	sess := s.sessions[id]
	if sess == nil || sess.ExpiredAt(s.now()) {
		return types.Session{}, ErrSessionNotFound
	}
	return sess.Session, nil
}

func (s *Store) Get(id string) (types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return types.Session{}, ErrSessionNotFound
	}
	return sess.Session, nil
}

// AppendFile records file metadata announced by a member of a live session.
func (s *Store) AppendFile(sessionID, uploadedBy string, fd types.FileData) (types.FileMetadata, error) {
	if fd.Size < 0 {
		return types.FileMetadata{}, ErrInvalidFile
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return types.FileMetadata{}, ErrSessionNotFound
	}
	now := s.now()
	if sess.ExpiredAt(now) {
		return types.FileMetadata{}, ErrSessionExpired
	}
	if _, member := sess.devices[uploadedBy]; !member {
		return types.FileMetadata{}, ErrDeviceNotFound
	}
	meta := types.FileMetadata{
		ID:         uuid.New().String(),
		Name:       fd.Name,
		Size:       fd.Size,
		MimeType:   fd.Type,
		UploadedBy: uploadedBy,
		Timestamp:  now,
	}
	sess.files = append(sess.files, meta)
	metricFilesPublished.Inc()
	return meta, nil
}

// Files returns a copy of the session's file history in upload order.
func (s *Store) Files(sessionID string) []types.FileMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return []types.FileMetadata{}
	}
	out := make([]types.FileMetadata, len(sess.files))
	copy(out, sess.files)
	return out
}

func (s *Store) DeviceCount(sessionID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return 0, false
	}
	return len(sess.devices), true
}

// Members returns the device records of a session.
func (s *Store) Members(sessionID string) []types.Device {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]types.Device, 0, len(sess.devices))
	for id := range sess.devices {
		if d := s.devices[id]; d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// IsExpired reports false for sessions that no longer exist.
func (s *Store) IsExpired(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	return ok && sess.ExpiredAt(s.now())
}

// ExpiredSessions lists the ids of sessions past their deadline.
func (s *Store) ExpiredSessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	var out []string
	for id, sess := range s.sessions {
		if sess.ExpiredAt(now) {
			out = append(out, id)
		}
	}
	return out
}

// Remove deletes a session and every device record pointing at it. Removing
// an unknown session is a no-op.
func (s *Store) Remove(sessionID string) []types.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]types.Device, 0, len(sess.devices))
	for id := range sess.devices {
		if d := s.devices[id]; d != nil {
			out = append(out, *d)
			delete(s.byConn, d.Conn)
			delete(s.devices, id)
		}
	}
	s.deleteSession(sess, "removed")
	gaugeDevices.Set(float64(len(s.devices)))
	return out
}

func (s *Store) addDevice(sess *session, deviceID string) {
	sess.devices[deviceID] = struct{}{}
}

// removeDevice drops a member and deletes the session once it is empty.
func (s *Store) removeDevice(sess *session, deviceID string) (remaining int, removed bool) {
	delete(sess.devices, deviceID)
	if len(sess.devices) == 0 {
		s.deleteSession(sess, "empty")
		return 0, true
	}
	return len(sess.devices), false
}

func (s *Store) deleteSession(sess *session, reason string) {
	delete(s.sessions, sess.ID)
	if s.byCode[sess.Code] == sess.ID {
		delete(s.byCode, sess.Code)
	}
	metricSessionsRemoved.WithLabelValues(reason).Inc()
	gaugeSessions.Set(float64(len(s.sessions)))
}
