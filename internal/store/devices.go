package store

import (
	"github.com/google/uuid"

	"swiftdrop/server/internal/types"
)

// Departure describes the effect of unregistering a device.
type Departure struct {
	Device         types.Device
	Remaining      int
	SessionRemoved bool
}

// Register admits a new device bound to conn into a live session.
func (s *Store) Register(sessionID string, conn types.Conn) (types.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, bound := s.byConn[conn]; bound {
		return types.Device{}, ErrAlreadyInSession
	}
	sess, ok := s.sessions[sessionID]
	if !ok {
		return types.Device{}, ErrSessionNotFound
	}
	now := s.now()
	if sess.ExpiredAt(now) {
		return types.Device{}, ErrSessionExpired
	}
	d := &types.Device{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Conn:      conn,
		JoinedAt:  now,
	}
	s.devices[d.ID] = d
	s.byConn[conn] = d.ID
	s.addDevice(sess, d.ID)
	gaugeDevices.Set(float64(len(s.devices)))
	return *d, nil
}

// Unregister removes a device. Unknown ids are ignored and report false.
func (s *Store) Unregister(deviceID string) (Departure, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return Departure{}, false
	}
	delete(s.devices, deviceID)
	if s.byConn[d.Conn] == deviceID {
		delete(s.byConn, d.Conn)
	}
	gaugeDevices.Set(float64(len(s.devices)))

	dep := Departure{Device: *d, SessionRemoved: true}
	if sess, ok := s.sessions[d.SessionID]; ok {
		dep.Remaining, dep.SessionRemoved = s.removeDevice(sess, deviceID)
	}
	return dep, true
}

func (s *Store) Find(deviceID string) (types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return types.Device{}, ErrDeviceNotFound
	}
	return *d, nil
}

func (s *Store) FindByConnection(conn types.Conn) (types.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byConn[conn]
	if !ok {
		return types.Device{}, ErrDeviceNotFound
	}
	d, ok := s.devices[id]
	if !ok {
		return types.Device{}, ErrDeviceNotFound
	}
	return *d, nil
}
