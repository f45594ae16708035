// Package connstate tracks the lifecycle of one gateway connection:
// Connected -> InSession -> Disconnected. Disconnected is terminal.
package connstate

import (
	"errors"
	"sync"
)

type State int

const (
	Connected State = iota
	InSession
	Disconnected
)

func (s State) String() string {
	switch s {
	case Connected:
		return "connected"
	case InSession:
		return "in_session"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

var (
	ErrAlreadyBound = errors.New("connection already bound to a device")
	ErrClosed       = errors.New("connection closed")
)

type Machine struct {
	mu       sync.Mutex
	state    State
	deviceID string
}

func New() *Machine { return &Machine{} }

// Bind moves a fresh connection into a session.
func (m *Machine) Bind(deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case InSession:
		return ErrAlreadyBound
	case Disconnected:
		return ErrClosed
	}
	m.state = InSession
	m.deviceID = deviceID
	return nil
}

// Close reports whether this call performed the transition.
func (m *Machine) Close() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Disconnected {
		return false
	}
	m.state = Disconnected
	return true
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// DeviceID is empty until Bind succeeds. It survives Close so teardown can still name the device.
func (m *Machine) DeviceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deviceID
}
