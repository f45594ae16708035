package store

import (
	"log"

	"swiftdrop/server/internal/types"
)

// Broadcast delivers n to every member of the session except the device
// exclude. Delivery failures are logged and counted, never returned.
func (s *Store) Broadcast(sessionID string, n types.Notification, exclude string) int {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		s.mu.RUnlock()
		return 0
	}
	targets := make([]types.Device, 0, len(sess.devices))
	for id := range sess.devices {
		if id == exclude {
			continue
		}
		if d := s.devices[id]; d != nil && d.Conn != nil {
			targets = append(targets, *d)
		}
	}
	s.mu.RUnlock()

	delivered := 0
	for _, d := range targets {
		if err := d.Conn.Send(n); err != nil {
			metricBroadcastFailures.WithLabelValues(n.Type).Inc()
			log.Printf("[store] broadcast %s to device=%s session=%s failed: %v", n.Type, d.ID, sessionID, err)
			continue
		}
		delivered++
	}
	return delivered
}
