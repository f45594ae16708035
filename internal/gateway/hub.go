package gateway

import (
	"context"
	"log"
	"sync"

	"github.com/cespare/xxhash/v2"

	"swiftdrop/server/internal/events"
	"swiftdrop/server/internal/store"
	"swiftdrop/server/internal/types"
)

const lockStripes = 64

// Hub implements the request handlers of the event gateway. Every mutation
// of a session and the broadcast it triggers run under that session's stripe
// lock, so members observe events in mutation order. The store lock is only
// ever taken inside a stripe lock.
type Hub struct {
	store *store.Store
	sink  events.Sink
	debug bool

	locks [lockStripes]sync.Mutex
}

func NewHub(st *store.Store, sink events.Sink) *Hub {
	if sink == nil {
		sink = events.Discard{}
	}
	return &Hub{store: st, sink: sink}
}

// SetDebug enables per-notification logging.
func (h *Hub) SetDebug(on bool) { h.debug = on }

func (h *Hub) lock(sessionID string) func() {
	m := &h.locks[xxhash.Sum64String(sessionID)%lockStripes]
	m.Lock()
	return m.Unlock
}

type CreateReply struct {
	Success  bool          `json:"success"`
	Session  types.Session `json:"session"`
	DeviceID string        `json:"deviceId"`
}

type JoinReply struct {
	Success  bool                 `json:"success"`
	Session  types.Session        `json:"session"`
	DeviceID string               `json:"deviceId"`
	Files    []types.FileMetadata `json:"files"`
}

// CreateSession opens a session with conn as its first device. ack, when
// non-nil, runs under the session lock before any other member can observe
// the device; an ack error rolls the session back.
func (h *Hub) CreateSession(conn types.Conn, ack func(CreateReply) error) (CreateReply, error) {
	if _, err := h.store.FindByConnection(conn); err == nil {
		return CreateReply{}, store.ErrAlreadyInSession
	}
	sess, err := h.store.CreateSession()
	if err != nil {
		return CreateReply{}, err
	}
	unlock := h.lock(sess.ID)
	defer unlock()

	dev, err := h.store.Register(sess.ID, conn)
	if err != nil {
		h.store.Remove(sess.ID)
		return CreateReply{}, err
	}
	rep := CreateReply{Success: true, Session: sess, DeviceID: dev.ID}
	if ack != nil {
		if err := ack(rep); err != nil {
			h.store.Remove(sess.ID)
			return CreateReply{}, err
		}
	}
	h.emit(sess.ID, events.SessionCreated, map[string]any{"code": sess.Code, "device_id": dev.ID, "expires_at": sess.ExpiresAt})
	log.Printf("[gateway] session created code=%s session=%s device=%s", sess.Code, sess.ID, dev.ID)
	return rep, nil
}

// JoinSession admits conn into the session identified by code. Expiry is
// checked again once the session lock is held, so a join racing the sweeper
// either completes before expiry handling or fails. ack runs under the lock
// ahead of the device-joined broadcast; an ack error unregisters the device.
func (h *Hub) JoinSession(conn types.Conn, code string, ack func(JoinReply) error) (JoinReply, error) {
	if _, err := h.store.FindByConnection(conn); err == nil {
		return JoinReply{}, store.ErrAlreadyInSession
	}
	sess, err := h.store.FindByCode(code)
	if err != nil {
		return JoinReply{}, err
	}
	unlock := h.lock(sess.ID)
	defer unlock()

	dev, err := h.store.Register(sess.ID, conn)
	if err != nil {
		return JoinReply{}, err
	}
	rep := JoinReply{Success: true, Session: sess, DeviceID: dev.ID, Files: h.store.Files(sess.ID)}
	if ack != nil {
		if err := ack(rep); err != nil {
			h.store.Unregister(dev.ID)
			return JoinReply{}, err
		}
	}
	count, _ := h.store.DeviceCount(sess.ID)
	h.broadcast(sess.ID, types.Notification{
		Type:    types.DeviceJoined,
		Payload: types.Membership{DeviceID: dev.ID, DeviceCount: count},
	}, dev.ID)
	h.emit(sess.ID, events.DeviceJoined, map[string]any{"device_id": dev.ID, "device_count": count})
	log.Printf("[gateway] device %s joined session code=%s count=%d", dev.ID, sess.Code, count)
	return rep, nil
}

// PublishFile records file metadata from deviceID and relays it to the other
// members. The device must be bound to conn.
func (h *Hub) PublishFile(conn types.Conn, deviceID string, fd types.FileData) (types.FileMetadata, error) {
	dev, err := h.store.Find(deviceID)
	if err != nil || dev.Conn != conn {
		return types.FileMetadata{}, store.ErrDeviceNotFound
	}
	unlock := h.lock(dev.SessionID)
	defer unlock()

	meta, err := h.store.AppendFile(dev.SessionID, deviceID, fd)
	if err != nil {
		return types.FileMetadata{}, err
	}
	h.broadcast(dev.SessionID, types.Notification{Type: types.FileReceived, Payload: meta}, deviceID)
	h.emit(dev.SessionID, events.FilePublished, map[string]any{
		"file_id": meta.ID, "name": meta.Name, "size": meta.Size, "type": meta.MimeType, "uploaded_by": deviceID,
	})
	log.Printf("[gateway] file %q (%d bytes) shared in session=%s", meta.Name, meta.Size, dev.SessionID)
	return meta, nil
}

// Disconnect tears down the device bound to conn, if any.
func (h *Hub) Disconnect(conn types.Conn) {
	h.depart(conn, "disconnect")
}

// Leave is an explicit, client requested departure.
func (h *Hub) Leave(conn types.Conn) {
	h.depart(conn, "leave")
}

func (h *Hub) depart(conn types.Conn, reason string) {
	dev, err := h.store.FindByConnection(conn)
	if err != nil {
		return
	}
	unlock := h.lock(dev.SessionID)
	defer unlock()

	dep, ok := h.store.Unregister(dev.ID)
	if !ok {
		return
	}
	if dep.SessionRemoved {
		h.emit(dev.SessionID, events.SessionClosed, map[string]any{"last_device_id": dev.ID})
		log.Printf("[gateway] empty session=%s cleaned up", dev.SessionID)
		return
	}
	h.broadcast(dev.SessionID, types.Notification{
		Type:    types.DeviceLeft,
		Payload: types.Membership{DeviceID: dev.ID, DeviceCount: dep.Remaining},
	}, dev.ID)
	h.emit(dev.SessionID, events.DeviceLeft, map[string]any{"device_id": dev.ID, "device_count": dep.Remaining, "reason": reason})
	log.Printf("[gateway] device %s left session=%s (%s) count=%d", dev.ID, dev.SessionID, reason, dep.Remaining)
}

// ExpireSessions evicts every session past its deadline: each member is told
// session-expired and then unregistered. It returns the number of sessions evicted.
func (h *Hub) ExpireSessions() int {
	expired := 0
	for _, id := range h.store.ExpiredSessions() {
		if h.expire(id) {
			expired++
		}
	}
	return expired
}

func (h *Hub) expire(sessionID string) bool {
	unlock := h.lock(sessionID)
	defer unlock()

	// The session may have emptied since the scan.
	if !h.store.IsExpired(sessionID) {
		return false
	}
	sess, _ := h.store.Get(sessionID)
	members := h.store.Members(sessionID)
	note := types.Notification{Type: types.SessionExpired}
	for _, d := range members {
		if d.Conn != nil {
			if err := d.Conn.Send(note); err != nil {
				log.Printf("[gateway] session-expired to device=%s failed: %v", d.ID, err)
			}
		}
		h.store.Unregister(d.ID)
	}
	h.store.Remove(sessionID)
	h.emit(sessionID, events.SessionExpired, map[string]any{"code": sess.Code, "devices": len(members)})
	log.Printf("[gateway] session %s expired and cleaned up (%d devices)", sess.Code, len(members))
	return true
}

func (h *Hub) broadcast(sessionID string, n types.Notification, exclude string) {
	delivered := h.store.Broadcast(sessionID, n, exclude)
	if h.debug {
		log.Printf("[gateway] %s -> %d members of session=%s", n.Type, delivered, sessionID)
	}
}

func (h *Hub) emit(sessionID, typ string, payload map[string]any) {
	if err := h.sink.Publish(context.Background(), events.New(sessionID, typ, payload)); err != nil {
		log.Printf("[gateway] event %s session=%s not recorded: %v", typ, sessionID, err)
	}
}
