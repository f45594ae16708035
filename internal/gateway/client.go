package gateway

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"swiftdrop/server/internal/connstate"
	"swiftdrop/server/internal/types"
)

var (
	errClientClosed = errors.New("connection closed")
	errQueueFull    = errors.New("send queue full")
)

// client is one websocket connection. All writes go through out and are
// performed by writeLoop, so Send never blocks the caller.
type client struct {
	id           string
	conn         *ws.Conn
	state        *connstate.Machine
	out          chan Outbound
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
}

func newClient(conn *ws.Conn, buffer int, writeTimeout time.Duration) *client {
	return &client{
		id:           uuid.New().String(),
		conn:         conn,
		state:        connstate.New(),
		out:          make(chan Outbound, buffer),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
	}
}

// Send implements types.Conn. A session-expired that cannot be queued
// closes the connection directly, since its device is gone either way.
func (c *client) Send(n types.Notification) error {
	expired := n.Type == types.SessionExpired
	err := c.enqueue(Outbound{Type: n.Type, Payload: n.Payload, closeAfter: expired})
	if err != nil && expired {
		c.abort(ws.StatusGoingAway, n.Type)
	}
	return err
}

func (c *client) enqueue(msg Outbound) error {
	select {
	case <-c.done:
		metricNotificationsDropped.WithLabelValues("closed").Inc()
		return errClientClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		metricNotificationsDropped.WithLabelValues("closed").Inc()
		return errClientClosed
	default:
		metricNotificationsDropped.WithLabelValues("queue_full").Inc()
		return errQueueFull
	}
}

// reply waits up to the write timeout for queue space.
func (c *client) reply(msg Outbound) error {
	t := time.NewTimer(c.writeTimeout)
	defer t.Stop()
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return errClientClosed
	case <-t.C:
		metricNotificationsDropped.WithLabelValues("queue_full").Inc()
		return errQueueFull
	}
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				metricNotificationsDropped.WithLabelValues("write_error").Inc()
				log.Printf("[gateway] write %s to conn=%s failed: %v", msg.Type, c.id, err)
				c.close(ws.StatusInternalError, "write failed")
				return
			}
			metricNotificationsSent.WithLabelValues(msg.Type).Inc()
			if msg.closeAfter {
				c.close(ws.StatusNormalClosure, msg.Type)
				return
			}
		}
	}
}

// close moves the connection to Disconnected and closes the socket once.
func (c *client) close(code ws.StatusCode, reason string) {
	c.shutdown(code, reason, false)
}

// abort is close for callers holding a session lock: the state change is
// immediate, the close handshake runs in the background.
func (c *client) abort(code ws.StatusCode, reason string) {
	c.shutdown(code, reason, true)
}

func (c *client) shutdown(code ws.StatusCode, reason string, background bool) {
	c.closeOnce.Do(func() {
		c.state.Close()
		close(c.done)
		if c.conn == nil {
			return
		}
		if background {
			go c.conn.Close(code, reason)
			return
		}
		_ = c.conn.Close(code, reason)
	})
}
