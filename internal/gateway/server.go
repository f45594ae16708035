package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	ws "nhooyr.io/websocket"

	"swiftdrop/server/internal/connstate"
	"swiftdrop/server/internal/joincode"
	"swiftdrop/server/internal/store"
)

type Options struct {
	AllowedOrigins  []string
	SendBuffer      int
	WriteTimeout    time.Duration
	MaxMessageBytes int64
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 << 10
	}
	return o
}

// Server accepts websocket connections and turns their messages into Hub calls.
type Server struct {
	hub     *Hub
	opts    Options
	clients sync.Map // id -> *client
}

func NewServer(hub *Hub, opts Options) *Server {
	return &Server{hub: hub, opts: opts.withDefaults()}
}

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: s.opts.AllowedOrigins})
	if err != nil {
		log.Printf("[gateway] ws accept: %v", err)
		return
	}
	conn.SetReadLimit(s.opts.MaxMessageBytes)

	c := newClient(conn, s.opts.SendBuffer, s.opts.WriteTimeout)
	s.clients.Store(c.id, c)
	gaugeConnections.Inc()
	log.Printf("[gateway] connected conn=%s remote=%s", c.id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx)

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText && typ != ws.MessageBinary {
			continue
		}
		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			metricRequests.WithLabelValues("invalid", "InvalidRequest").Inc()
			log.Printf("[gateway] conn=%s invalid message: %v", c.id, err)
			continue
		}
		s.dispatch(c, msg)
	}

	s.hub.Disconnect(c)
	c.close(ws.StatusNormalClosure, "bye")
	s.clients.Delete(c.id)
	gaugeConnections.Dec()
	log.Printf("[gateway] disconnected conn=%s device=%s", c.id, c.state.DeviceID())
}

func (s *Server) dispatch(c *client, msg Inbound) {
	switch msg.Type {
	case CreateSessionRequest:
		if err := s.ready(c); err != nil {
			s.fail(c, msg, err)
			return
		}
		_, err := s.hub.CreateSession(c, func(rep CreateReply) error {
			return s.accept(c, msg, rep.DeviceID, rep)
		})
		if err != nil {
			s.fail(c, msg, err)
		}

	case JoinSessionRequest:
		if err := s.ready(c); err != nil {
			s.fail(c, msg, err)
			return
		}
		var req JoinRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			s.fail(c, msg, fmt.Errorf("join payload: %w", ErrInvalidRequest))
			return
		}
		code := joincode.Normalize(req.SessionCode)
		if !joincode.Valid(code) {
			s.fail(c, msg, fmt.Errorf("join %q: %w", req.SessionCode, store.ErrSessionNotFound))
			return
		}
		_, err := s.hub.JoinSession(c, code, func(rep JoinReply) error {
			return s.accept(c, msg, rep.DeviceID, rep)
		})
		if err != nil {
			s.fail(c, msg, err)
		}

	case FileUploadStart, PublishFileRequest:
		// No reply: stale or racing publishers are only logged.
		var req PublishRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			metricRequests.WithLabelValues(msg.Type, "InvalidRequest").Inc()
			log.Printf("[gateway] conn=%s bad publish payload: %v", c.id, err)
			return
		}
		if _, err := s.hub.PublishFile(c, req.DeviceID, req.FileData); err != nil {
			metricRequests.WithLabelValues(msg.Type, ErrorCode(err)).Inc()
			log.Printf("[gateway] publish from device=%s dropped: %v", req.DeviceID, err)
			return
		}
		metricRequests.WithLabelValues(msg.Type, "ok").Inc()

	case LeaveSessionRequest:
		s.hub.Leave(c)
		metricRequests.WithLabelValues(msg.Type, "ok").Inc()
		if err := c.reply(Outbound{Type: ReplyMessage, RequestID: msg.RequestID, Payload: LeaveReply{Success: true}, closeAfter: true}); err != nil {
			c.close(ws.StatusNormalClosure, "left")
		}

	case PingRequest:
		_ = c.reply(Outbound{Type: PongMessage, RequestID: msg.RequestID})

	default:
		log.Printf("[gateway] conn=%s unknown message type %q", c.id, msg.Type)
		if msg.RequestID != "" {
			unknown := msg
			unknown.Type = "unknown"
			s.fail(c, unknown, fmt.Errorf("type %q: %w", msg.Type, ErrInvalidRequest))
			return
		}
		metricRequests.WithLabelValues("unknown", "InvalidRequest").Inc()
	}
}

// ready rejects create/join on a connection that is no longer fresh.
func (s *Server) ready(c *client) error {
	switch c.state.State() {
	case connstate.InSession:
		return connstate.ErrAlreadyBound
	case connstate.Disconnected:
		return connstate.ErrClosed
	}
	return nil
}

// accept binds the connection to its new device and queues the success
// reply. It runs under the session lock, so the reply precedes any
// notification addressed to the device.
func (s *Server) accept(c *client, msg Inbound, deviceID string, payload any) error {
	if err := c.state.Bind(deviceID); err != nil {
		return err
	}
	if err := c.reply(Outbound{Type: ReplyMessage, RequestID: msg.RequestID, Payload: payload}); err != nil {
		c.abort(ws.StatusPolicyViolation, "reply not delivered")
		return fmt.Errorf("reply to conn=%s: %w", c.id, err)
	}
	metricRequests.WithLabelValues(msg.Type, "ok").Inc()
	return nil
}

func (s *Server) fail(c *client, msg Inbound, err error) {
	code := ErrorCode(err)
	metricRequests.WithLabelValues(msg.Type, code).Inc()
	log.Printf("[gateway] %s from conn=%s failed: %v", msg.Type, c.id, err)
	if err := c.reply(Outbound{Type: ReplyMessage, RequestID: msg.RequestID, Payload: ErrorReply{Success: false, Error: code}}); err != nil {
		log.Printf("[gateway] reply to conn=%s failed: %v", c.id, err)
	}
}

// CloseAll closes every open connection, e.g. on shutdown.
func (s *Server) CloseAll(reason string) {
	var wg sync.WaitGroup
	s.clients.Range(func(_, v any) bool {
		c := v.(*client)
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.close(ws.StatusGoingAway, reason)
		}()
		return true
	})
	wg.Wait()
}

// Connections reports the number of open websocket connections.
func (s *Server) Connections() int {
	n := 0
	s.clients.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
