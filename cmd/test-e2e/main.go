package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	ws "nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"swiftdrop/server/internal/gateway"
	"swiftdrop/server/internal/types"
)

type message struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	Payload   json.RawMessage `json:"payload"`
}

type peer struct {
	name string
	conn *ws.Conn
}

func main() {
	url := flag.String("url", "ws://localhost:3001/ws", "gateway websocket URL")
	timeout := flag.Duration("timeout", 10*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("=== SwiftDrop E2E ===\n")
	fmt.Printf("Gateway: %s\n\n", *url)

	a := dial(ctx, "A", *url)
	defer a.conn.Close(ws.StatusNormalClosure, "done")
	b := dial(ctx, "B", *url)
	defer b.conn.Close(ws.StatusNormalClosure, "done")

	// Step 1: A creates a session
	fmt.Println("[1] A: create-session")
	a.send(ctx, gateway.CreateSessionRequest, "1", nil)
	var created gateway.CreateReply
	a.expect(ctx, gateway.ReplyMessage, &created)
	if !created.Success {
		log.Fatalf("create-session failed")
	}
	fmt.Printf("    code=%s session=%s device=%s\n", created.Session.Code, created.Session.ID, created.DeviceID)

	// Step 2: B joins by code
	fmt.Println("[2] B: join-session")
	b.send(ctx, gateway.JoinSessionRequest, "2", gateway.JoinRequest{SessionCode: created.Session.Code})
	var joined gateway.JoinReply
	b.expect(ctx, gateway.ReplyMessage, &joined)
	if !joined.Success {
		log.Fatalf("join-session failed")
	}
	var m types.Membership
	a.expect(ctx, types.DeviceJoined, &m)
	fmt.Printf("    A saw device-joined device=%s count=%d\n", m.DeviceID, m.DeviceCount)

	// Step 3: A publishes a file
	fmt.Println("[3] A: publish-file")
	a.send(ctx, gateway.PublishFileRequest, "", gateway.PublishRequest{
		DeviceID: created.DeviceID,
		FileData: types.FileData{Name: "e2e.txt", Size: 42, Type: "text/plain"},
	})
	var meta types.FileMetadata
	b.expect(ctx, types.FileReceived, &meta)
	fmt.Printf("    B saw file-received %q (%d bytes) from %s\n", meta.Name, meta.Size, meta.UploadedBy)

	// Step 4: B leaves
	fmt.Println("[4] B: leave-session")
	b.send(ctx, gateway.LeaveSessionRequest, "4", nil)
	var left gateway.LeaveReply
	b.expect(ctx, gateway.ReplyMessage, &left)
	a.expect(ctx, types.DeviceLeft, &m)
	fmt.Printf("    A saw device-left device=%s count=%d\n", m.DeviceID, m.DeviceCount)

	fmt.Println("\n=== E2E PASSED ===")
}

func dial(ctx context.Context, name, url string) *peer {
	c, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", url, err)
	}
	return &peer{name: name, conn: c}
}

func (p *peer) send(ctx context.Context, typ, reqID string, payload any) {
	msg := map[string]any{"type": typ, "requestId": reqID}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := wsjson.Write(ctx, p.conn, msg); err != nil {
		log.Fatalf("%s: send %s: %v", p.name, typ, err)
	}
}

// expect reads until a message of the given type arrives and decodes its payload into out.
func (p *peer) expect(ctx context.Context, typ string, out any) {
	for {
		var msg message
		if err := wsjson.Read(ctx, p.conn, &msg); err != nil {
			log.Fatalf("%s: waiting for %s: %v", p.name, typ, err)
		}
		if msg.Type != typ {
			fmt.Printf("    %s: skipping %s\n", p.name, msg.Type)
			continue
		}
		if out != nil && len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, out); err != nil {
				log.Fatalf("%s: decode %s: %v", p.name, typ, err)
			}
		}
		return
	}
}
