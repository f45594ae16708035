package health

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"swiftdrop/server/internal/store"
)

type fakeRegistry struct{ st store.Stats }

func (f fakeRegistry) Stats() store.Stats { return f.st }

type fakeSweeper struct {
	started, last time.Time
	interval      time.Duration
}

func (f fakeSweeper) StartedAt() time.Time    { return f.started }
func (f fakeSweeper) LastTick() time.Time     { return f.last }
func (f fakeSweeper) Interval() time.Duration { return f.interval }

func TestCheckSweeper(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		sw   fakeSweeper
		ok   bool
	}{
		{"not started", fakeSweeper{interval: time.Second}, false},
		{"waiting for first tick", fakeSweeper{started: now.Add(-time.Second), interval: 30 * time.Second}, true},
		{"never ticked", fakeSweeper{started: now.Add(-time.Hour), interval: 30 * time.Second}, false},
		{"recent tick", fakeSweeper{started: now.Add(-time.Hour), last: now.Add(-10 * time.Second), interval: 30 * time.Second}, true},
		{"stale tick", fakeSweeper{started: now.Add(-time.Hour), last: now.Add(-2 * time.Minute), interval: 30 * time.Second}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := checkSweeper(context.Background(), tc.sw, now)
			if got.OK != tc.ok {
				t.Fatalf("expected ok=%v, got %+v", tc.ok, got)
			}
		})
	}
}

func TestCheckAll(t *testing.T) {
	reg := fakeRegistry{st: store.Stats{Sessions: 2, Devices: 5}}
	sw := fakeSweeper{started: time.Now(), last: time.Now(), interval: time.Second}

	st := CheckAll(context.Background(), reg, sw)
	if !st.OK || len(st.Checks) != 2 {
		t.Fatalf("expected healthy status, got %+v", st)
	}
	if st.Checks[0].Detail != "sessions=2 devices=5" {
		t.Fatalf("unexpected registry detail %q", st.Checks[0].Detail)
	}
	if !strings.HasPrefix(st.String(), "Health: OK") {
		t.Fatalf("unexpected summary %q", st.String())
	}

	st = CheckAll(context.Background(), reg, fakeSweeper{interval: time.Second})
	if st.OK {
		t.Fatalf("expected failure without a running sweeper")
	}
}

func TestGRPCProbe(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	p := NewGRPCProbe()
	go func() { _ = p.Serve(lis) }()
	defer p.Shutdown()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		if err != nil {
			t.Fatalf("check %q: %v", service, err)
		}
		return resp.GetStatus()
	}

	if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before first update, got %s", got)
	}

	p.Update(HealthStatus{OK: true, Checks: []CheckResult{{Name: "registry", OK: true}}})
	if got := check(""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %s", got)
	}
	if got := check(RegistryService); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected registry SERVING, got %s", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Watch(ctx, 10*time.Millisecond, func(context.Context) HealthStatus { return HealthStatus{OK: false} })
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for check("") != healthpb.HealthCheckResponse_NOT_SERVING {
		if time.Now().After(deadline) {
			t.Fatalf("watch never flipped status")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done
}
