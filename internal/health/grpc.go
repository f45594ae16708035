package health

import (
	"context"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// RegistryService is the service name reported alongside the overall ("") status.
const RegistryService = "swiftdrop.Registry"

// GRPCProbe serves the standard grpc.health.v1 service for orchestrators
// that probe over gRPC.
type GRPCProbe struct {
	srv *grpc.Server
	hs  *grpchealth.Server
}

func NewGRPCProbe() *GRPCProbe {
	// keepalive for fast death detection
	kap := keepalive.ServerParameters{
		MaxConnectionIdle:     2 * time.Minute,
		MaxConnectionAge:      15 * time.Minute,
		MaxConnectionAgeGrace: 30 * time.Second,
		Time:                  30 * time.Second,
		Timeout:               10 * time.Second,
	}
	kasp := keepalive.EnforcementPolicy{
		MinTime:             10 * time.Second,
		PermitWithoutStream: true,
	}

	s := grpc.NewServer(grpc.KeepaliveParams(kap), grpc.KeepaliveEnforcementPolicy(kasp))
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(RegistryService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &GRPCProbe{srv: s, hs: hs}
}

func (p *GRPCProbe) Serve(l net.Listener) error {
	log.Printf("[health] grpc probe listening on %s", l.Addr())
	return p.srv.Serve(l)
}

// Update maps a HealthStatus onto the gRPC serving status.
func (p *GRPCProbe) Update(st HealthStatus) {
	status := healthpb.HealthCheckResponse_SERVING
	if !st.OK {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	p.hs.SetServingStatus("", status)
	for _, c := range st.Checks {
		if c.Name != "registry" {
			continue
		}
		if c.OK {
			p.hs.SetServingStatus(RegistryService, healthpb.HealthCheckResponse_SERVING)
		} else {
			p.hs.SetServingStatus(RegistryService, healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
}

// Watch re-evaluates check every interval until ctx is done.
func (p *GRPCProbe) Watch(ctx context.Context, interval time.Duration, check func(context.Context) HealthStatus) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	last := true
	eval := func() {
		cctx, cancel := context.WithTimeout(ctx, interval)
		st := check(cctx)
		cancel()
		p.Update(st)
		if st.OK != last {
			log.Printf("[health] status changed ok=%v\n%s", st.OK, st)
			last = st.OK
		}
	}
	eval()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			eval()
		}
	}
}

// Shutdown reports NOT_SERVING to every watcher and stops the server,
// forcing it after 5s.
func (p *GRPCProbe) Shutdown() {
	p.hs.Shutdown()
	done := make(chan struct{})
	go func() {
		p.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		p.srv.Stop()
	}
}
