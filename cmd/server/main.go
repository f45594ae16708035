package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"swiftdrop/server/internal/api"
	"swiftdrop/server/internal/config"
	"swiftdrop/server/internal/events"
	"swiftdrop/server/internal/gateway"
	"swiftdrop/server/internal/health"
	"swiftdrop/server/internal/store"
	"swiftdrop/server/internal/sweeper"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(store.WithTTL(cfg.Session.TTL))
	mem := events.NewMemory(0, 0)
	sink := buildSink(ctx, cfg, mem)

	hub := gateway.NewHub(st, sink)
	hub.SetDebug(cfg.Server.LogLevel == "debug")
	wss := gateway.NewServer(hub, gateway.Options{
		AllowedOrigins:  cfg.Gateway.AllowedOrigins,
		SendBuffer:      cfg.Gateway.SendBuffer,
		WriteTimeout:    cfg.Gateway.WriteTimeout,
		MaxMessageBytes: cfg.Gateway.MaxMessageBytes,
	})

	sw := sweeper.New(hub, cfg.Sweeper.Interval)
	go sw.Run(ctx)

	// gRPC health probe
	probe := health.NewGRPCProbe()
	if cfg.Server.GRPCAddr != "" {
		l, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("listen grpc %s: %v", cfg.Server.GRPCAddr, err)
		}
		go func() {
			if err := probe.Serve(l); err != nil {
				log.Printf("grpc probe stopped: %v", err)
			}
		}()
		go probe.Watch(ctx, 5*time.Second, func(c context.Context) health.HealthStatus {
			return health.CheckAll(c, st, sw)
		})
	}

	h := api.NewHandlers(st, mem, sw, wss)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		cancel()
		wss.CloseAll("server shutting down")
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
		probe.Shutdown()
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}

	<-sw.Done()
	if err := sink.Close(); err != nil {
		log.Printf("closing event sink: %v", err)
	}
	log.Printf("server stopped")
}

// buildSink always records to mem and, when configured, forwards to an
// external broker through a bounded queue.
func buildSink(ctx context.Context, cfg config.Config, mem *events.Memory) events.Sink {
	switch cfg.Events.Sink {
	case "redis":
		rs := events.NewRedis(events.RedisOptions{
			Addr:     cfg.Events.RedisAddr,
			Password: cfg.Events.RedisPassword,
			DB:       cfg.Events.RedisDB,
			Channel:  cfg.Events.RedisChannel,
		})
		pctx, pcancel := context.WithTimeout(ctx, 3*time.Second)
		defer pcancel()
		if err := rs.Ping(pctx); err != nil {
			log.Printf("[events] redis %s unreachable, publishing will retry: %v", cfg.Events.RedisAddr, err)
		}
		log.Printf("[events] forwarding to redis channel %s", cfg.Events.RedisChannel)
		return events.Multi{mem, events.NewAsync(rs, cfg.Events.QueueSize)}
	case "kafka":
		ks, err := events.NewKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		if err != nil {
			log.Fatalf("kafka sink: %v", err)
		}
		log.Printf("[events] forwarding to kafka topic %s", cfg.Events.KafkaTopic)
		return events.Multi{mem, events.NewAsync(ks, cfg.Events.QueueSize)}
	}
	return mem
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
