package config

import (
    "errors"
    "fmt"
    "log"
    "strings"
    "time"

    "github.com/spf13/viper"
)

type Config struct {
    Server struct {
        Port     string
        LogLevel string
        GRPCAddr string
    }
    Gateway struct {
        AllowedOrigins  []string
        SendBuffer      int
        WriteTimeout    time.Duration
        MaxMessageBytes int64
    }
    Session struct {
        TTL time.Duration
    }
    Sweeper struct {
        Interval time.Duration
    }
    Events struct {
        Sink          string
        RedisAddr     string
        RedisPassword string
        RedisDB       int
        RedisChannel  string
        KafkaBrokers  []string
        KafkaTopic    string
        QueueSize     int
    }
}

func Load() Config {
    v := viper.New()
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()

    // Defaults
    v.SetDefault("server.port", 3001)
    v.SetDefault("server.log_level", "info")
    v.SetDefault("server.grpc_addr", ":9091")

    v.SetDefault("gateway.allowed_origins", "localhost:3000")
    v.SetDefault("gateway.send_buffer", 64)
    v.SetDefault("gateway.write_timeout", "5s")
    v.SetDefault("gateway.max_message_bytes", 64<<10)

    v.SetDefault("session.ttl", "10m")
    v.SetDefault("sweeper.interval", "30s")

    v.SetDefault("events.sink", "memory")
    v.SetDefault("events.redis_addr", "localhost:6379")
    v.SetDefault("events.redis_channel", "swiftdrop.events")
    v.SetDefault("events.kafka_brokers", "localhost:9092")
    v.SetDefault("events.kafka_topic", "swiftdrop-events")
    v.SetDefault("events.queue_size", 1024)

    // Map envs
    v.BindEnv("server.port", "PORT")
    v.BindEnv("server.log_level", "LOG_LEVEL")
    v.BindEnv("server.grpc_addr", "GRPC_ADDR")

    v.BindEnv("gateway.allowed_origins", "ALLOWED_ORIGINS")
    v.BindEnv("gateway.send_buffer", "GATEWAY_SEND_BUFFER")
    v.BindEnv("gateway.write_timeout", "GATEWAY_WRITE_TIMEOUT")
    v.BindEnv("gateway.max_message_bytes", "GATEWAY_MAX_MESSAGE_BYTES")

    v.BindEnv("session.ttl", "SESSION_TTL")
    v.BindEnv("sweeper.interval", "SWEEP_INTERVAL")

    v.BindEnv("events.sink", "EVENTS_SINK")
    v.BindEnv("events.redis_addr", "REDIS_ADDR")
    v.BindEnv("events.redis_password", "REDIS_PASSWORD")
    v.BindEnv("events.redis_db", "REDIS_DB")
    v.BindEnv("events.redis_channel", "REDIS_CHANNEL")
    v.BindEnv("events.kafka_brokers", "KAFKA_BROKERS")
    v.BindEnv("events.kafka_topic", "KAFKA_TOPIC")
    v.BindEnv("events.queue_size", "EVENTS_QUEUE_SIZE")

    var c Config
    c.Server.Port = toString(v.Get("server.port"))
    c.Server.LogLevel = strings.ToLower(v.GetString("server.log_level"))
    c.Server.GRPCAddr = v.GetString("server.grpc_addr")

    c.Gateway.AllowedOrigins = splitList(v.GetString("gateway.allowed_origins"))
    c.Gateway.SendBuffer = v.GetInt("gateway.send_buffer")
    c.Gateway.WriteTimeout = v.GetDuration("gateway.write_timeout")
    c.Gateway.MaxMessageBytes = v.GetInt64("gateway.max_message_bytes")

    c.Session.TTL = v.GetDuration("session.ttl")
    c.Sweeper.Interval = v.GetDuration("sweeper.interval")

    c.Events.Sink = strings.ToLower(v.GetString("events.sink"))
    c.Events.RedisAddr = v.GetString("events.redis_addr")
    c.Events.RedisPassword = v.GetString("events.redis_password")
    c.Events.RedisDB = v.GetInt("events.redis_db")
    c.Events.RedisChannel = v.GetString("events.redis_channel")
    c.Events.KafkaBrokers = splitList(v.GetString("events.kafka_brokers"))
    c.Events.KafkaTopic = v.GetString("events.kafka_topic")
    c.Events.QueueSize = v.GetInt("events.queue_size")

    log.Printf("config loaded: port=%s ttl=%s sweep=%s sink=%s", c.Server.Port, c.Session.TTL, c.Sweeper.Interval, c.Events.Sink)
    return c
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
    var errs []error
    if c.Server.Port == "" {
        errs = append(errs, errors.New("PORT is empty"))
    }
    if c.Session.TTL <= 0 {
        errs = append(errs, fmt.Errorf("SESSION_TTL must be positive, got %s", c.Session.TTL))
    }
    if c.Sweeper.Interval <= 0 {
        errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.Sweeper.Interval))
    }
    if c.Gateway.SendBuffer <= 0 {
        errs = append(errs, fmt.Errorf("GATEWAY_SEND_BUFFER must be positive, got %d", c.Gateway.SendBuffer))
    }
    if c.Gateway.WriteTimeout <= 0 {
        errs = append(errs, fmt.Errorf("GATEWAY_WRITE_TIMEOUT must be positive, got %s", c.Gateway.WriteTimeout))
    }
    if c.Gateway.MaxMessageBytes <= 0 {
        errs = append(errs, fmt.Errorf("GATEWAY_MAX_MESSAGE_BYTES must be positive, got %d", c.Gateway.MaxMessageBytes))
    }
    if c.Events.QueueSize <= 0 {
        errs = append(errs, fmt.Errorf("EVENTS_QUEUE_SIZE must be positive, got %d", c.Events.QueueSize))
    }
    switch c.Events.Sink {
    case "memory":
    case "redis":
        if c.Events.RedisAddr == "" {
            errs = append(errs, errors.New("REDIS_ADDR is required for the redis sink"))
        }
    case "kafka":
        if len(c.Events.KafkaBrokers) == 0 || c.Events.KafkaTopic == "" {
            errs = append(errs, errors.New("KAFKA_BROKERS and KAFKA_TOPIC are required for the kafka sink"))
        }
    default:
        errs = append(errs, fmt.Errorf("unknown EVENTS_SINK %q", c.Events.Sink))
    }
    return errors.Join(errs...)
}

func toString(v any) string { return fmt.Sprint(v) }

func splitList(s string) []string {
    var out []string
    for _, p := range strings.Split(s, ",") {
        if p = strings.TrimSpace(p); p != "" {
            out = append(out, p)
        }
    }
    return out
}
