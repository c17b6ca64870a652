package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/chainride/internal/config"
	"github.com/example/chainride/internal/events"
	"github.com/example/chainride/internal/logging"
	"github.com/example/chainride/internal/storage"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_consumed_total",
		Help: "Total ride event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_invalid_total",
		Help: "Total invalid messages received",
	})
	msgsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_messages_skipped_total",
		Help: "Total events without a ride",
	})
	activityAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_activity_appends_total",
		Help: "Total successful activity feed appends",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "consumer_redis_errors_total",
		Help: "Total redis errors",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, msgsSkipped, activityAppends, redisErrors)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, "chainride-consumer")

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	feed := storage.NewActivityLog(rc, cfg.ActivityMaxEntries)

	go serveOps(cfg.MetricsAddr, rc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic, GroupID: cfg.KafkaGroup, MinBytes: 1, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()
		if err := project(ctx, feed, m.Value, 3, 200*time.Millisecond); err != nil {
			switch {
			case errors.Is(err, errInvalidEvent):
				msgsInvalid.Inc()
				logger.Warn("invalid message", "offset", m.Offset, "error", err)
			case errors.Is(err, errNoRide):
				msgsSkipped.Inc()
			default:
				redisErrors.Inc()
				logger.Error("activity append failed", "offset", m.Offset, "error", err)
			}
			continue
		}
		activityAppends.Inc()
	}
}

func serveOps(addr string, rc *redis.Client, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := rc.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	logger.Info("metrics/health listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

// ActivityAppender is the subset of the activity feed the projector writes to.
type ActivityAppender interface {
	Append(ctx context.Context, rideID uint64, entry []byte) error
}

var (
	errInvalidEvent = errors.New("invalid event")
	errNoRide       = errors.New("event has no ride")
)

// project decodes one message and appends it to its ride's feed.
func project(ctx context.Context, feed ActivityAppender, payload []byte, attempts int, delay time.Duration) error {
	e, err := events.Decode(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", errInvalidEvent, err)
	}
	if e.Type == "" {
		return fmt.Errorf("%w: missing type", errInvalidEvent)
	}
	if e.RideID == 0 {
		return errNoRide
	}
	return appendWithRetry(ctx, feed, e.RideID, payload, attempts, delay)
}

// appendWithRetry retries with a doubling delay until attempts run out or
// the context ends.
func appendWithRetry(ctx context.Context, feed ActivityAppender, rideID uint64, entry []byte, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = feed.Append(ctx, rideID, entry); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
