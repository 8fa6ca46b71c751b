package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/defarge/availcal/internal/availability"
	"github.com/defarge/availcal/internal/cache"
	"github.com/defarge/availcal/internal/consumer"
	"github.com/defarge/availcal/internal/handlers"
	"github.com/defarge/availcal/internal/storage"
	"github.com/defarge/availcal/libs/config"
	"github.com/defarge/availcal/libs/db"
	"github.com/defarge/availcal/libs/httpx"
	"github.com/defarge/availcal/libs/kafkax"
	otelx "github.com/defarge/availcal/libs/otel"
	"github.com/defarge/availcal/libs/runtime"
	"github.com/defarge/availcal/migrations"
)

func main() {
	config.LoadDotenv()

	service := config.String("SERVICE_NAME", "availability-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if config.Bool("MIGRATE_ON_START", true) {
		if err := db.Migrate(ctx, pool, migrations.FS, "."); err != nil {
			logger.Error("migrations failed", "err", err)
			panic(err)
		}
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
	}
	cacheTTL := time.Duration(config.Int("AVAILABILITY_CACHE_TTL_SECONDS", 60)) * time.Second
	availCache := cache.New(rdb, cacheTTL, logger)

	repo := storage.NewEventRepository(pool)
	slotDuration := time.Duration(config.Int("SLOT_DURATION_MINUTES", 30)) * time.Minute
	availService := availability.New(repo, logger, slotDuration)

	brokers := config.String("KAFKA_BROKERS", "")
	topic := config.String("KAFKA_CONSUME_TOPIC", "calendar.events.changed.v1")
	if strings.TrimSpace(brokers) != "" && rdb != nil {
		changeConsumer := consumer.New(logger, availCache, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topic:   topic,
		})
		go changeConsumer.Run(ctx)
	}

	availHandler := handlers.NewAvailabilityHandler(availService, availCache, logger)
	eventsHandler := handlers.NewEventsHandler(repo, availCache, logger)

	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if rdb != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
	}
	if strings.TrimSpace(brokers) != "" {
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	mux := runtime.NewBaseMux(checks...)
	mux.HandleFunc("/api/v1/availabilities", availHandler.Get)
	mux.HandleFunc("/api/v1/events", routeEvents(eventsHandler))

	rateLimit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	var limiter httpx.Middleware
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, rateLimit, time.Minute, service).Middleware(logger, true)
	} else {
		limiter = httpx.NewRateLimiter(rateLimit, time.Minute).Middleware()
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		limiter,
		httpx.WithBodyLimit(1<<20),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "availability")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func routeEvents(h *handlers.EventsHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			h.Create(w, r)
		case http.MethodGet:
			h.List(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
