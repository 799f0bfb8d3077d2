package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dispatch-service/internal/config"
	hrest "dispatch-service/internal/handler/http"
	wshandler "dispatch-service/internal/handler/ws"
	"dispatch-service/internal/middleware"
	"dispatch-service/internal/repository"
	"dispatch-service/internal/router"
	"dispatch-service/internal/usecase"
	"dispatch-service/internal/worker"
	"dispatch-service/pkg/kafka"
	"dispatch-service/pkg/notifier"
	ws "dispatch-service/pkg/notifier/ws"
	"dispatch-service/pkg/template"
	"dispatch-service/pkg/xerrors"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Server bundles the HTTP server with the background pieces that need a
// coordinated shutdown.
type Server struct {
	HTTP *http.Server

	dispatcher *usecase.Dispatcher
	aggregator *usecase.AggregationBuffer
	producer   *kafka.Producer
	sweeper    *worker.RedeliveryWorker
	logger     *zap.Logger

	cancelWorkers context.CancelFunc
}

func New(cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	// --- DB connection ---
	dbpool, err := config.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	// --- Init repos ---
	repo := repository.NewRepository(dbpool)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})

	// --- Kafka producer ---
	producer, err := kafka.NewProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		return nil, err
	}

	// --- Auth middleware ---
	auth := middleware.NewAuthMiddleware(cfg.JWTSecret)

	// --- WS manager and handler ---
	wsManager := ws.NewManager()
	go wsManager.Heartbeat(30 * time.Second)
	wsHandler := wshandler.NewWSHandler(wsManager)

	// --- Notifier ---
	notif := notifier.NewNotifier(wsManager, producer, logger)

	// --- Usecases ---
	configs := usecase.NewConfigStore(repo, logger)
	schedule := usecase.NewOfficeHours(cfg.WorkDayStartHour, cfg.WorkDayEndHour, nil)
	rules := usecase.NewRuleEngine(schedule, logger)
	recipients := usecase.NewRecipientResolver(repo, logger)
	channels := usecase.NewChannelResolver(repo, logger)
	tmpl := template.NewEngine()

	dispatcher := usecase.NewDispatcher(
		repo, configs, rules, recipients, channels,
		tmpl, notif, producer, schedule, logger,
	)

	// Field-level opt-outs reuse the preference table: a disabled row keyed
	// by (user, ENTITY_UPDATED, field) suppresses that field.
	gate := func(ctx context.Context, userID, field string) (bool, error) {
		p, err := repo.GetPreference(ctx, userID, "ENTITY_UPDATED", field)
		if err != nil {
			if errors.Is(err, xerrors.ErrNotFound) {
				return true, nil
			}
			return true, err
		}
		return p.Enabled, nil
	}
	aggregator := usecase.NewAggregationBuffer(usecase.AggregationWindow, gate, dispatcher, logger)
	dispatcher.AttachAggregator(aggregator)

	// --- Handlers ---
	restHandler := hrest.NewDispatchHandler(dispatcher, configs)

	// --- HTTP routes ---
	rateLimit := middleware.RateLimiter(rdb, logger,
		cfg.RateLimitPerMinute, time.Minute,
		time.Duration(cfg.RateLimitBlockMin)*time.Minute, "dispatch")
	r := chi.NewRouter()
	router.SetupRoutes(r, restHandler, wsHandler, auth, rateLimit)

	// --- Background workers ---
	sweeper := worker.NewRedeliveryWorker(repo, dispatcher, logger)
	workerCtx, cancel := context.WithCancel(context.Background())
	go sweeper.Run(workerCtx)

	return &Server{
		HTTP: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: r,
		},
		dispatcher:    dispatcher,
		aggregator:    aggregator,
		producer:      producer,
		sweeper:       sweeper,
		logger:        logger,
		cancelWorkers: cancel,
	}, nil
}

// Shutdown drains everything in dependency order: HTTP first, then pending
// aggregation buckets, then the producer they flush through.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.HTTP.Shutdown(ctx)

	s.cancelWorkers()
	s.aggregator.Cleanup()

	if cerr := s.producer.Close(); cerr != nil {
		s.logger.Warn("kafka producer close failed", zap.Error(cerr))
	}
	return err
}
