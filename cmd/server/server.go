package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/thereayou/bizdesk/internal/config"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/events"
	"github.com/thereayou/bizdesk/internal/handlers"
	"github.com/thereayou/bizdesk/internal/middleware"
	"github.com/thereayou/bizdesk/internal/scheduler"
	"github.com/thereayou/bizdesk/internal/services"
	"github.com/thereayou/bizdesk/internal/websocket"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	cfg *config.Config
	log *logger.Logger

	HTTP       *http.Server
	DB         *database.Database
	Redis      *redis.Client
	NATS       *events.NATSPublisher
	Hub        *websocket.Hub
	Dispatcher *events.Pool
	Sweeper    *scheduler.ReminderSweeper
	Limiter    *middleware.RateLimiter
}

// NewServer connects the backing stores and wires every component. Redis
// and NATS are optional: without them logout falls back to an in-process
// blacklist, sockets stay local and domain events are not published.
func NewServer(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Server, error) {
	s := &Server{cfg: cfg, log: log}

	s.DB = &database.Database{}
	if err := s.DB.Connect(cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var blacklist auth.Blacklist = auth.NewMemoryBlacklist()
	s.Hub = websocket.NewHub(log)
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.Redis = redis.NewClient(opts)
		if err := s.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		blacklist = auth.NewRedisBlacklist(s.Redis)
		s.Hub.WithRelay(s.Redis)
	} else {
		log.Warn("REDIS_URL not set, token blacklist and socket relay are local to this instance")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(ctx, cfg.NATSURL, log)
		if err != nil {
			return nil, fmt.Errorf("nats: %w", err)
		}
		s.NATS = nc
		publisher = nc
	}

	s.Dispatcher = events.NewPool(cfg.HookWorkers, cfg.HookQueueSize, log)
	notifier := services.NewLogNotifier(log)
	deps := services.Deps{
		DB:         s.DB,
		Dispatcher: s.Dispatcher,
		Publisher:  publisher,
		Notifier:   notifier,
		Hub:        s.Hub,
		Logger:     log,
	}

	jwt := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	authSvc := services.NewAuthService(s.DB, jwt, blacklist, log)
	internalChat := services.NewInternalChatService(deps)
	supportChat := services.NewSupportChatService(deps)

	s.Limiter = middleware.NewRateLimiter(cfg.GuestRateLimit, cfg.GuestRateBurst, log)
	store := middleware.NewGuestStore(cfg.SessionSecret, !cfg.IsDevelopment())

	rt := routes{
		authn:       authSvc,
		guests:      supportChat,
		store:       store,
		permissions: auth.NewPermissionChecker(auth.DefaultRoles()),
		origins:     cfg.AllowedOrigins,

		auth: handlers.NewAuthHandler(authSvc, log),
		controllers: []handlers.Router{
			handlers.NewController(services.NewPaymentService(deps), log),
			handlers.NewController(services.NewPaymentCategoryService(deps), log),
			handlers.NewController(services.NewChequeService(deps), log),
			handlers.NewController(services.NewReminderService(deps), log),
			handlers.NewController(services.NewTicketService(deps), log),
			handlers.NewController(services.NewServiceTypeService(deps), log),
			handlers.NewController(services.NewRequestStatusService(deps), log),
			handlers.NewController(services.NewLabelService(deps), log),
			handlers.NewController(services.NewServiceRequestService(deps), log),
			handlers.NewController(services.NewInvoiceService(deps), log),
			handlers.NewController(services.NewDocumentService(deps), log),
		},
		internal: handlers.NewInternalChatHandler(internalChat, log),
		support:  handlers.NewSupportChatHandler(supportChat, store, s.Limiter, log),
		socket: handlers.NewWebSocketHandler(s.Hub,
			handlers.NewMessageHandler(internalChat, supportChat, s.Hub, log),
			cfg.AllowedOrigins, log),
		health: handlers.NewHealthHandler(s.DB, s.Redis, log),
	}

	s.Sweeper = scheduler.NewReminderSweeper(s.DB, notifier, s.Hub, log)
	s.HTTP = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(rt, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Run serves until ctx is cancelled, then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	go s.Hub.Run()
	s.Limiter.StartCleanup(time.Minute, ctx.Done())
	if err := s.Sweeper.Start(s.cfg.ReminderSchedule); err != nil {
		return err
	}

	g.Go(func() error {
		s.log.Info("server starting", zap.String("addr", s.HTTP.Addr))
		if err := s.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		s.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := s.HTTP.Shutdown(shutdownCtx)
		s.Sweeper.Stop(shutdownCtx)
		s.Hub.Stop()
		if stopErr := s.Dispatcher.Stop(shutdownCtx); stopErr != nil {
			s.log.Warn("hook queue not drained", zap.Error(stopErr))
		}
		return err
	})

	return g.Wait()
}

func (s *Server) Close() {
	if s.NATS != nil {
		s.NATS.Close()
	}
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	if err := s.DB.Close(); err != nil {
		s.log.Warn("closing database", zap.Error(err))
	}
}
