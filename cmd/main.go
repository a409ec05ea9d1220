package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/board-service/config"
	"github.com/cwrk-planet/board-service/internal/identity"
	"github.com/cwrk-planet/board-service/internal/logger"
	"github.com/cwrk-planet/board-service/internal/mongo"
	"github.com/cwrk-planet/board-service/internal/persistence"
	"github.com/cwrk-planet/board-service/internal/postgres"
	"github.com/cwrk-planet/board-service/internal/redis"
	"github.com/cwrk-planet/board-service/internal/service"
	"github.com/cwrk-planet/board-service/internal/session"
	grpcx "github.com/cwrk-planet/board-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/board-service/internal/transport/http"
	"github.com/cwrk-planet/board-service/internal/transport/ws"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     logger.ParseLevel(cfg.Logging.Level),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	shutdownTracer := logger.InitTracer()
	slog.Info("starting board-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	// --- storage ---
	ctx := context.Background()
	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer closeStore()

	// --- registry ---
	reg := session.NewRegistry(session.Options{MessageLimit: cfg.Room.MessageLimit})

	// --- WS hub & gateway ---
	ids := identity.NewResolver(identity.Config{
		CookieName: cfg.Identity.CookieName,
		QueryParam: cfg.Identity.QueryParam,
		Secret:     cfg.Identity.Secret,
		Issuer:     cfg.Identity.Issuer,
	})
	hub := ws.NewHub()
	gateway := ws.NewGateway(reg, hub, ids)
	wsServer := ws.NewServer(gateway, ids, ws.ServerConfig{
		PingInterval:   cfg.WS.PingInterval,
		WriteWait:      cfg.WS.WriteWait,
		ReadLimit:      cfg.WS.ReadLimit,
		SendBuffer:     cfg.WS.SendBuffer,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	if !ids.Verifying() {
		slog.Warn("identity tokens are not verified, clients may claim any identity")
	}

	// --- synchronizer ---
	health := grpcx.NewHealth()
	syncer := persistence.NewSynchronizer(store, reg, persistence.Config{
		Interval:        cfg.Sync.Interval,
		CleanupInterval: cfg.Sync.CleanupInterval,
		Lifetime:        cfg.Sync.RoomLifetime,
		SkipOccupied:    cfg.Sync.SkipOccupied,
	},
		persistence.WithEvictHook(func(roomID string) { gateway.CloseRoom(roomID, ws.ReasonExpired) }),
		persistence.WithHealthReporter(health.SetStoreHealthy),
	)
	if n, err := syncer.Hydrate(ctx); err != nil {
		// стартуем с пустым реестром, хранилище догонит
		slog.Error("hydrate failed", "err", err)
	} else {
		slog.Info("rooms restored", "count", n)
	}

	syncCtx, stopSync := context.WithCancel(ctx)
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		syncer.Run(syncCtx)
	}()

	// --- services ---
	roomSvc := service.NewRoomService(reg,
		service.WithForgetter(syncer),
		service.WithCloseNotifier(func(roomID string) { gateway.CloseRoom(roomID, ws.ReasonDeleted) }),
	)

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, ids, cfg.Identity.CookieName)
	router := httpx.NewRouter(handler, wsServer.HandleWS, httpx.RouterConfig{AllowedOrigins: cfg.HTTP.AllowedOrigins})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC ---
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpcx.NewServer(health)
	}

	// --- run servers ---
	sigCtx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			if err := grpcServer.Serve(lis); err != nil {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down", "cause", context.Cause(gctx))

		ctxShutdown, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		health.Shutdown()
		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := httpSrv.Shutdown(ctxShutdown); err != nil {
			slog.Error("http shutdown", "err", err)
		}
		wsServer.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
	}

	// финальный flush до закрытия хранилища
	flushCtx, cancelFlush := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelFlush()
	stopSync()
	select {
	case <-syncDone:
	case <-flushCtx.Done():
		slog.Error("final flush did not finish in time")
	}
	reg.Close()
	if err := shutdownTracer(flushCtx); err != nil {
		slog.Error("tracer shutdown", "err", err)
	}
	slog.Info("stopped")
}

// openStore выбирает хранилище по storage.driver.
func openStore(ctx context.Context, cfg config.Storage) (persistence.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres.ToPGConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		return postgres.NewRoomRepository(pool), pool.Close, nil

	case config.DriverMongo:
		st, err := mongo.Connect(ctx, cfg.Mongo.ToMongoConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("mongo: %w", err)
		}
		closeFn := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := st.Close(ctx); err != nil {
				slog.Error("mongo disconnect", "err", err)
			}
		}
		return st, closeFn, nil

	case config.DriverRedis:
		st, err := redis.Connect(ctx, cfg.Redis.ToRedisConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		closeFn := func() {
			if err := st.Close(); err != nil {
				slog.Error("redis close", "err", err)
			}
		}
		return st, closeFn, nil

	default:
		slog.Warn("storage driver is memory, rooms do not survive a restart")
		return persistence.NewMemoryStore(), func() {}, nil
	}
}
