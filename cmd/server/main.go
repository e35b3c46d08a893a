package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/library-reservation/internal/cache"
	"github.com/iliyamo/library-reservation/internal/config"
	"github.com/iliyamo/library-reservation/internal/database"
	"github.com/iliyamo/library-reservation/internal/handler"
	"github.com/iliyamo/library-reservation/internal/middleware"
	"github.com/iliyamo/library-reservation/internal/policy"
	"github.com/iliyamo/library-reservation/internal/queue"
	"github.com/iliyamo/library-reservation/internal/repository"
	"github.com/iliyamo/library-reservation/internal/router"
	"github.com/iliyamo/library-reservation/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if cfg.IsDev() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run() error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient(cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	tx := repository.NewTxManager(db)
	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	books := repository.NewBookRepo(db)
	reservations := repository.NewReservationRepo(db)
	tokens := repository.NewTokenRepo(db)

	var events service.EventPublisher
	if cfg.RabbitURL != "" {
		pub := queue.NewPublisher(cfg.RabbitURL, log)
		defer pub.Close()
		events = pub
	} else {
		log.Warn("RABBITMQ_URL not set, reservation events disabled")
	}
	availability := cache.NewAvailability(rdb, cfg.Cache.Prefix, cfg.AvailabilityTTL)

	pol := policy.Default()
	userSvc := service.NewUserService(tx, users, roles, pol, cfg.BcryptCost, log)
	authSvc := service.NewAuthService(userSvc, users, tokens, service.TokenSettings{
		Secret:         cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
	}, log)
	roleSvc := service.NewRoleService(tx, users, roles, pol, log)
	bookSvc := service.NewBookService(tx, books, reservations, pol, availability, events, log)
	resSvc := service.NewReservationService(service.ReservationDeps{
		Tx:           tx,
		Users:        users,
		Books:        books,
		Reservations: reservations,
		Policy:       pol,
		Cache:        availability,
		Events:       events,
		Log:          log,
	})

	seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = service.NewSeeder(roles, userSvc, users, log).Seed(seedCtx, service.AdminAccount(cfg.Admin))
	cancel()
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	router.Register(e, router.Handlers{
		Auth:         handler.NewAuthHandler(authSvc, userSvc),
		Books:        handler.NewBookHandler(bookSvc, resSvc),
		Reservations: handler.NewReservationHandler(resSvc),
		Users:        handler.NewUserHandler(userSvc),
		Roles:        handler.NewRoleHandler(roleSvc),
		DB:           db,
	}, router.Options{
		JWTSecret: cfg.JWTSecret,
		Cache:     cfg.Cache,
		RateLimit: cfg.RateLimit,
		Redis:     rdb,
		Log:       log,
	})

	var consumer *queue.Consumer
	if cfg.RabbitURL != "" {
		audit, closeAudit, err := queue.NewAuditLogger(cfg.AuditLogPath)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
		defer func() { _ = closeAudit() }()
		consumer = queue.NewConsumer(cfg.RabbitURL, log, audit)
	}

	g, ctx := errgroup.WithContext(ctx)
	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
