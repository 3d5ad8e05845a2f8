package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/example/anon-cart/internal/api"
	"github.com/example/anon-cart/internal/auth"
	"github.com/example/anon-cart/internal/command"
	"github.com/example/anon-cart/internal/config"
	"github.com/example/anon-cart/internal/domain/product"
	"github.com/example/anon-cart/internal/infrastructure/cache"
	"github.com/example/anon-cart/internal/infrastructure/kafka"
	"github.com/example/anon-cart/internal/infrastructure/store"
	"github.com/example/anon-cart/internal/platform/logger"
	"github.com/example/anon-cart/internal/query"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting cart API",
		"addr", cfg.HTTPAddr,
		"store", cfg.StoreDriver,
		"cache", cfg.CacheEnabled(),
		"events", cfg.EventsEnabled(),
		"auth", cfg.AuthEnabled(),
	)

	// Storage
	repo, catalog, db, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open store", "error", err)
	}
	if db != nil {
		defer db.Close()
	}

	// Read cache
	var readCache cache.Cache = cache.NopCache{}
	if cfg.CacheEnabled() {
		rc, err := cache.NewRedisCache(cfg.RedisAddr, cfg.CachePrefix)
		if err != nil {
			log.Fatal("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		defer rc.Close()
		readCache = rc
		log.Info("connected to redis", "addr", cfg.RedisAddr)
	}

	// Cart events
	var publisher kafka.EventPublisher
	var wg sync.WaitGroup
	if cfg.EventsEnabled() {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup, log)
		defer consumer.Close()
		invalidator := cache.NewInvalidator(readCache, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("starting cart event consumer", "topic", cfg.KafkaTopic, "group", cfg.KafkaGroup)
			if err := consumer.Consume(ctx, invalidator.HandleEvent); err != nil && ctx.Err() == nil {
				log.Error("cart event consumer stopped", "error", err)
			}
		}()
	}

	var jwtService *auth.JWTService
	if cfg.AuthEnabled() {
		jwtService = auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, 15*time.Minute)
	}

	cmdHandler := command.NewHandler(repo, publisher, readCache, log)
	queryHandler := query.NewHandler(repo, catalog, readCache, cfg.CacheTTL, log)
	handlers := api.NewHandlers(cmdHandler, queryHandler, log, cfg.WriteTimeout)
	router := api.NewRouter(handlers, api.RouterConfig{JWTService: jwtService, Log: log})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("server started", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")

	// In-flight writes finish before the consumer and connections go away
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.WriteTimeout+5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown", "error", err)
	}

	cancel()
	wg.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.CartRepository, product.Catalog, *sql.DB, error) {
	if cfg.StoreDriver == "memory" {
		catalog := store.NewMemoryCatalog()
		if cfg.SeedFile != "" {
			f, err := os.Open(cfg.SeedFile)
			if err != nil {
				return nil, nil, nil, err
			}
			defer f.Close()
			n, err := store.Seed(ctx, catalog, f)
			if err != nil {
				return nil, nil, nil, err
			}
			log.Info("seeded in-memory catalog", "products", n, "file", cfg.SeedFile)
		}
		return store.NewMemoryCartStore(catalog), catalog, nil, nil
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	log.Info("connected to PostgreSQL")
	return store.NewPostgresCartStore(db, log), store.NewPostgresCatalog(db), db, nil
}
