package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	pkgerrors "github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/identity"
	"storefront/internal/logger"
	"storefront/internal/middleware"
	"storefront/internal/orders"
	"storefront/internal/payments/card"
	"storefront/internal/payments/mpesa"
	"storefront/internal/storage"
)

const serviceName = "storefront"

func main() {
	cfg := config.MustLoad()

	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	ctx := context.Background()

	client, err := database.Connect(ctx, cfg.Mongo.URI)
	if err != nil {
		log.Error("failed to connect to mongo", logger.Err(err))
		panic(pkgerrors.Wrap(err, "failed to connect to mongo"))
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			log.Error("mongo disconnect failed", logger.Err(err))
		}
	}()

	db := client.Database(cfg.Mongo.DBName)
	log.Info("mongo connected", slog.String("db", db.Name()))

	if err := database.EnsureIndexes(ctx, log, db); err != nil {
		log.Warn("index setup incomplete", logger.Err(err))
	}

	tokens := setupCache(ctx, log, cfg.Redis)

	publisher, closePublisher := setupPublisher(log, cfg.RabbitMQ)
	defer closePublisher()

	var cardGateway orders.CardGateway
	var webhooks handlers.WebhookParser
	if cfg.Stripe.SecretKey != "" {
		gw := card.New(log, card.Config{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Currency:      cfg.Stripe.Currency,
		})
		cardGateway, webhooks = gw, gw
	} else {
		log.Warn("stripe not configured, card payments disabled")
	}

	signer := mpesa.NewSigner(cfg.Mpesa.CallbackSecret)
	var mobile orders.MobileMoneyGateway
	if cfg.Mpesa.ConsumerKey != "" {
		mobile = mpesa.NewClient(log, mpesa.Config{
			BaseURL:         cfg.Mpesa.BaseURL,
			ConsumerKey:     cfg.Mpesa.ConsumerKey,
			ConsumerSecret:  cfg.Mpesa.ConsumerSecret,
			ShortCode:       cfg.Mpesa.ShortCode,
			PassKey:         cfg.Mpesa.PassKey,
			CallbackURL:     cfg.Mpesa.CallbackURL,
			TransactionType: cfg.Mpesa.TransactionType,
			TransactionDesc: cfg.Mpesa.TransactionDesc,
			CountryCode:     cfg.Mpesa.CountryCode,
			Timeout:         cfg.Mpesa.Timeout,
		}, tokens, signer)
	} else {
		log.Warn("mpesa not configured, mobile money payments disabled")
	}

	orderRepo := storage.NewOrderRepository(log, db)
	cartRepo := storage.NewCartRepository(db)
	customerRepo := storage.NewCustomerRepository(db)

	svc := orders.NewService(log, orderRepo, cardGateway, mobile, publisher, orders.Config{
		ConversionRate: decimal.NewFromFloat(cfg.Mpesa.ConversionRate),
		CountryCode:    cfg.Mpesa.CountryCode,
	})

	if cfg.Env != logger.EnvLocal {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Recovery(log))

	handlers.RegisterRoutes(router, handlers.Deps{
		Log:       log,
		Issuer:    identity.NewIssuer(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL),
		Orders:    svc,
		Subscribe: handlers.SubscribeWith(svc),
		Carts:     cartRepo,
		Customers: customerRepo,
		Webhooks:  webhooks,
		Callbacks: signer,
		Ping: func(ctx context.Context) error {
			return database.Ping(ctx, client)
		},
	})

	// No WriteTimeout: order tracking holds responses open.
	srv := &http.Server{
		Addr:        cfg.HTTPServer.Address,
		Handler:     router,
		ReadTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout: cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", logger.Err(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Info("received shutdown signal", slog.String("signal", sig.String()))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logger.Err(err))
	}
	log.Info("server gracefully stopped")
}

// setupCache returns Redis when it is configured and reachable, a no-op cache otherwise.
func setupCache(ctx context.Context, log *slog.Logger, cfg config.RedisConfig) cache.Cache {
	if cfg.Addr == "" {
		return cache.Nop{}
	}

	redisCache := cache.NewRedisCache(cache.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		ServiceName: serviceName,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		log.Warn("redis unreachable, token cache disabled", logger.Err(err))
		_ = redisCache.Close()
		return cache.Nop{}
	}
	return redisCache
}

func setupPublisher(log *slog.Logger, cfg config.RabbitMQConfig) (events.Publisher, func()) {
	if cfg.URL == "" {
		return events.LogPublisher{Log: log}, func() {}
	}

	publisher, err := events.NewRabbitPublisher(log, cfg.URL, cfg.Exchange)
	if err != nil {
		log.Warn("rabbitmq unavailable, events are only logged", logger.Err(err))
		return events.LogPublisher{Log: log}, func() {}
	}
	return publisher, publisher.Close
}
