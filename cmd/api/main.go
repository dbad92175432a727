package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/driveloop/driveloop-backend/api/routes"
	"github.com/driveloop/driveloop-backend/internal/availability"
	"github.com/driveloop/driveloop-backend/internal/booking"
	"github.com/driveloop/driveloop-backend/internal/notifications"
	"github.com/driveloop/driveloop-backend/pkg/config"
	"github.com/driveloop/driveloop-backend/pkg/db"
	"github.com/driveloop/driveloop-backend/pkg/logger"
	"github.com/driveloop/driveloop-backend/pkg/metrics"
	"github.com/driveloop/driveloop-backend/pkg/migrate"
	"github.com/driveloop/driveloop-backend/pkg/outbox"
	"github.com/driveloop/driveloop-backend/pkg/payments"
	"github.com/driveloop/driveloop-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	squareGateway, err := payments.NewSquareGateway(context.Background(), cfg.Square, logg, paymentMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}
	gateway := payments.NewRetryingGateway(squareGateway, cfg.Payments)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	availabilityChecker := availability.NewChecker(dbClient.DB())

	bookingService, err := booking.NewService(
		booking.NewRepository(dbClient.DB()),
		dbClient,
		availabilityChecker,
		gateway,
		outboxService,
		logg,
		cfg.Booking,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create booking service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, bookingService, availabilityChecker, notificationsService),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
