package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/unieats/unieats-orders-service/internal/clients"
	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/events"
	"github.com/unieats/unieats-orders-service/internal/handlers"
	"github.com/unieats/unieats-orders-service/internal/jobs"
	"github.com/unieats/unieats-orders-service/internal/logging"
	"github.com/unieats/unieats-orders-service/internal/metrics"
	"github.com/unieats/unieats-orders-service/internal/repository"
	"github.com/unieats/unieats-orders-service/internal/server"
	"github.com/unieats/unieats-orders-service/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	if err := logging.Initialize(cfg.Logging.Level, cfg.Logging.Env); err != nil {
		panic(err)
	}
	defer logging.Sync()

	logger := logging.NewLogger("unieats-orders-service")

	if err := service.RegisterValidators(); err != nil {
		logger.Fatal("Failed to register validators", logging.Fields{"error": err.Error()})
	}

	if cfg.Features.RunMigrations {
		if err := repository.RunMigrations(cfg.Database.MigrationURL(), logger); err != nil {
			logger.Fatal("Failed to run migrations", logging.Fields{"error": err.Error()})
		}
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
	}
	defer db.Close()

	redisClient := repository.NewRedisClient(cfg.Redis)
	defer redisClient.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	orderRepo := repository.NewPostgresOrderRepository(db, logger)
	orderCache := repository.NewRedisOrderCache(redisClient, cfg.Redis.TTL, logger)
	rateStore := repository.NewRedisRateSource(redisClient, cfg.Redis.RatesKey)

	defaults := service.RatesFromConfig(cfg.Rates)
	if err := service.ValidateRates(defaults); err != nil {
		logger.Fatal("Invalid default rates", logging.Fields{"error": err.Error()})
	}
	calculator := service.NewRevenueCalculator(rateStore, defaults, m, logger)
	lifecycle := service.NewLifecycle(nil)

	dispatcher := events.NewDispatcher(m, logger,
		events.NewInventorySubscriber(clients.NewHTTPInventoryClient(cfg.InventoryService, logger)),
		events.NewNotificationSubscriber(newNotifier(cfg, logger)),
	)

	publisher := newPublisher(cfg, logger)
	if publisher != nil {
		defer publisher.Close()
		dispatcher.Subscribe(events.NewBrokerSubscriber(publisher))
	}

	orderService := service.NewOrderService(
		orderRepo,
		orderCache,
		calculator,
		lifecycle,
		dispatcher,
		rateStore,
		m,
		cfg,
		logger,
	)

	checks := map[string]handlers.ReadinessCheck{
		"database": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	}
	h := handlers.NewHandlers(orderService, cfg, prometheus.DefaultGatherer, checks, logger)
	srv := server.New(h, cfg, m, logger)

	go func() {
		logger.Info("Server starting", logging.Fields{
			"port":            cfg.Server.Port,
			"events_broker":   cfg.Events.Broker,
			"enable_auth":     cfg.Features.EnableAuth,
			"enable_caching":  cfg.Features.EnableOrderCaching,
			"notify_channel":  cfg.Features.NotificationChannel,
			"service_fee_cap": defaults.ServiceFeeCap.String(),
		})
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", logging.Fields{"error": err.Error()})
		}
	}()

	var consumer *events.KafkaConsumer
	if cfg.Features.EnableKitchenConsumer {
		consumer = events.NewKafkaConsumer(cfg.Kafka, orderService, logger)
		go func() {
			if err := consumer.Start(context.Background()); err != nil {
				logger.Error("Kitchen consumer failed", logging.Fields{"error": err.Error()})
			}
		}()
	}

	var repairJob *jobs.RevenueRepairJob
	if cfg.Features.EnableRevenueRepair {
		repairJob = jobs.NewRevenueRepairJob(orderService, cfg.Scheduler, logger)
		if err := repairJob.Start(cfg.Scheduler.RevenueRepairSpec); err != nil {
			logger.Fatal("Failed to schedule revenue repair", logging.Fields{"error": err.Error()})
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if consumer != nil {
		consumer.Stop()
	}
	if repairJob != nil {
		select {
		case <-repairJob.Stop().Done():
		case <-ctx.Done():
			logger.Warn("Revenue repair still running at shutdown")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logger.Info("Database connected", logging.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	})

	return db, nil
}

func newNotifier(cfg *config.Config, logger *logging.Logger) clients.Notifier {
	if cfg.Features.NotificationChannel == "smtp" {
		return clients.NewSMTPNotifier(cfg.SMTP, logger)
	}
	return clients.NewHTTPNotificationClient(cfg.NotificationService, logger)
}

// newPublisher returns nil when order events are disabled.
func newPublisher(cfg *config.Config, logger *logging.Logger) events.Publisher {
	if !cfg.Features.EnableOrderEvents {
		return nil
	}

	switch cfg.Events.Broker {
	case "kafka":
		return events.NewKafkaPublisher(cfg.Kafka, logger)
	case "rabbitmq":
		p, err := events.NewAMQPPublisher(cfg.RabbitMQ, logger)
		if err != nil {
			logger.Error("RabbitMQ unavailable, order events disabled", logging.Fields{"error": err.Error()})
			return nil
		}
		return p
	default:
		return nil
	}
}
