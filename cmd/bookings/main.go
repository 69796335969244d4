package main

import (
	"context"
	"reservo/internal/bookings/events"
	"reservo/internal/bookings/handler"
	"reservo/internal/bookings/repository"
	"reservo/internal/bookings/service"
	"reservo/internal/bookings/validator"
	"reservo/pkg/app"
	"reservo/pkg/config"
	"reservo/pkg/kafka"
	kafkaconfig "reservo/pkg/kafka/config"
)

const ServiceName = "bookings"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()

	cfg.Log.Info("Starting Bookings service")

	publisher := initPublisher(cfg)
	bookingService := initServices(cfg, publisher)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewBookingHandler(bookingService, cfg),
		handler.NewHealthHandler(cfg, ServiceName),
	)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	if cfg.CleanExpiredBookings {
		go bookingService.RunSweeper(sweepCtx)
	} else {
		cfg.Log.Info("Expired booking sweeper disabled by configuration")
	}

	serverApp.OnShutdown(func() {
		stopSweeper()
		if err := publisher.Close(); err != nil {
			cfg.Log.Warn("Failed to close event publisher", "error", err)
		}
		cfg.GracefulShutdown()
	})

	serverApp.Run()
}

func initPublisher(cfg *config.Config) *events.Publisher {
	if !cfg.BookingEventsEnabled {
		cfg.Log.Info("Booking events disabled, lifecycle events will not be published")
		return events.NewPublisher(nil, ServiceName, cfg.Log)
	}

	kafkaCfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	cfg.Log.Info("Booking event publisher initialized", "topic", cfg.BookingEventsTopic)
	return events.NewPublisher(producer, ServiceName, cfg.Log)
}

func initServices(cfg *config.Config, publisher *events.Publisher) service.BookingService {
	bookingValidator := validator.NewBookingValidator(cfg.Log)
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewBookingLockRepository(cfg)

	bookingService := service.NewBookingService(
		bookingRepo,
		lockRepo,
		bookingValidator,
		publisher,
		cfg,
	)

	cfg.Log.Info("Booking service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}
