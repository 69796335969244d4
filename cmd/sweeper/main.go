package main

import (
	"context"
	"fmt"
	"time"

	"reservo/internal/bookings/events"
	"reservo/internal/bookings/repository"
	"reservo/internal/bookings/service"
	"reservo/internal/bookings/validator"
	"reservo/pkg/config"
)

const JobName = "booking-sweeper"

// One-shot sweep of expired pending holds, suitable for cron when the
// in-process sweeper is disabled.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	bookingService := service.NewBookingService(
		repository.NewMongoBookingRepository(cfg),
		repository.NewBookingLockRepository(cfg),
		validator.NewBookingValidator(cfg.Log),
		events.NewPublisher(nil, JobName, cfg.Log),
		cfg,
	)

	count, err := bookingService.SweepExpired(ctx)
	if err != nil {
		cfg.Log.Fatal("Sweep failed", "error", err)
	}

	fmt.Printf("Swept %d expired booking(s).\n", count)
}
