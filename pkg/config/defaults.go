package config

import (
	"reservo/pkg/model"
	"time"
)

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "reservo"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	// A pending hold stays valid this long before the sweep reclaims it.
	DefaultPendingExpirationMinutes = 30
	DefaultDefaultRangeType         = "days"
	DefaultCleanExpiredBookings     = true
	DefaultSweepInterval            = 1 * time.Minute
	DefaultLockTTL                  = 10 * time.Second

	DefaultBookableKinds = "room,equipment,slot"
	DefaultBookerKinds   = "user,account"

	DefaultBookingEventsEnabled = false
	DefaultBookingEventsTopic   = "booking-events"

	DefaultRateLimitRequests = 10
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)

// ValidRangeTypes are the advisory booking range granularities. The core never
// enforces them; they are surfaced to clients as a display hint.
var ValidRangeTypes = map[string]bool{
	"hours":  true,
	"days":   true,
	"months": true,
}

// DefaultStatusLabels returns the presentation labels for booking statuses.
func DefaultStatusLabels() map[string]string {
	return map[string]string{
		model.StatusPending:   "Pending",
		model.StatusConfirmed: "Confirmed",
		model.StatusCancelled: "Cancelled",
	}
}
