package model

import "time"

// BookingLock is an advisory lock keyed by bookable subject. Inserting it into
// a collection with a unique _id serializes concurrent preBook attempts for the
// same subject; a TTL index on expires_at reclaims locks from crashed holders.
type BookingLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
