package model

import (
	"time"
)

// Booking statuses. Expiration is not a stored status: an expired hold is
// rewritten to cancelled by the sweep.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// EntityRef is a polymorphic reference to an application entity: the kind of
// entity plus its key. It identifies both bookable subjects and bookers.
type EntityRef struct {
	Kind string `json:"kind" validate:"required,entity_kind"`
	ID   string `json:"id" validate:"required,min=1,max=64"`
}

func (r EntityRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

// Booking reserves a bookable entity for the half-open interval
// [start_time, end_time). Pending bookings carry an expires_at deadline and
// count against availability until confirmed, cancelled or swept.
type Booking struct {
	ID           string     `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BookableKind string     `json:"bookable_type" bson:"bookable_type" validate:"required,entity_kind"`
	BookableID   string     `json:"bookable_id" bson:"bookable_id" validate:"required,min=1,max=64"`
	BookedByKind string     `json:"booked_by_type,omitempty" bson:"booked_by_type,omitempty" validate:"omitempty,entity_kind"`
	BookedByID   string     `json:"booked_by_id,omitempty" bson:"booked_by_id,omitempty" validate:"omitempty,min=1,max=64"`
	StartTime    time.Time  `json:"start_time" bson:"start_time" validate:"required"`
	EndTime      time.Time  `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Status       string     `json:"status" bson:"status" validate:"required,oneof=pending confirmed cancelled"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty" bson:"expires_at,omitempty"`
	Notes        string     `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=2000"`
	CreatedAt    time.Time  `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// Bookable returns the subject reference of the booking.
func (b *Booking) Bookable() EntityRef {
	return EntityRef{Kind: b.BookableKind, ID: b.BookableID}
}

// BookedBy returns the booker reference, or nil when the hold was anonymous.
func (b *Booking) BookedBy() *EntityRef {
	if b.BookedByKind == "" && b.BookedByID == "" {
		return nil
	}
	return &EntityRef{Kind: b.BookedByKind, ID: b.BookedByID}
}

// ListFilter narrows booking listings. From/To select any booking whose
// interval touches the window (end_time >= From, start_time <= To), not only
// bookings fully contained in it.
type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status string
}
