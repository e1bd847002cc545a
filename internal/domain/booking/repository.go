package booking

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for booking persistence
type Repository interface {
	// Create inserts a new booking
	Create(ctx context.Context, b *Booking) error

	// GetByID retrieves a booking by ID
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// UpdateStatus writes the status of a booking
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error

	// Update persists every mutable field of a booking
	Update(ctx context.Context, b *Booking) error
}
