package store

import (
	"context"

	"github.com/ykvlv/booking-bot/internal/domain"
)

// Repo defines storage operations for clients, bookings and the weekly reset.
//
// Uniqueness of (day, time, provider) is enforced by the database itself;
// CreateBooking returns a *domain.ConflictError when the triple is taken and
// never overwrites. Every other failure is a *domain.StorageError.
type Repo interface {
	// UpsertClient creates the client or updates its name.
	UpsertClient(ctx context.Context, id int64, firstName, lastName string) (*domain.Client, error)
	GetClient(ctx context.Context, id int64) (*domain.Client, error)

	CreateBooking(ctx context.Context, clientID int64, day, slot string, provider domain.Provider) (*domain.Booking, error)
	// ListBusy returns the committed slot labels for day/provider.
	ListBusy(ctx context.Context, day string, provider domain.Provider) ([]string, error)
	// ListBookings returns all bookings with ClientName filled, ordered by id.
	ListBookings(ctx context.Context) ([]domain.Booking, error)
	CountBookings(ctx context.Context) (int, error)
	// ClearBookings deletes every booking and returns the number removed.
	ClearBookings(ctx context.Context) (int, error)

	// ResetWeek clears all bookings at most once per date (YYYY-MM-DD).
	// performed is false when a reset for date was already recorded.
	ResetWeek(ctx context.Context, date string) (removed int, performed bool, err error)
	// LastReset returns the most recent recorded reset date, or "" if none.
	LastReset(ctx context.Context) (string, error)

	Close() error
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}
