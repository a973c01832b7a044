package store

import (
	"time"

	"github.com/ykvlv/booking-bot/internal/domain"
)

// rowScanner is satisfied by *sql.Row, *sql.Rows, pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// fromUnix converts a stored unix timestamp into UTC time.
func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// scanBookingSQLite reads id, client_id, day, time, provider, created_at, client_name.
func scanBookingSQLite(s rowScanner) (domain.Booking, error) {
	var (
		b        domain.Booking
		provider string
		created  int64
	)
	if err := s.Scan(&b.ID, &b.ClientID, &b.Day, &b.Time, &provider, &created, &b.ClientName); err != nil {
		return domain.Booking{}, err
	}
	b.Provider = domain.Provider(provider)
	b.CreatedAt = fromUnix(created)
	return b, nil
}

// scanBookingPG is the Postgres counterpart, where created_at is a timestamptz.
func scanBookingPG(s rowScanner) (domain.Booking, error) {
	var (
		b        domain.Booking
		provider string
	)
	if err := s.Scan(&b.ID, &b.ClientID, &b.Day, &b.Time, &provider, &b.CreatedAt, &b.ClientName); err != nil {
		return domain.Booking{}, err
	}
	b.Provider = domain.Provider(provider)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}
