package domain

import "time"

// Client is the booking-side view of a chat user.
type Client struct {
	ID        int64 // platform-stable chat/user id
	FirstName string
	LastName  string
	CreatedAt time.Time // UTC
}

// DisplayName returns "First Last".
func (c Client) DisplayName() string {
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Provider is a tag from the fixed provider enumeration (e.g. "pediatrician").
type Provider string

// Booking is a committed reservation of a (day, time, provider) triple.
type Booking struct {
	ID         int64
	ClientID   int64
	Day        string // weekday label, see DayLabel
	Time       string // slot label, H:MM
	Provider   Provider
	CreatedAt  time.Time // UTC
	ClientName string    // filled by listing queries only
}
