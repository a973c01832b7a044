// Package availability combines the slot grid with committed bookings into
// the per-day, per-provider occupancy view shown to clients.
package availability

import (
	"context"

	"go.uber.org/zap"

	"github.com/ykvlv/booking-bot/internal/domain"
)

// BusyLister is the part of the store the oracle reads.
type BusyLister interface {
	ListBusy(ctx context.Context, day string, provider domain.Provider) ([]string, error)
}

// Slot is one grid entry with its occupancy.
type Slot struct {
	Time string
	Busy bool
}

// View is the ordered occupancy of one day for one provider.
// Degraded views come from the hourly fallback grid and carry no busy information.
type View struct {
	Day      string
	Provider domain.Provider
	Slots    []Slot
	Degraded bool
}

// Lookup returns the slot with the given label.
func (v View) Lookup(label string) (Slot, bool) {
	for _, s := range v.Slots {
		if s.Time == label {
			return s, true
		}
	}
	return Slot{}, false
}

// Free returns the labels not marked busy.
func (v View) Free() []string {
	var out []string
	for _, s := range v.Slots {
		if !s.Busy {
			out = append(out, s.Time)
		}
	}
	return out
}

// Oracle answers availability questions for the configured window.
type Oracle struct {
	window domain.ScheduleWindow
	busy   BusyLister
	log    *zap.Logger
}

// New creates an Oracle.
func New(window domain.ScheduleWindow, busy BusyLister, log *zap.Logger) *Oracle {
	return &Oracle{window: window, busy: busy, log: log.Named("availability")}
}

// Available marks every grid slot of day/provider busy or free.
// When the store cannot be read it returns the hourly grid with Degraded set.
func (o *Oracle) Available(ctx context.Context, day string, provider domain.Provider) View {
	busy, err := o.busy.ListBusy(ctx, day, provider)
	if err != nil {
		o.log.Warn("busy slots unavailable, using hourly grid",
			zap.String("day", day),
			zap.String("provider", string(provider)),
			zap.Error(err),
		)
		hourly := o.window.HourlySlots()
		v := View{Day: day, Provider: provider, Degraded: true, Slots: make([]Slot, 0, len(hourly))}
		for _, t := range hourly {
			v.Slots = append(v.Slots, Slot{Time: t})
		}
		return v
	}

	taken := make(map[string]struct{}, len(busy))
	for _, t := range busy {
		taken[t] = struct{}{}
	}
	grid := o.window.Slots()
	v := View{Day: day, Provider: provider, Slots: make([]Slot, 0, len(grid))}
	for _, t := range grid {
		_, isBusy := taken[t]
		v.Slots = append(v.Slots, Slot{Time: t, Busy: isBusy})
	}
	return v
}

// IsFree re-reads the store for a single slot. Unlike Available it does not
// degrade: a storage failure is returned to the caller.
func (o *Oracle) IsFree(ctx context.Context, day string, provider domain.Provider, slot string) (bool, error) {
	busy, err := o.busy.ListBusy(ctx, day, provider)
	if err != nil {
		return false, err
	}
	for _, t := range busy {
		if t == slot {
			return false, nil
		}
	}
	return true, nil
}
