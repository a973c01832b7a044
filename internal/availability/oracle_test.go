package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/ykvlv/booking-bot/internal/domain"
)

type fakeBusy struct {
	busy map[string][]string // day|provider -> times
	err  error
}

func (f *fakeBusy) ListBusy(_ context.Context, day string, provider domain.Provider) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.busy[day+"|"+string(provider)], nil
}

func testWindow(t *testing.T) domain.ScheduleWindow {
	t.Helper()
	w, err := domain.NewScheduleWindow(
		[]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		[]int{9, 10, 11},
		[]int{0, 30},
		[]string{"11:30"},
		[]domain.Provider{"pediatrician", "surgeon"},
	)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

func TestAvailable_MarksBusy(t *testing.T) {
	lister := &fakeBusy{busy: map[string][]string{"monday|surgeon": {"10:00"}}}
	o := New(testWindow(t), lister, zaptest.NewLogger(t))

	v := o.Available(context.Background(), "monday", "surgeon")
	if v.Degraded {
		t.Fatalf("unexpected degraded view")
	}
	if len(v.Slots) != 5 {
		t.Fatalf("want 5 slots, got %d", len(v.Slots))
	}
	s, ok := v.Lookup("10:00")
	if !ok || !s.Busy {
		t.Fatalf("10:00 must be busy, got %+v %v", s, ok)
	}
	if free := v.Free(); len(free) != 4 {
		t.Fatalf("want 4 free slots, got %v", free)
	}

	// other provider on the same day is untouched
	v = o.Available(context.Background(), "monday", "pediatrician")
	if len(v.Free()) != 5 {
		t.Fatalf("pediatrician must be fully free, got %v", v.Free())
	}
}

func TestAvailable_FullyBooked(t *testing.T) {
	w := testWindow(t)
	lister := &fakeBusy{busy: map[string][]string{"tuesday|pediatrician": w.Slots()}}
	o := New(w, lister, zaptest.NewLogger(t))

	v := o.Available(context.Background(), "tuesday", "pediatrician")
	for _, s := range v.Slots {
		if !s.Busy {
			t.Fatalf("slot %s must be busy", s.Time)
		}
	}
	if len(v.Free()) != 0 {
		t.Fatalf("want no free slots, got %v", v.Free())
	}
}

func TestAvailable_DegradesOnStorageFailure(t *testing.T) {
	lister := &fakeBusy{err: errors.New("database is locked")}
	o := New(testWindow(t), lister, zaptest.NewLogger(t))

	v := o.Available(context.Background(), "monday", "surgeon")
	if !v.Degraded {
		t.Fatalf("want degraded view")
	}
	want := []string{"9:00", "10:00", "11:00"}
	if len(v.Slots) != len(want) {
		t.Fatalf("want hourly grid %v, got %+v", want, v.Slots)
	}
	for i, s := range v.Slots {
		if s.Time != want[i] || s.Busy {
			t.Fatalf("slot %d: want free %s, got %+v", i, want[i], s)
		}
	}
}

func TestIsFree(t *testing.T) {
	lister := &fakeBusy{busy: map[string][]string{"monday|surgeon": {"9:30"}}}
	o := New(testWindow(t), lister, zaptest.NewLogger(t))
	ctx := context.Background()

	free, err := o.IsFree(ctx, "monday", "surgeon", "9:30")
	if err != nil || free {
		t.Fatalf("9:30 must be taken, got free=%v err=%v", free, err)
	}
	free, err = o.IsFree(ctx, "monday", "surgeon", "9:00")
	if err != nil || !free {
		t.Fatalf("9:00 must be free, got free=%v err=%v", free, err)
	}

	lister.err = errors.New("disk I/O error")
	if _, err := o.IsFree(ctx, "monday", "surgeon", "9:00"); err == nil {
		t.Fatalf("IsFree must surface storage errors")
	}
}
