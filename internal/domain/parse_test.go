package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseFullName_TwoTokens(t *testing.T) {
	first, last, err := ParseFullName("  Иван   Иванов ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != "Иван" || last != "Иванов" {
		t.Fatalf("want Иван/Иванов, got %q/%q", first, last)
	}
}

func TestParseFullName_Rejects(t *testing.T) {
	for _, in := range []string{"", "   ", "Иван", "Иван Иванович Петров"} {
		_, _, err := ParseFullName(in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%q: want ValidationError, got %v", in, err)
		}
		if ve.Field != "name" {
			t.Fatalf("%q: want field name, got %q", in, ve.Field)
		}
	}
}

func TestParseClock(t *testing.T) {
	h, m, err := ParseClock("09:30")
	if err != nil || h != 9 || m != 30 {
		t.Fatalf("want 9:30, got %d:%d (%v)", h, m, err)
	}
	for _, bad := range []string{"9", "24:00", "10:7", "aa:bb", "10:60"} {
		if _, _, err := ParseClock(bad); !errors.Is(err, ErrInvalidClock) {
			t.Fatalf("%q: want ErrInvalidClock, got %v", bad, err)
		}
	}
}

func TestFormatSlot(t *testing.T) {
	if got := FormatSlot(9, 0); got != "9:00" {
		t.Fatalf("want 9:00, got %s", got)
	}
	if got := FormatSlot(13, 30); got != "13:30" {
		t.Fatalf("want 13:30, got %s", got)
	}
}

func TestParseWeekday(t *testing.T) {
	wd, err := ParseWeekday("Saturday")
	if err != nil || wd != time.Saturday {
		t.Fatalf("want saturday, got %v (%v)", wd, err)
	}
	wd, err = ParseWeekday("mon")
	if err != nil || wd != time.Monday {
		t.Fatalf("want monday, got %v (%v)", wd, err)
	}
	if _, err := ParseWeekday("funday"); !errors.Is(err, ErrUnknownDay) {
		t.Fatalf("want ErrUnknownDay, got %v", err)
	}
}

func TestConflictError_Is(t *testing.T) {
	var err error = &ConflictError{Day: "monday", Time: "10:00", Provider: "surgeon"}
	if !IsConflict(err) {
		t.Fatalf("ConflictError must match ErrConflict")
	}
	if IsStorage(err) {
		t.Fatalf("conflict is not a storage fault")
	}
	wrapped := &StorageError{Op: "create booking", Err: errors.New("disk I/O error")}
	if !IsStorage(wrapped) || IsConflict(wrapped) {
		t.Fatalf("storage classification wrong for %v", wrapped)
	}
}
