package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_Levels(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
		"bogus": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		log, err := New(in, "json")
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !log.Core().Enabled(want) || (want > zapcore.DebugLevel && log.Core().Enabled(want-1)) {
			t.Fatalf("%s: want level %s", in, want)
		}
	}
}

func TestNew_Format(t *testing.T) {
	if _, err := New("info", "console"); err != nil {
		t.Fatalf("console: %v", err)
	}
	if _, err := New("info", "xml"); err == nil {
		t.Fatalf("want error for unknown format")
	}
}
