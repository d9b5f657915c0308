package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		level   string
		enabled zapcore.Level
		off     zapcore.Level
	}{
		{"debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"INFO", zapcore.InfoLevel, zapcore.DebugLevel},
		{" warn ", zapcore.WarnLevel, zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel, zapcore.WarnLevel},
	}

	for _, tt := range tests {
		log, err := New(tt.level)
		if err != nil {
			t.Fatalf("New(%q) error = %v", tt.level, err)
		}
		if !log.Core().Enabled(tt.enabled) {
			t.Errorf("New(%q) does not log at %v", tt.level, tt.enabled)
		}
		if log.Core().Enabled(tt.off) {
			t.Errorf("New(%q) logs at %v", tt.level, tt.off)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("loud"); err == nil {
		t.Fatal("New(\"loud\") error = nil, want error")
	}
}
