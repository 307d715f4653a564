package logging

import (
	"context"
	"log/slog"
	"testing"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	mutex.Unlock()
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	// Global info level, with per-module overrides in both directions.
	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"v4l2": "debug",
			"gpio": "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"v4l2", true, true, true},
		{"gpio", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()

			gotDebug := handler.Enabled(context.Background(), slog.LevelDebug)
			gotInfo := handler.Enabled(context.Background(), slog.LevelInfo)
			gotWarn := handler.Enabled(context.Background(), slog.LevelWarn)

			if gotDebug != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, gotDebug, tt.wantDebug)
			}
			if gotInfo != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, gotInfo, tt.wantInfo)
			}
			if gotWarn != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, gotWarn, tt.wantWarn)
			}
		})
	}
}

func TestInitializeUpdatesExistingLoggers(t *testing.T) {
	resetState()

	// A logger created before Initialize runs at the default info level.
	handler := GetLogger("early").Handler()
	if handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("pre-init logger must default to info")
	}

	Initialize(Config{
		Level:   "info",
		Format:  "text",
		Modules: map[string]string{"early": "debug"},
	})

	handler = GetLogger("early").Handler()
	if !handler.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Initialize did not retarget the existing module logger")
	}
}

func TestGetLoggerReturnsSameInstance(t *testing.T) {
	resetState()
	if GetLogger("dup") != GetLogger("dup") {
		t.Error("module logger not cached")
	}
}

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	} {
		got := parseLevel(input)
		if got == nil || *got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
	if parseLevel("verbose") != nil {
		t.Error("unknown level must parse to nil")
	}
}
