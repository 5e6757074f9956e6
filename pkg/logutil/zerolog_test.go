package logutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestZerologFactory_ScopeField(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(zerolog.New(&buf))

	log := f.NewLogger("call")
	log.Infof("session %s started", "abc-1")

	out := buf.String()
	if !strings.Contains(out, `"scope":"call"`) {
		t.Errorf("output missing scope field: %s", out)
	}
	if !strings.Contains(out, "session abc-1 started") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("output missing level: %s", out)
	}
}

func TestZerologFactory_ScopesAreIndependent(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(zerolog.New(&buf))

	f.NewLogger("relay").Warn("one")
	f.NewLogger("media").Error("two")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"scope":"relay"`) {
		t.Errorf("line 0 = %s, want relay scope", lines[0])
	}
	if !strings.Contains(lines[1], `"scope":"media"`) {
		t.Errorf("line 1 = %s, want media scope", lines[1])
	}
}

func TestZerologFactory_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory(zerolog.New(&buf).Level(zerolog.WarnLevel))

	log := f.NewLogger("call")
	log.Trace("hidden")
	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered levels leaked: %s", out)
	}
	if !strings.Contains(out, "visible") {
		t.Errorf("warn line missing: %s", out)
	}
}

func TestNewConsoleFactory_Levels(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
	}{
		{name: "debug level", level: "debug", wantDebug: true},
		{name: "info level", level: "info", wantDebug: false},
		{name: "unknown falls back to info", level: "loud", wantDebug: false},
		{name: "empty falls back to info", level: "", wantDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			f := NewConsoleFactory(&buf, tt.level)

			log := f.NewLogger("test")
			log.Debug("debug-line")
			log.Info("info-line")

			out := buf.String()
			if got := strings.Contains(out, "debug-line"); got != tt.wantDebug {
				t.Errorf("debug visible = %t, want %t", got, tt.wantDebug)
			}
			if !strings.Contains(out, "info-line") {
				t.Errorf("info line missing: %s", out)
			}
		})
	}
}
