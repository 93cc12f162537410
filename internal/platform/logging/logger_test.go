package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew_RenamesKeysAndFiltersLevel(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(&buf, "WARN")

	log.Info("dropped")
	log.Warn("kept", "ride_id", "r1")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	if rec["message"] != "kept" || rec["ride_id"] != "r1" || rec["level"] != "WARN" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["timestamp"]; !ok {
		t.Fatalf("missing timestamp: %v", rec)
	}
	if _, ok := rec["msg"]; ok {
		t.Fatalf("msg key should be renamed: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
