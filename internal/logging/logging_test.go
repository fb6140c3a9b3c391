package logging

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceCapturesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := Replace(zap.New(core))
	defer restore()

	Info("mounted", String("path", "/mnt/cfg"), Int("keys", 3))
	Error("reload failed", Err(errors.New("bad table")))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message != "mounted" {
		t.Errorf("message = %q", entries[0].Message)
	}
	ctx := entries[0].ContextMap()
	if ctx["path"] != "/mnt/cfg" || ctx["keys"] != int64(3) {
		t.Errorf("fields = %v", ctx)
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("level = %v", entries[1].Level)
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	SetLevel("warn")
	if Enabled(InfoLevel) {
		t.Error("info enabled at warn")
	}
	if !Enabled(ErrorLevel) {
		t.Error("error disabled at warn")
	}
	SetLevel("bogus")
	if Enabled(InfoLevel) {
		t.Error("invalid level changed the setting")
	}
}

func TestResolveFormat(t *testing.T) {
	for _, f := range []string{"json", "console"} {
		if got := resolveFormat(f); got != f {
			t.Errorf("resolveFormat(%q) = %q", f, got)
		}
	}
	if got := resolveFormat("auto"); got != "json" && got != "console" {
		t.Errorf("resolveFormat(auto) = %q", got)
	}
}
