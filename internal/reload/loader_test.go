package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/game"
	"github.com/huglovefan/cfgfs/internal/retry"
)

type direct struct{ calls int }

func (d *direct) Exclusive(fn func()) {
	d.calls++
	fn()
}

func fire(r *binds.Registry, key string, down bool) string {
	r.Activate(key, down)
	return r.Drain(key, down)
}

func newLoader(t *testing.T, bindsSrc, scriptSrc string) (*Loader, *game.Game, string, string) {
	t.Helper()
	dir := t.TempDir()
	var bindsFile, scriptFile string
	if bindsSrc != "" {
		bindsFile = filepath.Join(dir, "binds.toml")
		if err := os.WriteFile(bindsFile, []byte(bindsSrc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if scriptSrc != "" {
		scriptFile = filepath.Join(dir, "cfgfs.lua")
		if err := os.WriteFile(scriptFile, []byte(scriptSrc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	g := game.New(binds.New([]string{"w", "s", "a", "d", "space", "f", "g"}))
	l := NewLoader(g, &direct{}, bindsFile, scriptFile)
	l.policy = retry.Policy{Attempts: 2, Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}
	return l, g, bindsFile, scriptFile
}

func TestLoadDefaultMovement(t *testing.T) {
	l, g, _, _ := newLoader(t, "", "")
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := fire(g.Registry(), "w", true); got != "+forward\n" {
		t.Errorf("w = %q", got)
	}
}

func TestLoadTableAndScript(t *testing.T) {
	l, g, _, _ := newLoader(t, `
[[bind]]
key = "f"
command = "say table"
`, `bind("g", "say script")`)
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	r := g.Registry()
	if got := fire(r, "f", true); got != "say table\n" {
		t.Errorf("f = %q", got)
	}
	if got := fire(r, "g", true); got != "say script\n" {
		t.Errorf("g = %q", got)
	}
	if r.Bound("w") {
		t.Error("w bound without a movement table")
	}
}

func TestReloadReplacesBinds(t *testing.T) {
	l, g, bindsFile, _ := newLoader(t, `
[[bind]]
key = "f"
command = "say old"
`, "")
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bindsFile, []byte(`
[[bind]]
key = "g"
command = "say new"
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	r := g.Registry()
	if r.Bound("f") {
		t.Error("f still bound after reload")
	}
	if got := fire(r, "g", true); got != "say new\n" {
		t.Errorf("g = %q", got)
	}
}

func TestBrokenFileKeepsOldBinds(t *testing.T) {
	l, g, bindsFile, _ := newLoader(t, `
[[bind]]
key = "f"
command = "say old"
`, "")
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bindsFile, []byte("[[bind]\nkey ="), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(ctx); err == nil {
		t.Fatal("expected parse error")
	}
	if got := fire(g.Registry(), "f", true); got != "say old\n" {
		t.Errorf("f = %q after failed reload", got)
	}
}

func TestBrokenScriptKeepsOldBinds(t *testing.T) {
	l, g, _, scriptFile := newLoader(t, "", `bind("g", "say old")`)
	ctx := context.Background()
	if err := l.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(scriptFile, []byte(`bind("g",`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := l.Load(ctx); err == nil {
		t.Fatal("expected syntax error")
	}
	if got := fire(g.Registry(), "g", true); got != "say old\n" {
		t.Errorf("g = %q after failed reload", got)
	}
}

func TestFailedScriptRestoresTableBinds(t *testing.T) {
	l, g, _, _ := newLoader(t, "", `
		bind("w", "say hijack")
		error("boom")
	`)
	if err := l.Load(context.Background()); err == nil {
		t.Fatal("expected the script error")
	}
	r := g.Registry()
	if !r.Bound("w") {
		t.Fatal("w unbound after the failed script")
	}
	if got := fire(r, "w", true); got != "+forward\n" {
		t.Errorf("w = %q, want %q", got, "+forward\n")
	}
}

func TestClose(t *testing.T) {
	l, g, _, _ := newLoader(t, "", `bind("g", "say x")`)
	if err := l.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	l.Close()
	r := g.Registry()
	for _, k := range r.Keys() {
		if r.Bound(k) {
			t.Errorf("%s still bound after Close", k)
		}
	}
}
