package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/game"
	"github.com/huglovefan/cfgfs/internal/vfs"
)

func newGame() *game.Game {
	return game.New(binds.New([]string{"w", "s", "space", "mouse1", "f"}))
}

func fire(t *testing.T, r *binds.Registry, key string, down bool) string {
	t.Helper()
	r.Activate(key, down)
	return r.Drain(key, down)
}

func TestBindFunctionsAndStrings(t *testing.T) {
	g := newGame()
	_, err := LoadString(g, "test.lua", `
		bind("mouse1", "+attack", "-attack")
		bind("f", function(emit)
			emit("say one")
			emit("say two")
			return "say three"
		end)
	`)
	if err != nil {
		t.Fatal(err)
	}
	r := g.Registry()

	tests := []struct {
		key  string
		down bool
		want string
	}{
		{"mouse1", true, "+attack\n"},
		{"mouse1", false, "-attack\n"},
		{"f", true, "say one\nsay two\nsay three\n"},
		{"f", false, ""},
	}
	for _, tt := range tests {
		if got := fire(t, r, tt.key, tt.down); got != tt.want {
			t.Errorf("%s down=%v = %q, want %q", tt.key, tt.down, got, tt.want)
		}
	}
}

func TestIsDownAndPress(t *testing.T) {
	g := newGame()
	_, err := LoadString(g, "jump.lua", `
		bind("w", "+w", "-w")
		bind("space", function(emit)
			if not is_down("w") then
				press("w")
			end
			return "+jump"
		end, function(emit)
			emit("-jump")
			if is_down("w") then
				release("w")
			end
		end)
	`)
	if err != nil {
		t.Fatal(err)
	}
	r := g.Registry()

	if got := fire(t, r, "space", true); got != "+w\n+jump\n" {
		t.Errorf("press = %q", got)
	}
	if got := fire(t, r, "space", false); got != "-jump\n-w\n" {
		t.Errorf("release = %q", got)
	}
}

func TestLuaErrorIsHandlerFault(t *testing.T) {
	g := newGame()
	_, err := LoadString(g, "bad.lua", `
		bind("f", function(emit)
			emit("lost")
			error("boom")
		end)
	`)
	if err != nil {
		t.Fatal(err)
	}
	r := g.Registry()

	err = r.Activate("f", true)
	var fault *binds.HandlerFault
	if !errors.As(err, &fault) {
		t.Fatalf("Activate = %v, want *HandlerFault", err)
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("fault %q does not carry the Lua error", err)
	}
	if got := r.Drain("f", true); got != "" {
		t.Errorf("drain after fault = %q", got)
	}
	if !r.IsDown("f") {
		t.Error("key state rolled back")
	}
}

func TestPressOutsideHandler(t *testing.T) {
	_, err := LoadString(newGame(), "top.lua", `press("w")`)
	if err == nil || !strings.Contains(err.Error(), "inside key handlers") {
		t.Errorf("LoadString = %v", err)
	}
}

func TestLoadErrorsUnbind(t *testing.T) {
	g := newGame()
	_, err := LoadString(g, "half.lua", `
		bind("w", "+forward")
		bind("nope", "x")
	`)
	if err == nil {
		t.Fatal("expected an error for an unknown key")
	}
	if g.Registry().Bound("w") {
		t.Error("failed script left w bound")
	}
}

func TestSandbox(t *testing.T) {
	for _, code := range []string{`os.exit(1)`, `io.open("/etc/passwd")`, `dofile("x.lua")`, `require("os")`} {
		if _, err := LoadString(newGame(), "sandbox.lua", code); err == nil {
			t.Errorf("%s: expected an error", code)
		}
	}
}

func TestTimeout(t *testing.T) {
	_, err := LoadString(newGame(), "loop.lua", `while true do end`, WithTimeout(50*time.Millisecond))
	if err == nil {
		t.Fatal("infinite loop was not stopped")
	}
}

func TestCallbacks(t *testing.T) {
	g := newGame()
	s, err := LoadString(g, "cb.lua", `
		messages = {}
		lines = {}
		on_message(function(channel, data)
			table.insert(messages, channel .. "=" .. tostring(data))
		end)
		on_console(function(line)
			table.insert(lines, line)
		end)
	`)
	if err != nil {
		t.Fatal(err)
	}

	g.Messages().Publish(game.Message{Channel: "chat", Data: []byte("hi")})
	g.Messages().Publish(game.Message{Channel: "chat"})
	g.Console().Publish("connected")

	if err := s.L.DoString(`result = table.concat(messages, ",") .. "|" .. table.concat(lines, ",")`); err != nil {
		t.Fatal(err)
	}
	if got := s.L.GetGlobal("result").String(); got != "chat=hi,chat=nil|connected" {
		t.Errorf("callbacks saw %q", got)
	}

	s.Close()
	if g.Messages().Len() != 0 || g.Console().Len() != 0 {
		t.Error("callbacks still subscribed after Close")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binds.lua")
	if err := os.WriteFile(path, []byte(`bind("w", "+forward", "-forward")`), 0o644); err != nil {
		t.Fatal(err)
	}
	g := newGame()
	s, err := Load(g, path)
	if err != nil {
		t.Fatal(err)
	}
	if keys := s.Keys(); len(keys) != 1 || keys[0] != "w" {
		t.Errorf("Keys() = %v", keys)
	}
	if got := fire(t, g.Registry(), "w", true); got != "+forward\n" {
		t.Errorf("got %q", got)
	}
	s.Close()
	if g.Registry().Bound("w") {
		t.Error("w still bound after Close")
	}
}

func TestCloseRestoresReplacedBinds(t *testing.T) {
	g := newGame()
	r := g.Registry()
	r.Bind("w", func(binds.Emit) string { return "+forward" }, nil)
	r.Bind("f", func(binds.Emit) string { return "+use" }, nil)

	s, err := LoadString(g, "override.lua", `
		bind("w", "say mine")
		bind("w", "say mine again")
		unbind("f")
		bind("mouse1", "+attack")
	`)
	if err != nil {
		t.Fatal(err)
	}
	if got := fire(t, r, "w", true); got != "say mine again\n" {
		t.Errorf("w while loaded = %q", got)
	}
	if r.Bound("f") {
		t.Error("f still bound after unbind")
	}

	s.Close()
	if got := fire(t, r, "w", true); got != "+forward\n" {
		t.Errorf("w after Close = %q, want %q", got, "+forward\n")
	}
	if got := fire(t, r, "f", true); got != "+use\n" {
		t.Errorf("f after Close = %q, want %q", got, "+use\n")
	}
	if r.Bound("mouse1") {
		t.Error("mouse1 bound after Close")
	}
}

func TestAlias(t *testing.T) {
	g := newGame()
	s, err := LoadString(g, "alias.lua", `
		alias("greet", function(emit)
			emit("say hi")
			return "echo done"
		end)
		alias("plain", "say plain")
		alias("gone", "x")
		alias("gone", nil)
		alias("bad", function() error("broken") end)
	`)
	if err != nil {
		t.Fatal(err)
	}
	dir := g.Aliases()
	if got := strings.Join(dir.List(), ","); got != "greet.cfg,plain.cfg,bad.cfg" {
		t.Errorf("aliases = %s", got)
	}

	tests := []struct {
		file string
		want string
	}{
		{"greet.cfg", "say hi\necho done\n"},
		{"plain.cfg", "say plain\n"},
		{"bad.cfg", ""},
	}
	for _, tt := range tests {
		n, ok := dir.Child(tt.file)
		if !ok {
			t.Errorf("%s missing", tt.file)
			continue
		}
		f := n.(*vfs.DynamicFile)
		for i := 0; i < 2; i++ {
			if got := f.Content(); got != tt.want {
				t.Errorf("%s exec %d = %q, want %q", tt.file, i, got, tt.want)
			}
		}
	}

	s.Close()
	if dir.Len() != 0 {
		t.Errorf("aliases left after Close: %v", dir.List())
	}
}

func TestAliasName(t *testing.T) {
	for _, name := range []string{"", "a/b", `a\b`} {
		code := fmt.Sprintf("alias(%q, %q)", name, "say x")
		if _, err := LoadString(newGame(), "name.lua", code); err == nil {
			t.Errorf("alias %q: expected an error", name)
		}
	}
}
