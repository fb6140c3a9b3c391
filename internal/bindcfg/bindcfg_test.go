package bindcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/keys"
)

const sample = `
[[pair]]
key = "w"
command = "forward"
opposite_key = "s"
opposite_command = "back"

[jump]
key = "space"
command = "jump"

[[bind]]
key = "mouse1"
command = "+attack"

[[bind]]
key = "f"
press = ["say hi", "echo f"]
release = ["echo released f"]

[[bind]]
key = "f1"
command = "screenshot"
`

func drain(t *testing.T, r *binds.Registry, key string, down bool) string {
	t.Helper()
	if err := r.Activate(key, down); err != nil {
		t.Fatalf("Activate(%s, %v): %v", key, down, err)
	}
	return r.Drain(key, down)
}

func TestParseAndApply(t *testing.T) {
	tbl, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	r := binds.NewDefault()
	if _, err := tbl.Apply(r); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key  string
		down bool
		want string
	}{
		{"w", true, "+forward\n"},
		{"s", true, "-forward\n+back\n"},
		{"mouse1", true, "+attack\n"},
		{"mouse1", false, "-attack\n"},
		{"f", true, "say hi\necho f\n"},
		{"f", false, "echo released f\n"},
		{"f1", true, "screenshot\n"},
		{"f1", false, ""},
	}
	for _, tt := range tests {
		if got := drain(t, r, tt.key, tt.down); got != tt.want {
			t.Errorf("%s down=%v = %q, want %q", tt.key, tt.down, got, tt.want)
		}
	}
}

func TestDefaultMovement(t *testing.T) {
	tbl, err := Parse("default_movement = true\n")
	if err != nil {
		t.Fatal(err)
	}
	if mv := tbl.Movement(); len(mv.Pairs) != 2 || mv.Jump.Key != "space" {
		t.Errorf("Movement() = %+v", mv)
	}
}

func TestRemove(t *testing.T) {
	tbl, err := Parse(sample)
	if err != nil {
		t.Fatal(err)
	}
	r := binds.NewDefault()
	applied, err := tbl.Apply(r)
	if err != nil {
		t.Fatal(err)
	}
	applied.Remove()
	for _, k := range keys.All() {
		if r.Bound(k) {
			t.Errorf("%s still bound", k)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"syntax", "[[bind]\n", ""},
		{"unknown field", "[[bind]]\nkey = \"f\"\nonpress = \"x\"\n", "unknown keys"},
		{"unknown key", "[[bind]]\nkey = \"hyper\"\ncommand = \"x\"\n", "unknown key"},
		{"bound twice", "[[bind]]\nkey = \"f\"\ncommand = \"x\"\n[[bind]]\nkey = \"f\"\ncommand = \"y\"\n", "already bound"},
		{"bind over movement", "default_movement = true\n[[bind]]\nkey = \"w\"\ncommand = \"x\"\n", "already bound"},
		{"command and press", "[[bind]]\nkey = \"f\"\ncommand = \"x\"\npress = [\"y\"]\n", "cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binds.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Binds) != 3 || len(tbl.Pairs) != 1 {
		t.Errorf("table = %+v", tbl)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}
