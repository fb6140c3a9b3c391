package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherReportsWrites(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "binds.toml")
	other := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(file, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New([]string{file}, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := w.Subscribe()
	w.Start(ctx)
	defer w.Stop()

	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected event for %s", ev.Path)
	case <-time.After(200 * time.Millisecond):
	}

	if err := os.WriteFile(file, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventModify {
			t.Errorf("type = %s, want %s", ev.Type, EventModify)
		}
		if filepath.Base(ev.Path) != "binds.toml" {
			t.Errorf("path = %s", ev.Path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event after write")
	}
}

func TestWatcherReportsRemove(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "script.lua")
	if err := os.WriteFile(file, []byte("-- x"), 0o644); err != nil {
		t.Fatal(err)
	}
	w, err := New([]string{file}, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	events := w.Subscribe()
	w.Start(context.Background())
	defer w.Stop()

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-events:
		if ev.Type != EventDelete {
			t.Errorf("type = %s, want %s", ev.Type, EventDelete)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event after remove")
	}
}

func TestStopClosesSubscribers(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "f")}, 0)
	if err != nil {
		t.Fatal(err)
	}
	events := w.Subscribe()
	w.Start(context.Background())
	w.Stop()
	if _, ok := <-events; ok {
		t.Fatal("channel still open after Stop")
	}
}
