package reload

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/huglovefan/cfgfs/internal/bindcfg"
	"github.com/huglovefan/cfgfs/internal/game"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/metrics"
	"github.com/huglovefan/cfgfs/internal/retry"
	"github.com/huglovefan/cfgfs/internal/script"
)

// Exclusive runs a function with filesystem requests paused.
type Exclusive interface {
	Exclusive(fn func())
}

// Loader owns the binds installed from the bind table and the script.
type Loader struct {
	g         *game.Game
	ex        Exclusive
	bindsFile string
	script    string
	policy    retry.Policy

	applied *bindcfg.Applied
	running *script.Script
}

// NewLoader creates a loader. With no bind table the default movement table
// is used; the script is optional.
func NewLoader(g *game.Game, ex Exclusive, bindsFile, scriptFile string) *Loader {
	return &Loader{
		g:         g,
		ex:        ex,
		bindsFile: bindsFile,
		script:    scriptFile,
		policy:    retry.ReloadPolicy(),
	}
}

func (l *Loader) table(ctx context.Context) (*bindcfg.Table, error) {
	if l.bindsFile == "" {
		return &bindcfg.Table{DefaultMovement: true}, nil
	}
	return retry.DoValue(ctx, l.policy, func() (*bindcfg.Table, error) {
		t, err := bindcfg.Load(l.bindsFile)
		return t, retry.Retryable(err)
	})
}

// checkScript compiles the script without running it, so a file caught
// half-written is retried before the old binds are torn down.
func (l *Loader) checkScript(ctx context.Context) error {
	if l.script == "" {
		return nil
	}
	return retry.Do(ctx, l.policy, func() error {
		L := lua.NewState(lua.Options{SkipOpenLibs: true})
		defer L.Close()
		if _, err := L.LoadFile(l.script); err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
}

// Load replaces the installed binds with the current file contents. The
// files are checked first; if either is broken the old binds stay.
func (l *Loader) Load(ctx context.Context) (err error) {
	defer func() { metrics.RecordReload(err == nil) }()

	t, err := l.table(ctx)
	if err != nil {
		return err
	}
	if err := l.checkScript(ctx); err != nil {
		return fmt.Errorf("check %s: %w", l.script, err)
	}

	l.ex.Exclusive(func() {
		l.removeLocked()
		l.applied, err = t.Apply(l.g.Registry())
		if err != nil {
			return
		}
		if l.script != "" {
			l.running, err = script.Load(l.g, l.script)
		}
	})
	if err != nil {
		return err
	}
	logging.Info("binds loaded",
		logging.String("binds", l.bindsFile),
		logging.String("script", l.script))
	return nil
}

// Close removes everything the loader installed and leaves every key
// unbound.
func (l *Loader) Close() {
	l.ex.Exclusive(func() {
		l.removeLocked()
		l.g.Registry().UnbindAll()
	})
}

func (l *Loader) removeLocked() {
	if l.running != nil {
		l.running.Close()
		l.running = nil
	}
	if l.applied != nil {
		l.applied.Remove()
		l.applied = nil
	}
}

// Run reloads on every event from w until ctx is done.
func (l *Loader) Run(ctx context.Context, w *Watcher) {
	events := w.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == EventDelete {
				logging.Warn("watched file removed; keeping current binds", logging.String("path", ev.Path))
				continue
			}
			logging.Info("reloading", logging.String("path", ev.Path))
			if err := l.Load(ctx); err != nil {
				logging.Error("reload failed", logging.Err(err))
			}
		}
	}
}
