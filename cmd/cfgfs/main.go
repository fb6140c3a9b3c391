// cfgfs mounts a synthetic filesystem over a game's cfg directory. Each key
// gets a pair of files under cfg/binds; the game execs them on key press and
// release and reads back commands produced by the bound handler.
//
// Usage:
//
//	cfgfs [mount] [flags] [mountpoint]
//	cfgfs init            print the autoexec that wires the binds
//	cfgfs keys            list bindable key names
//	cfgfs check [flags]   validate the bind table and script
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/huglovefan/cfgfs/internal/adapter"
	"github.com/huglovefan/cfgfs/internal/bindcfg"
	"github.com/huglovefan/cfgfs/internal/binds"
	"github.com/huglovefan/cfgfs/internal/config"
	"github.com/huglovefan/cfgfs/internal/fuse"
	"github.com/huglovefan/cfgfs/internal/game"
	"github.com/huglovefan/cfgfs/internal/logging"
	"github.com/huglovefan/cfgfs/internal/metrics"
	"github.com/huglovefan/cfgfs/internal/reload"
	"github.com/huglovefan/cfgfs/internal/retry"
	"github.com/huglovefan/cfgfs/internal/script"
)

func main() {
	cmd, args := "mount", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		switch args[0] {
		case "mount", "init", "keys", "check", "version":
			cmd, args = args[0], args[1:]
		}
	}

	var err error
	switch cmd {
	case "mount":
		err = runMount(args)
	case "init":
		fmt.Print(game.New(binds.NewDefault()).Autoexec())
	case "keys":
		for _, k := range binds.NewDefault().Keys() {
			fmt.Println(k)
		}
	case "check":
		err = runCheck(args)
	case "version":
		fmt.Println("cfgfs", game.Version)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bindFlags registers the flags shared by mount and check. Flags override
// the environment.
func bindFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.BindsFile, "binds", cfg.BindsFile, "TOML bind table (default: built-in movement binds)")
	fs.StringVar(&cfg.ScriptFile, "script", cfg.ScriptFile, "Lua bind script")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: auto, console, json")
}

func runMount(args []string) error {
	cfg := config.Load()
	fs := flag.NewFlagSet("mount", flag.ExitOnError)
	bindFlags(fs, cfg)
	fs.StringVar(&cfg.MountPoint, "mount", cfg.MountPoint, "Mount point (the game's cfg directory parent)")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "FUSE backend: auto, gofuse, cgofuse")
	fs.BoolVar(&cfg.AllowOther, "allow-other", cfg.AllowOther, "Allow other users to access the mount")
	fs.BoolVar(&cfg.FuseDebug, "fuse-debug", cfg.FuseDebug, "Log every FUSE request")
	fs.BoolVar(&cfg.Reload, "reload", cfg.Reload, "Reload binds when the bind table or script changes")
	fs.Int64Var(&cfg.ReportedSize, "reported-size", cfg.ReportedSize, "Size reported for files not yet read")
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus listen address (empty to disable)")
	verbose := fs.Bool("v", false, "Verbose (debug) logging")
	fs.Parse(args)

	if fs.NArg() > 0 {
		cfg.MountPoint = fs.Arg(0)
	}
	if *verbose {
		cfg.LogLevel = "debug"
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := game.New(binds.NewDefault())
	ad := adapter.New(g.Root(), adapter.Config{ReportedSize: cfg.ReportedSize})

	loader := reload.NewLoader(g, ad, cfg.BindsFile, cfg.ScriptFile)
	if err := loader.Load(ctx); err != nil {
		return fmt.Errorf("load binds: %w", err)
	}
	defer loader.Close()

	if cfg.Reload {
		if files := cfg.WatchedFiles(); len(files) > 0 {
			w, err := reload.New(files, reload.DefaultDebounce)
			if err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			go loader.Run(ctx, w)
			w.Start(ctx)
			defer w.Stop()
		}
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logging.Info("metrics listening", logging.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server", logging.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	backend, err := fuse.New(cfg.Backend, ad, fuse.Options{
		MountPoint: cfg.MountPoint,
		Debug:      cfg.FuseDebug,
		AllowOther: cfg.AllowOther,
	})
	if err != nil {
		return err
	}
	logging.Info("starting",
		logging.String("version", game.Version),
		logging.String("backend", backend.Name()),
		logging.String("mount", cfg.MountPoint))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logging.Info("shutting down")
		cancel()
		backend.Stop()
	}()

	policy := retry.MountPolicy()
	policy.OnRetry = func(attempt int, wait time.Duration, err error) {
		logging.Warn("mount failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("wait", wait),
			logging.Err(err))
	}
	err = retry.Do(ctx, policy, func() error {
		err := backend.Start(ctx)
		if errors.Is(err, fuse.ErrMount) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	logging.Info("stopped")
	return nil
}

// runCheck loads the bind table and script into a scratch registry and
// reports the first error.
func runCheck(args []string) error {
	cfg := config.Load()
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	bindFlags(fs, cfg)
	fs.Parse(args)
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Sync()

	g := game.New(binds.NewDefault())
	table := &bindcfg.Table{DefaultMovement: true}
	if cfg.BindsFile != "" {
		var err error
		if table, err = bindcfg.Load(cfg.BindsFile); err != nil {
			return err
		}
	}
	if _, err := table.Apply(g.Registry()); err != nil {
		return err
	}
	if cfg.ScriptFile != "" {
		s, err := script.Load(g, cfg.ScriptFile)
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Printf("%s: binds %s\n", cfg.ScriptFile, strings.Join(s.Keys(), " "))
	}
	fmt.Println("ok")
	return nil
}
