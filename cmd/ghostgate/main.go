package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mtzanidakis/ghostgate/internal/config"
	"github.com/mtzanidakis/ghostgate/internal/feedback"
	"github.com/mtzanidakis/ghostgate/internal/terminal"
	"github.com/mtzanidakis/ghostgate/internal/web"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("ghostgate %s\n", version)
		return
	case "serve":
		err = runServe()
	case "terminal":
		err = runTerminal()
	case "vault":
		err = runVault(os.Args[2:])
	case "backup":
		err = runBackup(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: ghostgate <command>

Commands:
  serve      Start the dashboard (web UI, API and event bus)
  terminal   Open the stealth terminal
  vault      Manage vault entries from the shell
  backup     Write the vault and its exports to a .tar.zst archive
  restore    Restore a backup archive
  version    Print version
`)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("starting ghostgate", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newCore(cfg, true)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Web.Enabled {
		srv, err := web.NewServer(web.Components{
			Session:    c.session,
			Scratchpad: c.scratchpad,
			Gate:       c.gate,
			Lockdown:   c.lockdown,
			Mixer:      c.mixer,
			Bus:        c.bus,
		}, cfg.Web, version)
		if err != nil {
			return fmt.Errorf("init web server: %w", err)
		}
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("web server error", "error", err)
				cancel()
			}
		}()
		slog.Info("web server started", "port", cfg.Web.Port)
	} else {
		slog.Warn("web UI disabled, only the event bus is running")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				c.reload(level)
				continue
			}
			slog.Info("shutting down", "signal", sig)
			cancel()
			return nil
		}
	}
}

func runTerminal() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// The TUI owns the screen, so logs go to a file next to the store.
	if err := os.MkdirAll(dataDir(cfg), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logFile, err := os.OpenFile(dataPath(cfg, "terminal.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.Log.SlogLevel()})))

	c, err := newCore(cfg, false, feedback.NewBellSink(os.Stderr))
	if err != nil {
		return err
	}
	defer c.Close()

	return terminal.Run(terminal.Controllers{
		Session:    c.session,
		Scratchpad: c.scratchpad,
		Gate:       c.gate,
		Lockdown:   c.lockdown,
		Mixer:      c.mixer,
	}, exportDir(cfg))
}
