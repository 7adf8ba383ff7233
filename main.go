package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/arcestia/time-keeper/timekeeper"
	"github.com/arcestia/time-keeper/timekeeper/auth"
	"github.com/arcestia/time-keeper/timekeeper/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to config")
	runWorker := flag.Bool("worker", false, "run the background depletion worker")
	pidPath := flag.String("pid-file", "timekeeper.pid", "worker PID file")
	createAccount := flag.String("create-account", "", "create an account with this username and exit")
	passcode := flag.String("passcode", "", "passcode for -create-account")
	asAdmin := flag.Bool("admin", false, "mark the created account as admin")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("time-keeper %s (%s)\n", version, commit)
		return
	}

	cfg, err := timekeeper.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	slog.Info("Starting time-keeper",
		slog.String("version", version),
		slog.String("commit", commit))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := timekeeper.New(*cfg, version, commit)
	if err := app.Setup(ctx); err != nil {
		slog.Error("Setup failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	if *createAccount != "" {
		hash, err := auth.HashPasscode(*passcode)
		if err != nil {
			slog.Error("Failed to hash passcode", slog.Any("error", err))
			os.Exit(1)
		}
		id, err := app.Executor.CreateAccount(ctx, *createAccount, hash, cfg.Session.InitialSeconds, *asAdmin)
		if err != nil {
			slog.Error("Failed to create account", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("Account created",
			slog.Int64("id", id),
			slog.String("username", *createAccount),
			slog.Int64("balance_seconds", cfg.Session.InitialSeconds))
		return
	}

	if !*runWorker {
		// Without the worker flag there is nothing long-running to do;
		// setup already applied migrations and seeded defaults.
		slog.Info("Initialization complete")
		return
	}

	if err := writePIDFile(*pidPath); err != nil {
		slog.Error("Worker already running or PID file unwritable", slog.Any("error", err))
		os.Exit(1)
	}
	defer os.Remove(*pidPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Worker.Run(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("Worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

// writePIDFile refuses to start when a previous worker is still alive.
func writePIDFile(path string) error {
	if raw, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && processAlive(pid) {
			return fmt.Errorf("worker already running with pid %d", pid)
		}
		// Stale file from a dead process.
		os.Remove(path)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
