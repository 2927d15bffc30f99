package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"paddlers.io/internal/gamemaster"
	"paddlers.io/internal/persistence/gateway"
	"paddlers.io/internal/persistence/journal"
	"paddlers.io/internal/persistence/store/sqlite"
	"paddlers.io/internal/protocol"
	"paddlers.io/internal/sim/tuning"
	"paddlers.io/internal/telemetry"
	"paddlers.io/internal/transport/httpapi"
	"paddlers.io/internal/transport/ws"
)

func main() {
	// Runs after every other deferred cleanup.
	exitCode := 0
	defer func() {
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	}()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	tune, err := tuning.Load(cfg.TuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", cfg.TuningPath)
		tune = tuning.Defaults()
	}
	if err := protocol.CheckSchemas(); err != nil {
		logger.Fatalf("schemas: %v", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, "paddlers-gamemaster", cfg.OTelEndpoint)
	if err != nil {
		logger.Fatalf("telemetry: %v", err)
	}
	defer func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel2()
		if err := shutdownTracing(ctx2); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	st, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer st.Close()

	gw := gateway.New(st, tune.Scheduler.GatewayPoolSize, log.New(os.Stdout, "[gateway] ", log.LstdFlags|log.Lmicroseconds))
	defer gw.Close()

	opts := gamemaster.Options{
		Gateway: gw,
		Tuning:  tune,
		Logger:  log.New(os.Stdout, "[gamemaster] ", log.LstdFlags|log.Lmicroseconds),
	}
	if !cfg.DisableJournal {
		_ = os.MkdirAll(cfg.JournalDir, 0o755)
		jw := journal.NewAsyncWriter(journal.NewWriter(cfg.JournalDir), 4096,
			log.New(os.Stdout, "[journal] ", log.LstdFlags|log.Lmicroseconds))
		defer func() {
			if err := jw.Close(); err != nil {
				logger.Printf("journal close: %v", err)
			}
			if n := jw.Dropped(); n > 0 {
				logger.Printf("journal dropped %d entries", n)
			}
		}()
		opts.Journal = jw
	}
	coord, err := gamemaster.New(opts)
	if err != nil {
		logger.Fatalf("gamemaster: %v", err)
	}
	if _, err := coord.Recover(ctx); err != nil {
		logger.Fatalf("recover: %v", err)
	}

	workersDone := superviseWorkers(ctx, cancel, coord.Run, logger)

	api := httpapi.NewServer(httpapi.Options{
		Backend:    coord,
		Logger:     log.New(os.Stdout, "[http] ", log.LstdFlags|log.Lmicroseconds),
		StatsRate:  cfg.StatsRate,
		StatsBurst: cfg.StatsBurst,
		Extra: map[string]http.HandlerFunc{
			"/v1/ws": ws.NewServer(coord, log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)).Handler(),
		},
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (db=%s)", cfg.Addr, cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	runErr := <-workersDone
	final := coord.Stats()
	logger.Printf("stopped: queued=%d gateway=%+v", final.Queued, final.Gateway)
	if runErr != nil {
		logger.Printf("exiting after fatal worker failure: %v", runErr)
		exitCode = 1
	}
}

// superviseWorkers runs the workers in the background and cancels the
// process context when they stop, so a fatal failure brings the server
// down. The channel yields run's error once they have stopped.
func superviseWorkers(ctx context.Context, cancel context.CancelFunc, run func(context.Context) error, logger *log.Logger) <-chan error {
	done := make(chan error, 1)
	go func() {
		err := run(ctx)
		if err != nil {
			logger.Printf("gamemaster stopped: %v", err)
		}
		cancel()
		done <- err
	}()
	return done
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
