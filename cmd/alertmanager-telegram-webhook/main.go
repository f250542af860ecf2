package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/config"
	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/handler"
)

const (
	// AppName is the name of the application
	AppName = "alertmanager-telegram-webhook"
	// AppDescription provides a brief description of the application
	AppDescription = "Prometheus Alertmanager webhook to Telegram bridge"

	shutdownTimeout = 10 * time.Second
)

// Version can be set at build time via ldflags
var Version = "dev"

func newRootCommand() *cobra.Command {
	var configFile, envFile string

	cmd := &cobra.Command{
		Use:           AppName,
		Short:         AppDescription,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), config.Options{
				ConfigFile:     configFile,
				EnvFile:        envFile,
				RequireEnvFile: cmd.Flags().Changed("env-file"),
				Flags:          cmd.Flags(),
			}, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "path to a dotenv file (skipped when the default is missing)")
	flags.String("host", "127.0.0.1", "address to listen on (env WEBHOOK_HOST)")
	flags.IntP("port", "p", 5000, "port to listen on (env WEBHOOK_PORT)")
	flags.String("log-level", "info", "log level: debug, info, warn or error (env LOG_LEVEL)")
	flags.Bool("dry-run", false, "log messages instead of sending them to Telegram (env DRY_RUN)")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s, %s/%s)\n",
				AppName, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	})

	return cmd
}

// newLogger builds the process logger from the log settings. Values are
// validated by config.Load.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run loads configuration, serves HTTP until ctx is done, then shuts down
// gracefully. It returns nil on a clean shutdown.
func run(ctx context.Context, opts config.Options, out io.Writer) error {
	cfg, err := config.Load(opts)
	if err != nil {
		return err
	}

	slog.SetDefault(newLogger(os.Stderr, cfg.Log))

	h, err := handler.New(cfg, Version)
	if err != nil {
		return fmt.Errorf("failed to create handler: %w", err)
	}
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	srv := &http.Server{
		Handler:      handler.LogRequests(cfg.Log.AccessFormat, mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Telegram.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	printBanner(out, ln.Addr().String(), cfg)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Server started successfully", "app", AppName, "version", Version, "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		slog.Info("Shutting down server...")
	}

	// Give outstanding requests time to finish their sends.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to terminate: %w", err)
	}

	slog.Info("Server stopped gracefully")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("startup: fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}
