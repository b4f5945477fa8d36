package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/authcore"
	promexport "github.com/MrEthical07/authcore/metrics/export/prometheus"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
)

var (
	listenAddr     string
	auditLog       bool
	secureCookies  bool
	loginPerMinute int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the demo HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger(logLevel)

		client, cleanup, err := openRedis(redisAddr, log)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg, err := loadConfig(log)
		if err != nil {
			return err
		}
		cfg.Audit.Enabled = cfg.Audit.Enabled || auditLog

		users := newDirectory()
		engine, err := authcore.New().
			WithConfig(cfg).
			WithRedis(client).
			WithUserProvider(users).
			WithMailer(logMailer{log: log}).
			WithLogger(log).
			WithAuditSink(authcore.NewSlogSink(log, slog.LevelInfo)).
			WithMetricsEnabled(true).
			WithLatencyHistograms(true).
			Build()
		if err != nil {
			return fmt.Errorf("failed to build engine: %w", err)
		}
		defer engine.Close()

		server := &http.Server{
			Addr:              listenAddr,
			Handler:           newRouter(engine, users, log, routerOptions{secureCookies: secureCookies, loginPerMinute: loginPerMinute}),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()
		log.Info("listening", slog.String("addr", listenAddr))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			log.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "address to listen on")
	serveCmd.Flags().BoolVar(&auditLog, "audit", false, "log audit events")
	serveCmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "mark the access cookie Secure")
	serveCmd.Flags().IntVar(&loginPerMinute, "login-rate", 20, "credential requests per minute per client IP (0 disables)")
}

func newRouter(engine *authcore.Engine, users *directory, log *slog.Logger, opts routerOptions) http.Handler {
	a := &api{engine: engine, users: users, log: log, opts: opts}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := engine.Health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, authcore.ErrStoreUnavailable.Error())
			return
		}
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promexport.NewCollector(engine).Handler())
	r.Mount("/", a.Router())

	return r
}
