package cmd

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var (
	logLevel  string
	redisAddr string
	envPrefix string
)

var rootCmd = &cobra.Command{
	Use:   "authcore",
	Short: "Session and credential lifecycle service",
	Long: `authcore issues short-lived access tokens, keeps refresh sessions in Redis
and gates privileged flows behind one-time codes.

Configuration is read from AUTHCORE_* environment variables.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or an embedded miniredis is used")
	rootCmd.PersistentFlags().StringVar(&envPrefix, "env-prefix", "AUTHCORE", "prefix of the configuration environment variables")
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(log)
	return log
}

// openRedis connects to addr, falling back to REDIS_ADDR and then to an
// in-process miniredis. The returned func releases everything it opened.
func openRedis(addr string, log *slog.Logger) (redis.UniversalClient, func(), error) {
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		log.Info("using redis", slog.String("addr", addr))
		return client, func() { _ = client.Close() }, nil
	}

	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start miniredis: %w", err)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	log.Warn("using embedded miniredis; sessions are lost on exit", slog.String("addr", mr.Addr()))
	return client, func() {
		_ = client.Close()
		mr.Close()
	}, nil
}

// loadConfig reads the environment and fills in a throwaway signing secret
// when none is configured.
func loadConfig(log *slog.Logger) (authcore.Config, error) {
	cfg, err := authcore.ConfigFromEnv(envPrefix)
	if err != nil {
		return authcore.Config{}, err
	}
	if len(cfg.JWT.Secret) == 0 {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return authcore.Config{}, fmt.Errorf("failed to generate signing secret: %w", err)
		}
		cfg.JWT.Secret = secret
		log.Warn("no signing secret configured; generated an ephemeral one", slog.String("env", envPrefix+"_JWT_SECRET"))
	}
	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
