package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rowsync",
		Short: "Row-versioning sync server backed by Postgres",
	}
	rootCmd.AddCommand(serveCmd(), migrateCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() log.Logger {
	lg := log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr))
	lg = log.With(lg, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
	return level.NewFilter(lg, levelOptionFromEnv())
}

func levelOptionFromEnv() level.Option {
	switch os.Getenv("ROWSYNC_LOG_LEVEL") {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}

func requireEnv(lg log.Logger, name string) string {
	value := os.Getenv(name)
	if value == "" {
		level.Error(lg).Log("msg", "missing required environment variable", "name", name)
		os.Exit(1)
	}
	return value
}

func intEnv(lg log.Logger, name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		level.Warn(lg).Log("msg", "invalid env value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func int64Env(lg log.Logger, name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		level.Warn(lg).Log("msg", "invalid env value, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func durationEnv(lg log.Logger, name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		level.Warn(lg).Log("msg", "invalid env value, using fallback", "name", name, "value", raw, "fallback", fallback.String())
		return fallback
	}
	return value
}
