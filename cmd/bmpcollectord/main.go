package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/bmpcollector/bmpcollectord/internal/batch"
	"github.com/bmpcollector/bmpcollectord/internal/config"
	"github.com/bmpcollector/bmpcollectord/internal/httpapi"
	"github.com/bmpcollector/bmpcollectord/internal/listener"
	"github.com/bmpcollector/bmpcollectord/internal/metrics"
	"github.com/bmpcollector/bmpcollectord/internal/migrate"
	"github.com/bmpcollector/bmpcollectord/internal/session"
	"github.com/bmpcollector/bmpcollectord/internal/stats"
	"github.com/bmpcollector/bmpcollectord/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: bmpcollectord <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve      Start the BMP collector service")
	fmt.Println("  migrate    Run database migrations")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// migrationsDir returns the path to the migrations directory relative
// to the binary.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return filepath.Join(filepath.Dir(exe), "migrations")
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting bmpcollectord",
		zap.String("instance_id", cfg.Service.InstanceID),
		zap.String("bmp_listen", cfg.Listener.BMPListen),
		zap.String("http_listen", cfg.Service.HTTPListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, migrationsDir(), logger.Named("migrate")); err != nil {
		logger.Fatal("migration_failed", zap.Error(err))
	}

	st := store.New(pool)

	collector := stats.New(logger.Named("stats"), time.Duration(cfg.Stats.RollupIntervalMs)*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	writer := batch.NewWriter(pool, logger.Named("batch"),
		cfg.Ingest.BatchSize,
		time.Duration(cfg.Ingest.FlushIntervalMs)*time.Millisecond,
		cfg.Ingest.StoreRawPDUs, cfg.Ingest.StoreRawPDUsCompress)
	writer.Start(ctx)

	readTimeout := time.Duration(cfg.Listener.ReadTimeoutMs) * time.Millisecond
	bmpListener := listener.New(cfg.Listener.BMPListen, cfg.Listener.MaxConnections, func(conn net.Conn) listener.Handler {
		return session.NewHandler(conn, st, writer, collector, logger.Named("session"), nil, readTimeout, cfg.Listener.MaxMessageBytes, cfg.Ingest.StoreRawPDUs)
	}, logger.Named("listener"))

	if err := bmpListener.Start(ctx); err != nil {
		logger.Fatal("failed to start bmp listener", zap.Error(err))
	}

	httpServer := httpapi.NewServer(cfg.Service.HTTPListen, pool, bmpListener, logger.Named("httpapi"))
	if err := httpServer.Start(); err != nil {
		logger.Fatal("failed to start http server", zap.Error(err))
	}

	logger.Info("bmp listener and http server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownTimeout := time.Duration(cfg.Service.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if err := bmpListener.Shutdown(shutdownCtx); err != nil {
		logger.Error("bmp listener shutdown error", zap.Error(err))
	}

	cancel()

	if err := writer.Stop(shutdownCtx); err != nil {
		logger.Error("final batch flush failed", zap.Error(err))
	}

	logger.Info("bmpcollectord stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := migrate.Run(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration_failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
