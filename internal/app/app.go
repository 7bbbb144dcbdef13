package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	servernet "blockroom/internal/net"
	"blockroom/internal/net/ws"
	"blockroom/internal/room"
	"blockroom/internal/telemetry"
	"blockroom/logging"
	loggingSinks "blockroom/logging/sinks"
)

const shutdownTimeout = 5 * time.Second

// NewZapLogger builds the process logger.
func NewZapLogger(cfg Config) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	if cfg.ZapLevelName != "" {
		level, err := zapcore.ParseLevel(cfg.ZapLevelName)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}
	return zapCfg.Build()
}

// Run serves until ctx is canceled, then shuts the HTTP server, the rooms
// and the logging router down in that order.
func Run(ctx context.Context, cfg Config) error {
	zapLogger, err := NewZapLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to construct zap logger: %w", err)
	}
	defer zapLogger.Sync()

	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapSugared(zapLogger.Sugar())
	}
	fallbackLogger := zap.NewStdLog(zapLogger.Named("logging"))

	sinks, err := buildSinks(cfg, zapLogger)
	if err != nil {
		return err
	}
	router, err := logging.NewRouter(cfg.Logging, logging.SystemClock{}, fallbackLogger, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	metrics := &logging.Metrics{}
	telemetryMetrics := telemetry.WrapMetrics(metrics)

	manager := room.NewManager(cfg.Room, room.Deps{
		Clock:     room.SystemClock{},
		Publisher: router,
		Metrics:   telemetryMetrics,
		Logger:    telemetryLogger,
	})

	wsHandler := ws.NewHandler(manager, ws.HandlerConfig{
		Logger:    telemetryLogger,
		Publisher: router,
		Metrics:   telemetryMetrics,
	})
	handler := servernet.NewHTTPHandler(manager, http.HandlerFunc(wsHandler.Handle), servernet.HTTPHandlerConfig{
		Logger:    telemetryLogger,
		Metrics:   metrics,
		LogStats:  router.Stats,
		Sessions:  wsHandler.Sessions,
		StartedAt: time.Now(),
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			telemetryLogger.Printf("http shutdown: %v", err)
		}
		return manager.Close(shutdownCtx)
	})
	return group.Wait()
}

func buildSinks(cfg Config, zapLogger *zap.Logger) (map[string]logging.Sink, error) {
	sinks := map[string]logging.Sink{
		"console": loggingSinks.NewConsole(os.Stdout, cfg.Logging.Console),
		"zap":     loggingSinks.NewZap(zapLogger.Named("events")),
	}
	if cfg.Logging.HasSink("json") {
		path := cfg.Logging.JSON.FilePath
		if path == "" {
			return nil, fmt.Errorf("json log sink enabled without LOG_JSON_PATH")
		}
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json log %s: %w", path, err)
		}
		sinks["json"] = loggingSinks.NewJSON(file, cfg.Logging.JSON.FlushInterval)
	}
	if cfg.Logging.HasSink("memory") {
		sinks["memory"] = loggingSinks.NewMemory()
	}
	return sinks, nil
}

// DefaultLogger is used for configuration warnings before the zap logger
// exists.
func DefaultLogger() telemetry.Logger {
	return telemetry.WrapLogger(log.Default())
}
