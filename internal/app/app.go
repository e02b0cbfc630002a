// Package app wires the arena together: the hub that drives the world,
// the logging router, the telemetry counters, and the HTTP/websocket
// surface, then runs the whole assembly until the context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"serpent-arena/server/internal/ai"
	servernet "serpent-arena/server/internal/net"
	"serpent-arena/server/internal/net/ws"
	"serpent-arena/server/internal/observability"
	"serpent-arena/server/internal/telemetry"
	"serpent-arena/server/logging"
	loggingsinks "serpent-arena/server/logging/sinks"
)

type Config struct {
	Addr          string
	Logger        telemetry.Logger
	Observability observability.Config
}

// Run assembles the server and blocks until ctx is canceled or the
// listener fails. Environment variables override the defaults; a value
// that fails to parse is logged and ignored.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	if raw := os.Getenv("SERPENT_ADDR"); raw != "" {
		addr = raw
	}

	hubCfg := DefaultHubConfig()
	if raw := os.Getenv("SERPENT_INITIAL_SNAKES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.Sim.InitialSnakes = value
		} else {
			telemetryLogger.Printf("invalid SERPENT_INITIAL_SNAKES=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("SERPENT_SEED"); raw != "" {
		if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
			hubCfg.Sim.Seed = value
		} else {
			telemetryLogger.Printf("invalid SERPENT_SEED=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("SERPENT_MAX_SPECTATORS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.MaxSpectators = value
		} else {
			telemetryLogger.Printf("invalid SERPENT_MAX_SPECTATORS=%q: %v", raw, err)
		}
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("SERPENT_PPROF"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprof = value
		} else {
			telemetryLogger.Printf("invalid SERPENT_PPROF=%q: %v", raw, err)
		}
	}

	logConfig := logging.DefaultConfig()
	if raw := os.Getenv("SERPENT_LOG_JSON"); raw != "" {
		logConfig.JSON.FilePath = raw
		if !logConfig.HasSink("json") {
			logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
		}
	}

	var namedSinks []logging.NamedSink
	var jsonFile *os.File
	if logConfig.HasSink("console") {
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: "console",
			Sink: loggingsinks.NewConsoleSink(os.Stdout, logConfig.Console),
		})
	}
	if logConfig.HasSink("json") && logConfig.JSON.FilePath != "" {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			telemetryLogger.Printf("cannot open json log %s: %v", logConfig.JSON.FilePath, err)
		} else {
			jsonFile = file
			namedSinks = append(namedSinks, logging.NamedSink{
				Name: "json",
				Sink: loggingsinks.NewJSON(file, logConfig.JSON.FlushInterval),
			})
		}
	}

	router, err := logging.NewRouter(logging.ClockFunc(time.Now), logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cerr := router.Close(closeCtx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
		if jsonFile != nil {
			jsonFile.Close()
		}
	}()

	library, err := ai.LoadLibrary()
	if err != nil {
		return fmt.Errorf("failed to load personality presets: %w", err)
	}

	hubCfg.Library = library
	hubCfg.Publisher = router
	hubCfg.Counters = telemetry.NewCounters()
	hubCfg.Logger = fallbackLogger
	hub := NewHub(hubCfg)

	simCtx, cancelSim := context.WithCancel(ctx)
	defer cancelSim()
	go hub.RunSimulation(simCtx)

	wsHandler := ws.NewHandler(hub, ws.HandlerConfig{Logger: fallbackLogger})
	handler := servernet.NewHTTPHandler(hub, wsHandler, servernet.HTTPHandlerConfig{
		Logger:        fallbackLogger,
		Observability: observabilityCfg,
		RouterStats:   router.Stats,
	})

	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		telemetryLogger.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
