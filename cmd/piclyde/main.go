package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"piclyde/internal/config"
	"piclyde/internal/logging"
	"piclyde/internal/web"
)

func main() {
	var configPath string
	var sim bool
	flag.StringVar(&configPath, "config", "./piclyde.yaml", "Path to YAML or TOML config")
	flag.BoolVar(&sim, "sim", false, "Use simulated GPIO lines")
	flag.Parse()
	gin.SetMode(gin.ReleaseMode)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if sim {
		cfg.GPIO.Backend = "sim"
	}

	logs := web.NewLogBuffer(cfg.Log.BufferLines)
	logger := logging.Init("piclyde", logging.Config{
		Level:   cfg.Log.Level,
		Console: *cfg.Log.Console,
		Tee:     logs,
	})

	if cfg.System.LockMemory {
		if err := lockMemory(); err != nil {
			logger.Warn().Err(err).Msg("mlockall failed")
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rt, err := newRuntime(cfg, logger, logs)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer rt.Close()

	var srv *http.Server
	if rt.handler != nil {
		srv = &http.Server{Addr: cfg.Web.Listen, Handler: rt.handler, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info().Str("listen", cfg.Web.Listen).Msg("control api listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("control api stopped")
				cancel()
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("piclyde stopping")
	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		stop()
	}
}
