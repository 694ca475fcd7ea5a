package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	registryinspector "github.com/eznix86/registry-inspector"
	"github.com/eznix86/registry-inspector/internal/config"
	"github.com/eznix86/registry-inspector/internal/logging"
	"github.com/eznix86/registry-inspector/service"
	"github.com/gin-gonic/gin"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

func main() {
	ctx := context.Background()

	configDir := "/etc/inspector"
	if envPath := os.Getenv("INSPECTOR_CONFIG_DIR"); envPath != "" {
		configDir = envPath
	}

	c, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("load config error", helpers.Error(err))
	}
	if c.Debug {
		if err := logging.SetLevel("debug"); err != nil {
			logger.L().Ctx(ctx).Error("set log level", helpers.Error(err))
		}
	}

	// modify context to listen to interrupt signals from the OS.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := c.InspectorOptions()
	if err != nil {
		logger.L().Ctx(ctx).Fatal("inspector options error", helpers.Error(err))
	}
	log := logging.New(nil)
	inspector := registryinspector.NewInspector(append(opts, registryinspector.WithLogger(log))...)

	svc := service.New(inspector, service.Options{
		DefaultRegistry:  c.DefaultRegistry,
		DefaultNamespace: c.DefaultNamespace,
		PreferredScheme:  c.PreferredScheme,
		Logger:           log,
	})
	controller := service.NewHTTPController(svc)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	controller.Register(router)

	srv := &http.Server{
		Addr:    c.Listen,
		Handler: router,
	}

	go func() {
		logger.L().Info("starting server",
			helpers.String("listen", c.Listen),
			helpers.String("defaultRegistry", c.DefaultRegistry),
			helpers.Int("concurrency", c.Concurrency))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Ctx(ctx).Fatal("router error", helpers.Error(err))
		}
	}()

	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.L().Info("shutting down gracefully")

	// in-flight inspections get 5 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L().Ctx(shutdownCtx).Fatal("server forced to shutdown", helpers.Error(err))
	}

	logger.L().Info("inspectd exiting")
}
