package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pthm/hxbind"
	hxbindecho "github.com/pthm/hxbind/adapters/echo"
	hxbindgin "github.com/pthm/hxbind/adapters/gin"
	"github.com/pthm/hxbind/internal/config"
	"github.com/pthm/hxbind/internal/logger"
	"github.com/sirupsen/logrus"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "YAML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	key := []byte(cfg.Session.SigningKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate signing key: %w", err)
		}
		log.Warn("session.signing_key not set; using a random key, handles will not survive a restart")
	}

	hubOpts := []hxbind.HubOption{
		hxbind.WithHubLogger(log),
		hxbind.WithHubSink(hxbind.LogSink(log)),
		hxbind.WithSetup(chartSetup),
		hxbind.WithTTL(cfg.Session.TTL),
		hxbind.WithOutboxSize(cfg.Session.OutboxSize),
		hxbind.WithPath(cfg.Server.Path),
		hxbind.WithHeartbeat(cfg.Session.Heartbeat),
	}

	var (
		handler http.Handler
		hub     *hxbind.Hub
	)
	switch cfg.Server.Router {
	case "gin":
		handler, hub = ginRouter(cfg, key, hubOpts)
	default:
		handler, hub = echoRouter(cfg, key, hubOpts)
	}
	defer hub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Run(ctx, cfg.Session.CleanupInterval)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{"addr": cfg.Server.Addr, "router": cfg.Server.Router}).Info("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	// end sessions first so open streams return
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}

func echoRouter(cfg *config.Config, key []byte, hubOpts []hxbind.HubOption) (http.Handler, *hxbind.Hub) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	if len(cfg.CORS.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     append(cfg.CORS.AllowedHeaders, hxbind.RequestHeader),
			ExposeHeaders:    cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}))
	}

	hub := hxbindecho.Mount(e, hxbindecho.WithKey(key), hxbindecho.WithHubOptions(hubOpts...))

	e.GET("/", func(c echo.Context) error {
		return hxbindecho.Render(c, demoPage(hub.Path()))
	})
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "sessions": hub.Len()})
	})
	return e, hub
}

func ginRouter(cfg *config.Config, key []byte, hubOpts []hxbind.HubOption) (http.Handler, *hxbind.Hub) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	if len(cfg.CORS.AllowedOrigins) > 0 {
		r.Use(hxbindgin.CORS(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     cfg.CORS.AllowedMethods,
			AllowHeaders:     cfg.CORS.AllowedHeaders,
			ExposeHeaders:    cfg.CORS.ExposedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
		}))
	}

	hub := hxbindgin.Mount(r, hxbindgin.WithKey(key), hxbindgin.WithHubOptions(hubOpts...))

	r.GET("/", func(c *gin.Context) {
		hxbindgin.Render(c, http.StatusOK, demoPage(hub.Path()))
	})
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": hub.Len()})
	})
	return r, hub
}

// demoPage declares the chart container and where its session lives.
func demoPage(path string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<!doctype html><html><head><title>hxbind</title></head><body data-hxbind-endpoint="%ssession">`, templ.EscapeString(path)); err != nil {
			return err
		}
		if err := hxbind.Placeholder(chartOutput, chartRenderer, chartOptions).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}
