package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/metalgate/internal/core/service"
	"github.com/yndnr/metalgate/internal/infra/buildinfo"
	"github.com/yndnr/metalgate/internal/infra/confloader"
	"github.com/yndnr/metalgate/internal/infra/shutdown"
	"github.com/yndnr/metalgate/internal/infra/tlsroots"
	"github.com/yndnr/metalgate/internal/server/config"
	"github.com/yndnr/metalgate/internal/server/httpserver"
	"github.com/yndnr/metalgate/internal/server/localserver"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
	"github.com/yndnr/metalgate/internal/telemetry/metric"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("metalgate-server %s\n", buildinfo.String())
		return nil
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting metalgate-server",
		"version", buildinfo.Version,
		"commit", buildinfo.Commit,
		"config", *configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	started := time.Now()
	ctx := context.Background()
	reg := metric.Global()

	stores, err := initStorage(ctx, cfg, reg, log)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	sources, err := initSources(cfg)
	if err != nil {
		stores.close()
		return fmt.Errorf("init quote sources: %w", err)
	}

	accounts := service.NewAccountService(stores.backend, stores.tokens, &service.AccountServiceConfig{
		TokenTTL: cfg.Auth.TokenTTL,
	})
	keys := service.NewKeyService(stores.backend, &service.KeyServiceConfig{
		CacheTTL:  cfg.Auth.KeyCacheTTL,
		CacheSize: service.DefaultKeyServiceConfig().CacheSize,
	})
	quotes := service.NewQuoteService(sources,
		&service.QuoteServiceConfig{CacheTTL: cfg.Quotes.CacheTTL, FetchTimeout: cfg.Quotes.FetchTimeout},
		service.WithQuoteLogger(log.With("component", "quotes")),
		service.WithQuoteObserver(reg),
	)
	log.Info("services initialized",
		"storage", cfg.Storage.Backend,
		"redis_sessions", cfg.Redis.Enabled,
		"sources", cfg.Quotes.Sources)

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Accounts:     accounts,
		Keys:         keys,
		Quotes:       quotes,
		Metrics:      reg,
		Logger:       log,
		Ready:        stores.ping,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		MetricsAllow: cfg.HTTP.MetricsAllow,
	})

	sd := shutdown.NewHandler(cfg.HTTP.ShutdownTimeout, log)
	// Registered first so it closes last.
	sd.OnShutdown("storage", func(context.Context) error {
		return stores.close()
	})

	serverOpts := []httpserver.Option{
		httpserver.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout),
	}
	tlsEnabled := cfg.HTTP.TLSCertFile != ""
	if tlsEnabled {
		certs, err := tlsroots.NewWatcher(cfg.HTTP.TLSCertFile, cfg.HTTP.TLSKeyFile,
			tlsroots.WithLogger(log.With("component", "tls")))
		if err != nil {
			stores.close()
			return fmt.Errorf("load TLS certificate: %w", err)
		}
		certs.StartAsync()
		sd.OnShutdown("tls watcher", func(context.Context) error {
			return certs.Stop()
		})
		serverOpts = append(serverOpts, httpserver.WithTLSConfig(certs.ServerConfig()))
	}
	httpServer := httpserver.New(cfg.HTTP.Addr, router, serverOpts...)

	bgCtx, stopBackground := context.WithCancel(ctx)
	go stores.runJanitor(bgCtx, log)
	go stores.runSnapshots(bgCtx, log.With("component", "snapshot"))
	sd.OnShutdown("background jobs", func(context.Context) error {
		stopBackground()
		return nil
	})

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("config watcher disabled", "error", err)
		} else {
			sd.OnShutdown("config watcher", func(context.Context) error {
				return watcher.Stop()
			})
		}
	}

	if cfg.Admin.Socket != "" {
		admin := localserver.New(cfg.Admin.Socket, newAdminHandler(adminDeps{
			started:    started,
			backend:    cfg.Storage.Backend,
			configFile: *configFile,
			stores:     stores,
			shutdown:   func() { sd.Trigger(nil) },
			log:        log,
		}), log.With("component", "admin"))
		if err := admin.Listen(); err != nil {
			log.Warn("admin socket disabled", "error", err)
		} else {
			go func() {
				log.Info("admin socket listening", "path", cfg.Admin.Socket)
				if err := admin.Serve(); err != nil {
					log.Warn("admin socket stopped", "error", err)
				}
			}()
			sd.OnShutdown("admin socket", admin.Shutdown)
		}
	}

	sd.OnShutdown("http", httpServer.Shutdown)

	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTP.Addr, "tls", tlsEnabled)

		var err error
		if tlsEnabled {
			err = httpServer.ListenAndServeTLS("", "")
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			sd.Trigger(fmt.Errorf("http server: %w", err))
		}
	}()

	if err := sd.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// initLogger builds the process logger from the log section.
func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}

// watchConfig reloads the log level when the configuration file changes.
// Other settings need a restart.
func watchConfig(path string, log logger.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		if _, err := reloadLogLevel(path, log); err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
		}
	})
	w.StartAsync()
	return w, nil
}

// reloadLogLevel applies the log level from the configuration file.
func reloadLogLevel(path string, log logger.Logger) (string, error) {
	next, err := config.Load(path)
	if err != nil {
		return "", err
	}
	if next.Log.Level != logger.GetLevel() {
		logger.SetLevel(next.Log.Level)
		log.Info("log level changed", "level", next.Log.Level)
	}
	return next.Log.Level, nil
}
