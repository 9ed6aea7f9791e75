package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/yndnr/metalgate/internal/cli/config"
	"github.com/yndnr/metalgate/internal/cli/connection"
	"github.com/yndnr/metalgate/internal/cli/output"
	"github.com/yndnr/metalgate/internal/cli/service"
	"github.com/yndnr/metalgate/internal/core/domain"
	"github.com/yndnr/metalgate/internal/infra/tlsroots"
	"github.com/yndnr/metalgate/internal/storage"
	"github.com/yndnr/metalgate/internal/storage/memory"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// Runtime is what a single CLI invocation works with.
type Runtime struct {
	Config     *config.CLIConfig
	ConfigPath string
	Format     output.Format
	Logger     logger.Logger

	Session *connection.SessionManager
	Keys    *service.APIKeyService
	Stats   *service.UsageStatsService
	Prices  *service.PriceAggregationService

	Out io.Writer
	Err io.Writer

	engine   *storage.BadgerEngine
	restored bool
}

// NewRuntime loads configuration and builds the session and services.
func NewRuntime(flags GlobalFlags, out, errw io.Writer) (*Runtime, error) {
	if out == nil {
		out = os.Stdout
	}
	if errw == nil {
		errw = os.Stderr
	}

	logCfg := logger.CLIConfig(flags.Verbose)
	logCfg.Output = errw
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(flags.ConfigPath, flags.overrides())
	if err != nil {
		return nil, err
	}
	format, err := output.ParseFormat(cfg.Output)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:     cfg,
		ConfigPath: flags.ConfigPath,
		Format:     format,
		Logger:     log,
		Out:        out,
		Err:        errw,
	}

	var (
		tokens connection.TokenStore
		cache  storage.KeyStore = memory.NewKeyStore()
	)
	switch cfg.TokenStore {
	case config.TokenStoreFile:
		tokens = connection.NewFileTokenStore(cfg.TokenPath())
	case config.TokenStoreBadger:
		engine, err := storage.NewBadgerEngine(storage.DefaultKVConfig(cfg.DataDir()), log)
		if err != nil {
			return nil, fmt.Errorf("open local state: %w", err)
		}
		rt.engine = engine
		tokens = connection.NewKVTokenStore(engine)
		cache = storage.NewKVStore(engine)
	}

	httpOpts := []connection.HTTPOption{connection.WithTimeout(timeout), connection.WithLogger(log)}
	if cfg.CAFile != "" {
		pool, err := tlsroots.LoadPool(cfg.CAFile)
		if err != nil {
			rt.Close()
			return nil, err
		}
		httpOpts = append(httpOpts, connection.WithTLSConfig(pool.ClientConfig()))
	}
	hc := connection.NewHTTPClient(cfg.Server, httpOpts...)

	opts := []connection.SessionOption{connection.WithSessionLogger(log)}
	if tokens != nil {
		opts = append(opts, connection.WithTokenStore(tokens))
	}
	rt.Session = connection.NewSessionManager(hc, opts...)
	rt.Keys = service.NewAPIKeyService(rt.Session, cache, log)
	rt.Stats = service.NewUsageStatsService(rt.Session)
	rt.Prices = service.NewPriceAggregationService(rt.Session, log)

	log.Debug("cli runtime ready", "server", hc.BaseURL(), "token_store", cfg.TokenStore)
	return rt, nil
}

// Authenticate restores the persisted session once per run and fails
// unless it is authenticated.
func (rt *Runtime) Authenticate(ctx context.Context) (domain.Session, error) {
	if !rt.restored {
		rt.restored = true
		if s, err := rt.Session.Restore(ctx); err != nil {
			return s, err
		}
	}
	s := rt.Session.Current()
	if !s.IsAuthenticated() {
		return s, domain.ErrNotAuthenticated
	}
	return s, nil
}

// Print renders v in the selected format.
func (rt *Runtime) Print(v any) error {
	return output.NewFormatter(rt.Format).Format(rt.Out, v)
}

// Println writes a plain message. It is suppressed for JSON and YAML so
// machine-readable output stays parseable.
func (rt *Runtime) Println(format string, args ...any) {
	if rt.Format != output.FormatTable {
		return
	}
	fmt.Fprintf(rt.Out, format+"\n", args...)
}

// Interactive reports whether progress indicators should be drawn.
func (rt *Runtime) Interactive() bool {
	if rt.Format != output.FormatTable {
		return false
	}
	f, ok := rt.Err.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// Close releases local state.
func (rt *Runtime) Close() error {
	if rt.engine != nil {
		return rt.engine.Close()
	}
	return nil
}
