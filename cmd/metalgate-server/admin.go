package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/yndnr/metalgate/internal/infra/buildinfo"
	"github.com/yndnr/metalgate/internal/server/localserver"
	"github.com/yndnr/metalgate/internal/telemetry/logger"
)

// adminDeps is what the admin commands act on.
type adminDeps struct {
	started    time.Time
	backend    string
	configFile string
	stores     *stores
	shutdown   func()
	log        logger.Logger
}

func newAdminHandler(d adminDeps) *localserver.Handler {
	h := localserver.NewHandler()

	h.Register("status", "Show version, uptime and backend", func(_ context.Context, w io.Writer, _ []string) error {
		fmt.Fprintf(w, "version %s\n", buildinfo.String())
		fmt.Fprintf(w, "uptime %s\n", time.Since(d.started).Round(time.Second))
		fmt.Fprintf(w, "backend %s\n", d.backend)
		fmt.Fprintf(w, "log_level %s\n", logger.GetLevel())
		return nil
	})

	h.Register("snapshot", "Write a memory snapshot now", func(context.Context, io.Writer, []string) error {
		if d.stores.snapshot == nil {
			return errors.New("snapshots are not enabled")
		}
		return d.stores.snapshot()
	})

	h.Register("sweep", "Purge expired session tokens", func(ctx context.Context, w io.Writer, _ []string) error {
		if d.stores.sweep == nil {
			return errors.New("session store expires tokens itself")
		}
		n, err := d.stores.sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "purged %d\n", n)
		return nil
	})

	h.Register("reload", "Re-read the log level from the config file", func(_ context.Context, w io.Writer, _ []string) error {
		if d.configFile == "" {
			return errors.New("no config file")
		}
		level, err := reloadLogLevel(d.configFile, d.log)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "log_level %s\n", level)
		return nil
	})

	h.Register("shutdown", "Stop the server gracefully", func(context.Context, io.Writer, []string) error {
		d.log.Info("shutdown requested over admin socket")
		d.shutdown()
		return nil
	})

	return h
}
