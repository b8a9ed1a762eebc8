package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/fake"
	"github.com/woozymasta/mcquery/internal/geoip"
	"github.com/woozymasta/mcquery/internal/maintenance"
	"github.com/woozymasta/mcquery/internal/probe"
	"github.com/woozymasta/mcquery/internal/server"
	"github.com/woozymasta/mcquery/internal/storage"
	"github.com/woozymasta/mcquery/internal/tracker"
	"github.com/woozymasta/mcquery/internal/vars"
	"github.com/woozymasta/mcquery/pkg/query"
	"github.com/woozymasta/mcquery/pkg/rcon"
	"github.com/woozymasta/mcquery/pkg/status"
)

// errNoTask is returned by maintenance without any task flag.
var errNoTask = errors.New("nothing to do, use --prune-older and/or --check-all")

func runStatus(ctx context.Context, cfg config.StatusCommand, lg zerolog.Logger, out io.Writer) error {
	opts := []status.Option{status.WithLogger(lg), status.WithProtocolVersion(cfg.Protocol)}
	if cfg.NoPing {
		opts = append(opts, status.WithoutPing())
	}

	resp, err := status.Fetch(ctx, cfg.Host, cfg.Port, cfg.Timeout, opts...)
	if err != nil {
		return err
	}

	return printJSON(out, resp)
}

func runQuery(ctx context.Context, cfg config.QueryCommand, lg zerolog.Logger, out io.Writer) error {
	if cfg.Full {
		stat, err := query.Full(ctx, cfg.Host, cfg.Port, cfg.Timeout, query.WithLogger(lg))
		if err != nil {
			return err
		}
		return printJSON(out, stat)
	}

	stat, err := query.Basic(ctx, cfg.Host, cfg.Port, cfg.Timeout, query.WithLogger(lg))
	if err != nil {
		return err
	}

	return printJSON(out, stat)
}

func runRcon(ctx context.Context, cfg config.RconCommand, lg zerolog.Logger, out io.Writer) error {
	client, err := rcon.Dial(ctx, cfg.Host, cfg.Port, cfg.Timeout, rcon.Config{
		Logger:   lg,
		Fragment: cfg.FragmentStrategy(),
	})
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Authenticate(ctx, cfg.Password); err != nil {
		return err
	}

	for _, command := range cfg.Args.Commands {
		output, err := client.RunCommand(ctx, command)
		if err != nil {
			return fmt.Errorf("%s: %w", command, err)
		}
		if _, err := fmt.Fprintln(out, output); err != nil {
			return err
		}
	}

	return nil
}

func runServe(ctx context.Context, cfg config.ServeCommand, lg zerolog.Logger) error {
	log.Info().Str("version", vars.Version).Msg("Starting mcquery service...")

	var geo tracker.CountryResolver
	if !cfg.GeoIP.Disabled {
		log.Info().Msg("Checking GeoIP database...")
		if err := geoip.EnsureDB(ctx, cfg.GeoIP.Path, cfg.GeoIP.URL, cfg.GeoIP.Interval); err != nil {
			log.Error().Err(err).Msg("Failed to download GeoIP database")
		}

		provider, err := geoip.Open(cfg.GeoIP.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open GeoIP database, country detection disabled")
		} else {
			defer func() {
				if err := provider.Close(); err != nil {
					log.Error().Err(err).Msg("Error closing GeoIP provider")
				}
			}()
			geo = provider
		}
	}

	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	prober := probe.New(cfg.Probe, cfg.A2S, lg)
	trk := tracker.New(store, prober, geo, cfg.Tracker)
	trk.Start(ctx)

	srvHandler := server.New(store, cfg, lg)
	srvHandler.StartWorkers()

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           srvHandler.Run(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// flush pending snapshots before the database closes
	trk.Stop()
	srvHandler.StopWorkers()

	log.Info().Msg("Server exited")
	return err
}

func runMaintenance(ctx context.Context, cfg config.MaintenanceCommand, lg zerolog.Logger) error {
	store, err := storage.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database")
		}
	}()

	if cfg.GenerateCount > 0 {
		created := fake.GenerateData(store, cfg.GenerateCount, rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)))
		log.Info().Int("servers", created).Msg("Fake data generated")
		return nil
	}

	if _, ran := maintenance.Run(ctx, cfg, store, probe.New(cfg.Probe, cfg.A2S, lg)); !ran {
		return errNoTask
	}

	return nil
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
