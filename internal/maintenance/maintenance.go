// Package maintenance provide tools for clean and update database
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/models"
)

// workers is the number of concurrent probes of a check run.
const workers = 10

// Store is the part of the repository maintenance works on.
type Store interface {
	GetServers() ([]models.Server, error)
	DeleteServer(id int64) (bool, error)
	SaveSnapshots(batch []models.Snapshot) error
	PruneSnapshots(before time.Time) (int64, error)
}

// Prober produces one snapshot per call.
type Prober interface {
	Probe(ctx context.Context, srv models.Server) models.Snapshot
}

// Report summarizes a maintenance run.
type Report struct {
	Pruned  int64
	Checked int
	Online  int
	Deleted int
}

// Run executes the tasks selected in cfg. It returns false when no task was selected.
func Run(ctx context.Context, cfg config.MaintenanceCommand, store Store, prober Prober) (Report, bool) {
	var report Report

	if cfg.PruneOlder <= 0 && !cfg.CheckAll {
		return report, false
	}

	if cfg.PruneOlder > 0 {
		before := time.Now().Add(-cfg.PruneOlder)
		log.Info().Time("before", before).Msg("Pruning old snapshots...")

		count, err := store.PruneSnapshots(before)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune snapshots")
		} else {
			report.Pruned = count
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}
	}

	if !cfg.CheckAll {
		return report, true
	}

	servers, err := store.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		return report, true
	}
	if len(servers) == 0 {
		log.Info().Msg("No servers found for maintenance")
		return report, true
	}

	log.Info().Int("count", len(servers)).Int("workers", workers).Bool("delete_unreachable", cfg.DeleteUnreachable).
		Msg("Re-checking all servers...")
	runWorkerPool(ctx, servers, store, prober, cfg.DeleteUnreachable, &report)
	log.Info().
		Int("checked", report.Checked).
		Int("online", report.Online).
		Int("deleted", report.Deleted).
		Msg("Maintenance task completed")

	return report, true
}

func runWorkerPool(ctx context.Context, servers []models.Server, store Store, prober Prober, deleteUnreachable bool, report *Report) {
	jobs := make(chan models.Server, len(servers))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		snaps = make([]models.Snapshot, 0, len(servers))
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for srv := range jobs {
				// drain the queue without probing once the run is interrupted
				if ctx.Err() != nil {
					continue
				}

				snap, deleted, ok := processServer(ctx, srv, store, prober, deleteUnreachable)
				if !ok {
					continue
				}

				mu.Lock()
				report.Checked++
				if snap.Online {
					report.Online++
				}
				if deleted {
					report.Deleted++
				} else {
					snaps = append(snaps, snap)
				}
				mu.Unlock()
			}
		}()
	}

	for _, srv := range servers {
		jobs <- srv
	}
	close(jobs)
	wg.Wait()

	if ctx.Err() != nil {
		log.Warn().Int("checked", report.Checked).Int("total", len(servers)).Msg("Check interrupted")
	}
	if len(snaps) == 0 {
		return
	}

	if err := store.SaveSnapshots(snaps); err != nil {
		log.Error().Err(err).Msg("Failed to save snapshots")
	}
}

// processServer probes srv and deletes it when unreachable and deletion is enabled.
// It reports false when ctx ended during the probe, the outcome then says nothing about srv.
func processServer(ctx context.Context, srv models.Server, store Store, prober Prober, deleteUnreachable bool) (snap models.Snapshot, deleted, ok bool) {
	logCtx := log.With().
		Int64("id", srv.ID).
		Str("kind", srv.Kind).
		Str("host", srv.Host).
		Int("port", srv.Port).
		Logger()

	// Ports outside the valid range can never answer
	if srv.Port < 1 || srv.Port > 65535 {
		logCtx.Debug().Msg("Invalid port")
		return models.Snapshot{ServerID: srv.ID, TakenAt: time.Now(), Error: "invalid port"},
			deleteUnreachable && deleteServer(store, srv.ID, logCtx), true
	}

	snap = prober.Probe(ctx, srv)
	if ctx.Err() != nil {
		logCtx.Debug().Str("error", snap.Error).Msg("Probe interrupted, result discarded")
		return snap, false, false
	}
	if snap.Online {
		logCtx.Trace().Msg("Server answered")
		return snap, false, true
	}

	logCtx.Debug().Str("error", snap.Error).Msg("Server unreachable")
	if !deleteUnreachable {
		return snap, false, true
	}

	return snap, deleteServer(store, srv.ID, logCtx), true
}

func deleteServer(store Store, id int64, logCtx zerolog.Logger) bool {
	if _, err := store.DeleteServer(id); err != nil {
		logCtx.Error().Err(err).Msg("Failed to delete unreachable server")
		return false
	}
	logCtx.Info().Msg("Unreachable server deleted")

	return true
}
