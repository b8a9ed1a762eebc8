// Package tracker polls every tracked server on an interval and feeds the snapshots to storage.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/models"
	"github.com/woozymasta/mcquery/internal/storage"
	"golang.org/x/time/rate"
)

// Store is the part of the repository the tracker reads and maintains.
type Store interface {
	storage.SnapshotSaver
	GetServers() ([]models.Server, error)
	SetCountry(id int64, code string) error
	PruneSnapshots(before time.Time) (int64, error)
}

// Prober produces one snapshot per call.
type Prober interface {
	Probe(ctx context.Context, srv models.Server) models.Snapshot
}

// CountryResolver maps a host to an ISO country code, empty when unknown.
type CountryResolver interface {
	LookupCountry(ctx context.Context, host string) string
}

// Tracker runs polling rounds in the background.
type Tracker struct {
	store   Store
	prober  Prober
	geo     CountryResolver
	limiter *rate.Limiter

	// out carries snapshots to the batch writer.
	out     chan models.Snapshot
	written <-chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup

	cfg config.Tracker
}

// New creates a Tracker. geo may be nil to skip country detection.
func New(store Store, prober Prober, geo CountryResolver, cfg config.Tracker) *Tracker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	limit := rate.Inf
	if cfg.ProbesPerSec > 0 {
		limit = rate.Limit(cfg.ProbesPerSec)
	}

	return &Tracker{
		store:   store,
		prober:  prober,
		geo:     geo,
		limiter: rate.NewLimiter(limit, cfg.Workers),
		out:     make(chan models.Snapshot, cfg.Workers*4),
		cfg:     cfg,
	}
}

// Start launches the batch writer and the polling loop. The first round runs immediately.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	t.written = storage.StartWriter(t.store, t.out, t.cfg.BatchSize, t.cfg.FlushInterval)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.loop(ctx)
	}()

	log.Info().
		Dur("interval", t.cfg.Interval).
		Int("workers", t.cfg.Workers).
		Float64("probes_per_second", t.cfg.ProbesPerSec).
		Msg("Tracker started")
}

// Stop cancels the running round, waits for it and flushes pending snapshots.
func (t *Tracker) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	t.wg.Wait()

	close(t.out)
	<-t.written
	log.Info().Msg("Tracker stopped")
}

func (t *Tracker) loop(ctx context.Context) {
	interval := t.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		t.Round(ctx, t.out)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Round probes every tracked server once and sends the snapshots to out.
// Completed probes are always delivered, so out must be drained until Round returns.
// Probes cut short by ctx are dropped, their outcome says nothing about the server.
// It returns the number of servers probed.
func (t *Tracker) Round(ctx context.Context, out chan<- models.Snapshot) int {
	start := time.Now()

	if t.cfg.Retention > 0 {
		if n, err := t.store.PruneSnapshots(start.Add(-t.cfg.Retention)); err != nil {
			log.Error().Err(err).Msg("Failed to prune snapshots")
		} else if n > 0 {
			log.Debug().Int64("deleted", n).Msg("Old snapshots pruned")
		}
	}

	servers, err := t.store.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch tracked servers")
		return 0
	}
	if len(servers) == 0 {
		return 0
	}

	jobs := make(chan models.Server)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		probed  int
		onlines int
	)

	for i := 0; i < t.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for srv := range jobs {
				snap, ok := t.process(ctx, srv)
				if !ok {
					continue
				}

				out <- snap

				mu.Lock()
				probed++
				if snap.Online {
					onlines++
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, srv := range servers {
		select {
		case jobs <- srv:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	log.Debug().
		Int("servers", len(servers)).
		Int("probed", probed).
		Int("online", onlines).
		Dur("duration", time.Since(start)).
		Msg("Polling round finished")

	return probed
}

// process probes one server after waiting for the rate limiter.
// It reports false when ctx ended before or during the probe.
func (t *Tracker) process(ctx context.Context, srv models.Server) (models.Snapshot, bool) {
	if err := t.limiter.Wait(ctx); err != nil {
		return models.Snapshot{}, false
	}

	snap := t.prober.Probe(ctx, srv)
	if ctx.Err() != nil {
		log.Debug().Int64("server", srv.ID).Str("error", snap.Error).Msg("Probe interrupted, snapshot dropped")
		return models.Snapshot{}, false
	}

	if t.geo != nil && srv.CountryCode == "" && snap.Online {
		if code := t.geo.LookupCountry(ctx, srv.Host); code != "" {
			if err := t.store.SetCountry(srv.ID, code); err != nil {
				log.Error().Err(err).Int64("server", srv.ID).Msg("Failed to store country")
			}
		}
	}

	return snap, true
}
