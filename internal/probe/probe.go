// Package probe turns one tracked server into one snapshot by talking its protocol.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/game"
	"github.com/woozymasta/mcquery/internal/models"
	"github.com/woozymasta/mcquery/pkg/query"
	"github.com/woozymasta/mcquery/pkg/status"
)

// Prober probes tracked servers. It is safe for concurrent use.
type Prober struct {
	log zerolog.Logger

	// a2s issues A2S_INFO requests; replaced in tests.
	a2s func(host string, port int, options config.A2S) (*a2s.Info, error)

	a2sOptions config.A2S
	timeout    time.Duration
	noPing     bool
}

// New returns a Prober using the protocol settings of probe and a2sOptions.
func New(probe config.Probe, a2sOptions config.A2S, log zerolog.Logger) *Prober {
	return &Prober{
		log:        log,
		a2s:        game.QueryServer,
		a2sOptions: a2sOptions,
		timeout:    probe.Timeout,
		noPing:     probe.NoPing,
	}
}

// Probe contacts srv once and describes the outcome. Failures are recorded in
// Snapshot.Error with Online false, never returned.
func (p *Prober) Probe(ctx context.Context, srv models.Server) models.Snapshot {
	snap := models.Snapshot{ServerID: srv.ID, TakenAt: time.Now()}

	switch srv.Kind {
	case models.KindA2S:
		p.probeA2S(srv, &snap)
	case models.KindMinecraft, "":
		p.probeMinecraft(ctx, srv, &snap)
	default:
		snap.Error = fmt.Sprintf("unknown server kind %q", srv.Kind)
	}

	return snap
}

func (p *Prober) probeMinecraft(ctx context.Context, srv models.Server, snap *models.Snapshot) {
	log := p.log.With().Str("host", srv.Host).Int("port", srv.Port).Logger()

	opts := []status.Option{status.WithLogger(log)}
	if p.noPing {
		opts = append(opts, status.WithoutPing())
	}

	resp, err := status.Fetch(ctx, srv.Host, uint16(srv.Port), p.timeout, opts...) //nolint:gosec
	if err != nil {
		log.Debug().Err(err).Msg("Status probe failed")
		snap.Error = err.Error()
		return
	}
	Fill(snap, resp)

	if srv.QueryPort <= 0 {
		return
	}

	full, err := query.Full(ctx, srv.Host, uint16(srv.QueryPort), p.timeout, query.WithLogger(log)) //nolint:gosec
	if err != nil {
		// the server answered the status request, so it stays online
		log.Debug().Err(err).Int("query_port", srv.QueryPort).Msg("Query probe failed")
		snap.Error = "query: " + err.Error()
		return
	}
	FillQuery(snap, full)
}

func (p *Prober) probeA2S(srv models.Server, snap *models.Snapshot) {
	start := time.Now()

	info, err := p.a2s(srv.Host, srv.Port, p.a2sOptions)
	if err != nil {
		p.log.Debug().Err(err).Str("host", srv.Host).Int("port", srv.Port).Msg("A2S probe failed")
		snap.Error = err.Error()
		return
	}

	game.Fill(snap, info)
	snap.LatencyMS = time.Since(start).Milliseconds()
}

// Fill copies a status response into snap.
func Fill(snap *models.Snapshot, resp *status.Response) {
	snap.Online = true
	snap.Version = resp.Version.Name
	snap.Protocol = resp.Version.Protocol
	snap.MOTD = status.StripFormatting(resp.Description.PlainText())
	snap.Players = resp.Players.Online
	snap.MaxPlayers = resp.Players.Max
	snap.LatencyMS = resp.Latency.Milliseconds()
	snap.FaviconHash = FaviconHash(resp.Favicon)

	snap.PlayerNames = nil
	for _, pl := range resp.Players.Sample {
		snap.PlayerNames = append(snap.PlayerNames, pl.Name)
	}
}

// FillQuery adds what only full stat knows: the map and the complete player list.
func FillQuery(snap *models.Snapshot, full *query.FullStat) {
	snap.Map = full.Map
	if len(full.Players) > 0 {
		snap.PlayerNames = full.Players
	}
}

// FaviconHash fingerprints a favicon data URI so icon changes show up in history
// without storing the image. It returns an empty string for no favicon.
func FaviconHash(favicon string) string {
	if favicon == "" {
		return ""
	}

	return fmt.Sprintf("%016x", xxhash.Sum64String(favicon))
}
