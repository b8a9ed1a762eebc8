// Package fake provides utilities for generating random tracked servers and history for development purposes.
package fake

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcquery/internal/models"
)

// Store is the part of the repository the generator fills.
type Store interface {
	UpsertServer(s models.Server) (int64, error)
	SetCountry(id int64, code string) error
	SaveSnapshots(batch []models.Snapshot) error
}

// snapshotsPerServer is one day of history at a 15 minute interval.
const snapshotsPerServer = 96

// GenerateData populates the storage with count randomized servers, each with a day of snapshots.
// It simulates various versions, countries, outages and player counts.
// It returns the number of servers created.
func GenerateData(store Store, count int, rng *rand.Rand) int {
	versions := []struct {
		name     string
		protocol int
	}{
		{"1.20.1", 763}, {"1.20.4", 765}, {"1.21.1", 767}, {"1.21.4", 769}, {"Paper 1.21.4", 769},
	}
	motds := []string{"Survival", "Creative", "SkyBlock", "Factions", "Anarchy", "Minigames"}
	players := []string{"Alice", "Bob", "Steve", "Alex", "Notch", "Herobrine", "Dinnerbone", "jeb_"}
	maps := []string{"chernarusplus", "livonia", "namalsk", "sakhal"}

	// Countries list
	countriesHigh := []string{"US", "DE", "RU", "BR", "FR", "GB", "PL"}
	countriesLow := []string{"CA", "AU", "NL", "SE", "JP", "FI", "CZ"}

	created := 0
	now := time.Now()

	for i := 0; i < count; i++ {
		srv := models.Server{
			Name:      fmt.Sprintf("Server #%d", rng.IntN(10000)),
			Kind:      models.KindMinecraft,
			Host:      fmt.Sprintf("%d.%d.%d.%d", rng.IntN(220)+1, rng.IntN(255), rng.IntN(255), rng.IntN(255)),
			Port:      25565 + rng.IntN(10),
			CreatedAt: now.Add(-snapshotsPerServer * 15 * time.Minute),
		}

		// 10% A2S servers
		if rng.Float32() < 0.1 {
			srv.Kind = models.KindA2S
			srv.Port = 27016
		} else if rng.Float32() < 0.3 {
			srv.QueryPort = srv.Port
		}

		id, err := store.UpsertServer(srv)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake server")
			continue
		}
		created++

		country := countriesHigh[rng.IntN(len(countriesHigh))]
		if rng.Float32() < 0.3 {
			country = countriesLow[rng.IntN(len(countriesLow))]
		}
		if err := store.SetCountry(id, country); err != nil {
			log.Warn().Err(err).Msg("Failed to set fake country")
		}

		version := versions[rng.IntN(len(versions))]
		motd := motds[rng.IntN(len(motds))]
		maxPlayers := []int{20, 50, 100}[rng.IntN(3)]
		favicon := fmt.Sprintf("%016x", rng.Uint64())

		batch := make([]models.Snapshot, 0, snapshotsPerServer)
		for n := snapshotsPerServer; n > 0; n-- {
			snap := models.Snapshot{
				ServerID: id,
				TakenAt:  now.Add(-time.Duration(n) * 15 * time.Minute),
			}

			// 5% outages
			if rng.Float32() < 0.05 {
				snap.Error = "status: timeout"
				batch = append(batch, snap)
				continue
			}

			snap.Online = true
			snap.MaxPlayers = maxPlayers
			snap.Players = rng.IntN(min(maxPlayers, len(players)) + 1)
			snap.LatencyMS = int64(10 + rng.IntN(200))
			for _, k := range rng.Perm(len(players))[:snap.Players] {
				snap.PlayerNames = append(snap.PlayerNames, players[k])
			}

			if srv.Kind == models.KindA2S {
				snap.MOTD = "DayZ " + motd
				snap.Map = maps[rng.IntN(len(maps))]
				snap.Version = "1.26.159040"
			} else {
				snap.MOTD = motd
				snap.Version = version.name
				snap.Protocol = version.protocol
				snap.FaviconHash = favicon
			}
			batch = append(batch, snap)
		}

		if err := store.SaveSnapshots(batch); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake snapshots")
		}
	}

	return created
}
