// Package game probes non-Minecraft game servers using the Source Engine Query (A2S) protocol.
package game

import (
	"github.com/woozymasta/a2s/pkg/a2s"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/models"
)

// QueryServer connects to a game server via UDP and requests A2S_INFO.
func QueryServer(host string, port int, options config.A2S) (*a2s.Info, error) {
	client, err := a2s.New(host, port)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Close() }()

	client.BufferSize = options.BufferSize
	client.Timeout = options.Timeout

	return client.GetInfo()
}

// Fill copies the A2S_INFO fields that have a snapshot counterpart into snap.
func Fill(snap *models.Snapshot, info *a2s.Info) {
	snap.Online = true
	snap.MOTD = info.Name
	snap.Map = info.Map
	snap.Version = info.Version
	snap.Players = int(info.Players)
	snap.MaxPlayers = int(info.MaxPlayers)
}
