// Package models defines the data structures used for API requests and database persistence.
package models

import "time"

// Server kinds.
const (
	// KindMinecraft servers are probed with Server List Ping and, if QueryPort is set, full stat.
	KindMinecraft = "minecraft"

	// KindA2S servers are probed with Source Engine A2S_INFO.
	KindA2S = "a2s"
)

// ServerRequest is the payload of a tracking registration.
type ServerRequest struct {
	Name      string `json:"name"`
	Kind      string `json:"kind,omitempty"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	QueryPort int    `json:"query_port,omitempty"`
}

// Server represents a tracked game server stored in the database.
type Server struct {
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	Name        string    `json:"name"`
	Kind        string    `json:"kind"`
	Host        string    `json:"host"`
	CountryCode string    `json:"country_code"`
	ID          int64     `json:"id"`
	Port        int       `json:"port"`
	QueryPort   int       `json:"query_port,omitempty"`
	Online      bool      `json:"online"`
}

// Snapshot is the outcome of one probe of a Server.
type Snapshot struct {
	TakenAt     time.Time `json:"taken_at"`
	Version     string    `json:"version,omitempty"`
	MOTD        string    `json:"motd,omitempty"`
	Map         string    `json:"map,omitempty"`
	FaviconHash string    `json:"favicon_hash,omitempty"`
	Error       string    `json:"error,omitempty"`
	PlayerNames []string  `json:"player_names,omitempty"`
	ServerID    int64     `json:"server_id"`
	LatencyMS   int64     `json:"latency_ms,omitempty"`
	Protocol    int       `json:"protocol,omitempty"`
	Players     int       `json:"players"`
	MaxPlayers  int       `json:"max_players"`
	Online      bool      `json:"online"`
}

// ServerDetails is a tracked server with its recent history.
type ServerDetails struct {
	Server
	Snapshots []Snapshot `json:"snapshots"`
}
