package query

import (
	"strconv"
	"strings"

	"github.com/woozymasta/mcquery/pkg/mcerr"
	"github.com/woozymasta/mcquery/pkg/wire"
)

const (
	fullPaddingKV      = 11
	fullPaddingPlayers = 10
)

// BasicStat is the answer to a basic stat request.
type BasicStat struct {
	MOTD       string `json:"motd"`
	GameType   string `json:"game_type"`
	Map        string `json:"map"`
	HostIP     string `json:"host_ip"`
	NumPlayers int    `json:"num_players"`
	MaxPlayers int    `json:"max_players"`
	HostPort   uint16 `json:"host_port"`
}

// FullStat is the answer to a full stat request.
// KV holds every key/value pair the server sent; the typed fields mirror the well-known keys.
type FullStat struct {
	KV         map[string]string `json:"kv"`
	MOTD       string            `json:"motd"`
	GameType   string            `json:"game_type"`
	GameID     string            `json:"game_id"`
	Version    string            `json:"version"`
	Plugins    string            `json:"plugins"`
	Map        string            `json:"map"`
	HostIP     string            `json:"host_ip"`
	Players    []string          `json:"players"`
	NumPlayers int               `json:"num_players"`
	MaxPlayers int               `json:"max_players"`
	HostPort   uint16            `json:"host_port"`
}

// PluginList splits the plugins value into the server software and its plugins.
// Vanilla servers send an empty value; Bukkit-style servers send "Software: A; B".
func (s *FullStat) PluginList() (software string, plugins []string) {
	software, list, found := strings.Cut(s.Plugins, ":")
	software = strings.TrimSpace(software)
	if !found {
		return software, nil
	}

	for _, p := range strings.Split(list, ";") {
		if p = strings.TrimSpace(p); p != "" {
			plugins = append(plugins, p)
		}
	}

	return software, plugins
}

func parseBasic(r *wire.Reader) (*BasicStat, error) {
	var (
		s   BasicStat
		err error
	)

	for _, dst := range []*string{&s.MOTD, &s.GameType, &s.Map} {
		if *dst, err = r.CString(); err != nil {
			return nil, err
		}
	}

	num, err := r.CString()
	if err != nil {
		return nil, err
	}
	if s.NumPlayers, err = atoi("numplayers", num); err != nil {
		return nil, err
	}

	limit, err := r.CString()
	if err != nil {
		return nil, err
	}
	if s.MaxPlayers, err = atoi("maxplayers", limit); err != nil {
		return nil, err
	}

	if s.HostPort, err = r.Uint16LE(); err != nil {
		return nil, err
	}
	if s.HostIP, err = r.CString(); err != nil {
		return nil, err
	}

	return &s, nil
}

func parseFull(r *wire.Reader) (*FullStat, error) {
	if err := r.Skip(fullPaddingKV); err != nil {
		return nil, err
	}

	s := FullStat{KV: make(map[string]string)}
	for {
		key, err := r.CString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		value, err := r.CString()
		if err != nil {
			return nil, err
		}
		s.KV[key] = value
	}

	if err := r.Skip(fullPaddingPlayers); err != nil {
		return nil, err
	}

	s.Players = []string{}
	for {
		name, err := r.CString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			break
		}
		s.Players = append(s.Players, name)
	}

	if err := s.fill(); err != nil {
		return nil, err
	}

	return &s, nil
}

// fill copies the well-known keys into the typed fields.
func (s *FullStat) fill() error {
	s.MOTD = s.KV["hostname"]
	s.GameType = s.KV["gametype"]
	s.GameID = s.KV["game_id"]
	s.Version = s.KV["version"]
	s.Plugins = s.KV["plugins"]
	s.Map = s.KV["map"]
	s.HostIP = s.KV["hostip"]

	var err error
	if v, ok := s.KV["numplayers"]; ok {
		if s.NumPlayers, err = atoi("numplayers", v); err != nil {
			return err
		}
	}
	if v, ok := s.KV["maxplayers"]; ok {
		if s.MaxPlayers, err = atoi("maxplayers", v); err != nil {
			return err
		}
	}
	if v, ok := s.KV["hostport"]; ok {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return mcerr.New("query stat hostport", mcerr.ErrMalformedResponse, err)
		}
		s.HostPort = uint16(port)
	}

	return nil
}

func atoi(field, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, mcerr.Newf("query stat "+field, mcerr.ErrMalformedResponse, "not a count: %q", v)
	}

	return n, nil
}
