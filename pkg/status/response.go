package status

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/woozymasta/mcquery/pkg/mcerr"
)

const faviconPrefix = "data:image/png;base64,"

// ErrNoFavicon is returned by FaviconPNG when the server sent no icon.
var ErrNoFavicon = errors.New("status: no favicon")

// Response is the status document a server returns to the server list.
type Response struct {
	EnforcesSecureChat *bool      `json:"enforcesSecureChat,omitempty"`
	PreviewsChat       *bool      `json:"previewsChat,omitempty"`
	ForgeData          *ForgeData `json:"forgeData,omitempty"`
	ModInfo            *ModInfo   `json:"modinfo,omitempty"`
	Version            Version    `json:"version"`
	Favicon            string     `json:"favicon,omitempty"`
	Description        Chat       `json:"description"`
	Players            Players    `json:"players"`

	// Latency is the ping/pong round trip, zero when not measured.
	Latency   time.Duration `json:"-"`
	LatencyMS int64         `json:"latency_ms,omitempty"`
}

// Version names the game version and its protocol number.
type Version struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

// Players holds online counts and an optional sample of online players.
type Players struct {
	Sample []Player `json:"sample,omitempty"`
	Max    int      `json:"max"`
	Online int      `json:"online"`
}

// Player is one entry of Players.Sample.
type Player struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ForgeData is advertised by Forge servers since 1.13.
type ForgeData struct {
	Mods []ForgeMod `json:"mods,omitempty"`
}

// ForgeMod is one entry of ForgeData.Mods.
type ForgeMod struct {
	ModID   string `json:"modId"`
	Version string `json:"modmarker"`
}

// ModInfo is the pre-1.13 Forge mod list.
type ModInfo struct {
	Type    string        `json:"type"`
	ModList []ModInfoItem `json:"modList,omitempty"`
}

// ModInfoItem is one entry of ModInfo.ModList.
type ModInfoItem struct {
	ModID   string `json:"modid"`
	Version string `json:"version"`
}

// Mods returns the advertised mods keyed by mod id, or nil for vanilla servers.
func (r *Response) Mods() map[string]string {
	var mods map[string]string
	add := func(id, version string) {
		if id == "" {
			return
		}
		if mods == nil {
			mods = make(map[string]string)
		}
		mods[id] = version
	}

	if r.ForgeData != nil {
		for _, m := range r.ForgeData.Mods {
			add(m.ModID, m.Version)
		}
	}
	if r.ModInfo != nil {
		for _, m := range r.ModInfo.ModList {
			add(m.ModID, m.Version)
		}
	}

	return mods
}

// FaviconPNG decodes the base64 data URI in Favicon.
func (r *Response) FaviconPNG() ([]byte, error) {
	if r.Favicon == "" {
		return nil, ErrNoFavicon
	}

	data := strings.TrimPrefix(r.Favicon, faviconPrefix)
	// some servers wrap the base64 text like a MIME body
	data = strings.NewReplacer("\n", "", "\r", "").Replace(data)

	return base64.StdEncoding.DecodeString(data)
}

// parseResponse decodes the status JSON and checks the mandatory keys.
func parseResponse(data []byte) (*Response, error) {
	const op = "status response"

	var required struct {
		Version     json.RawMessage `json:"version"`
		Players     json.RawMessage `json:"players"`
		Description json.RawMessage `json:"description"`
	}
	if err := json.Unmarshal(data, &required); err != nil {
		return nil, mcerr.New(op, mcerr.ErrMalformedResponse, err)
	}

	for name, raw := range map[string]json.RawMessage{
		"version":     required.Version,
		"players":     required.Players,
		"description": required.Description,
	} {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, mcerr.Newf(op, mcerr.ErrMalformedResponse, "missing %q", name)
		}
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, mcerr.New(op, mcerr.ErrMalformedResponse, err)
	}

	return &resp, nil
}
