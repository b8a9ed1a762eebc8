package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/woozymasta/mcquery/internal/config"
	"github.com/woozymasta/mcquery/internal/mctest"
	"github.com/woozymasta/mcquery/internal/models"
	"github.com/woozymasta/mcquery/internal/storage"
)

const testToken = "s3cret"

func testConfig() config.ServeCommand {
	var cfg config.ServeCommand
	cfg.Server.AuthToken = testToken
	cfg.Server.MaxBodySize = 4096
	cfg.RateLimit.HardLimitCount = 100
	cfg.RateLimit.HardLimitWin = time.Minute
	cfg.RateLimit.SoftLimitDur = time.Minute
	cfg.Probe.Timeout = time.Second

	return cfg
}

func newTestServer(t *testing.T, cfg config.ServeCommand) (*httptest.Server, *storage.Repository) {
	t.Helper()

	repo, err := storage.New(filepath.Join(t.TempDir(), "mcquery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	s := New(repo, cfg, zerolog.Nop())
	s.StartWorkers()
	t.Cleanup(s.StopWorkers)

	ts := httptest.NewServer(s.Run())
	t.Cleanup(ts.Close)

	return ts, repo
}

func do(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestLiveStatus(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())
	host, port := mctest.StatusServer(t, mctest.Doc)

	url := ts.URL + "/api/status?host=" + host + "&port=" + strconv.Itoa(int(port))
	resp := do(t, http.MethodGet, url, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	var got struct {
		Version struct {
			Name string `json:"name"`
		} `json:"version"`
		Players struct {
			Max int `json:"max"`
		} `json:"players"`
	}
	decode(t, resp, &got)
	assert.Equal(t, "1.21.4", got.Version.Name)
	assert.Equal(t, 20, got.Players.Max)

	again := do(t, http.MethodGet, url, "", "")
	assert.Equal(t, http.StatusOK, again.StatusCode)
	assert.Equal(t, "HIT", again.Header.Get("X-Cache"))
}

func TestLiveStatus_ClientGoneIsNotCached(t *testing.T) {
	repo, err := storage.New(filepath.Join(t.TempDir(), "mcquery.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	handler := New(repo, testConfig(), zerolog.Nop()).Run()
	host, port := mctest.StatusServer(t, mctest.Doc)
	url := "/api/status?host=" + host + "&port=" + strconv.Itoa(int(port))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gone := httptest.NewRecorder()
	handler.ServeHTTP(gone, httptest.NewRequest(http.MethodGet, url, nil).WithContext(ctx))
	assert.NotEqual(t, http.StatusOK, gone.Code)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
}

func TestLiveStatus_Unreachable(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	url := ts.URL + "/api/status?host=127.0.0.1&port=" + strconv.Itoa(int(mctest.ClosedPort(t)))
	resp := do(t, http.MethodGet, url, "", "")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "i/o error", body["kind"])
	assert.NotEmpty(t, body["error"])
}

func TestLiveStatus_BadRequests(t *testing.T) {
	cfg := testConfig()
	cfg.Server.DenyHosts = []string{"Internal.Example.org"}
	ts, _ := newTestServer(t, cfg)

	cases := map[string]struct {
		query string
		code  int
	}{
		"missing host":     {"", http.StatusBadRequest},
		"bad port":         {"host=a&port=70000", http.StatusBadRequest},
		"zero port":        {"host=a&port=0", http.StatusBadRequest},
		"bad protocol":     {"host=a&protocol=x", http.StatusBadRequest},
		"denied host":      {"host=internal.example.org", http.StatusForbidden},
		"denied host case": {"host=INTERNAL.example.org.", http.StatusForbidden},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp := do(t, http.MethodGet, ts.URL+"/api/status?"+tc.query, "", "")
			assert.Equal(t, tc.code, resp.StatusCode)
		})
	}
}

func TestLiveQuery(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())
	port := mctest.QueryServer(t, []mctest.KV{
		{Key: "hostname", Value: "A Minecraft Server"},
		{Key: "map", Value: "world"},
		{Key: "numplayers", Value: "1"},
		{Key: "maxplayers", Value: "20"},
		{Key: "hostport", Value: "25565"},
		{Key: "hostip", Value: "127.0.0.1"},
	}, []string{"Alice"})

	base := ts.URL + "/api/query?host=127.0.0.1&port=" + strconv.Itoa(int(port))

	resp := do(t, http.MethodGet, base, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var basic struct {
		MOTD     string `json:"motd"`
		HostPort int    `json:"host_port"`
	}
	decode(t, resp, &basic)
	assert.Equal(t, "A Minecraft Server", basic.MOTD)
	assert.Equal(t, 25565, basic.HostPort)

	resp = do(t, http.MethodGet, base+"&full=1", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var full struct {
		Players []string `json:"players"`
		Map     string   `json:"map"`
	}
	decode(t, resp, &full)
	assert.Equal(t, []string{"Alice"}, full.Players)
	assert.Equal(t, "world", full.Map)
}

func TestServersCRUD(t *testing.T) {
	ts, repo := newTestServer(t, testConfig())

	// unauthorized
	resp := do(t, http.MethodPost, ts.URL+"/api/servers", "", `{"host":"mc.example.org","port":25565}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, http.MethodPost, ts.URL+"/api/servers", "wrong", `{"host":"mc.example.org","port":25565}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// invalid payloads
	for _, body := range []string{
		`not json`,
		`{"host":"","port":25565}`,
		`{"host":"mc.example.org","port":0}`,
		`{"host":"mc.example.org","port":25565,"kind":"quake"}`,
		`{"host":"mc.example.org","port":25565,"query_port":70000}`,
	} {
		resp = do(t, http.MethodPost, ts.URL+"/api/servers", testToken, body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp = do(t, http.MethodPost, ts.URL+"/api/servers", testToken,
		`{"name":"Lobby","host":"mc.example.org","port":25565,"query_port":25566}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created map[string]int64
	decode(t, resp, &created)
	id := created["id"]
	require.NotZero(t, id)

	require.NoError(t, repo.SaveSnapshots([]models.Snapshot{{ServerID: id, TakenAt: time.Now(), Online: true, Players: 3}}))

	resp = do(t, http.MethodGet, ts.URL+"/api/servers", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.Server
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Lobby", list[0].Name)
	assert.Equal(t, models.KindMinecraft, list[0].Kind)
	assert.True(t, list[0].Online)

	resp = do(t, http.MethodGet, ts.URL+"/api/server?id="+strconv.FormatInt(id, 10), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var details models.ServerDetails
	decode(t, resp, &details)
	assert.Equal(t, 25566, details.QueryPort)
	require.Len(t, details.Snapshots, 1)
	assert.Equal(t, 3, details.Snapshots[0].Players)

	resp = do(t, http.MethodDelete, ts.URL+"/api/server?id="+strconv.FormatInt(id, 10), "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/api/server?id="+strconv.FormatInt(id, 10), testToken, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/api/server?id="+strconv.FormatInt(id, 10), testToken, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/server?id="+strconv.FormatInt(id, 10), "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetServer_BadParams(t *testing.T) {
	ts, _ := newTestServer(t, testConfig())

	for _, q := range []string{"", "id=x", "id=1&limit=0", "id=1&limit=x"} {
		resp := do(t, http.MethodGet, ts.URL+"/api/server?"+q, "", "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.HardLimitCount = 2
	cfg.RateLimit.HardLimitWin = time.Hour
	ts, _ := newTestServer(t, cfg)

	// the budget is shared between limited routes
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/servers", "", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, ts.URL+"/api/server", "", "").StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, do(t, http.MethodGet, ts.URL+"/api/servers", "", "").StatusCode)

	// unlimited route
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, ts.URL+"/api/version", "", "").StatusCode)
}

func TestAdminAuth_EmptyTokenRejectsAll(t *testing.T) {
	h := AdminAuthMiddleware("", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.2")

	assert.Equal(t, "10.0.0.1", GetRealIP(req, false))
	assert.Equal(t, "203.0.113.7", GetRealIP(req, true))

	req.Header.Set("CF-Connecting-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", GetRealIP(req, true))
}

func TestEvictLiveCache(t *testing.T) {
	s := New(nil, testConfig(), zerolog.Nop())
	now := time.Now()
	s.liveCache.Store(uint64(1), liveEntry{at: now.Add(-2 * time.Minute)})
	s.liveCache.Store(uint64(2), liveEntry{at: now})
	s.liveCache.Store(uint64(3), "junk")

	s.evictLiveCache(now)

	_, ok := s.liveCache.Load(uint64(1))
	assert.False(t, ok)
	_, ok = s.liveCache.Load(uint64(2))
	assert.True(t, ok)
	_, ok = s.liveCache.Load(uint64(3))
	assert.False(t, ok)
}
