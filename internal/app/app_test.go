package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/datarest/internal/config"
)

func testConfig(resources ...config.ResourceConfig) *config.Config {
	cfg := config.Default()
	cfg.Resources = resources
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) (*App, *httptest.Server) {
	t.Helper()
	require.NoError(t, cfg.Validate())

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(func() {
		srv.Close()
		a.Close(context.Background())
		cancel()
	})
	return a, srv
}

func send(t *testing.T, method, url, body string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

var jsonHeader = map[string]string{"Content-Type": "application/json", "Accept": "application/json"}

func TestWidgetScenarioOverHTTP(t *testing.T) {
	storages := map[string]func(t *testing.T, cfg *config.Config){
		"memory": func(t *testing.T, cfg *config.Config) {},
		"sqlite": func(t *testing.T, cfg *config.Config) {
			cfg.Storage = config.StorageConfig{
				Driver: config.StorageSQLite,
				DSN:    "file:" + filepath.Join(t.TempDir(), "datarest.db"),
			}
		},
	}

	for name, setup := range storages {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(config.ResourceConfig{Name: "widgets"})
			setup(t, cfg)
			_, srv := newTestApp(t, cfg)
			base := srv.URL + "/api/widgets"

			created := send(t, http.MethodPost, base, `{"name":"x"}`, jsonHeader)
			require.Equal(t, http.StatusCreated, created.StatusCode)
			assert.Equal(t, "/api/widgets/1", created.Header.Get("Location"))
			assert.NotEmpty(t, created.Header.Get("X-Request-ID"))

			got := send(t, http.MethodGet, base+"/1", "", nil)
			require.Equal(t, http.StatusOK, got.StatusCode)
			assert.Equal(t, `"1-v1"`, got.Header.Get("ETag"))

			stale := send(t, http.MethodPut, base+"/1", `{"name":"y"}`, map[string]string{
				"Content-Type": "application/json", "Accept": "application/json", "If-Match": `"1-v0"`,
			})
			assert.Equal(t, http.StatusPreconditionFailed, stale.StatusCode)

			updated := send(t, http.MethodPut, base+"/1", `{"name":"y"}`, map[string]string{
				"Content-Type": "application/json", "Accept": "application/json", "If-Match": `"1-v1"`,
			})
			require.Equal(t, http.StatusOK, updated.StatusCode)
			assert.Equal(t, `"1-v2"`, updated.Header.Get("ETag"))

			assert.Equal(t, http.StatusNoContent, send(t, http.MethodDelete, base+"/1", "", nil).StatusCode)
			assert.Equal(t, http.StatusNotFound, send(t, http.MethodGet, base+"/1", "", nil).StatusCode)
		})
	}
}

func TestEventFeed(t *testing.T) {
	_, srv := newTestApp(t, testConfig(config.ResourceConfig{Name: "widgets"}, config.ResourceConfig{Name: "gadgets"}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + EventsPath + "?resource=widgets"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + HealthPath)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var status map[string]any
		if json.NewDecoder(resp.Body).Decode(&status) != nil {
			return false
		}
		return status["feed_clients"] == float64(1)
	}, 2*time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/api/gadgets", `{"name":"g"}`, jsonHeader).StatusCode)
	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/api/widgets", `{"name":"w"}`, jsonHeader).StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "after_create", msg["type"])
	assert.Equal(t, "widgets", msg["resource"])
	assert.Equal(t, "1", msg["id"])

	unknown, err := http.Get(srv.URL + EventsPath + "?resource=nope")
	require.NoError(t, err)
	unknown.Body.Close()
	assert.Equal(t, http.StatusNotFound, unknown.StatusCode)
}

func TestOperationalEndpoints(t *testing.T) {
	cfg := testConfig(config.ResourceConfig{Name: "widgets"})
	cfg.Cache.Driver = config.CacheMemory
	a, srv := newTestApp(t, cfg)

	require.Equal(t, http.StatusCreated, send(t, http.MethodPost, srv.URL+"/api/widgets", `{"name":"x"}`, jsonHeader).StatusCode)

	first := send(t, http.MethodGet, srv.URL+"/api/widgets", "", nil)
	assert.Equal(t, "MISS", first.Header.Get("X-Cache"))
	second := send(t, http.MethodGet, srv.URL+"/api/widgets", "", nil)
	assert.Equal(t, "HIT", second.Header.Get("X-Cache"))

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Events.WithLabelValues("widgets", "after_create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.Metrics().Requests.WithLabelValues("widgets", "POST", "201")))

	metricsResp := send(t, http.MethodGet, srv.URL+MetricsPath, "", nil)
	require.Equal(t, http.StatusOK, metricsResp.StatusCode)
	body, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "datarest_http_requests_total")

	health := send(t, http.MethodGet, srv.URL+HealthPath, "", nil)
	assert.Equal(t, http.StatusOK, health.StatusCode)

	index := send(t, http.MethodGet, srv.URL+"/api", "", nil)
	assert.Equal(t, http.StatusOK, index.StatusCode)

	names := make([]string, 0)
	for _, route := range a.Routes() {
		names = append(names, route.Name)
	}
	assert.ElementsMatch(t, []string{"healthz", "metrics", "events", "index", "profiles", "profile", "collection", "item"}, names)
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name  string
		redis bool
	}{
		{"in memory", false},
		{"shared through the redis cache", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(config.ResourceConfig{Name: "widgets"})
			cfg.Server.RateLimit = config.RateLimitConfig{Requests: 2, Window: time.Minute}
			if tt.redis {
				mr := miniredis.RunT(t)
				cfg.Cache = config.CacheConfig{Driver: config.CacheRedis, Addr: mr.Addr(), TTL: time.Minute}
			}
			_, srv := newTestApp(t, cfg)

			for i := 0; i < 2; i++ {
				resp := send(t, http.MethodGet, srv.URL+"/api/widgets", "", nil)
				require.Equal(t, http.StatusOK, resp.StatusCode)
				assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
			}

			limited := send(t, http.MethodGet, srv.URL+"/api/widgets", "", nil)
			assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
			assert.NotEmpty(t, limited.Header.Get("Retry-After"))

			health := send(t, http.MethodGet, srv.URL+HealthPath, "", nil)
			assert.Equal(t, http.StatusOK, health.StatusCode)
		})
	}
}

func TestNewFailsOnUnreachableStorage(t *testing.T) {
	cfg := testConfig(config.ResourceConfig{Name: "widgets"})
	cfg.Storage = config.StorageConfig{Driver: config.StorageSQLite, DSN: "file:" + filepath.Join(t.TempDir(), "missing", "db.sqlite") + "?mode=ro"}

	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	cfg := testConfig(config.ResourceConfig{Name: "widgets"})
	cfg.Server.Address = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
