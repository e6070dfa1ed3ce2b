package server_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/coin-tracker/internal/config"
	"github.com/sakif/coin-tracker/internal/model"
	"github.com/sakif/coin-tracker/internal/server"
)

// newTestServer builds the full app against a fake price provider. The
// database lives in a nested directory to check New creates it.
func newTestServer(t *testing.T, provider http.Handler) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(provider)
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		Port:              0,
		DBPath:            filepath.Join(t.TempDir(), "nested", "coins.db"),
		SessionSecret:     "server-test-secret-0123456789",
		SessionTTL:        time.Hour,
		PriceAPIURL:       upstream.URL,
		PriceVsCurrency:   "usd",
		PricePageSize:     10,
		PriceFetchTimeout: 2 * time.Second,
		PriceSyncInterval: time.Hour,
		SignInRatePerMin:  100,
		LogLevel:          "error",
		LogFormat:         "text",
	}

	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	require.NoError(t, srv.Scheduler().RunOnce(context.Background()))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func coinProvider(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `[
		{"name":"Bitcoin","current_price":50000,"market_cap":1000000000000},
		{"name":"Obscure","current_price":null,"market_cap":null}
	]`)
}

func TestServer_OperationalEndpoints(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(coinProvider))

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `coin_tracker_sync_total{result="success"} 1`)
	assert.Contains(t, string(body), "coin_tracker_catalog_items 2")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServer_RootRedirectsToSignIn(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(coinProvider))

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/signin", resp.Request.URL.Path)
}

func TestServer_SyncedCatalogVisibleAfterSignIn(t *testing.T) {
	ts := newTestServer(t, http.HandlerFunc(coinProvider))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	creds := url.Values{"username": {"alice"}, "password": {"hunter2"}}
	resp, err := client.PostForm(ts.URL+"/signup", creds)
	require.NoError(t, err)
	resp.Body.Close()
	resp, err = client.PostForm(ts.URL+"/signin", creds)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, "/items", resp.Request.URL.Path)

	resp, err = client.Get(ts.URL + "/api/items")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []model.Item
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 2)
	assert.Equal(t, "Bitcoin", items[0].Name)
	require.NotNil(t, items[0].Price)
	assert.Equal(t, 50000.0, *items[0].Price)
	assert.Equal(t, "Obscure", items[1].Name)
	assert.Nil(t, items[1].Price)
	assert.Nil(t, items[1].MarketCap)
}

// newLimitedServer builds the app with a tight sign-in limit and no initial
// sync.
func newLimitedServer(t *testing.T, perMinute int, trustProxy bool) *httptest.Server {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(coinProvider))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		DBPath:            filepath.Join(t.TempDir(), "coins.db"),
		SessionSecret:     "server-test-secret-0123456789",
		SessionTTL:        time.Hour,
		PriceAPIURL:       upstream.URL,
		PriceFetchTimeout: time.Second,
		PriceSyncInterval: time.Hour,
		SignInRatePerMin:  perMinute,
		TrustProxyHeaders: trustProxy,
	}
	srv, err := server.New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// signInStatuses posts n failed sign-ins. forwardedFor, when set, picks an
// X-Forwarded-For value per attempt.
func signInStatuses(t *testing.T, ts *httptest.Server, n int, forwardedFor func(i int) string) []int {
	t.Helper()

	noFollow := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	form := url.Values{"username": {"nobody"}, "password": {"x"}}.Encode()

	codes := make([]int, 0, n)
	for i := range n {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/signin", strings.NewReader(form))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if forwardedFor != nil {
			req.Header.Set("X-Forwarded-For", forwardedFor(i))
		}

		resp, err := noFollow.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	return codes
}

func countStatus(codes []int, status int) int {
	n := 0
	for _, c := range codes {
		if c == status {
			n++
		}
	}
	return n
}

func TestServer_SignInIsRateLimited(t *testing.T) {
	ts := newLimitedServer(t, 2, false)

	codes := signInStatuses(t, ts, 3, nil)
	assert.Equal(t, []int{http.StatusSeeOther, http.StatusSeeOther, http.StatusTooManyRequests}, codes)
}

func TestServer_RotatingForwardedForStillLimited(t *testing.T) {
	ts := newLimitedServer(t, 3, false)

	codes := signInStatuses(t, ts, 20, func(i int) string {
		return fmt.Sprintf("198.51.100.%d", i+1)
	})
	assert.Equal(t, 17, countStatus(codes, http.StatusTooManyRequests))
}

func TestServer_TrustedProxyLimitsPerForwardedClient(t *testing.T) {
	ts := newLimitedServer(t, 1, true)

	// Behind a trusted proxy every forwarded client has its own bucket.
	codes := signInStatuses(t, ts, 3, func(i int) string {
		return fmt.Sprintf("198.51.100.%d", i+1)
	})
	assert.Zero(t, countStatus(codes, http.StatusTooManyRequests))

	// One client repeating itself is still limited.
	codes = signInStatuses(t, ts, 2, func(int) string { return "203.0.113.5" })
	assert.Equal(t, []int{http.StatusSeeOther, http.StatusTooManyRequests}, codes)
}
