package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coldbell/walletrank/backend/internal/cache"
	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/dashboard"
	"github.com/coldbell/walletrank/backend/internal/logging"
	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/coldbell/walletrank/backend/internal/storage"
	"github.com/gagliardetto/solana-go"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var testNow = time.Unix(1_700_000_000, 0)

type fakeArchive struct {
	wallets   []model.WalletMetrics
	lastRun   *storage.BatchRun
	sinceSeen int64
}

func (f *fakeArchive) TopWallets(_ context.Context, limit int, since int64) ([]model.WalletMetrics, error) {
	f.sinceSeen = since
	return f.wallets[:min(limit, len(f.wallets))], nil
}

func (f *fakeArchive) GetWallet(_ context.Context, address string) (model.WalletMetrics, error) {
	for _, w := range f.wallets {
		if w.Address == address {
			return w, nil
		}
	}
	return model.WalletMetrics{}, model.ErrNotFound
}

func (f *fakeArchive) LatestBatchRun(context.Context) (storage.BatchRun, error) {
	if f.lastRun == nil {
		return storage.BatchRun{}, model.ErrNotFound
	}
	return *f.lastRun, nil
}

type testEnv struct {
	svc   *Service
	store *cache.Store
	mr    *miniredis.Miniredis
}

func testAPIConfig() config.APIServerConfig {
	return config.APIServerConfig{
		Redis:             config.RedisConfig{SnapshotTTL: time.Hour},
		SnapshotCacheSize: 16,
		SnapshotCacheTTL:  time.Minute,
		PushInterval:      20 * time.Millisecond,
		DefaultLimit:      100,
		EnableWebsocket:   true,
		AllowedOrigins:    []string{"https://app.example"},
	}
}

func newTestEnv(t *testing.T, archive Archive) testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewStore(client, time.Hour, "", logging.Discard())

	svc, err := New(testAPIConfig(), store, archive, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	svc.now = func() time.Time { return testNow }
	return testEnv{svc: svc, store: store, mr: mr}
}

func address() string {
	return solana.NewWallet().PublicKey().String()
}

func snapshot(addr string, pnl float64) model.WalletMetrics {
	return model.WalletMetrics{
		Address:         addr,
		TotalProfitLoss: pnl,
		WinRate:         55,
		AvgTradeSize:    200,
		TradeCount:      4,
		LastUpdated:     testNow.Unix(),
	}
}

func (e testEnv) publish(t *testing.T, ranked ...model.WalletMetrics) {
	t.Helper()
	ctx := context.Background()
	for _, m := range ranked {
		if err := e.store.PutSnapshot(ctx, m); err != nil {
			t.Fatalf("PutSnapshot: %v", err)
		}
	}
	if err := e.store.PutRankedList(ctx, ranked); err != nil {
		t.Fatalf("PutRankedList: %v", err)
	}
}

func (e testEnv) get(t *testing.T, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	e.svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil && rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v (%s)", target, err, rec.Body.String())
		}
	}
	return rec.Code
}

func TestLeaderboard_FromCache(t *testing.T) {
	env := newTestEnv(t, nil)
	first, second := snapshot(address(), 20), snapshot(address(), 10)
	env.publish(t, first, second)

	var resp leaderboardResponse
	if code := env.get(t, "/v1/leaderboard?limit=1", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	want := leaderboardResponse{Items: []model.WalletMetrics{first}, Limit: 1, Source: sourceCache}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}

	if code := env.get(t, "/v1/leaderboard", &resp); code != http.StatusOK || len(resp.Items) != 2 || resp.Limit != 100 {
		t.Fatalf("default limit should return the full list, got %d %+v", code, resp)
	}
}

func TestLeaderboard_FallsBackToArchive(t *testing.T) {
	archive := &fakeArchive{wallets: []model.WalletMetrics{snapshot(address(), 5)}}
	env := newTestEnv(t, archive)

	var resp leaderboardResponse
	if code := env.get(t, "/v1/leaderboard", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.Source != sourceArchive || len(resp.Items) != 1 {
		t.Fatalf("expected archived leaderboard, got %+v", resp)
	}
	if want := testNow.Add(-time.Hour).Unix(); archive.sinceSeen != want {
		t.Fatalf("archive should be bounded by the cache ttl: since=%d want %d", archive.sinceSeen, want)
	}
}

func TestLeaderboard_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	for _, target := range []string{"/v1/leaderboard?limit=abc", "/v1/leaderboard?limit=-1"} {
		if code := env.get(t, target, nil); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, code)
		}
	}
}

func TestWallet(t *testing.T) {
	archived := snapshot(address(), 1)
	env := newTestEnv(t, &fakeArchive{wallets: []model.WalletMetrics{archived}})
	cached := snapshot(address(), 42)
	env.publish(t, cached)

	var resp walletResponse
	if code := env.get(t, "/v1/wallets/"+cached.Address, &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if diff := cmp.Diff(walletResponse{Wallet: cached, Source: sourceCache}, resp); diff != "" {
		t.Fatalf("cached wallet mismatch (-want +got):\n%s", diff)
	}

	// served from the in-process cache once Redis loses it
	env.mr.Del("wallet:" + cached.Address)
	if code := env.get(t, "/v1/wallets/"+cached.Address, &resp); code != http.StatusOK || resp.Wallet != cached {
		t.Fatalf("expected in-process hit, got %d %+v", code, resp)
	}

	if code := env.get(t, "/v1/wallets/"+archived.Address, &resp); code != http.StatusOK || resp.Source != sourceArchive {
		t.Fatalf("expected archive fallback, got %d %+v", code, resp)
	}
	if code := env.get(t, "/v1/wallets/"+address(), nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown wallet, got %d", code)
	}
	if code := env.get(t, "/v1/wallets/not-a-key", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid address, got %d", code)
	}
}

func TestWallet_ExpiredLocalEntryRereadsCache(t *testing.T) {
	env := newTestEnv(t, nil)
	m := snapshot(address(), 3)
	env.publish(t, m)

	if code := env.get(t, "/v1/wallets/"+m.Address, nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	env.mr.Del("wallet:" + m.Address)
	env.svc.now = func() time.Time { return testNow.Add(2 * time.Minute) }

	if code := env.get(t, "/v1/wallets/"+m.Address, nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 once the local entry is stale, got %d", code)
	}
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil)
	env.publish(t, snapshot(address(), 2000), snapshot(address(), -50))

	var data dashboard.Data
	if code := env.get(t, "/v1/dashboard", &data); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if data.Summary.TotalWallets != 2 || data.Summary.AvgProfitLoss != 975 || data.Summary.TotalTradeVolume != 1600 {
		t.Fatalf("unexpected summary %+v", data.Summary)
	}
	if data.Distribution.ProfitLoss[0].Count != 1 || data.Distribution.ProfitLoss[3].Count != 1 {
		t.Fatalf("unexpected profit/loss buckets %+v", data.Distribution.ProfitLoss)
	}
}

func TestStatus(t *testing.T) {
	if code := newTestEnv(t, nil).get(t, "/v1/status", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 without archive, got %d", code)
	}

	archive := &fakeArchive{}
	env := newTestEnv(t, archive)
	if code := env.get(t, "/v1/status", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 before the first batch, got %d", code)
	}

	archive.lastRun = &storage.BatchRun{ID: "batch-1", Ranked: 3, MaxSlot: 99}
	var resp statusResponse
	if code := env.get(t, "/v1/status", &resp); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if resp.LastBatch.ID != "batch-1" || !resp.CacheOK {
		t.Fatalf("unexpected status %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	if code := env.get(t, "/healthz", nil); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	env.mr.Close()
	if code := env.get(t, "/healthz", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with redis down, got %d", code)
	}
}

func TestCORSAndMethods(t *testing.T) {
	env := newTestEnv(t, nil)
	handler := env.svc.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/v1/leaderboard", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://app.example" {
		t.Fatalf("unexpected preflight response %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/leaderboard", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS header for foreign origin")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/leaderboard", strings.NewReader("{}")))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestWebsocket_PushesSubscribedChannels(t *testing.T) {
	env := newTestEnv(t, nil)
	top := snapshot(address(), 9)
	env.publish(t, top)

	srv := httptest.NewServer(env.svc.Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, channel := range []string{channelLeaderboard, channelWalletPrefix + top.Address, "unknown"} {
		if err := conn.WriteJSON(websocketSubscribeRequest{Type: "subscribe", Channel: channel}); err != nil {
			t.Fatalf("subscribe %s: %v", channel, err)
		}
	}

	seen := map[string]json.RawMessage{}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(seen) < 2 {
		var envelope struct {
			Type    string          `json:"type"`
			Channel string          `json:"channel"`
			Data    json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&envelope); err != nil {
			t.Fatalf("read: %v (seen %v)", err, seen)
		}
		if envelope.Type != "event" {
			t.Fatalf("unexpected envelope %+v", envelope)
		}
		seen[envelope.Channel] = envelope.Data
	}

	var leaderboard []model.WalletMetrics
	if err := json.Unmarshal(seen[channelLeaderboard], &leaderboard); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if diff := cmp.Diff([]model.WalletMetrics{top}, leaderboard); diff != "" {
		t.Fatalf("leaderboard push mismatch (-want +got):\n%s", diff)
	}
	var wallet model.WalletMetrics
	if err := json.Unmarshal(seen[channelWalletPrefix+top.Address], &wallet); err != nil || wallet != top {
		t.Fatalf("wallet push mismatch: %+v (%v)", wallet, err)
	}
}

func TestWebsocket_Disabled(t *testing.T) {
	cfg := testAPIConfig()
	cfg.EnableWebsocket = false
	svc, err := New(cfg, nil, nil, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with websocket disabled, got %d", rec.Code)
	}
}
