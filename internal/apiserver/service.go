package apiserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coldbell/walletrank/backend/internal/config"
	"github.com/coldbell/walletrank/backend/internal/dashboard"
	"github.com/coldbell/walletrank/backend/internal/model"
	"github.com/coldbell/walletrank/backend/internal/storage"
	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
)

// SnapshotReader is the cache the analyzer publishes to.
type SnapshotReader interface {
	Ping(ctx context.Context) error
	GetRankedList(ctx context.Context, limit int) ([]model.WalletMetrics, error)
	GetSnapshot(ctx context.Context, address string) (model.WalletMetrics, bool, error)
}

// Archive is the optional durable copy, consulted when the cache has nothing.
type Archive interface {
	TopWallets(ctx context.Context, limit int, since int64) ([]model.WalletMetrics, error)
	GetWallet(ctx context.Context, address string) (model.WalletMetrics, error)
	LatestBatchRun(ctx context.Context) (storage.BatchRun, error)
}

const (
	sourceCache   = "cache"
	sourceArchive = "archive"
	maxLimit      = 1000
)

type cachedSnapshot struct {
	metrics   model.WalletMetrics
	fetchedAt time.Time
}

type Service struct {
	cfg              config.APIServerConfig
	logger           *slog.Logger
	reader           SnapshotReader
	archive          Archive
	snapshots        *lru.Cache
	now              func() time.Time
	allowAllOrigins  bool
	allowedOriginSet map[string]struct{}
}

// New builds the read API. archive may be nil.
func New(cfg config.APIServerConfig, reader SnapshotReader, archive Archive, logger *slog.Logger) (*Service, error) {
	snapshots, err := lru.New(max(cfg.SnapshotCacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("init snapshot cache: %w", err)
	}

	allowAllOrigins := false
	allowedOriginSet := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		if trimmed == "*" {
			allowAllOrigins = true
			continue
		}
		allowedOriginSet[trimmed] = struct{}{}
	}
	if len(allowedOriginSet) == 0 && !allowAllOrigins {
		allowAllOrigins = true
	}

	return &Service{
		cfg:              cfg,
		logger:           logger,
		reader:           reader,
		archive:          archive,
		snapshots:        snapshots,
		now:              time.Now,
		allowAllOrigins:  allowAllOrigins,
		allowedOriginSet: allowedOriginSet,
	}, nil
}

func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/v1/wallets/", s.handleWallet)
	mux.HandleFunc("/v1/dashboard", s.handleDashboard)
	mux.HandleFunc("/v1/status", s.handleStatus)
	if s.cfg.EnableWebsocket {
		mux.HandleFunc("/ws", s.handleWebsocket)
	}
	return s.withCORS(mux)
}

func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		err := server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
			return
		}
		errCh <- err
	}()

	s.logger.Info("api-server started",
		"listen_addr", s.cfg.ListenAddr,
		"archive", s.archive != nil,
		"websocket", s.cfg.EnableWebsocket,
		"allowed_origins", strings.Join(s.cfg.AllowedOrigins, ","),
	)

	select {
	case <-ctx.Done():
		s.logger.Info("api-server stopping")
		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown api-server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen and serve: %w", err)
		}
		return nil
	}
}

type healthResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type leaderboardResponse struct {
	Items  []model.WalletMetrics `json:"items"`
	Limit  int                   `json:"limit"`
	Source string                `json:"source"`
}

type walletResponse struct {
	Wallet model.WalletMetrics `json:"wallet"`
	Source string              `json:"source"`
}

type statusResponse struct {
	LastBatch storage.BatchRun `json:"last_batch"`
	CacheOK   bool             `json:"cache_ok"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	if err := s.reader.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "err", err)
		s.respondJSON(w, http.StatusServiceUnavailable, healthResponse{OK: false})
		return
	}
	s.respondJSON(w, http.StatusOK, healthResponse{OK: true})
}

func (s *Service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, source, err := s.leaderboard(r.Context(), limit)
	if err != nil {
		s.logger.Error("get leaderboard failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}
	s.respondJSON(w, http.StatusOK, leaderboardResponse{Items: items, Limit: limit, Source: source})
}

func (s *Service) handleWallet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	address := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/wallets/"), "/ ")
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid wallet address")
		return
	}

	wallet, source, err := s.wallet(r.Context(), address)
	if errors.Is(err, model.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "wallet not found")
		return
	}
	if err != nil {
		s.logger.Error("get wallet failed", "address", address, "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load wallet")
		return
	}
	s.respondJSON(w, http.StatusOK, walletResponse{Wallet: wallet, Source: source})
}

func (s *Service) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, _, err := s.leaderboard(r.Context(), limit)
	if err != nil {
		s.logger.Error("get dashboard failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	s.respondJSON(w, http.StatusOK, dashboard.Generate(items))
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondMethodNotAllowed(w)
		return
	}
	if s.archive == nil {
		s.respondError(w, http.StatusNotFound, "batch history requires the archive")
		return
	}

	run, err := s.archive.LatestBatchRun(r.Context())
	if errors.Is(err, model.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "no batch recorded yet")
		return
	}
	if err != nil {
		s.logger.Error("get status failed", "err", err)
		s.respondError(w, http.StatusInternalServerError, "failed to get status")
		return
	}
	s.respondJSON(w, http.StatusOK, statusResponse{
		LastBatch: run,
		CacheOK:   s.reader.Ping(r.Context()) == nil,
	})
}

// leaderboard prefers the cache and falls back to archived snapshots that are
// no older than the cache TTL.
func (s *Service) leaderboard(ctx context.Context, limit int) ([]model.WalletMetrics, string, error) {
	items, err := s.reader.GetRankedList(ctx, limit)
	if err == nil && (len(items) > 0 || s.archive == nil) {
		return items, sourceCache, nil
	}
	if s.archive == nil {
		return nil, "", err
	}
	if err != nil {
		s.logger.Warn("cache leaderboard failed, using archive", "err", err)
	}

	since := s.now().Add(-s.cfg.Redis.SnapshotTTL).Unix()
	archived, archiveErr := s.archive.TopWallets(ctx, limit, since)
	if archiveErr != nil {
		return nil, "", errors.Join(err, archiveErr)
	}
	return archived, sourceArchive, nil
}

func (s *Service) wallet(ctx context.Context, address string) (model.WalletMetrics, string, error) {
	if cached, ok := s.snapshots.Get(address); ok {
		if c, ok := cached.(cachedSnapshot); ok && s.now().Sub(c.fetchedAt) < s.cfg.SnapshotCacheTTL {
			return c.metrics, sourceCache, nil
		}
	}

	wallet, found, err := s.reader.GetSnapshot(ctx, address)
	if err == nil && found {
		s.snapshots.Add(address, cachedSnapshot{metrics: wallet, fetchedAt: s.now()})
		return wallet, sourceCache, nil
	}
	if s.archive == nil {
		if err != nil {
			return model.WalletMetrics{}, "", err
		}
		return model.WalletMetrics{}, "", model.ErrNotFound
	}

	wallet, archiveErr := s.archive.GetWallet(ctx, address)
	if archiveErr != nil {
		if errors.Is(archiveErr, model.ErrNotFound) && err == nil {
			return model.WalletMetrics{}, "", model.ErrNotFound
		}
		return model.WalletMetrics{}, "", errors.Join(err, archiveErr)
	}
	return wallet, sourceArchive, nil
}

func (s *Service) parseLimit(r *http.Request) (int, error) {
	limit, err := parseOptionalInt(r, "limit", s.cfg.DefaultLimit)
	if err != nil {
		return 0, err
	}
	if limit < 0 {
		return 0, fmt.Errorf("invalid limit: must be >= 0")
	}
	return min(limit, maxLimit), nil
}

func (s *Service) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" && s.isOriginAllowed(origin) {
			if s.allowAllOrigins {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "300")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) isOriginAllowed(origin string) bool {
	if origin == "" || s.allowAllOrigins {
		return true
	}
	_, ok := s.allowedOriginSet[origin]
	return ok
}

func parseOptionalInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func (s *Service) respondMethodNotAllowed(w http.ResponseWriter) {
	s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Service) respondError(w http.ResponseWriter, code int, message string) {
	s.respondJSON(w, code, errorResponse{Error: message})
}

func (s *Service) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to write JSON response", "err", err)
	}
}
