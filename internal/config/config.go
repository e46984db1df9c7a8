package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

type LogConfig struct {
	Level    string
	Format   string
	Output   string
	FilePath string
}

type RedisConfig struct {
	URL         string
	KeyPrefix   string
	SnapshotTTL time.Duration
}

type AnalyzerConfig struct {
	RPCURL              string
	Commitment          rpc.CommitmentType
	WatchProgramID      solana.PublicKey
	DEXProgramIDs       []solana.PublicKey
	BatchSize           int
	UpdateInterval      time.Duration
	RetryBackoff        time.Duration
	RPCMaxRetries       int
	RPCRetryBaseDelay   time.Duration
	RPCRetryMaxDelay    time.Duration
	FetchConcurrency    int
	AggregationWorkers  int
	LeaderboardCap      int
	ChunkSize           int
	WalletHistoryLimit  int
	TradeAmountDecimals uint32
	// MetricsAddr is empty when the prometheus listener is disabled.
	MetricsAddr  string
	Redis        RedisConfig
	DBDSN        string
	KafkaBrokers []string
	KafkaTopic   string
	Log          LogConfig
}

type APIServerConfig struct {
	ListenAddr        string
	DBDSN             string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	AllowedOrigins    []string
	Redis             RedisConfig
	SnapshotCacheSize int
	SnapshotCacheTTL  time.Duration
	PushInterval      time.Duration
	DefaultLimit      int
	EnableWebsocket   bool
	Log               LogConfig
}

var (
	// SPL Token program; every swap touches it.
	defaultWatchProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	DefaultRaydiumAMMID   = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	DefaultOrcaSwapID     = solana.MustPublicKeyFromBase58("9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP")
)

const (
	defaultRedisURL   = "redis://127.0.0.1:6379/0"
	defaultKafkaTopic = "wallet-leaderboard"
)

func LoadAnalyzerConfig() (AnalyzerConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return AnalyzerConfig{}, err
	}

	commitment, err := envCommitment("SOLANA_COMMITMENT", rpc.CommitmentConfirmed)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	watchProgramID, err := envPubkey("ANALYZER_WATCH_PROGRAM_ID", defaultWatchProgramID)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	dexProgramIDs, err := envPubkeyList("ANALYZER_DEX_PROGRAM_IDS", []solana.PublicKey{DefaultRaydiumAMMID, DefaultOrcaSwapID})
	if err != nil {
		return AnalyzerConfig{}, err
	}

	batchSize, err := envInt("ANALYZER_BATCH_SIZE", 100)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	updateInterval, err := envDuration("ANALYZER_UPDATE_INTERVAL", 5*time.Second)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	retryBackoff, err := envDuration("ANALYZER_RETRY_BACKOFF", time.Second)
	if err != nil {
		return AnalyzerConfig{}, err
	}

	rpcMaxRetries, err := envInt("ANALYZER_RPC_MAX_RETRIES", 3)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	rpcRetryBaseDelay, err := envDuration("ANALYZER_RPC_RETRY_BASE_DELAY", 500*time.Millisecond)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	rpcRetryMaxDelay, err := envDuration("ANALYZER_RPC_RETRY_MAX_DELAY", 10*time.Second)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	if rpcRetryMaxDelay < rpcRetryBaseDelay {
		return AnalyzerConfig{}, fmt.Errorf("invalid ANALYZER_RPC_RETRY_MAX_DELAY: must be >= ANALYZER_RPC_RETRY_BASE_DELAY")
	}

	fetchConcurrency, err := envInt("ANALYZER_FETCH_CONCURRENCY", 8)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	aggregationWorkers, err := envInt("ANALYZER_AGGREGATION_WORKERS", 8)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	leaderboardCap, err := envInt("ANALYZER_LEADERBOARD_CAP", 100)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	chunkSize, err := envInt("ANALYZER_CHUNK_SIZE", 100)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	walletHistoryLimit, err := envInt("ANALYZER_WALLET_HISTORY_LIMIT", 100)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	tradeAmountDecimals, err := envUint32("ANALYZER_TRADE_AMOUNT_DECIMALS", 9)
	if err != nil {
		return AnalyzerConfig{}, err
	}
	if tradeAmountDecimals > 18 {
		return AnalyzerConfig{}, fmt.Errorf("invalid ANALYZER_TRADE_AMOUNT_DECIMALS: must be <= 18")
	}

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return AnalyzerConfig{}, err
	}

	metricsAddr := envOrDefault("ANALYZER_METRICS_ADDR", ":9102")
	if strings.EqualFold(metricsAddr, "off") {
		metricsAddr = ""
	}

	return AnalyzerConfig{
		RPCURL:              envOrDefault("SOLANA_RPC_URL", rpc.MainNetBeta_RPC),
		Commitment:          commitment,
		WatchProgramID:      watchProgramID,
		DEXProgramIDs:       dexProgramIDs,
		BatchSize:           batchSize,
		UpdateInterval:      updateInterval,
		RetryBackoff:        retryBackoff,
		RPCMaxRetries:       rpcMaxRetries,
		RPCRetryBaseDelay:   rpcRetryBaseDelay,
		RPCRetryMaxDelay:    rpcRetryMaxDelay,
		FetchConcurrency:    fetchConcurrency,
		AggregationWorkers:  aggregationWorkers,
		LeaderboardCap:      leaderboardCap,
		ChunkSize:           chunkSize,
		WalletHistoryLimit:  walletHistoryLimit,
		TradeAmountDecimals: tradeAmountDecimals,
		MetricsAddr:         metricsAddr,
		Redis:               redisCfg,
		DBDSN:               envOrDefault("ANALYZER_DB_DSN", ""),
		KafkaBrokers:        parseCSVEnv(envOrDefault("KAFKA_BROKERS", ""), nil),
		KafkaTopic:          envOrDefault("KAFKA_TOPIC", defaultKafkaTopic),
		Log:                 buildLogConfig("ANALYZER", "analyzer"),
	}, nil
}

func LoadAPIServerConfig() (APIServerConfig, error) {
	if err := ensureRuntimeConfigLoaded(); err != nil {
		return APIServerConfig{}, err
	}

	// The archive is optional; the api-server reads the cache first.
	dbDSN := envOrDefault("API_SERVER_DB_DSN", envOrDefault("ANALYZER_DB_DSN", ""))

	readTimeout, err := envDuration("API_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	writeTimeout, err := envDuration("API_SERVER_WRITE_TIMEOUT", 15*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	idleTimeout, err := envDuration("API_SERVER_IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}

	allowedOrigins := parseCSVEnv(
		envOrDefault("API_SERVER_ALLOWED_ORIGINS", "*"),
		[]string{"*"},
	)

	redisCfg, err := loadRedisConfig()
	if err != nil {
		return APIServerConfig{}, err
	}

	cacheSize, err := envInt("API_SERVER_SNAPSHOT_CACHE_SIZE", 1024)
	if err != nil {
		return APIServerConfig{}, err
	}
	cacheTTL, err := envDuration("API_SERVER_SNAPSHOT_CACHE_TTL", 5*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	pushInterval, err := envDuration("API_SERVER_PUSH_INTERVAL", 2*time.Second)
	if err != nil {
		return APIServerConfig{}, err
	}
	defaultLimit, err := envInt("API_SERVER_DEFAULT_LIMIT", 100)
	if err != nil {
		return APIServerConfig{}, err
	}
	enableWebsocket, err := envBool("API_SERVER_ENABLE_WEBSOCKET", true)
	if err != nil {
		return APIServerConfig{}, err
	}

	return APIServerConfig{
		ListenAddr:        envOrDefault("API_SERVER_LISTEN_ADDR", ":8080"),
		DBDSN:             dbDSN,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		AllowedOrigins:    allowedOrigins,
		Redis:             redisCfg,
		SnapshotCacheSize: cacheSize,
		SnapshotCacheTTL:  cacheTTL,
		PushInterval:      pushInterval,
		DefaultLimit:      defaultLimit,
		EnableWebsocket:   enableWebsocket,
		Log:               buildLogConfig("API_SERVER", "api-server"),
	}, nil
}

func loadRedisConfig() (RedisConfig, error) {
	ttl, err := envDuration("SNAPSHOT_TTL", time.Hour)
	if err != nil {
		return RedisConfig{}, err
	}
	return RedisConfig{
		URL:         envOrDefault("REDIS_URL", defaultRedisURL),
		KeyPrefix:   envOrDefault("REDIS_KEY_PREFIX", ""),
		SnapshotTTL: ttl,
	}, nil
}

func buildLogConfig(prefix string, serviceName string) LogConfig {
	level := envOrDefault(prefix+"_LOG_LEVEL", envOrDefault("LOG_LEVEL", "info"))
	format := envOrDefault(prefix+"_LOG_FORMAT", envOrDefault("LOG_FORMAT", "text"))
	output := envOrDefault(prefix+"_LOG_OUTPUT", envOrDefault("LOG_OUTPUT", "console"))
	filePath := envOrDefault(prefix+"_LOG_FILE", envOrDefault("LOG_FILE", filepath.Join("logs", serviceName+".log")))

	return LogConfig{
		Level:    level,
		Format:   format,
		Output:   output,
		FilePath: filePath,
	}
}
