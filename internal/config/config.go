package config

import (
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all monitor configuration
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc"`
	Loop      LoopConfig      `mapstructure:"loop"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	API       APIConfig       `mapstructure:"api"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Storage   StorageConfig   `mapstructure:"storage"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Modes     ModesConfig     `mapstructure:"modes"`
}

type RPCConfig struct {
	Endpoints              []string `mapstructure:"endpoints"`
	TimeoutSec             float64  `mapstructure:"timeout_sec"`
	MaxRetries             int      `mapstructure:"max_retries"`
	CircuitBreakerFailures int      `mapstructure:"circuit_breaker_failures"`
	CircuitBreakerPauseSec float64  `mapstructure:"circuit_breaker_pause_sec"`
	RetryJitterBase        float64  `mapstructure:"retry_jitter_base"`
	RetryJitterMax         float64  `mapstructure:"retry_jitter_max"`
	FixturesDir            string   `mapstructure:"fixtures_dir"`
}

type LoopConfig struct {
	TxRefreshSeconds         int `mapstructure:"tx_refresh_seconds"`
	TxLookback               int `mapstructure:"tx_lookback"`
	ReportRefreshSeconds     int `mapstructure:"report_refresh_seconds"`
	ReportMinIntervalSeconds int `mapstructure:"report_min_interval_seconds"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds"`
	MaxConcurrency           int `mapstructure:"max_concurrency"`
}

type AlertingConfig struct {
	ProfitThreshold   float64 `mapstructure:"profit_threshold"`
	GainFilter        float64 `mapstructure:"gain_filter"`
	WinRateFilter     float64 `mapstructure:"win_rate_filter"`
	CooldownSec       int     `mapstructure:"cooldown_sec"`
	NewWalletGain     float64 `mapstructure:"new_wallet_gain"`
	NewWalletMinTrx   int     `mapstructure:"new_wallet_min_trx"`
	WatchlistMaxSize  int     `mapstructure:"watchlist_max_size"`
	AlertBatchSize    int     `mapstructure:"alert_batch_size"`
	StateTTLSeconds   int     `mapstructure:"state_ttl_seconds"`
	MaxSeenSignatures int     `mapstructure:"max_seen_signatures"`
	DebugForceAlert   bool    `mapstructure:"debug_force_alert"`
}

type PricingConfig struct {
	BalanceTolerancePct float64 `mapstructure:"balance_tolerance_pct"`
	PriceTTLSeconds     int     `mapstructure:"price_ttl_seconds"`
	BirdeyeAPIKey       string  `mapstructure:"birdeye_api_key"`
	SolUsdFallback      float64 `mapstructure:"sol_usd_fallback"`
}

type APIConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	HealthPort     int    `mapstructure:"health_port"`
	RateLimitFree  int    `mapstructure:"rate_limit_free"`
	RateLimitPro   int    `mapstructure:"rate_limit_pro"`
	RateLimitElite int    `mapstructure:"rate_limit_elite"`
}

type BillingConfig struct {
	FakeCheckoutEnabled bool `mapstructure:"fake_checkout_enabled"`
}

type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

type StorageConfig struct {
	StateDBPath      string `mapstructure:"state_db_path"`
	PriceCacheDBPath string `mapstructure:"price_cache_db_path"`
	APIKeysDBPath    string `mapstructure:"api_keys_db_path"`
	CopyTraderDBPath string `mapstructure:"copy_trader_db_path"`
	SeedFile         string `mapstructure:"seed_file"`
	DashboardCSV     string `mapstructure:"dashboard_csv"`
	ReportMD         string `mapstructure:"report_md"`
	ReportDir        string `mapstructure:"report_dir"`
}

type WebSocketConfig struct {
	Enabled          bool   `mapstructure:"enabled"`
	URL              string `mapstructure:"url"`
	ReconnectDelayMs int    `mapstructure:"reconnect_delay_ms"`
	PingIntervalMs   int    `mapstructure:"ping_interval_ms"`
}

type ModesConfig struct {
	DryRun               bool   `mapstructure:"dry_run"`
	DaasMode             bool   `mapstructure:"daas_mode"`
	CopyTraderEnabled    bool   `mapstructure:"copy_trader_enabled"`
	IncludePaywallPrompt bool   `mapstructure:"include_paywall_prompt"`
	RPCMode              string `mapstructure:"rpc_mode"` // "live" or "fixtures"
}

// envBindings maps config keys to the environment variables operators set
var envBindings = map[string]string{
	"rpc.endpoints":                   "RPC_ENDPOINTS",
	"rpc.timeout_sec":                 "RPC_TIMEOUT_SEC",
	"rpc.max_retries":                 "RPC_MAX_RETRIES",
	"rpc.circuit_breaker_failures":    "RPC_CIRCUIT_BREAKER_FAILURES",
	"rpc.circuit_breaker_pause_sec":   "RPC_CIRCUIT_BREAKER_PAUSE_SEC",
	"rpc.retry_jitter_base":           "RPC_RETRY_JITTER_BASE",
	"rpc.retry_jitter_max":            "RPC_RETRY_JITTER_MAX",
	"rpc.fixtures_dir":                "FIXTURES_DIR",
	"loop.tx_refresh_seconds":         "TX_REFRESH_SECONDS",
	"loop.tx_lookback":                "TX_LOOKBACK",
	"loop.report_refresh_seconds":     "REPORT_REFRESH_SECONDS",
	"loop.heartbeat_interval_seconds": "HEARTBEAT_INTERVAL_SECONDS",
	"loop.max_concurrency":            "MAX_CONCURRENCY",
	"alerting.profit_threshold":       "PROFIT_ALERT_THRESHOLD",
	"alerting.gain_filter":            "GAIN_FILTER",
	"alerting.win_rate_filter":        "WIN_RATE_FILTER",
	"alerting.cooldown_sec":           "ALERT_COOLDOWN_SEC",
	"alerting.new_wallet_gain":        "NEW_WALLET_GAIN",
	"alerting.new_wallet_min_trx":     "NEW_WALLET_MIN_TRX",
	"alerting.watchlist_max_size":     "WATCHLIST_MAX_SIZE",
	"alerting.alert_batch_size":       "ALERT_BATCH_SIZE",
	"alerting.state_ttl_seconds":      "STATE_TTL_SECONDS",
	"alerting.max_seen_signatures":    "MAX_SEEN_SIGNATURES",
	"alerting.debug_force_alert":      "DEBUG_FORCE_ALERT",
	"pricing.balance_tolerance_pct":   "BALANCE_TOLERANCE_PCT",
	"pricing.birdeye_api_key":         "BIRDEYE_API_KEY",
	"pricing.sol_usd_fallback":        "SOL_USD_FALLBACK",
	"api.host":                        "API_HOST",
	"api.port":                        "API_PORT",
	"api.health_port":                 "HEALTH_PORT",
	"api.rate_limit_free":             "RATE_LIMIT_FREE",
	"api.rate_limit_pro":              "RATE_LIMIT_PRO",
	"api.rate_limit_elite":            "RATE_LIMIT_ELITE",
	"billing.fake_checkout_enabled":   "FAKE_CHECKOUT_ENABLED",
	"webhook.url":                     "DISCORD_WEBHOOK",
	"websocket.enabled":               "WS_ENABLED",
	"websocket.url":                   "WS_URL",
	"modes.dry_run":                   "DRY_RUN",
	"modes.daas_mode":                 "DAAS_MODE",
	"modes.copy_trader_enabled":       "COPY_TRADER_ENABLED",
	"modes.include_paywall_prompt":    "INCLUDE_PAYWALL_PROMPT",
	"modes.rpc_mode":                  "RPC_MODE",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("rpc.endpoints", []string{"https://api.mainnet-beta.solana.com"})
	v.SetDefault("rpc.timeout_sec", 2.5)
	v.SetDefault("rpc.max_retries", 3)
	v.SetDefault("rpc.circuit_breaker_failures", 3)
	v.SetDefault("rpc.circuit_breaker_pause_sec", 5.0)
	v.SetDefault("rpc.retry_jitter_base", 0.5)
	v.SetDefault("rpc.retry_jitter_max", 0.2)
	v.SetDefault("rpc.fixtures_dir", "testdata/fixtures")
	v.SetDefault("loop.tx_refresh_seconds", 60)
	v.SetDefault("loop.tx_lookback", 20)
	v.SetDefault("loop.report_refresh_seconds", 600)
	v.SetDefault("loop.report_min_interval_seconds", 600)
	v.SetDefault("loop.heartbeat_interval_seconds", 3600)
	v.SetDefault("loop.max_concurrency", 10)
	v.SetDefault("alerting.profit_threshold", 2.0)
	v.SetDefault("alerting.gain_filter", 5.0)
	v.SetDefault("alerting.win_rate_filter", 80.0)
	v.SetDefault("alerting.cooldown_sec", 300)
	v.SetDefault("alerting.new_wallet_gain", 7.0)
	v.SetDefault("alerting.new_wallet_min_trx", 12)
	v.SetDefault("alerting.watchlist_max_size", 100)
	v.SetDefault("alerting.alert_batch_size", 10)
	v.SetDefault("alerting.state_ttl_seconds", 3600)
	v.SetDefault("alerting.max_seen_signatures", 50000)
	v.SetDefault("alerting.debug_force_alert", false)
	v.SetDefault("pricing.balance_tolerance_pct", 10.0)
	v.SetDefault("pricing.price_ttl_seconds", 60)
	v.SetDefault("pricing.sol_usd_fallback", 150.0)
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8002)
	v.SetDefault("api.health_port", 8001)
	v.SetDefault("api.rate_limit_free", 10)
	v.SetDefault("api.rate_limit_pro", 1000)
	v.SetDefault("api.rate_limit_elite", 10000)
	v.SetDefault("billing.fake_checkout_enabled", true)
	v.SetDefault("storage.state_db_path", "data/monitor_state.db")
	v.SetDefault("storage.price_cache_db_path", "data/token_price_cache.db")
	v.SetDefault("storage.api_keys_db_path", "data/daas_api_keys.db")
	v.SetDefault("storage.copy_trader_db_path", "data/copy_trader.db")
	v.SetDefault("storage.seed_file", "data/wallets_seed.json")
	v.SetDefault("storage.dashboard_csv", "data/wallet_dashboard_live.csv")
	v.SetDefault("storage.report_md", "data/wallet_report.md")
	v.SetDefault("storage.report_dir", "data/reports")
	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.reconnect_delay_ms", 2000)
	v.SetDefault("websocket.ping_interval_ms", 15000)
	v.SetDefault("modes.dry_run", true)
	v.SetDefault("modes.daas_mode", true)
	v.SetDefault("modes.copy_trader_enabled", false)
	v.SetDefault("modes.include_paywall_prompt", true)
	v.SetDefault("modes.rpc_mode", "live")
}

// Manager handles config loading and hot-reload
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager loads config from an optional YAML file with env overrides.
// An empty path skips the file and uses defaults plus environment only.
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, err
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		config: cfg,
		viper:  v,
	}

	if configPath != "" {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			log.Info().Str("file", e.Name).Msg("config file changed, reloading")
			m.reload()
		})
	}

	return m, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	// RPC_ENDPOINTS arrives comma-separated when set through the environment
	if len(cfg.RPC.Endpoints) == 1 && strings.Contains(cfg.RPC.Endpoints[0], ",") {
		parts := strings.Split(cfg.RPC.Endpoints[0], ",")
		cfg.RPC.Endpoints = cfg.RPC.Endpoints[:0]
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cfg.RPC.Endpoints = append(cfg.RPC.Endpoints, p)
			}
		}
	}
	if len(cfg.RPC.Endpoints) == 0 {
		cfg.RPC.Endpoints = []string{"https://api.mainnet-beta.solana.com"}
	}
	return &cfg, nil
}

// Get returns the current config (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetAlerting returns alerting config (most frequently accessed)
func (m *Manager) GetAlerting() AlertingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Alerting
}

// SetOnChange registers a callback for config changes
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := unmarshal(m.viper)
	if err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}

	m.config = cfg
	if m.onChange != nil {
		m.onChange(cfg)
	}
}

// TxRefresh returns the scan cadence as a duration
func (m *Manager) TxRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Loop.TxRefreshSeconds) * time.Second
}

// RPCTimeout returns the per-attempt RPC timeout as a duration
func (m *Manager) RPCTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.RPC.TimeoutSec * float64(time.Second))
}

// Cooldown returns the per-wallet alert cooldown as a duration
func (m *Manager) Cooldown() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Alerting.CooldownSec) * time.Second
}
