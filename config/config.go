package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultSlippageBufferBps   = 50
	defaultOnchainToleranceBps = 20
)

// Config es la configuración completa del keeper.
type Config struct {
	Keeper     KeeperConfig     `yaml:"keeper"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	OrderStore OrderStoreConfig `yaml:"order_store"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// KeeperConfig controla el loop de ejecución.
type KeeperConfig struct {
	ID                    string `yaml:"id"` // vacío = pubkey del keypair
	PollIntervalSeconds   int    `yaml:"poll_interval_seconds"`
	FetchLimit            int    `yaml:"fetch_limit"`
	FetchTimeoutSeconds   int    `yaml:"fetch_timeout_seconds"`
	ExecuteTimeoutSeconds int    `yaml:"execute_timeout_seconds"`
	ClaimTTLSeconds       int    `yaml:"claim_ttl_seconds"`

	// Buffers del pre-check conservador. Duplican constantes del programa on-chain.
	// Punteros para que un 0 explícito no se confunda con "no configurado".
	SlippageBufferBps   *int64 `yaml:"slippage_buffer_bps"`
	OnchainToleranceBps *int64 `yaml:"onchain_tolerance_bps"`

	SingleComputeUnits  uint32 `yaml:"single_compute_units"`
	PartialComputeUnits uint32 `yaml:"partial_compute_units"`

	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
	FailureCooldownMinutes int    `yaml:"failure_cooldown_minutes"`
	MaxTotalFailures       int    `yaml:"max_total_failures"` // 0 = sin hard stop
	StopFile               string `yaml:"stop_file"`
}

// LedgerConfig apunta al nodo RPC y al programa del mercado.
type LedgerConfig struct {
	RPCURL             string  `yaml:"rpc_url"`
	ProgramID          string  `yaml:"program_id"`
	Keypair            string  `yaml:"keypair"` // ruta a JSON de solana-keygen o secreto base58
	RatePerSec         float64 `yaml:"rate_per_sec"`
	ConfirmTimeoutSecs int     `yaml:"confirm_timeout_seconds"`
	SkipPreflight      bool    `yaml:"skip_preflight"`
}

// OrderStoreConfig contiene la URL del dark pool.
type OrderStoreConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// StorageConfig controla dónde se persiste el journal.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	setDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval devuelve el intervalo entre ticks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Keeper.PollIntervalSeconds) * time.Second
}

// FetchTimeout es el límite de cada lectura del order store.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Keeper.FetchTimeoutSeconds) * time.Second
}

// ExecuteTimeout es el límite de envío + confirmación de una orden.
func (c *Config) ExecuteTimeout() time.Duration {
	return time.Duration(c.Keeper.ExecuteTimeoutSeconds) * time.Second
}

// ClaimTTL es la vida de un claim sobre una orden.
func (c *Config) ClaimTTL() time.Duration {
	return time.Duration(c.Keeper.ClaimTTLSeconds) * time.Second
}

// FailureCooldown es la pausa tras MaxConsecutiveFailures fallos seguidos.
func (c *Config) FailureCooldown() time.Duration {
	return time.Duration(c.Keeper.FailureCooldownMinutes) * time.Minute
}

// ConfirmTimeout es la espera máxima por la confirmación de una transacción.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Ledger.ConfirmTimeoutSecs) * time.Second
}

// SlippageBufferBps es el margen propio del keeper sobre el límite de la orden.
func (c *Config) SlippageBufferBps() int64 {
	return valueOr(c.Keeper.SlippageBufferBps, defaultSlippageBufferBps)
}

// OnchainToleranceBps es la banda que el programa tolera sobre el límite.
func (c *Config) OnchainToleranceBps() int64 {
	return valueOr(c.Keeper.OnchainToleranceBps, defaultOnchainToleranceBps)
}

func valueOr(p *int64, def int64) int64 {
	if p == nil {
		return def
	}
	return *p
}

// StoreTimeout es el timeout HTTP del cliente del order store.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.OrderStore.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("KEEPER_RPC_URL"); v != "" {
		cfg.Ledger.RPCURL = v
	}
	if v := os.Getenv("KEEPER_KEYPAIR"); v != "" {
		cfg.Ledger.Keypair = v
	}
	if v := os.Getenv("KEEPER_PROGRAM_ID"); v != "" {
		cfg.Ledger.ProgramID = v
	}
	if v := os.Getenv("ORDER_STORE_URL"); v != "" {
		cfg.OrderStore.BaseURL = v
	}
	if v := os.Getenv("KEEPER_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("KEEPER_ID"); v != "" {
		cfg.Keeper.ID = v
	}
	if v := os.Getenv("KEEPER_SLIPPAGE_BUFFER_BPS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("KEEPER_SLIPPAGE_BUFFER_BPS: %w", err)
		}
		cfg.Keeper.SlippageBufferBps = &n
	}
	if v := os.Getenv("KEEPER_ONCHAIN_TOLERANCE_BPS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("KEEPER_ONCHAIN_TOLERANCE_BPS: %w", err)
		}
		cfg.Keeper.OnchainToleranceBps = &n
	}
	return nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	k := &cfg.Keeper
	if k.PollIntervalSeconds <= 0 {
		k.PollIntervalSeconds = 5
	}
	if k.FetchLimit <= 0 {
		k.FetchLimit = 100
	}
	if k.FetchTimeoutSeconds <= 0 {
		k.FetchTimeoutSeconds = 10
	}
	if k.ExecuteTimeoutSeconds <= 0 {
		k.ExecuteTimeoutSeconds = 90
	}
	if k.ClaimTTLSeconds <= 0 {
		k.ClaimTTLSeconds = 120
	}
	if k.SlippageBufferBps == nil {
		v := int64(defaultSlippageBufferBps)
		k.SlippageBufferBps = &v
	}
	if k.OnchainToleranceBps == nil {
		v := int64(defaultOnchainToleranceBps)
		k.OnchainToleranceBps = &v
	}
	if k.SingleComputeUnits == 0 {
		k.SingleComputeUnits = 400_000
	}
	if k.PartialComputeUnits == 0 {
		k.PartialComputeUnits = 1_400_000
	}
	if k.MaxConsecutiveFailures == 0 {
		k.MaxConsecutiveFailures = 5
	}
	if k.FailureCooldownMinutes <= 0 {
		k.FailureCooldownMinutes = 5
	}
	if k.StopFile == "" {
		k.StopFile = "STOP_KEEPER"
	}
	if cfg.Ledger.RPCURL == "" {
		cfg.Ledger.RPCURL = "http://127.0.0.1:8899"
	}
	if cfg.Ledger.RatePerSec <= 0 {
		cfg.Ledger.RatePerSec = 10
	}
	if cfg.Ledger.ConfirmTimeoutSecs <= 0 {
		cfg.Ledger.ConfirmTimeoutSecs = 60
	}
	if cfg.OrderStore.BaseURL == "" {
		cfg.OrderStore.BaseURL = "http://127.0.0.1:3000"
	}
	if cfg.OrderStore.TimeoutSeconds <= 0 {
		cfg.OrderStore.TimeoutSeconds = 10
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "keeper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if v := c.SlippageBufferBps(); v < 0 || v >= 10_000 {
		return fmt.Errorf("keeper.slippage_buffer_bps %d out of range", v)
	}
	if v := c.OnchainToleranceBps(); v < 0 || v >= 10_000 {
		return fmt.Errorf("keeper.onchain_tolerance_bps %d out of range", v)
	}
	return nil
}
