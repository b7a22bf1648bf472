package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MaxResolveAttempts es el tope de intentos por mercado y pasada. Con la base por
// defecto la última espera ya supera los 8 minutos.
const MaxResolveAttempts = 10

// Config es la configuración completa del keeper.
type Config struct {
	Resolver ResolverConfig `yaml:"resolver"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Caller   CallerConfig   `yaml:"caller"`
	Telegram TelegramConfig `yaml:"telegram"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
}

// ResolverConfig controla las cadencias y la política de reintentos.
type ResolverConfig struct {
	QuickIntervalSeconds int `yaml:"quick_interval_seconds"` // revisa expirados sobre el snapshot
	FullIntervalSeconds  int `yaml:"full_interval_seconds"`  // recarga mercados del contrato
	CooldownSeconds      int `yaml:"cooldown_seconds"`       // mínimo entre inicios de pasada
	MaxAttempts          int `yaml:"max_attempts"`
	BaseBackoffMs        int `yaml:"base_backoff_ms"` // espera = 2^intento × base
	Workers              int `yaml:"workers"`         // mercados en paralelo (0 = todos)
	LockTTLSeconds       int `yaml:"lock_ttl_seconds"`
}

// GatewayConfig apunta al gateway HTTP del contrato.
type GatewayConfig struct {
	BaseURL        string  `yaml:"base_url"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	PriceDecimals  int     `yaml:"price_decimals"` // escala de los i128 del oráculo
}

// CallerConfig es la identidad con la que se firman las resoluciones.
type CallerConfig struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
}

// TelegramConfig controla las alertas de mercados resueltos.
type TelegramConfig struct {
	Enabled bool    `yaml:"enabled"`
	Token   string  `yaml:"token"` // mejor vía TELEGRAM_BOT_TOKEN
	ChatIDs []int64 `yaml:"chat_ids"`
	Listen  bool    `yaml:"listen"` // atiende /start /stop /status
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// RedisConfig activa el lock distribuido. Addr vacío = lock en memoria.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
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

	return &cfg, nil
}

// Validate comprueba lo mínimo para poder resolver mercados.
func (c *Config) Validate() error {
	if c.Caller.Address == "" {
		return fmt.Errorf("config: caller.address is required (or CALLER_ADDRESS)")
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("config: telegram.enabled requires a token (or TELEGRAM_BOT_TOKEN)")
	}
	if c.Resolver.MaxAttempts > MaxResolveAttempts {
		return fmt.Errorf("config: resolver.max_attempts (%d) must be <= %d", c.Resolver.MaxAttempts, MaxResolveAttempts)
	}
	if c.Resolver.FullIntervalSeconds < c.Resolver.QuickIntervalSeconds {
		return fmt.Errorf("config: full_interval_seconds (%d) must be >= quick_interval_seconds (%d)",
			c.Resolver.FullIntervalSeconds, c.Resolver.QuickIntervalSeconds)
	}
	return nil
}

// QuickInterval devuelve el intervalo del trigger rápido.
func (c *Config) QuickInterval() time.Duration {
	return time.Duration(c.Resolver.QuickIntervalSeconds) * time.Second
}

// FullInterval devuelve el intervalo de recarga completa.
func (c *Config) FullInterval() time.Duration {
	return time.Duration(c.Resolver.FullIntervalSeconds) * time.Second
}

// Cooldown devuelve el mínimo entre inicios de pasada.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Resolver.CooldownSeconds) * time.Second
}

// BaseBackoff devuelve la base del backoff exponencial.
func (c *Config) BaseBackoff() time.Duration {
	return time.Duration(c.Resolver.BaseBackoffMs) * time.Millisecond
}

// LockTTL devuelve el TTL del lock por mercado.
func (c *Config) LockTTL() time.Duration {
	return time.Duration(c.Resolver.LockTTLSeconds) * time.Second
}

// GatewayTimeout devuelve el timeout HTTP del gateway.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("GATEWAY_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("CALLER_ADDRESS"); v != "" {
		cfg.Caller.Address = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_IDS"); v != "" {
		ids, err := parseChatIDs(v)
		if err != nil {
			return err
		}
		cfg.Telegram.ChatIDs = ids
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	return nil
}

// parseChatIDs acepta "123,-456".
func parseChatIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_IDS: %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Resolver.QuickIntervalSeconds <= 0 {
		cfg.Resolver.QuickIntervalSeconds = 10
	}
	if cfg.Resolver.FullIntervalSeconds <= 0 {
		cfg.Resolver.FullIntervalSeconds = 30
	}
	if cfg.Resolver.CooldownSeconds < 0 {
		cfg.Resolver.CooldownSeconds = 0
	}
	if cfg.Resolver.MaxAttempts <= 0 {
		cfg.Resolver.MaxAttempts = 3
	}
	if cfg.Resolver.BaseBackoffMs <= 0 {
		cfg.Resolver.BaseBackoffMs = 1000
	}
	if cfg.Resolver.LockTTLSeconds <= 0 {
		cfg.Resolver.LockTTLSeconds = 120
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = "http://localhost:8787"
	}
	if cfg.Gateway.RatePerSec <= 0 {
		cfg.Gateway.RatePerSec = 20
	}
	if cfg.Gateway.TimeoutSeconds <= 0 {
		cfg.Gateway.TimeoutSeconds = 30
	}
	if cfg.Gateway.PriceDecimals <= 0 {
		cfg.Gateway.PriceDecimals = 14
	}
	if cfg.Caller.Label == "" {
		cfg.Caller.Label = "keeper"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "marketkeeper.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
