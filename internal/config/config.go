package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"emittr/connectfour/internal/game"
)

type Config struct {
	Addr          string        `mapstructure:"ADDR"`
	Port          string        `mapstructure:"PORT"`
	BoardWidth    int           `mapstructure:"BOARD_WIDTH"`
	BoardHeight   int           `mapstructure:"BOARD_HEIGHT"`
	IdleTimeout   time.Duration `mapstructure:"IDLE_TIMEOUT"`
	SweepInterval time.Duration `mapstructure:"SWEEP_INTERVAL"`
	PostgresURL   string        `mapstructure:"POSTGRES_URL"`
	RedisURL      string        `mapstructure:"REDIS_URL"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	SnapshotTTL   time.Duration `mapstructure:"SNAPSHOT_TTL"`
	KafkaBrokers  string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic    string        `mapstructure:"KAFKA_TOPIC"`
	KafkaGroup    string        `mapstructure:"KAFKA_GROUP"`
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	StatsInterval time.Duration `mapstructure:"STATS_INTERVAL"`
}

var defaults = map[string]any{
	"ADDR":           ":8080",
	"PORT":           "",
	"BOARD_WIDTH":    game.DefaultColumns,
	"BOARD_HEIGHT":   game.DefaultRows,
	"IDLE_TIMEOUT":   "30m",
	"SWEEP_INTERVAL": "30s",
	"POSTGRES_URL":   "",
	"REDIS_URL":      "",
	"REDIS_PASSWORD": "",
	"SNAPSHOT_TTL":   "24h",
	"KAFKA_BROKERS":  "",
	"KAFKA_TOPIC":    "game-events",
	"KAFKA_GROUP":    "analytics-consumer",
	"LOG_LEVEL":      "info",
	"STATS_INTERVAL": "30s",
}

// Load reads configuration from the environment, falling back to envFile
// (when it exists) and then to defaults.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if envFile != "" {
		fileVals, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, errors.Wrapf(err, "read %s", envFile)
		default:
			for k, val := range fileVals {
				v.SetDefault(strings.ToUpper(k), val)
			}
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if cfg.Port != "" {
		cfg.Addr = ":" + cfg.Port
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.BoardWidth < game.WinLength || c.BoardHeight < game.WinLength {
		return errors.Errorf("board %dx%d is too small, both sides need at least %d", c.BoardWidth, c.BoardHeight, game.WinLength)
	}
	if c.IdleTimeout < 0 || c.SweepInterval < 0 {
		return errors.New("timeouts must not be negative")
	}
	if c.StatsInterval <= 0 {
		return errors.New("STATS_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
