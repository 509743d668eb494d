// Package config loads server settings from .env, an optional YAML file and
// the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env      string         `yaml:"env" env:"APP_ENV"`
	LogLevel string         `yaml:"log_level" env:"LOG_LEVEL"`
	HTTP     HTTPConfig     `yaml:"http"`
	Duel     DuelConfig     `yaml:"duel"`
	Solo     SoloConfig     `yaml:"solo"`
	Auth     AuthConfig     `yaml:"auth"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Keywords KeywordsConfig `yaml:"keywords"`
	// Friends seeds the friend graph as "userA:userB" pairs.
	Friends []string `yaml:"friends" env:"FRIENDS"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`
	OriginPatterns  []string      `yaml:"origin_patterns" env:"WS_ORIGIN_PATTERNS"`
	PingInterval    time.Duration `yaml:"ping_interval" env:"WS_PING_INTERVAL"`
}

type DuelConfig struct {
	InviteTTL      time.Duration `yaml:"invite_ttl" env:"DUEL_INVITE_TTL"`
	MatchDuration  time.Duration `yaml:"match_duration" env:"DUEL_MATCH_DURATION"`
	// ScoreIncrement is at least 1; zero means unset.
	ScoreIncrement int           `yaml:"score_increment" env:"DUEL_SCORE_INCREMENT"`
	ReapGrace      time.Duration `yaml:"reap_grace" env:"DUEL_REAP_GRACE"`
	Mailbox        int           `yaml:"mailbox" env:"DUEL_MAILBOX"`
	EventTimeout   time.Duration `yaml:"event_timeout" env:"DUEL_EVENT_TIMEOUT"`
}

type SoloConfig struct {
	MaxTries int           `yaml:"max_tries" env:"SOLO_MAX_TRIES"`
	IdleTTL  time.Duration `yaml:"idle_ttl" env:"SOLO_IDLE_TTL"`
}

type AuthConfig struct {
	Secret string `yaml:"secret" env:"AUTH_SECRET"`
	Issuer string `yaml:"issuer" env:"AUTH_ISSUER"`
}

// PostgresConfig is optional; an empty DSN keeps everything in memory.
type PostgresConfig struct {
	DSN      string `yaml:"dsn" env:"DATABASE_URL"`
	MaxConns int32  `yaml:"max_conns" env:"DATABASE_MAX_CONNS"`
}

// RedisConfig is optional; an empty Addr disables the ranking.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type KeywordsConfig struct {
	// Source is "static" or "postgres".
	Source string   `yaml:"source" env:"KEYWORDS_SOURCE"`
	Words  []string `yaml:"words" env:"KEYWORDS_WORDS"`
	Seed   int64    `yaml:"seed" env:"KEYWORDS_SEED"`
}

// Load builds the config. path may be empty or point at a missing file.
func Load(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 5 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 10 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 120 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.PingInterval == 0 {
		c.HTTP.PingInterval = 30 * time.Second
	}

	if c.Duel.InviteTTL == 0 {
		c.Duel.InviteTTL = 60 * time.Second
	}
	if c.Duel.MatchDuration == 0 {
		c.Duel.MatchDuration = 180 * time.Second
	}
	if c.Duel.ScoreIncrement == 0 {
		c.Duel.ScoreIncrement = 1
	}
	if c.Duel.ReapGrace == 0 {
		c.Duel.ReapGrace = 30 * time.Second
	}
	if c.Duel.Mailbox == 0 {
		c.Duel.Mailbox = 64
	}
	if c.Duel.EventTimeout == 0 {
		c.Duel.EventTimeout = 5 * time.Second
	}

	if c.Solo.MaxTries == 0 {
		c.Solo.MaxTries = 5
	}
	if c.Solo.IdleTTL == 0 {
		c.Solo.IdleTTL = time.Hour
	}

	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "word-duel"
	}

	if c.Postgres.MaxConns == 0 {
		c.Postgres.MaxConns = 10
	}

	if c.Keywords.Source == "" {
		c.Keywords.Source = "static"
		if c.Postgres.DSN != "" {
			c.Keywords.Source = "postgres"
		}
	}
	if c.Keywords.Seed == 0 {
		c.Keywords.Seed = time.Now().UnixNano()
	}
}

func (c *Config) validate() error {
	if c.Auth.Secret == "" {
		return errors.New("config: AUTH_SECRET is required")
	}
	if c.Duel.MatchDuration < time.Second {
		return fmt.Errorf("config: match duration %s is shorter than one tick", c.Duel.MatchDuration)
	}
	if c.Duel.ScoreIncrement < 1 {
		return errors.New("config: score increment must be at least 1")
	}
	for _, f := range c.Friends {
		if a, b, ok := strings.Cut(f, ":"); !ok || a == "" || b == "" {
			return fmt.Errorf("config: friend pair %q is not userA:userB", f)
		}
	}
	switch c.Keywords.Source {
	case "static":
	case "postgres":
		if c.Postgres.DSN == "" {
			return errors.New("config: keywords source postgres needs DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown keywords source %q", c.Keywords.Source)
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

// FriendPairs flattens Friends for the friend directories.
func (c *Config) FriendPairs() [][2]string {
	out := make([][2]string, 0, len(c.Friends))
	for _, f := range c.Friends {
		a, b, _ := strings.Cut(f, ":")
		out = append(out, [2]string{a, b})
	}
	return out
}
