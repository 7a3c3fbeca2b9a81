// Package config reads server settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Sprinter100/dobble/internal/game"
	"github.com/Sprinter100/dobble/internal/game/dobble"
)

// Ngrok holds the optional tunnel settings.
type Ngrok struct {
	Enabled   bool
	AuthToken string
	Domain    string
}

// Config is the full server configuration.
type Config struct {
	Addr   string
	DBPath string

	Catalog    string
	HandSize   int
	TurnsToWin int
	MinPlayers int
	Lockout    time.Duration
	StrictDeal bool

	DisconnectGrace time.Duration

	JWTSecret    string
	TokenTTL     time.Duration
	CookieSecure bool

	LogLevel  zerolog.Level
	LogPretty bool

	Ngrok Ngrok
}

// Load reads the given .env files (".env" when none are named), then the
// environment. Missing files are ignored; variables already set in the
// environment take precedence over file values.
func Load(files ...string) (*Config, error) {
	_ = godotenv.Load(files...)
	return FromEnv()
}

// FromEnv builds a Config from the current environment.
func FromEnv() (*Config, error) {
	p := &parser{}
	rules := dobble.DefaultRules()

	cfg := &Config{
		Addr:            getEnv("ADDR", ""),
		DBPath:          getEnv("DB_PATH", "dobble.db"),
		Catalog:         getEnv("CATALOG", game.Letters.Name),
		HandSize:        p.int("HAND_SIZE", rules.HandSize),
		TurnsToWin:      p.int("TURNS_TO_WIN", rules.TurnsToWin),
		MinPlayers:      p.int("MIN_PLAYERS", rules.MinPlayers),
		Lockout:         p.duration("LOCKOUT", rules.Lockout),
		StrictDeal:      p.bool("STRICT_DEAL", false),
		DisconnectGrace: p.duration("DISCONNECT_GRACE", 0),
		JWTSecret:       getEnv("JWT_SECRET", ""),
		TokenTTL:        p.duration("TOKEN_TTL", 24*time.Hour),
		CookieSecure:    p.bool("COOKIE_SECURE", false),
		LogPretty:       p.bool("LOG_PRETTY", false),
		Ngrok: Ngrok{
			Enabled:   p.bool("NGROK_ENABLED", false),
			AuthToken: getEnv("NGROK_AUTHTOKEN", ""),
			Domain:    getEnv("NGROK_DOMAIN", ""),
		},
	}
	if cfg.Addr == "" {
		cfg.Addr = ":" + getEnv("PORT", "3300")
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	}

	lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		p.fail("LOG_LEVEL", err)
	}
	cfg.LogLevel = lvl

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// Rules returns the match rules described by cfg.
func (c *Config) Rules() dobble.Rules {
	return dobble.Rules{
		HandSize:   c.HandSize,
		TurnsToWin: c.TurnsToWin,
		MinPlayers: c.MinPlayers,
		Lockout:    c.Lockout,
		Strict:     c.StrictDeal,
	}
}

// MatchSetup resolves the configured catalog from reg and validates the
// rules against it.
func (c *Config) MatchSetup(reg *game.Registry) (game.Catalog, dobble.Rules, error) {
	cat, ok := reg.Get(c.Catalog)
	if !ok {
		return game.Catalog{}, dobble.Rules{}, fmt.Errorf("unknown catalog %q", c.Catalog)
	}
	rules := c.Rules()
	if err := rules.Validate(cat); err != nil {
		return game.Catalog{}, dobble.Rules{}, err
	}
	return cat, rules, nil
}

// parser keeps the first parse error so FromEnv can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config: %s: %w", key, err)
	}
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return d
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
