package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	LogLevel       string
	LogDev         bool
	AllowedOrigins []string

	SessionTTL    time.Duration
	SweepInterval time.Duration

	OutboxSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	ReadLimit      int64
	NotifyRejected bool

	DatabaseURL   string
	ArchiveBuffer int
}

// Load reads a .env file if one exists, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup; tests pass a map-backed lookup.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	p := parser{lookup: lookup}
	cfg := Config{
		Port:           p.str("PORT", "8080"),
		LogLevel:       p.str("LOG_LEVEL", "info"),
		LogDev:         p.boolean("LOG_DEV", false),
		AllowedOrigins: p.list("ALLOWED_ORIGINS"),
		SessionTTL:     p.duration("SESSION_TTL", 0),
		SweepInterval:  p.duration("SWEEP_INTERVAL", time.Minute),
		OutboxSize:     p.integer("OUTBOX_SIZE", 16),
		PingInterval:   p.duration("PING_INTERVAL", 15*time.Second),
		WriteTimeout:   p.duration("WRITE_TIMEOUT", 3*time.Second),
		ReadLimit:      int64(p.integer("READ_LIMIT", 64<<10)),
		NotifyRejected: p.boolean("NOTIFY_REJECTED", false),
		DatabaseURL:    p.str("DATABASE_URL", ""),
		ArchiveBuffer:  p.integer("ARCHIVE_BUFFER", 256),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if cfg.OutboxSize < 2 {
		return Config{}, fmt.Errorf("OUTBOX_SIZE must be at least 2, got %d", cfg.OutboxSize)
	}
	return cfg, nil
}

// parser keeps the first error so Load can report it once.
type parser struct {
	lookup func(string) (string, bool)
	err    error
}

func (p *parser) str(key, def string) string {
	if v, ok := p.lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) integer(key string, def int) int {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) list(key string) []string {
	var out []string
	for _, item := range strings.Split(p.str(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}
