package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"detective_game/internal/domain"
	"detective_game/internal/game"
	"detective_game/internal/kv"
	"detective_game/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	DatabaseURL   string // optional, enables the cycle archive
	JWTSecret     string
	AdminFIDs     []int64
	AllowedOrigin string

	LogLevel string
	LogJSON  bool

	Store kv.Options

	ResponderURL     string
	ResponderAPIKey  string
	ResponderTimeout time.Duration

	Game game.Settings

	CacheTTL     time.Duration
	RecordTTL    time.Duration
	LockTTL      time.Duration
	InstanceTTL  time.Duration
	TickInterval time.Duration

	APIRateLimit  int
	APIRateWindow time.Duration
}

// Загрузка конфига из env
func Load() *Config {
	_ = godotenv.Load()

	cfg := FromEnv()
	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is not set")
	}
	if cfg.Store.Backend == kv.BackendRedis && cfg.Store.Addr == "" {
		logger.Fatal("REDIS_ADDR is not set")
	}
	return cfg
}

// FromEnv reads the configuration without validating it.
func FromEnv() *Config {
	g := game.DefaultSettings()
	g.RegistrationDuration = seconds("REGISTRATION_SECONDS", g.RegistrationDuration)
	g.GameDuration = seconds("GAME_SECONDS", g.GameDuration)
	g.MatchDuration = seconds("MATCH_SECONDS", g.MatchDuration)
	g.SimultaneousMatches = positiveInt("SIMULTANEOUS_MATCHES", g.SimultaneousMatches)
	g.MaxPlayers = positiveInt("MAX_PLAYERS", g.MaxPlayers)
	g.RegistrationExtension = seconds("REGISTRATION_EXTENSION_SECONDS", g.RegistrationExtension)
	g.GameExtension = seconds("GAME_EXTENSION_SECONDS", g.GameExtension)
	g.MaxOverrun = seconds("MAX_OVERRUN_SECONDS", g.MaxOverrun)
	g.RoundGrace = seconds("ROUND_GRACE_SECONDS", g.RoundGrace)
	g.VoteRetention = seconds("VOTE_RETENTION_SECONDS", g.VoteRetention)
	g.MaxRepeats = positiveInt("MAX_REPEATS", g.MaxRepeats)
	if v := domain.OpponentKind(strings.ToUpper(os.Getenv("DEFAULT_VOTE"))); v.Valid() {
		g.DefaultVote = v
	}

	backend := os.Getenv("STORE_BACKEND")
	if backend == "" {
		backend = kv.BackendRedis
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		AppPort:       port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		AdminFIDs:     parseFIDs(os.Getenv("ADMIN_FIDS")),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		LogLevel: envOr("LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",

		Store: kv.Options{
			Backend:      backend,
			Addr:         os.Getenv("REDIS_ADDR"),
			Password:     os.Getenv("REDIS_PASSWORD"),
			DB:           nonNegativeInt("REDIS_DB", 0),
			DialTimeout:  millis("REDIS_DIAL_TIMEOUT_MS", 2*time.Second),
			ReadTimeout:  millis("REDIS_READ_TIMEOUT_MS", time.Second),
			WriteTimeout: millis("REDIS_WRITE_TIMEOUT_MS", time.Second),
			OpTimeout:    millis("REDIS_OP_TIMEOUT_MS", 500*time.Millisecond),
		},

		ResponderURL:     os.Getenv("RESPONDER_URL"),
		ResponderAPIKey:  os.Getenv("RESPONDER_API_KEY"),
		ResponderTimeout: seconds("RESPONDER_TIMEOUT_SECONDS", 15*time.Second),

		Game: g,

		CacheTTL:     millis("CACHE_TTL_MS", 2*time.Second),
		RecordTTL:    hours("RECORD_TTL_HOURS", 48*time.Hour),
		LockTTL:      millis("LOCK_TTL_MS", 5*time.Second),
		InstanceTTL:  seconds("INSTANCE_TTL_SECONDS", 2*time.Minute),
		TickInterval: seconds("TICK_SECONDS", 5*time.Second),

		APIRateLimit:  positiveInt("API_RATE_LIMIT", 120),
		APIRateWindow: seconds("API_RATE_WINDOW_SECONDS", time.Minute),
	}
}

// IsAdmin reports whether fid may call the admin endpoints.
func (c *Config) IsAdmin(fid int64) bool {
	for _, id := range c.AdminFIDs {
		if id == fid {
			return true
		}
	}
	return false
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// ADMIN_FIDS is a comma separated list
func parseFIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil && id > 0 {
			ids = append(ids, id)
		} else {
			logger.Warn("ignoring invalid admin fid", "value", part)
		}
	}
	return ids
}

func positiveInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		logger.Warn("invalid config value, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func nonNegativeInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
		logger.Warn("invalid config value, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func duration(key string, unit, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			return time.Duration(n) * unit
		}
		logger.Warn("invalid config value, using default", "key", key, "value", v, "default", def)
	}
	return def
}

func millis(key string, def time.Duration) time.Duration  { return duration(key, time.Millisecond, def) }
func seconds(key string, def time.Duration) time.Duration { return duration(key, time.Second, def) }
func hours(key string, def time.Duration) time.Duration   { return duration(key, time.Hour, def) }
