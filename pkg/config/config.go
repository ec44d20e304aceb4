// Package config loads server settings from a .env file, the environment and
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/aluko123/go-fxrate-server/pkg/limit"
	"github.com/aluko123/go-fxrate-server/rates"
)

const (
	LimiterMemory = "memory"
	LimiterRedis  = "redis"
)

type Config struct {
	Port             int
	MaxClients       int
	AdmissionTimeout time.Duration
	IdleTimeout      time.Duration

	MaxRequestsPerMinute int
	RequestWindow        time.Duration
	SweepInterval        time.Duration
	Limiter              string
	RedisAddr            string
	Identity             limit.IdentityMode

	FeedURL      string
	FeedTimeout  time.Duration
	BaseCurrency string

	LogFile   string
	LogFormat string
	Debug     bool

	MetricsAddr   string
	BlocklistPath string
	AcceptRate    float64
	AcceptBurst   int
}

// Default returns the built-in settings
func Default() Config {
	return Config{
		Port:                 6000,
		MaxClients:           10,
		AdmissionTimeout:     time.Second,
		MaxRequestsPerMinute: 5,
		RequestWindow:        time.Minute,
		SweepInterval:        5 * time.Minute,
		Limiter:              LimiterMemory,
		RedisAddr:            "localhost:6379",
		Identity:             limit.IdentityEndpoint,
		FeedURL:              rates.DefaultFeedURL,
		FeedTimeout:          10 * time.Second,
		BaseCurrency:         rates.DefaultBaseCurrency,
		LogFile:              "server_log.txt",
		LogFormat:            "text",
		AcceptBurst:          10,
	}
}

// Load reads .env (if present), then the environment, then args
func Load(args []string) (Config, error) {
	_ = godotenv.Load()
	return load(args, os.Getenv)
}

func load(args []string, getenv func(string) string) (Config, error) {
	cfg := Default()
	env := envReader{getenv: getenv}

	cfg.Port = env.int("FXRATE_PORT", cfg.Port)
	cfg.MaxClients = env.int("FXRATE_MAX_CLIENTS", cfg.MaxClients)
	cfg.AdmissionTimeout = env.duration("FXRATE_ADMISSION_TIMEOUT", cfg.AdmissionTimeout)
	cfg.IdleTimeout = env.duration("FXRATE_IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.MaxRequestsPerMinute = env.int("FXRATE_MAX_REQUESTS_PER_MINUTE", cfg.MaxRequestsPerMinute)
	cfg.RequestWindow = env.duration("FXRATE_REQUEST_WINDOW", cfg.RequestWindow)
	cfg.SweepInterval = env.duration("FXRATE_SWEEP_INTERVAL", cfg.SweepInterval)
	cfg.Limiter = env.string("FXRATE_LIMITER", cfg.Limiter)
	cfg.RedisAddr = env.string("FXRATE_REDIS_ADDR", cfg.RedisAddr)
	identity := env.string("FXRATE_IDENTITY", string(cfg.Identity))
	cfg.FeedURL = env.string("FXRATE_FEED_URL", cfg.FeedURL)
	cfg.FeedTimeout = env.duration("FXRATE_FEED_TIMEOUT", cfg.FeedTimeout)
	cfg.BaseCurrency = env.string("FXRATE_BASE_CURRENCY", cfg.BaseCurrency)
	cfg.LogFile = env.string("FXRATE_LOG_FILE", cfg.LogFile)
	cfg.LogFormat = env.string("FXRATE_LOG_FORMAT", cfg.LogFormat)
	cfg.Debug = env.bool("FXRATE_DEBUG", cfg.Debug)
	cfg.MetricsAddr = env.string("FXRATE_METRICS_ADDR", cfg.MetricsAddr)
	cfg.BlocklistPath = env.string("FXRATE_BLOCKLIST", cfg.BlocklistPath)
	cfg.AcceptRate = env.float("FXRATE_ACCEPT_RATE", cfg.AcceptRate)
	cfg.AcceptBurst = env.int("FXRATE_ACCEPT_BURST", cfg.AcceptBurst)
	if env.err != nil {
		return Config{}, env.err
	}

	fs := flag.NewFlagSet("fxrate-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "TCP port to listen on")
	fs.IntVar(&cfg.MaxClients, "max-clients", cfg.MaxClients, "Maximum concurrent client sessions")
	fs.DurationVar(&cfg.AdmissionTimeout, "admission-timeout", cfg.AdmissionTimeout, "How long to wait for a free slot")
	fs.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close sessions idle for this long (0 disables)")
	fs.IntVar(&cfg.MaxRequestsPerMinute, "max-requests", cfg.MaxRequestsPerMinute, "Connection attempts allowed per client per window")
	fs.DurationVar(&cfg.RequestWindow, "request-window", cfg.RequestWindow, "Rate limit window")
	fs.DurationVar(&cfg.SweepInterval, "sweep-interval", cfg.SweepInterval, "How often stale rate limit records are evicted (0 disables)")
	fs.StringVar(&cfg.Limiter, "limiter", cfg.Limiter, "Rate limiter type: memory or redis")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis server address")
	fs.StringVar(&identity, "identity", identity, "Client identity: endpoint (host:port) or ip")
	fs.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "Exchange rate feed URL")
	fs.DurationVar(&cfg.FeedTimeout, "feed-timeout", cfg.FeedTimeout, "Feed request timeout")
	fs.StringVar(&cfg.BaseCurrency, "base-currency", cfg.BaseCurrency, "Currency the feed rates are expressed in")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Event log path")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Process log format: text or json")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Address for the Prometheus endpoint (empty disables)")
	fs.StringVar(&cfg.BlocklistPath, "blocklist", cfg.BlocklistPath, "Path to a JSON client blocklist")
	fs.Float64Var(&cfg.AcceptRate, "accept-rate", cfg.AcceptRate, "Accepted connections per second (0 disables)")
	fs.IntVar(&cfg.AcceptBurst, "accept-burst", cfg.AcceptBurst, "Burst size for the accept rate")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, err := limit.ParseIdentityMode(identity)
	if err != nil {
		return Config{}, err
	}
	cfg.Identity = mode

	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	if c.MaxClients <= 0 {
		errs = append(errs, fmt.Errorf("max clients must be positive: %d", c.MaxClients))
	}
	if c.MaxRequestsPerMinute <= 0 {
		errs = append(errs, fmt.Errorf("max requests must be positive: %d", c.MaxRequestsPerMinute))
	}
	if c.RequestWindow <= 0 {
		errs = append(errs, fmt.Errorf("request window must be positive: %s", c.RequestWindow))
	}
	if c.Limiter != LimiterMemory && c.Limiter != LimiterRedis {
		errs = append(errs, fmt.Errorf("invalid limiter type: %q", c.Limiter))
	}
	if c.FeedURL == "" {
		errs = append(errs, errors.New("feed url is required"))
	}
	if c.BaseCurrency == "" {
		errs = append(errs, errors.New("base currency is required"))
	}
	if c.AcceptRate < 0 {
		errs = append(errs, fmt.Errorf("accept rate must not be negative: %v", c.AcceptRate))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address on all interfaces
func (c Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) string(key, fallback string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) int(key string, fallback int) int {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return n
}

func (e *envReader) float(key string, fallback float64) float64 {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return f
}

func (e *envReader) bool(key string, fallback bool) bool {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return b
}

func (e *envReader) duration(key string, fallback time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("invalid %s: %w", key, err))
		return fallback
	}
	return d
}

func (e *envReader) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}
