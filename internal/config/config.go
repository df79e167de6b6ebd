package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Graph   GraphConfig
	Path    PathConfig
	Usage   UsageConfig
	Logging LoggingConfig
}

// HTTPConfig governs HTTP server behaviour.
type HTTPConfig struct {
	Host              string
	Port              int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MetricsEnabled    bool
	AllowedOriginsCSV string
}

// GraphConfig describes connectivity to the relationship graph (Neo4j or any Bolt endpoint).
type GraphConfig struct {
	URI              string
	Database         string
	Username         string
	Password         string
	MaxConnections   int
	MaxSnapshotEdges int
}

// PathConfig tunes path ranking: score weights, search limits and result caching.
type PathConfig struct {
	RankingFile     string
	HopPenalty      float64
	RecencyWeight   float64
	RecencyHalfLife time.Duration
	MaxHops         int
	MaxCandidates   int
	MaxExpansions   int
	CacheCapacity   int
	CacheTTL        time.Duration
	ComputeTimeout  time.Duration
}

// UsageConfig selects where per-user query counts are recorded.
type UsageConfig struct {
	Backend    string // graph|sqlite|none
	Policy     string // served|attempt
	SQLitePath string
	Timeout    time.Duration
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	Colored       bool
	IncludeCaller bool
}

const (
	defaultHost             = "0.0.0.0"
	defaultPort             = 8080
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 15 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
	defaultGraphMaxSessions = 10
	defaultMaxSnapshotEdges = 200_000

	defaultHopPenalty      = 0.85
	defaultRecencyWeight   = 0.25
	defaultRecencyHalfLife = 30 * 24 * time.Hour
	defaultMaxHops         = 4
	defaultMaxCandidates   = 20
	defaultMaxExpansions   = 250_000
	defaultCacheCapacity   = 10_000
	defaultCacheTTL        = 10 * time.Minute
	defaultComputeTimeout  = 5 * time.Second

	defaultUsageBackend = "graph"
	defaultUsagePolicy  = "served"
	defaultUsageSQLite  = "usage.db"
	defaultUsageTimeout = 2 * time.Second

	// MaxHopsLimit and MaxCandidatesLimit bound the search horizon.
	MaxHopsLimit       = 6
	MaxCandidatesLimit = 50
)

// Defaults returns the configuration used when no environment variables are set.
func Defaults() Config {
	return Config{
		HTTP: HTTPConfig{
			Host:            defaultHost,
			Port:            defaultPort,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Graph: GraphConfig{
			MaxConnections:   defaultGraphMaxSessions,
			MaxSnapshotEdges: defaultMaxSnapshotEdges,
		},
		Path: PathConfig{
			HopPenalty:      defaultHopPenalty,
			RecencyWeight:   defaultRecencyWeight,
			RecencyHalfLife: defaultRecencyHalfLife,
			MaxHops:         defaultMaxHops,
			MaxCandidates:   defaultMaxCandidates,
			MaxExpansions:   defaultMaxExpansions,
			CacheCapacity:   defaultCacheCapacity,
			CacheTTL:        defaultCacheTTL,
			ComputeTimeout:  defaultComputeTimeout,
		},
		Usage: UsageConfig{
			Backend:    defaultUsageBackend,
			Policy:     defaultUsagePolicy,
			SQLitePath: defaultUsageSQLite,
			Timeout:    defaultUsageTimeout,
		},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
	}
}

// Load reads configuration from environment variables, applying defaults. When
// PATH_RANKING_FILE names an HCL file its values sit between the defaults and the
// environment.
func Load() (Config, error) {
	cfg := Defaults()

	cfg.HTTP.Host = valueOrDefault("SERVER_HOST", cfg.HTTP.Host)
	cfg.Logging = LoggingConfig{
		Level:         valueOrDefault("LOG_LEVEL", cfg.Logging.Level),
		Format:        valueOrDefault("LOG_FORMAT", cfg.Logging.Format),
		Colored:       parseBoolWithDefault("LOG_COLOR", false),
		IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
	}
	cfg.Graph = GraphConfig{
		URI:              os.Getenv("GRAPH_URI"),
		Database:         valueOrDefault("GRAPH_DATABASE", ""),
		Username:         os.Getenv("GRAPH_USERNAME"),
		Password:         os.Getenv("GRAPH_PASSWORD"),
		MaxConnections:   parseIntWithDefault("GRAPH_MAX_CONNECTIONS", cfg.Graph.MaxConnections),
		MaxSnapshotEdges: parseIntWithDefault("GRAPH_MAX_SNAPSHOT_EDGES", cfg.Graph.MaxSnapshotEdges),
	}

	port, err := parsePort("SERVER_PORT", defaultPort)
	if err != nil {
		return Config{}, err
	}
	cfg.HTTP.Port = port

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"SERVER_READ_TIMEOUT", &cfg.HTTP.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout},
		{"SERVER_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT", &cfg.HTTP.ShutdownTimeout},
		{"USAGE_TIMEOUT", &cfg.Usage.Timeout},
	}
	for _, d := range durations {
		if err := parseDurationInto(d.key, d.dst); err != nil {
			return Config{}, err
		}
	}

	cfg.HTTP.MetricsEnabled = parseBoolWithDefault("SERVER_METRICS_ENABLED", false)
	cfg.HTTP.AllowedOriginsCSV = os.Getenv("SERVER_ALLOWED_ORIGINS")

	cfg.Path.RankingFile = os.Getenv("PATH_RANKING_FILE")
	if cfg.Path.RankingFile != "" {
		if err := applyRankingFile(cfg.Path.RankingFile, &cfg.Path); err != nil {
			return Config{}, err
		}
	}
	if err := applyPathEnv(&cfg.Path); err != nil {
		return Config{}, err
	}

	cfg.Usage.Backend = strings.ToLower(valueOrDefault("USAGE_BACKEND", cfg.Usage.Backend))
	cfg.Usage.Policy = strings.ToLower(valueOrDefault("USAGE_POLICY", cfg.Usage.Policy))
	cfg.Usage.SQLitePath = valueOrDefault("USAGE_SQLITE_PATH", cfg.Usage.SQLitePath)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyPathEnv(p *PathConfig) error {
	floats := []struct {
		key string
		dst *float64
	}{
		{"PATH_HOP_PENALTY", &p.HopPenalty},
		{"PATH_RECENCY_WEIGHT", &p.RecencyWeight},
	}
	for _, f := range floats {
		v := os.Getenv(f.key)
		if v == "" {
			continue
		}
		val, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", f.key, v, err)
		}
		*f.dst = val
	}

	p.MaxHops = parseIntWithDefault("PATH_MAX_HOPS", p.MaxHops)
	p.MaxCandidates = parseIntWithDefault("PATH_MAX_CANDIDATES", p.MaxCandidates)
	p.MaxExpansions = parseIntWithDefault("PATH_MAX_EXPANSIONS", p.MaxExpansions)
	p.CacheCapacity = parseIntWithDefault("PATH_CACHE_CAPACITY", p.CacheCapacity)

	for key, dst := range map[string]*time.Duration{
		"PATH_RECENCY_HALF_LIFE": &p.RecencyHalfLife,
		"PATH_CACHE_TTL":         &p.CacheTTL,
		"PATH_COMPUTE_TIMEOUT":   &p.ComputeTimeout,
	} {
		if err := parseDurationInto(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports every out-of-range setting.
func (c Config) Validate() error {
	var errs []error
	p := c.Path
	if !(p.HopPenalty > 0) || p.HopPenalty > 1 {
		errs = append(errs, fmt.Errorf("hop penalty %v must be in (0, 1]", p.HopPenalty))
	}
	if p.RecencyWeight < 0 {
		errs = append(errs, fmt.Errorf("recency weight %v must not be negative", p.RecencyWeight))
	}
	if p.MaxHops < 1 || p.MaxHops > MaxHopsLimit {
		errs = append(errs, fmt.Errorf("max hops %d must be between 1 and %d", p.MaxHops, MaxHopsLimit))
	}
	if p.MaxCandidates < 1 || p.MaxCandidates > MaxCandidatesLimit {
		errs = append(errs, fmt.Errorf("max candidates %d must be between 1 and %d", p.MaxCandidates, MaxCandidatesLimit))
	}
	if p.MaxExpansions < 1 {
		errs = append(errs, fmt.Errorf("max expansions %d must be positive", p.MaxExpansions))
	}
	if p.CacheCapacity < 1 {
		errs = append(errs, fmt.Errorf("cache capacity %d must be positive", p.CacheCapacity))
	}
	if p.CacheTTL <= 0 || p.ComputeTimeout <= 0 {
		errs = append(errs, errors.New("cache TTL and compute timeout must be positive"))
	}
	switch c.Usage.Backend {
	case "graph", "sqlite", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown usage backend %q", c.Usage.Backend))
	}
	switch c.Usage.Policy {
	case "served", "attempt":
	default:
		errs = append(errs, fmt.Errorf("unknown usage policy %q", c.Usage.Policy))
	}
	return errors.Join(errs...)
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDurationInto(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func parsePort(key string, fallback int) (int, error) {
	if v := os.Getenv(key); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
		if port <= 0 || port > 65535 {
			return 0, fmt.Errorf("port %d is out of range", port)
		}
		return port, nil
	}
	return fallback, nil
}
