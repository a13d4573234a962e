// Package config loads Tarka's runtime configuration from environment
// variables (with an optional `.env` file via godotenv for local
// development), following the same getenv-with-default idiom used by
// pkg/database. There is no YAML chain/agent/MCP configuration layer here:
// Tarka's providers, thresholds, and feature toggles are all environment
// driven, per the deployment model described for the service.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the umbrella configuration object built once at startup and
// passed down to every component that needs it.
type Config struct {
	// Provider endpoints
	PrometheusURL   string
	AlertmanagerURL string
	LogsURL         string
	LogsBackend     string // "loki", "victorialogs", or "auto" to sniff it from LogsURL

	KubeconfigPath string // empty = in-cluster config

	AWSEvidenceEnabled         bool
	AWSCloudTrailLookbackMins  int
	AWSCloudTrailMaxEvents     int

	GitHubEvidenceEnabled bool
	GitHubTokenEnv        string

	// Artifact store
	S3Bucket      string
	S3Prefix      string
	S3EndpointURL string // non-empty = MinIO/Ceph-compatible override

	// Ingestion
	TimeWindow        time.Duration
	AlertnameAllowlist []string
	RolloutNoisyFamilies map[string]bool

	// LLM enrichment
	LLMEnabled            bool
	LLMIncludeLogs        bool
	LLMRedactInfrastructure string // pattern group tier: basic|secrets|security|kubernetes|cloud|all
	LLMProvider           string
	LLMAPIKeyEnv          string
	LLMModel              string

	Queue     *QueueConfig
	Retention *RetentionConfig
	GitHub    *GitHubConfig
	Database  DatabaseConfigRef
	Redis     RedisConfig
}

// DatabaseConfigRef and RedisConfig are thin holders so pkg/config can
// describe connection settings without importing pkg/database /
// go-redis directly (those packages load their own env vars themselves,
// mirroring the teacher's separation of pkg/database/config.go from
// pkg/config).
type DatabaseConfigRef struct {
	Configured bool
}

// RedisConfig holds the freshness-gate cache connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads Config from the environment. It first attempts to load a
// `.env` file (ignored if absent — production deployments set real env
// vars), matching cmd/tarka's bootstrap behavior.
func Load() (*Config, error) {
	_ = godotenv.Load()

	lookbackMins, err := loadCloudTrailLookback()
	if err != nil {
		return nil, err
	}

	maxEvents, err := strconv.Atoi(getEnvOrDefault("AWS_CLOUDTRAIL_MAX_EVENTS", "200"))
	if err != nil {
		return nil, newLoadError("AWS_CLOUDTRAIL_MAX_EVENTS", err)
	}

	timeWindow, err := time.ParseDuration(getEnvOrDefault("TIME_WINDOW", "1h"))
	if err != nil {
		return nil, newLoadError("TIME_WINDOW", err)
	}

	redisDB, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return nil, newLoadError("REDIS_DB", err)
	}

	cfg := &Config{
		PrometheusURL:   os.Getenv("PROMETHEUS_URL"),
		AlertmanagerURL: os.Getenv("ALERTMANAGER_URL"),
		LogsURL:         os.Getenv("LOGS_URL"),
		LogsBackend:     getEnvOrDefault("LOGS_BACKEND", "loki"),

		KubeconfigPath: os.Getenv("KUBECONFIG"),

		AWSEvidenceEnabled:        getEnvBool("AWS_EVIDENCE_ENABLED", false),
		AWSCloudTrailLookbackMins: lookbackMins,
		AWSCloudTrailMaxEvents:    maxEvents,

		GitHubEvidenceEnabled: getEnvBool("GITHUB_EVIDENCE_ENABLED", false),
		GitHubTokenEnv:        getEnvOrDefault("GITHUB_TOKEN_ENV", "GITHUB_TOKEN"),

		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3Prefix:      getEnvOrDefault("S3_PREFIX", "tarka"),
		S3EndpointURL: os.Getenv("S3_ENDPOINT_URL"),

		TimeWindow:           timeWindow,
		AlertnameAllowlist:   splitCSV(os.Getenv("ALERTNAME_ALLOWLIST")),
		RolloutNoisyFamilies: rolloutNoisySet(os.Getenv("ALERTNAME_ROLLOUT_NOISY")),

		LLMEnabled:              getEnvBool("LLM_ENABLED", false),
		LLMIncludeLogs:          getEnvBool("LLM_INCLUDE_LOGS", true),
		LLMRedactInfrastructure: getEnvOrDefault("LLM_REDACT_INFRASTRUCTURE", "all"),
		LLMProvider:             getEnvOrDefault("LLM_PROVIDER", ""),
		LLMAPIKeyEnv:            getEnvOrDefault("LLM_API_KEY_ENV", "LLM_API_KEY"),
		LLMModel:                os.Getenv("LLM_MODEL"),

		Queue:     DefaultQueueConfig(),
		Retention: DefaultRetentionConfig(),
		GitHub:    &GitHubConfig{TokenEnv: getEnvOrDefault("GITHUB_TOKEN_ENV", "GITHUB_TOKEN")},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCloudTrailLookback resolves AWS_CLOUDTRAIL_LOOKBACK_MINUTES, falling
// back to the deprecated AWS_AWS_CLOUDTRAIL_LOOKBACK_MINUTES spelling with a
// warning if only that one is set.
func loadCloudTrailLookback() (int, error) {
	const defaultMins = "60"
	if v := os.Getenv("AWS_CLOUDTRAIL_LOOKBACK_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, newLoadError("AWS_CLOUDTRAIL_LOOKBACK_MINUTES", err)
		}
		return n, nil
	}
	if v := os.Getenv("AWS_AWS_CLOUDTRAIL_LOOKBACK_MINUTES"); v != "" {
		slog.Warn("AWS_AWS_CLOUDTRAIL_LOOKBACK_MINUTES is deprecated, use AWS_CLOUDTRAIL_LOOKBACK_MINUTES")
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, newLoadError("AWS_AWS_CLOUDTRAIL_LOOKBACK_MINUTES", err)
		}
		return n, nil
	}
	n, _ := strconv.Atoi(defaultMins)
	return n, nil
}

// Validate checks cross-field invariants that simple parsing cannot catch.
func (c *Config) Validate() error {
	if c.AWSEvidenceEnabled && c.AWSCloudTrailLookbackMins <= 0 {
		return fmt.Errorf("%w: AWS_CLOUDTRAIL_LOOKBACK_MINUTES must be positive when AWS_EVIDENCE_ENABLED=true", ErrInvalidValue)
	}
	if c.TimeWindow <= 0 {
		return fmt.Errorf("%w: TIME_WINDOW must be positive", ErrInvalidValue)
	}
	switch c.LogsBackend {
	case "loki", "victorialogs", "auto":
	default:
		return fmt.Errorf("%w: LOGS_BACKEND must be loki, victorialogs, or auto, got %q", ErrInvalidValue, c.LogsBackend)
	}
	return nil
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func rolloutNoisySet(extra string) map[string]bool {
	set := map[string]bool{
		"KubernetesPodNotHealthy":      true,
		"KubernetesContainerOomKiller": true,
	}
	for _, name := range splitCSV(extra) {
		set[name] = true
	}
	return set
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "default", defaultVal)
		return defaultVal
	}
	return b
}
