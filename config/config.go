package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"ringracers-battle-alert/directory"
	"ringracers-battle-alert/discovery"
	"ringracers-battle-alert/probe"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMinimumPlayers  = 3
	DefaultMaximumTicDelay = 4
)

type Config struct {
	DirectoryURL    string
	MinimumPlayers  string
	MaximumTicDelay string
	FetchInterval   time.Duration
	ProbeTimeout    time.Duration
	PollInterval    time.Duration
	RequireMatch    bool
	MetricsPort     int
	LogLevel        string

	// Pub/Sub alerting; both optional
	ResultTopic         string
	RequestSubscription string
	GoogleProjectID     string
	CredentialsFile     string
}

func Load() *Config {
	cfg := &Config{
		DirectoryURL:        strings.TrimSpace(getEnv("BATTLE_ALERT_DIRECTORY_URL", directory.DefaultURL)),
		MinimumPlayers:      strings.TrimSpace(getEnv("BATTLE_ALERT_MIN_PLAYERS", strconv.Itoa(DefaultMinimumPlayers))),
		MaximumTicDelay:     strings.TrimSpace(getEnv("BATTLE_ALERT_MAX_TIC_DELAY", strconv.Itoa(DefaultMaximumTicDelay))),
		FetchInterval:       getEnvDuration("BATTLE_ALERT_FETCH_INTERVAL", discovery.DefaultFetchInterval),
		ProbeTimeout:        getEnvDuration("BATTLE_ALERT_PROBE_TIMEOUT", probe.DefaultTimeout),
		PollInterval:        getEnvDuration("BATTLE_ALERT_POLL_INTERVAL", discovery.DefaultPollInterval),
		RequireMatch:        getEnvBool("BATTLE_ALERT_REQUIRE_MATCH", false),
		MetricsPort:         getEnvInt("BATTLE_ALERT_METRICS_PORT", 8080),
		LogLevel:            strings.TrimSpace(getEnv("BATTLE_ALERT_LOG_LEVEL", "info")),
		ResultTopic:         strings.TrimSpace(os.Getenv("BATTLE_ALERT_RESULT_TOPIC")),
		RequestSubscription: strings.TrimSpace(os.Getenv("BATTLE_ALERT_REQUEST_SUBSCRIPTION")),
		CredentialsFile:     strings.TrimSpace(firstNonEmpty(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), os.Getenv("BATTLE_ALERT_GSA_CREDENTIALS"))),
	}

	if cfg.PubsubEnabled() {
		cfg.GoogleProjectID = getGoogleProjectID(cfg.CredentialsFile, strings.TrimSpace(getEnv("BATTLE_ALERT_PUBSUB_PROJECT_ID", "")))
		if cfg.GoogleProjectID == "" {
			log.Warn().Msg("Google project ID not resolved; set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_PROJECT_ID or BATTLE_ALERT_PUBSUB_PROJECT_ID")
		}
	}
	return cfg
}

// PubsubEnabled reports whether any Pub/Sub integration is configured.
func (c *Config) PubsubEnabled() bool {
	return c.ResultTopic != "" || c.RequestSubscription != ""
}

// Limits parses the configured acceptance limits.
func (c *Config) Limits() (discovery.Limits, error) {
	return ParseLimits(c.MinimumPlayers, c.MaximumTicDelay)
}

// ParseLimits converts user-supplied limit strings. Non-numeric and negative
// values are rejected with an error wrapping discovery.ErrInvalidLimits.
func ParseLimits(minimumPlayers, maximumTicDelay string) (discovery.Limits, error) {
	minP, err := strconv.Atoi(strings.TrimSpace(minimumPlayers))
	if err != nil {
		return discovery.Limits{}, fmt.Errorf("%w: minimum players %q is not a number", discovery.ErrInvalidLimits, minimumPlayers)
	}
	maxT, err := strconv.Atoi(strings.TrimSpace(maximumTicDelay))
	if err != nil {
		return discovery.Limits{}, fmt.Errorf("%w: maximum tic delay %q is not a number", discovery.ErrInvalidLimits, maximumTicDelay)
	}
	l := discovery.Limits{MinimumPlayers: minP, MaximumTicDelay: maxT}
	if err := l.Validate(); err != nil {
		return discovery.Limits{}, err
	}
	return l, nil
}

func (c *Config) HTTPAddr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MetricsPort))
}

// Redacted returns a view safe for logging
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"directoryURL":        c.DirectoryURL,
		"minimumPlayers":      c.MinimumPlayers,
		"maximumTicDelay":     c.MaximumTicDelay,
		"fetchInterval":       c.FetchInterval.String(),
		"probeTimeout":        c.ProbeTimeout.String(),
		"pollInterval":        c.PollInterval.String(),
		"requireMatch":        c.RequireMatch,
		"metricsPort":         c.MetricsPort,
		"logLevel":            c.LogLevel,
		"resultTopic":         c.ResultTopic,
		"requestSubscription": c.RequestSubscription,
		"projectID":           c.GoogleProjectID,
		"credentialsProvided": c.CredentialsFile != "",
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		iv, err := strconv.Atoi(v)
		if err == nil {
			return iv
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid int; using default")
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			return d
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid duration; using default")
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
		log.Warn().Str("key", key).Str("value", v).Msg("invalid bool; using default")
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func projectIDFromCredentials(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	var x struct {
		ProjectID string `json:"project_id"`
	}
	// an unparseable file simply has no project id
	_ = json.Unmarshal(b, &x)
	return x.ProjectID, nil
}

func getGoogleProjectID(credsFile string, explicit string) string {
	// 1) GOOGLE_APPLICATION_CREDENTIALS wins
	if p := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); p != "" {
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			log.Info().Str("credsFile", p).Msg("using project_id from GOOGLE_APPLICATION_CREDENTIALS")
			return strings.TrimSpace(pid)
		}
		log.Warn().Str("credsFile", p).Msg("project_id not found in credentials file or unreadable")
	}

	// 2) explicit override
	if explicit := strings.TrimSpace(explicit); explicit != "" {
		log.Info().Str("projectID", explicit).Msg("using BATTLE_ALERT_PUBSUB_PROJECT_ID for Google project")
		return explicit
	}

	// 3) common Google envs
	if v := strings.TrimSpace(firstNonEmpty(os.Getenv("GOOGLE_PROJECT_ID"), os.Getenv("GOOGLE_CLOUD_PROJECT"), os.Getenv("GCLOUD_PROJECT"), os.Getenv("GCP_PROJECT"))); v != "" {
		log.Info().Str("projectID", v).Msg("using Google project from environment")
		return v
	}

	// 4) provided credentials file path (BATTLE_ALERT_GSA_CREDENTIALS)
	if p := strings.TrimSpace(credsFile); p != "" {
		if pid, err := projectIDFromCredentials(p); err == nil && pid != "" {
			log.Info().Str("credsFile", p).Msg("using project_id from provided credentials file")
			return strings.TrimSpace(pid)
		}
	}
	return ""
}
