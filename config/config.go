package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds the runtime configuration for the monitor daemon.
// All values come from environment variables so the binary can run
// unchanged inside a container next to the proxy it watches.
type Config struct {
	Profile string

	// Watched credential material (externally owned, read-only to us).
	AWSDir          string
	CredentialsFile string
	ConfigFile      string
	SSOCacheDir     string

	// Renewal policy.
	Threshold     time.Duration // remaining lifetime below this is urgent
	CheckInterval time.Duration // scheduler tick
	Cooldown      time.Duration // minimum spacing between renewals
	Debounce      time.Duration // watcher stability window
	ScanOnStart   bool

	// External reload action for the proxy process.
	ReloadCmd     []string
	ReloadTimeout time.Duration

	// Daemon-owned state and surfaces.
	StateDir   string
	StatusAddr string

	// Optional proxy health probe.
	HealthURL      string
	HealthInterval time.Duration
	HealthFails    int

	LogLevel string
}

// Load reads the configuration from the environment, applying defaults
// for anything unset. Unparsable values fall back to their default with
// a warning; Load itself never fails.
func Load() Config {
	home, _ := os.UserHomeDir()

	awsDir := envString("CREDMON_AWS_DIR", filepath.Join(home, ".aws"))

	cfg := Config{
		Profile:         envString("AWS_PROFILE", "default"),
		AWSDir:          awsDir,
		CredentialsFile: filepath.Join(awsDir, "credentials"),
		ConfigFile:      filepath.Join(awsDir, "config"),
		SSOCacheDir:     filepath.Join(awsDir, "sso", "cache"),
		Threshold:       envDuration("CREDMON_THRESHOLD", 15*time.Minute),
		CheckInterval:   envDuration("CREDMON_CHECK_INTERVAL", time.Minute),
		Cooldown:        envDuration("CREDMON_COOLDOWN", 5*time.Second),
		Debounce:        envDuration("CREDMON_DEBOUNCE", 2*time.Second),
		ScanOnStart:     envBool("CREDMON_SCAN_ON_START", true),
		ReloadCmd:       strings.Fields(envString("CREDMON_RELOAD_CMD", "docker-compose restart s3proxy")),
		ReloadTimeout:   envDuration("CREDMON_RELOAD_TIMEOUT", 30*time.Second),
		StateDir:        envString("CREDMON_STATE_DIR", filepath.Join(home, ".credmon")),
		StatusAddr:      envString("CREDMON_STATUS_ADDR", ":9180"),
		HealthURL:       os.Getenv("CREDMON_HEALTH_URL"),
		HealthInterval:  envDuration("CREDMON_HEALTH_INTERVAL", 15*time.Second),
		HealthFails:     envInt("CREDMON_HEALTH_FAILS", 3),
		LogLevel:        envString("LOG_LEVEL", "info"),
	}
	return cfg
}

// envString returns the value of the environment variable or the default
// if it is unset or empty.
func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses a duration from the environment. Bare integers are
// read as seconds, matching how the original shell wrappers configured
// their intervals.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			log.Warn().Str("key", key).Str("value", v).Msg("Non-positive duration, using default")
			return def
		}
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Unparsable duration, using default")
		return def
	}
	return d
}

// envInt parses a positive integer from the environment.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Unparsable integer, using default")
		return def
	}
	return n
}

// envBool parses a boolean from the environment.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("Unparsable boolean, using default")
		return def
	}
	return b
}
