package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ConvertConfig controls rasterization and the office suite.
type ConvertConfig struct {
	DPI               int
	OfficePath        string
	OfficeTimeout     time.Duration
	OfficeMaxWorkers  int
	FallbackFontPaths []string
}

// ScratchConfig controls job scratch directories.
type ScratchConfig struct {
	Dir    string
	MaxAge time.Duration
}

// ProgressConfig controls optional progress mirroring and metrics export.
type ProgressConfig struct {
	RedisURL        string
	MetricsTextfile string
}

// Config is the top-level configuration.
type Config struct {
	Logging  LoggingConfig
	Axiom    AxiomConfig
	Convert  ConvertConfig
	Scratch  ScratchConfig
	Progress ProgressConfig
}

// LoadDotEnv loads variables from the given files (default .env) without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("failed to load env file")
		}
	}
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", ""),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_everything2pdf",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Convert = ConvertConfig{
		DPI:               parseInt(getEnv("CONVERT_DPI", "150"), 150),
		OfficePath:        getEnv("OFFICE_PATH", ""),
		OfficeTimeout:     parseDuration(getEnv("OFFICE_TIMEOUT", "120s"), 120*time.Second),
		OfficeMaxWorkers:  parseInt(getEnv("OFFICE_MAX_WORKERS", "2"), 2),
		FallbackFontPaths: parseList(getEnv("FALLBACK_FONT_PATHS", "")),
	}
	if cfg.Convert.DPI <= 0 {
		cfg.Convert.DPI = 150
	}
	if cfg.Convert.OfficeMaxWorkers <= 0 {
		cfg.Convert.OfficeMaxWorkers = 1
	}

	cfg.Scratch = ScratchConfig{
		Dir:    getEnv("SCRATCH_DIR", os.TempDir()),
		MaxAge: parseDuration(getEnv("SCRATCH_MAX_AGE", "1h"), time.Hour),
	}

	cfg.Progress = ProgressConfig{
		RedisURL:        getEnv("PROGRESS_REDIS_URL", ""),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

// parseList splits an OS path list, dropping empty entries.
func parseList(s string) []string {
	var out []string
	for _, p := range filepath.SplitList(s) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
