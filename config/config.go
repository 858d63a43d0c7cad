package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration derived from environment variables
// with an optional YAML file overlay.
type Config struct {
	HTTPPort      string
	DBPath        string
	BotName       string
	PublicBaseURL string

	InboxDir      string
	EnableWatcher bool
	QueueSize     int
	WorkerCount   int
	JobTimeoutSec int

	VisionAPIKey  string
	VisionBaseURL string

	GeocoderBaseURL    string
	GeocoderUserAgent  string
	FallbackGeocodeURL string
	FallbackGeocodeKey string

	NotifyWebhookURL string

	// ReplySeed makes response phrasing deterministic when non-zero.
	ReplySeed int64

	Classifier ClassifierConfig

	StrictConfig bool
}

type fileConfig struct {
	HTTPPort   string           `json:"http_port" yaml:"http_port"`
	DBPath     string           `json:"db_path" yaml:"db_path"`
	InboxDir   string           `json:"inbox_dir" yaml:"inbox_dir"`
	BotName    string           `json:"bot_name" yaml:"bot_name"`
	Classifier ClassifierConfig `json:"classifier" yaml:"classifier"`
}

const (
	defaultPort          = ":8080"
	defaultDBPath        = "civicbot.db"
	defaultInboxDir      = "runtime/inbox"
	defaultBotName       = "CivicBot"
	minQueueSize         = 1
	defaultQueueSize     = 64
	maxQueueSize         = 1024
	defaultWorkerCount   = 2
	defaultJobTimeoutSec = 30
	defaultGeocoderURL   = "https://nominatim.openstreetmap.org/search"
	defaultVisionURL     = "https://vision.googleapis.com/v1/images:annotate"
	defaultUserAgent     = "CivicBot/1.0 (Community Service Reporting System)"
)

// Load reads configuration from environment variables and applies sane defaults.
func Load() (Config, error) {
	LoadDotEnv(".env")

	cfg := Config{
		QueueSize:          defaultQueueSize,
		WorkerCount:        defaultWorkerCount,
		JobTimeoutSec:      defaultJobTimeoutSec,
		VisionAPIKey:       os.Getenv("GOOGLE_VISION_API_KEY"),
		VisionBaseURL:      getEnv("VISION_BASE_URL", defaultVisionURL),
		GeocoderUserAgent:  getEnv("GEOCODER_USER_AGENT", defaultUserAgent),
		FallbackGeocodeURL: os.Getenv("FALLBACK_GEOCODE_URL"),
		FallbackGeocodeKey: os.Getenv("FALLBACK_GEOCODE_KEY"),
		NotifyWebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
		PublicBaseURL:      strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),
		EnableWatcher:      parseBoolEnvDefault("ENABLE_WATCHER", true),
		StrictConfig:       parseBoolEnv("STRICT_CONFIG"),
	}

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	fileCfg, fileErr := loadFileConfig(configPath)
	if fileErr != nil {
		if cfg.StrictConfig {
			return cfg, fmt.Errorf("config load failed (%s): %w", configPath, fileErr)
		}
		if !os.IsNotExist(fileErr) {
			log.Printf("config load failed (%s): %v (using defaults)", configPath, fileErr)
		}
	}

	cfg.HTTPPort = firstNonEmpty(os.Getenv("HTTP_PORT"), fileCfg.HTTPPort, defaultPort)
	if !strings.HasPrefix(cfg.HTTPPort, ":") {
		cfg.HTTPPort = ":" + cfg.HTTPPort
	}
	cfg.DBPath = firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, defaultDBPath)
	cfg.InboxDir = firstNonEmpty(os.Getenv("INBOX_DIR"), fileCfg.InboxDir, defaultInboxDir)
	cfg.BotName = firstNonEmpty(os.Getenv("BOT_NAME"), fileCfg.BotName, defaultBotName)
	cfg.GeocoderBaseURL = firstNonEmpty(os.Getenv("GEOCODER_BASE_URL"), defaultGeocoderURL)

	if v := os.Getenv("WORKER_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Printf("invalid WORKER_COUNT=%q, using default %d", v, defaultWorkerCount)
			n = defaultWorkerCount
		}
		cfg.WorkerCount = n
	}

	if v := os.Getenv("QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("invalid QUEUE_SIZE=%q, using default %d", v, defaultQueueSize)
			n = defaultQueueSize
		}
		if n < minQueueSize {
			n = minQueueSize
		}
		if n > maxQueueSize {
			log.Printf("QUEUE_SIZE capped at %d (was %d)", maxQueueSize, n)
			n = maxQueueSize
		}
		cfg.QueueSize = n
	}
	if cfg.QueueSize < cfg.WorkerCount {
		cfg.QueueSize = cfg.WorkerCount
	}

	if v := os.Getenv("JOB_TIMEOUT_SEC"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid JOB_TIMEOUT_SEC: %w", err)
		}
		if n <= 0 {
			return cfg, fmt.Errorf("JOB_TIMEOUT_SEC must be positive")
		}
		cfg.JobTimeoutSec = n
	}

	if v := os.Getenv("REPLY_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid REPLY_SEED: %w", err)
		}
		cfg.ReplySeed = n
	}

	cfg.Classifier = MergeClassifierConfig(DefaultClassifierConfig(), fileCfg.Classifier)

	return cfg, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolEnv(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseBoolEnvDefault(key string, def bool) bool {
	if _, ok := os.LookupEnv(key); !ok {
		return def
	}
	return parseBoolEnv(key)
}

// Now returns the current UTC time. Single seam for timestamps.
func Now() time.Time { return time.Now().UTC() }
