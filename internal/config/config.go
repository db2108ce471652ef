// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServiceConfig holds service identity and transport settings.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
}

// RecognitionConfig holds speech recognition settings.
type RecognitionConfig struct {
	Provider          string // sim, google, remote
	Language          string // auto, fr-FR, en-US, ...
	SampleRateHz      int
	RestartDelay      time.Duration
	NetworkRetryDelay time.Duration
	WatchdogPoll      time.Duration
	StuckTimeout      time.Duration
}

// EditorConfig holds editing session settings.
type EditorConfig struct {
	AutosaveDelay    time.Duration
	WarningTTL       time.Duration
	SuppressionRunes int
}

// RedisConfig holds persistence settings. With Enabled false the service
// runs on the in-memory store.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds event egress settings.
type KafkaConfig struct {
	Enabled      bool
	Brokers      []string
	TopicView    string
	TopicSegment string
	Principal    string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	MetricsAddr string
}

// Configuration is the full service configuration.
type Configuration struct {
	Service       ServiceConfig
	Recognition   RecognitionConfig
	Editor        EditorConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// Load reads configuration from the environment, falling back to defaults
// for anything unset or unparseable. A .env file is honored when present.
func Load() *Configuration {
	_ = godotenv.Load()

	cfg := &Configuration{
		Service: ServiceConfig{
			Principal: envOrDefault("SERVICE_PRINCIPAL", "svc-conversation-transcription"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Recognition: RecognitionConfig{
			Provider:          envOrDefault("RECOGNITION_PROVIDER", "sim"),
			Language:          envOrDefault("RECOGNITION_LANGUAGE", "auto"),
			SampleRateHz:      envOrDefaultInt("RECOGNITION_SAMPLE_RATE_HZ", 16000),
			RestartDelay:      envOrDefaultDuration("RECOGNITION_RESTART_DELAY", 300*time.Millisecond),
			NetworkRetryDelay: envOrDefaultDuration("RECOGNITION_NETWORK_RETRY_DELAY", time.Second),
			WatchdogPoll:      envOrDefaultDuration("RECOGNITION_WATCHDOG_POLL", 5*time.Second),
			StuckTimeout:      envOrDefaultDuration("RECOGNITION_STUCK_TIMEOUT", 60*time.Second),
		},
		Editor: EditorConfig{
			AutosaveDelay:    envOrDefaultDuration("EDITOR_AUTOSAVE_DELAY", 2*time.Second),
			WarningTTL:       envOrDefaultDuration("EDITOR_WARNING_TTL", 5*time.Second),
			SuppressionRunes: envOrDefaultInt("EDITOR_SUPPRESSION_RUNES", 10),
		},
		Redis: RedisConfig{
			Enabled:  envOrDefaultBool("REDIS_ENABLED", false),
			Addr:     envOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: envOrDefault("REDIS_PASSWORD", ""),
			DB:       envOrDefaultInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Enabled:      envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:      envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicView:    envOrDefault("KAFKA_TOPIC_VIEW", "conversation.transcript.view"),
			TopicSegment: envOrDefault("KAFKA_TOPIC_SEGMENT", "conversation.segment.final"),
			Principal:    envOrDefault("KAFKA_PRINCIPAL", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}

	if cfg.Kafka.Principal == "" {
		cfg.Kafka.Principal = cfg.Service.Principal
	}
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
