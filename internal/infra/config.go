package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	GeoIPDBPath string
	CORSOrigins []string

	// Generation gateway endpoints and credentials.
	WorkflowBaseURL    string
	WorkflowSegmentKey string
	WorkflowPromptKey  string
	ImageBaseURL       string
	ImageAPIToken      string
	ImageModel         string
	DescribeWebhookURL string
	VideoBaseURL       string
	VideoAPIKey        string
	VideoModel         string
	GatewayTimeout     time.Duration
	FallbackEnabled    bool

	// Credit cost per paid stage. The cost table is configuration, not an
	// invariant; defaults keep generate-images at three times the prompt cost.
	CostParseScenes   int
	CostImagePrompt   int
	CostImages        int
	CostDescribeImage int
	CostVideo         int

	// Video job polling.
	PollInitialDelay time.Duration
	PollInterval     time.Duration
	PollCeiling      time.Duration
	PollMaxLoops     int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),
		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		WorkflowBaseURL:    getEnv("WORKFLOW_BASE_URL", "https://api.dify.ai/v1"),
		WorkflowSegmentKey: os.Getenv("WORKFLOW_SEGMENT_KEY"),
		WorkflowPromptKey:  os.Getenv("WORKFLOW_PROMPT_KEY"),
		ImageBaseURL:       getEnv("IMAGE_BASE_URL", "https://api.replicate.com/v1"),
		ImageAPIToken:      os.Getenv("IMAGE_API_TOKEN"),
		ImageModel:         getEnv("IMAGE_MODEL", "black-forest-labs/flux-schnell"),
		DescribeWebhookURL: os.Getenv("DESCRIBE_WEBHOOK_URL"),
		VideoBaseURL:       getEnv("VIDEO_BASE_URL", "https://queue.fal.run"),
		VideoAPIKey:        os.Getenv("VIDEO_API_KEY"),
		VideoModel:         getEnv("VIDEO_MODEL", "fal-ai/kling-video/v1.6/standard/image-to-video"),
		GatewayTimeout:     time.Second * time.Duration(getEnvInt("GATEWAY_TIMEOUT_SECONDS", 60)),
		FallbackEnabled:    getEnvBool("GATEWAY_FALLBACK_ENABLED", false),

		CostParseScenes:   getEnvInt("COST_PARSE_SCENES", 10),
		CostImagePrompt:   getEnvInt("COST_IMAGE_PROMPT", 5),
		CostImages:        getEnvInt("COST_IMAGES", 15),
		CostDescribeImage: getEnvInt("COST_DESCRIBE_IMAGE", 5),
		CostVideo:         getEnvInt("COST_VIDEO", 25),

		PollInitialDelay: time.Second * time.Duration(getEnvInt("POLL_INITIAL_DELAY_SECONDS", 3)),
		PollInterval:     time.Second * time.Duration(getEnvInt("POLL_INTERVAL_SECONDS", 15)),
		PollCeiling:      time.Second * time.Duration(getEnvInt("POLL_CEILING_SECONDS", 180)),
		PollMaxLoops:     getEnvInt("POLL_MAX_LOOPS", 32),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
