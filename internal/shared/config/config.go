package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	ServiceName     string
	Version         string
	Port            string
	Env             string
	CORSAllowOrigin []string
	ShutdownTimeout time.Duration

	LLMProvider   string
	LLMModel      string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAITimeout time.Duration
	SearchAPIKey  string

	Quota QuotaConfig
	Input InputConfig
	Jobs  JobsConfig

	DatabaseURL string
	RedisURL    string

	ResultStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	SSEKMSKeyID     string

	NATSURL           string
	NATSSubjectPrefix string
}

// QuotaConfig bounds how many trips a client may plan and how much they may cost.
type QuotaConfig struct {
	Store          string
	HourlyLimit    int
	DailyLimit     int
	WeeklyLimit    int
	CostCapUSD     float64
	CostPerTripUSD float64
	CostWindow     string
	WarnRatio      float64
}

// InputConfig holds per-field input limits.
type InputConfig struct {
	MaxDestinationLength         int
	MaxDurationDays              int
	MaxSpecialRequirementsLength int
}

// JobsConfig controls job execution and progress reporting.
type JobsConfig struct {
	StagesFile          string
	Timeout             time.Duration
	ProgressTick        time.Duration
	MaxConcurrent       int
	Retention           time.Duration
	StreamPollInterval  time.Duration
	StreamHeartbeat     time.Duration
	PollRatePerSecond   float64
	PollBurst           int
	SubmitRatePerMinute float64
	SubmitBurst         int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	quotaStore := normalizeQuotaStore(getEnv("QUOTA_STORE", "memory"))
	dbURL := os.Getenv("DATABASE_URL")

	if quotaStore == "postgres" && dbURL == "" {
		log.Printf("QUOTA_STORE=postgres requires DATABASE_URL")
	}

	return Config{
		ServiceName:     getEnv("SERVICE_NAME", "ai-trip-planner"),
		Version:         getEnv("APP_VERSION", "dev"),
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000")),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		LLMProvider:   strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:      getEnv("LLM_MODEL", "gpt-4o-mini"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAITimeout: time.Duration(getInt("OPENAI_TIMEOUT_SECONDS", 180)) * time.Second,
		SearchAPIKey:  getEnv("SERPER_API_KEY", ""),

		Quota: QuotaConfig{
			Store:          quotaStore,
			HourlyLimit:    getInt("QUOTA_HOURLY_LIMIT", 5),
			DailyLimit:     getInt("QUOTA_DAILY_LIMIT", 20),
			WeeklyLimit:    getInt("QUOTA_WEEKLY_LIMIT", 100),
			CostCapUSD:     getFloat("QUOTA_COST_CAP_USD", 10.0),
			CostPerTripUSD: getFloat("QUOTA_COST_PER_TRIP_USD", 0.03),
			CostWindow:     normalizeCostWindow(getEnv("QUOTA_COST_WINDOW", "day")),
			WarnRatio:      getFloat("QUOTA_WARN_RATIO", 0.8),
		},
		Input: InputConfig{
			MaxDestinationLength:         getInt("INPUT_MAX_DESTINATION_LENGTH", 100),
			MaxDurationDays:              getInt("INPUT_MAX_DURATION_DAYS", 30),
			MaxSpecialRequirementsLength: getInt("INPUT_MAX_SPECIAL_REQUIREMENTS_LENGTH", 500),
		},
		Jobs: JobsConfig{
			StagesFile:          getEnv("STAGES_FILE", ""),
			Timeout:             getDuration("JOB_TIMEOUT", 10*time.Minute),
			ProgressTick:        getDuration("PROGRESS_TICK", 2*time.Second),
			MaxConcurrent:       getInt("MAX_CONCURRENT_JOBS", 8),
			Retention:           getDuration("JOB_RETENTION", 0),
			StreamPollInterval:  getDuration("STREAM_POLL_INTERVAL", time.Second),
			StreamHeartbeat:     getDuration("STREAM_HEARTBEAT", 5*time.Second),
			PollRatePerSecond:   getFloat("POLL_RATE_PER_SECOND", 2),
			PollBurst:           getInt("POLL_BURST", 10),
			// Zero disables the submit bucket; the quota ledger gates submissions.
			SubmitRatePerMinute: getFloat("SUBMIT_RATE_PER_MINUTE", 0),
			SubmitBurst:         getInt("SUBMIT_BURST", 0),
		},

		DatabaseURL: dbURL,
		RedisURL:    getEnv("REDIS_URL", ""),

		ResultStoreType: normalizeStoreType(getEnv("RESULT_STORE", "none")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", "itineraries/"),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "trips"),
	}
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return val
}

func getFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid float %q, using %v", key, raw, def)
		return def
	}
	return val
}

func getDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("config %s invalid duration %q, using %s", key, raw, def)
		return def
	}
	return val
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	case "local":
		return "local"
	default:
		return "none"
	}
}

func normalizeQuotaStore(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "postgres", "pg":
		return "postgres"
	case "redis":
		return "redis"
	default:
		return "memory"
	}
}

func normalizeCostWindow(raw string) string {
	if strings.EqualFold(strings.TrimSpace(raw), "week") {
		return "week"
	}
	return "day"
}

// IsDevLike reports whether env is a developer environment.
func IsDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}
