package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr        string
	RedisPassword    string
	RedisTLS         bool
	WebhookReplayTTL time.Duration

	// Protects the /jobs trigger endpoints. Empty leaves them open.
	AdminJWTSecret string

	// WhatsApp gateway selection: "zapi", "evolution", "simulation" or empty.
	WhatsAppProvider string
	GatewayTimeout   time.Duration
	SimulationDelay  time.Duration

	ZAPIBaseURL     string
	ZAPIInstanceID  string
	ZAPIToken       string
	ZAPIClientToken string

	EvolutionBaseURL  string
	EvolutionAPIKey   string
	EvolutionInstance string

	// Test mode redirects every outbound send to TestPhone.
	TestMode  bool
	TestPhone string

	CampaignBatchSize int

	ConfirmKeywords       []string
	ConfirmMaxFuzzyLength int

	ClinicTimezone   string
	ReminderLookback time.Duration
	FeedbackLookback time.Duration
	BirthdayLookback time.Duration
}

// DefaultConfirmKeywords are the replies treated as an appointment confirmation.
var DefaultConfirmKeywords = []string{
	"1", "sim", "confirmar", "confirmo", "ok", "yes", "tá bom", "pode ser",
	"confirmado", "👍", "certinho", "blz",
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisTLS:         getEnvAsBool("REDIS_TLS", false),
		WebhookReplayTTL: getEnvAsDuration("WEBHOOK_REPLAY_TTL", 48*time.Hour),
		AdminJWTSecret:   getEnv("ADMIN_JWT_SECRET", ""),

		WhatsAppProvider: strings.ToLower(strings.TrimSpace(getEnv("WHATSAPP_PROVIDER", ""))),
		GatewayTimeout:   getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		SimulationDelay:  getEnvAsDuration("SIMULATION_DELAY", 500*time.Millisecond),

		ZAPIBaseURL:     getEnv("ZAPI_BASE_URL", "https://api.z-api.io"),
		ZAPIInstanceID:  getEnv("ZAPI_INSTANCE_ID", ""),
		ZAPIToken:       getEnv("ZAPI_TOKEN", ""),
		ZAPIClientToken: getEnv("ZAPI_CLIENT_TOKEN", ""),

		EvolutionBaseURL:  getEnv("EVOLUTION_BASE_URL", ""),
		EvolutionAPIKey:   getEnv("EVOLUTION_API_KEY", ""),
		EvolutionInstance: getEnv("EVOLUTION_INSTANCE", ""),

		TestMode:  getEnvAsBool("TEST_MODE", false),
		TestPhone: getEnv("TEST_PHONE", ""),

		CampaignBatchSize: getEnvAsInt("CAMPAIGN_BATCH_SIZE", 6),

		ConfirmKeywords:       getEnvAsList("CONFIRM_KEYWORDS", DefaultConfirmKeywords),
		ConfirmMaxFuzzyLength: getEnvAsInt("CONFIRM_MAX_FUZZY_LENGTH", 30),

		ClinicTimezone:   getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),
		ReminderLookback: getEnvAsDuration("REMINDER_LOOKBACK", 24*time.Hour),
		FeedbackLookback: getEnvAsDuration("FEEDBACK_LOOKBACK", 24*time.Hour),
		BirthdayLookback: getEnvAsDuration("BIRTHDAY_LOOKBACK", 20*time.Hour),
	}
}

// Location resolves ClinicTimezone, falling back to UTC when the zone is unknown.
func (c *Config) Location() *time.Location {
	if c == nil || c.ClinicTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
