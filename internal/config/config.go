package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	APIRateLimit   float64       `mapstructure:"API_RATE_LIMIT"`
	APIRateBurst   int           `mapstructure:"API_RATE_BURST"`

	AIURL         string  `mapstructure:"AI_URL"`
	AIModel       string  `mapstructure:"AI_MODEL"`
	AIAPIKey      string  `mapstructure:"AI_API_KEY"`
	AIMaxTokens   int     `mapstructure:"AI_MAX_TOKENS"`
	AITemperature float64 `mapstructure:"AI_TEMPERATURE"`
	PromptPath    string  `mapstructure:"PROMPT_PATH"`

	TextLimit           int           `mapstructure:"TEXT_LIMIT"`
	BaseLanguage        string        `mapstructure:"BASE_LANGUAGE"`
	EmailTimeframe      time.Duration `mapstructure:"EMAIL_TIMEFRAME"`
	MessageTimeframe    time.Duration `mapstructure:"MESSAGE_TIMEFRAME"`
	CallTimeframe       time.Duration `mapstructure:"CALL_TIMEFRAME"`
	EscalationTimeframe time.Duration `mapstructure:"ESCALATION_TIMEFRAME"`
	MaxEmailAttempts    int           `mapstructure:"MAX_EMAIL_ATTEMPTS"`
	KnowledgeAllowed    bool          `mapstructure:"KNOWLEDGE_ALLOWED"`
	PolicyFile          string        `mapstructure:"POLICY_FILE"`
	Concurrency         int           `mapstructure:"REVIEW_CONCURRENCY"`

	GuardBackend  string `mapstructure:"GUARD_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	GraphTenantID     string `mapstructure:"GRAPH_TENANT_ID"`
	GraphClientID     string `mapstructure:"GRAPH_CLIENT_ID"`
	GraphClientSecret string `mapstructure:"GRAPH_CLIENT_SECRET"`
	GraphSender       string `mapstructure:"GRAPH_SENDER"`

	TwilioAccountSID     string  `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string  `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromPhone      string  `mapstructure:"TWILIO_FROM_PHONE"`
	TwilioFromPhoneIL    string  `mapstructure:"TWILIO_FROM_PHONE_IL"`
	TwilioTemplateHebrew string  `mapstructure:"TWILIO_TEMPLATE_SID_HEBREW"`
	TwilioTemplateOther  string  `mapstructure:"TWILIO_TEMPLATE_SID_OTHER"`
	TwilioMessageContent string  `mapstructure:"TWILIO_MESSAGE_CONTENT_SID"`
	DispatchRPS          float64 `mapstructure:"DISPATCH_RPS"`

	AuditAPIURL string `mapstructure:"AUDIT_API_URL"`

	TestMode  bool   `mapstructure:"TEST_MODE"`
	TestEmail string `mapstructure:"TEST_EMAIL"`
	TestPhone string `mapstructure:"TEST_PHONE"`
}

const (
	GuardMemory   = "memory"
	GuardPostgres = "postgres"
	GuardRedis    = "redis"
)

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	return load(".env")
}

func load(envFile string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("API_RATE_LIMIT", 5)
	v.SetDefault("API_RATE_BURST", 10)

	v.SetDefault("AI_URL", "")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_API_KEY", "")
	v.SetDefault("AI_MAX_TOKENS", 1500)
	v.SetDefault("AI_TEMPERATURE", 0.2)
	v.SetDefault("PROMPT_PATH", "")

	v.SetDefault("TEXT_LIMIT", 1500)
	v.SetDefault("BASE_LANGUAGE", "en")
	v.SetDefault("EMAIL_TIMEFRAME", "48h")
	v.SetDefault("MESSAGE_TIMEFRAME", "24h")
	v.SetDefault("CALL_TIMEFRAME", "24h")
	v.SetDefault("ESCALATION_TIMEFRAME", "48h")
	v.SetDefault("MAX_EMAIL_ATTEMPTS", 2)
	v.SetDefault("KNOWLEDGE_ALLOWED", false)
	v.SetDefault("POLICY_FILE", "")
	v.SetDefault("REVIEW_CONCURRENCY", 4)

	v.SetDefault("GUARD_BACKEND", GuardPostgres)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "poreview:guard:")

	for _, k := range []string{
		"GRAPH_TENANT_ID", "GRAPH_CLIENT_ID", "GRAPH_CLIENT_SECRET", "GRAPH_SENDER",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN", "TWILIO_FROM_PHONE", "TWILIO_FROM_PHONE_IL",
		"TWILIO_TEMPLATE_SID_HEBREW", "TWILIO_TEMPLATE_SID_OTHER", "TWILIO_MESSAGE_CONTENT_SID",
		"AUDIT_API_URL", "TEST_EMAIL", "TEST_PHONE",
	} {
		v.SetDefault(k, "")
	}
	v.SetDefault("DISPATCH_RPS", 2)
	v.SetDefault("TEST_MODE", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.GuardBackend = strings.ToLower(strings.TrimSpace(cfg.GuardBackend))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.GuardBackend {
	case GuardMemory, GuardPostgres:
	case GuardRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("GUARD_BACKEND=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("unknown GUARD_BACKEND %q", c.GuardBackend)
	}
	if c.TextLimit <= 0 {
		return fmt.Errorf("TEXT_LIMIT must be positive, got %d", c.TextLimit)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("REVIEW_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

// GraphConfigured reports whether real email delivery is possible.
func (c Config) GraphConfigured() bool {
	return c.GraphTenantID != "" && c.GraphClientID != "" && c.GraphClientSecret != "" && c.GraphSender != ""
}

func (c Config) TwilioConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}
