package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Backend selects the store implementations wired at startup.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendPostgres Backend = "postgres"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	Backend     Backend
	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	DatabaseURL string
	TxTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers  []string
	EventsTopic   string
	ConsumerGroup string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxRetries   int

	EventRetention time.Duration
	AdminToken     string

	// SurveysFile seeds the survey catalog with declared data requirements.
	SurveysFile string
}

// DevMode reports whether the process runs outside production.
func (s Server) DevMode() bool {
	return s.Environment != "production"
}

// StreamingEnabled reports whether events are relayed through Kafka.
func (s Server) StreamingEnabled() bool {
	return len(s.KafkaBrokers) > 0
}

// configFile mirrors the YAML schema of config/pollster.yaml.
type configFile struct {
	Server struct {
		Addr              string `yaml:"addr"`
		Environment       string `yaml:"environment"`
		LogLevel          string `yaml:"log_level"`
		Backend           string `yaml:"backend"`
		TrustProxyHeaders bool   `yaml:"trust_proxy_headers"`
	} `yaml:"server"`
	Dependencies struct {
		PostgresURL  string   `yaml:"postgres_url"`
		RedisAddr    string   `yaml:"redis_addr"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
	} `yaml:"dependencies"`
	Events struct {
		Topic         string `yaml:"topic"`
		ConsumerGroup string `yaml:"consumer_group"`
		Retention     string `yaml:"retention"`
	} `yaml:"events"`
	Auth struct {
		Issuer   string `yaml:"issuer"`
		Audience string `yaml:"audience"`
	} `yaml:"auth"`
	Catalog struct {
		SurveysFile string `yaml:"surveys_file"`
	} `yaml:"catalog"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Server {
	return Server{
		Addr:               ":8080",
		Environment:        "development",
		LogLevel:           "info",
		Backend:            BackendMemory,
		TxTimeout:          5 * time.Second,
		EventsTopic:        "pollster.respondent-events",
		ConsumerGroup:      "pollster-stats",
		JWTSigningKey:      "dev-secret-key-change-in-production",
		JWTIssuer:          "pollster",
		JWTAudience:        "pollster",
		OutboxPollInterval: 2 * time.Second,
		OutboxBatchSize:    100,
		OutboxMaxRetries:   5,
		EventRetention:     365 * 24 * time.Hour,
	}
}

// Load resolves configuration in priority order: defaults -> YAML file -> .env -> environment.
// Missing files are not errors; malformed ones are.
func Load(path string) (Server, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err == nil {
			if err := applyFile(&cfg, raw); err != nil {
				return Server{}, err
			}
		} else if !os.IsNotExist(err) {
			return Server{}, fmt.Errorf("read config file: %w", err)
		}
	}

	// .env never overrides variables already set in the process environment.
	_ = godotenv.Load()

	if err := applyEnv(&cfg); err != nil {
		return Server{}, err
	}
	return cfg, cfg.validate()
}

// FromEnv builds a config from defaults and the environment only.
func FromEnv() (Server, error) {
	return Load(os.Getenv("POLLSTER_CONFIG"))
}

func applyFile(cfg *Server, raw []byte) error {
	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	setString(&cfg.Addr, f.Server.Addr)
	setString(&cfg.Environment, f.Server.Environment)
	setString(&cfg.LogLevel, f.Server.LogLevel)
	if f.Server.Backend != "" {
		cfg.Backend = Backend(f.Server.Backend)
	}
	if f.Server.TrustProxyHeaders {
		cfg.TrustProxyHeaders = true
	}
	setString(&cfg.DatabaseURL, f.Dependencies.PostgresURL)
	setString(&cfg.RedisAddr, f.Dependencies.RedisAddr)
	if len(f.Dependencies.KafkaBrokers) > 0 {
		cfg.KafkaBrokers = f.Dependencies.KafkaBrokers
	}
	setString(&cfg.EventsTopic, f.Events.Topic)
	setString(&cfg.ConsumerGroup, f.Events.ConsumerGroup)
	if f.Events.Retention != "" {
		d, err := time.ParseDuration(f.Events.Retention)
		if err != nil {
			return fmt.Errorf("parse events.retention: %w", err)
		}
		cfg.EventRetention = d
	}
	setString(&cfg.JWTIssuer, f.Auth.Issuer)
	setString(&cfg.JWTAudience, f.Auth.Audience)
	setString(&cfg.SurveysFile, f.Catalog.SurveysFile)
	return nil
}

func applyEnv(cfg *Server) error {
	setString(&cfg.Addr, os.Getenv("POLLSTER_ADDR"))
	setString(&cfg.Environment, os.Getenv("POLLSTER_ENV"))
	setString(&cfg.LogLevel, os.Getenv("LOG_LEVEL"))
	if v := os.Getenv("POLLSTER_BACKEND"); v != "" {
		cfg.Backend = Backend(v)
	}
	setString(&cfg.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&cfg.RedisAddr, os.Getenv("REDIS_ADDR"))
	setString(&cfg.RedisPassword, os.Getenv("REDIS_PASSWORD"))
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(&cfg.EventsTopic, os.Getenv("EVENTS_TOPIC"))
	setString(&cfg.ConsumerGroup, os.Getenv("EVENTS_CONSUMER_GROUP"))
	setString(&cfg.JWTSigningKey, os.Getenv("JWT_SIGNING_KEY"))
	setString(&cfg.JWTIssuer, os.Getenv("JWT_ISSUER"))
	setString(&cfg.JWTAudience, os.Getenv("JWT_AUDIENCE"))
	setString(&cfg.AdminToken, os.Getenv("ADMIN_API_TOKEN"))
	setString(&cfg.SurveysFile, os.Getenv("SURVEYS_FILE"))

	var err error
	if cfg.TrustProxyHeaders, err = boolEnv("TRUST_PROXY_HEADERS", cfg.TrustProxyHeaders); err != nil {
		return err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", cfg.RedisDB); err != nil {
		return err
	}
	if cfg.OutboxBatchSize, err = intEnv("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize); err != nil {
		return err
	}
	if cfg.OutboxMaxRetries, err = intEnv("OUTBOX_MAX_RETRIES", cfg.OutboxMaxRetries); err != nil {
		return err
	}
	if cfg.OutboxPollInterval, err = durationEnv("OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return err
	}
	if cfg.EventRetention, err = durationEnv("EVENT_RETENTION", cfg.EventRetention); err != nil {
		return err
	}
	if cfg.TxTimeout, err = durationEnv("DB_TX_TIMEOUT", cfg.TxTimeout); err != nil {
		return err
	}
	return nil
}

func (s Server) validate() error {
	switch s.Backend {
	case BackendMemory:
	case BackendPostgres:
		if s.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", s.Backend)
	}
	if s.EventRetention <= 0 {
		return fmt.Errorf("event retention must be positive")
	}
	if !s.DevMode() && s.JWTSigningKey == Defaults().JWTSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must be set in production")
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
