package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration. Values are layered:
// Defaults() < YAML file < environment.
type Config struct {
	App        App        `yaml:"app"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Generation Generation `yaml:"generation"`
	Quota      Quota      `yaml:"quota"`
	Store      Store      `yaml:"store"`
	Identity   Identity   `yaml:"identity"`
	Admin      Admin      `yaml:"admin"`
	Assistant  Assistant  `yaml:"assistant"`
}

type App struct {
	// Env is "development" or "production". Error details are only
	// exposed to clients in development.
	Env string `yaml:"env"`
}

func (a App) Development() bool { return strings.EqualFold(a.Env, "development") }

type Server struct {
	Port           string        `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	SecureCookies  bool          `yaml:"secure_cookies"`
	// TrustProxy honours X-Forwarded-For and X-Real-IP. Enable it only
	// when every request passes through a proxy that sets them.
	TrustProxy bool `yaml:"trust_proxy"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// Generation is the static fallback for the generation model. An admin
// override stored in the database takes precedence at request time.
type Generation struct {
	Provider      string        `yaml:"provider"`
	Model         string        `yaml:"model"`
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	GeminiAPIKey  string        `yaml:"gemini_api_key"`
	GeminiModel   string        `yaml:"gemini_model"`
	GeminiBaseURL string        `yaml:"gemini_base_url"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Quota struct {
	FinalTurnCost  int           `yaml:"final_turn_cost"`
	FreeCredits    int           `yaml:"free_credits"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

type Store struct {
	Backend       string `yaml:"backend"`
	DatabaseURL   string `yaml:"database_url"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	File          string `yaml:"file"`
}

type Identity struct {
	UserInfoURL  string        `yaml:"userinfo_url"`
	EntitledPlan string        `yaml:"entitled_plan"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
}

type Admin struct {
	Emails []string `yaml:"emails"`
	// UserRefresh is how often a returning user's record is rewritten.
	UserRefresh time.Duration `yaml:"user_refresh"`
}

type Assistant struct {
	PromptsFile string `yaml:"prompts_file"`
}

const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Defaults returns a configuration that runs locally without any external
// service except the generation provider.
func Defaults() Config {
	return Config{
		App: App{Env: "production"},
		Server: Server{
			Port:           "8080",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   120 * time.Second,
			SessionTTL:     30 * time.Minute,
		},
		Logging: Logging{Level: "info", Service: "tripwise"},
		Generation: Generation{
			Provider:    ProviderOpenRouter,
			Model:       "openrouter/polaris-alpha",
			BaseURL:     "https://openrouter.ai/api/v1",
			GeminiModel: "gemini-2.5-flash",
			Timeout:     90 * time.Second,
		},
		Quota: Quota{
			FinalTurnCost:  5,
			FreeCredits:    10,
			RefillInterval: 24 * time.Hour,
		},
		Store: Store{
			Backend:       BackendMemory,
			MongoDatabase: "tripwise",
			File:          "data/tripwise.json",
		},
		Identity: Identity{
			EntitledPlan: "monthly",
			CacheTTL:     5 * time.Minute,
		},
		Admin: Admin{UserRefresh: 15 * time.Minute},
	}
}

// Load reads .env (if present), the YAML file named by TRIPWISE_CONFIG
// (default config.yaml, optional), then environment overrides.
func Load() (Config, error) {
	_ = godotenv.Load()
	cfg := Defaults()
	path := getEnvDefault("TRIPWISE_CONFIG", "config.yaml")
	if err := loadYAML(&cfg, path); err != nil {
		return Config{}, err
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadYAML(cfg *Config, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.App.Env = getEnvDefault("APP_ENV", cfg.App.Env)

	cfg.Server.Port = getEnvDefault("PORT", cfg.Server.Port)
	cfg.Server.AllowedOrigins = getEnvListDefault("ALLOWED_ORIGIN", cfg.Server.AllowedOrigins)
	cfg.Server.ReadTimeout = getEnvDurationDefault("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDurationDefault("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.SessionTTL = getEnvDurationDefault("SESSION_TTL", cfg.Server.SessionTTL)
	cfg.Server.SecureCookies = getEnvBoolDefault("SECURE_COOKIES", cfg.Server.SecureCookies)
	cfg.Server.TrustProxy = getEnvBoolDefault("TRUST_PROXY", cfg.Server.TrustProxy)

	cfg.Logging.Level = getEnvDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Service = getEnvDefault("LOG_SERVICE", cfg.Logging.Service)

	cfg.Generation.Provider = strings.ToLower(getEnvDefault("GENERATION_PROVIDER", cfg.Generation.Provider))
	cfg.Generation.Model = getEnvDefault("OPENROUTER_MODEL", cfg.Generation.Model)
	cfg.Generation.APIKey = getEnvDefault("OPENROUTER_API_KEY", cfg.Generation.APIKey)
	cfg.Generation.BaseURL = getEnvDefault("OPENROUTER_BASE_URL", cfg.Generation.BaseURL)
	cfg.Generation.GeminiAPIKey = getEnvDefault("GEMINI_API_KEY", cfg.Generation.GeminiAPIKey)
	cfg.Generation.GeminiModel = getEnvDefault("GEMINI_MODEL", cfg.Generation.GeminiModel)
	cfg.Generation.GeminiBaseURL = getEnvDefault("GEMINI_BASE_URL", cfg.Generation.GeminiBaseURL)
	cfg.Generation.Timeout = getEnvDurationDefault("GENERATION_TIMEOUT", cfg.Generation.Timeout)

	cfg.Quota.FinalTurnCost = getEnvIntDefault("QUOTA_FINAL_TURN_COST", cfg.Quota.FinalTurnCost)
	cfg.Quota.FreeCredits = getEnvIntDefault("QUOTA_FREE_CREDITS", cfg.Quota.FreeCredits)
	cfg.Quota.RefillInterval = getEnvDurationDefault("QUOTA_REFILL_INTERVAL", cfg.Quota.RefillInterval)

	cfg.Store.Backend = strings.ToLower(getEnvDefault("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.DatabaseURL = getEnvDefault("DB_URL", cfg.Store.DatabaseURL)
	cfg.Store.MongoURI = getEnvDefault("MONGO_URI", cfg.Store.MongoURI)
	cfg.Store.MongoDatabase = getEnvDefault("MONGO_DATABASE", cfg.Store.MongoDatabase)
	cfg.Store.File = getEnvDefault("STORE_FILE", cfg.Store.File)

	cfg.Identity.UserInfoURL = getEnvDefault("IDENTITY_USERINFO_URL", cfg.Identity.UserInfoURL)
	cfg.Identity.EntitledPlan = getEnvDefault("ENTITLED_PLAN", cfg.Identity.EntitledPlan)
	cfg.Identity.CacheTTL = getEnvDurationDefault("IDENTITY_CACHE_TTL", cfg.Identity.CacheTTL)

	cfg.Admin.Emails = getEnvListDefault("ADMIN_EMAILS", cfg.Admin.Emails)
	cfg.Admin.UserRefresh = getEnvDurationDefault("USER_REFRESH_INTERVAL", cfg.Admin.UserRefresh)

	cfg.Assistant.PromptsFile = getEnvDefault("PROMPTS_FILE", cfg.Assistant.PromptsFile)
}

func (c Config) validate() error {
	var errs []error
	switch c.Generation.Provider {
	case ProviderOpenRouter, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("generation.provider %q: must be %s or %s", c.Generation.Provider, ProviderOpenRouter, ProviderGemini))
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Store.File == "" {
			errs = append(errs, errors.New("store.file is required for the file backend"))
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("DB_URL is required for the postgres backend"))
		}
	case BackendMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q is not supported", c.Store.Backend))
	}
	if c.Quota.FinalTurnCost < 0 {
		errs = append(errs, errors.New("quota.final_turn_cost must not be negative"))
	}
	if c.Quota.FreeCredits < 0 {
		errs = append(errs, errors.New("quota.free_credits must not be negative"))
	}
	if c.Quota.RefillInterval <= 0 {
		errs = append(errs, errors.New("quota.refill_interval must be positive"))
	}
	if c.Admin.UserRefresh <= 0 {
		errs = append(errs, errors.New("admin.user_refresh must be positive"))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	}
	return errors.Join(errs...)
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvListDefault(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return def
}

func getEnvBoolDefault(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return def
}
