package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Populi   PopuliConfig
	Sync     SyncConfig
	Linking  LinkingConfig
	Export   ExportConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// PopuliConfig holds the upstream API credentials and call timeouts. APIKey and
// AcademicTermID have no defaults; sync refuses to run without them.
type PopuliConfig struct {
	APIKey           string
	APIBase          string
	AcademicTermID   string
	SearchTimeout    time.Duration
	DirectoryTimeout time.Duration
	DetailTimeout    time.Duration
}

// SyncConfig tunes the incremental attendance sync engine.
type SyncConfig struct {
	PageSize         int
	Lookback         time.Duration
	PageViewDebounce time.Duration
}

// LinkingConfig governs identity linking: the claims consumed during SSO
// attribute capture and the email directory cache used as fallback.
type LinkingConfig struct {
	DirectoryTTL      time.Duration
	DirectoryPageSize int
	PersonIDClaim     string
	StudentIDClaim    string
	FirstNameClaim    string
	LastNameClaim     string
	BatchWorkers      int
	BatchDelay        time.Duration
}

// ExportConfig bounds the review-sheet export surface.
type ExportConfig struct {
	MaxRows int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 12*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Populi = PopuliConfig{
		APIKey:           v.GetString("POPULI_API_KEY"),
		APIBase:          v.GetString("POPULI_API_BASE"),
		AcademicTermID:   v.GetString("POPULI_ACADEMIC_TERM_ID"),
		SearchTimeout:    parseDuration(v.GetString("POPULI_SEARCH_TIMEOUT"), 30*time.Second),
		DirectoryTimeout: parseDuration(v.GetString("POPULI_DIRECTORY_TIMEOUT"), 45*time.Second),
		DetailTimeout:    parseDuration(v.GetString("POPULI_DETAIL_TIMEOUT"), 15*time.Second),
	}

	cfg.Sync = SyncConfig{
		PageSize:         v.GetInt("SYNC_PAGE_SIZE"),
		Lookback:         parseDuration(v.GetString("SYNC_LOOKBACK"), 24*time.Hour),
		PageViewDebounce: parseDuration(v.GetString("SYNC_PAGE_VIEW_DEBOUNCE"), 10*time.Minute),
	}

	cfg.Linking = LinkingConfig{
		DirectoryTTL:      parseDuration(v.GetString("LINK_DIRECTORY_TTL"), 24*time.Hour),
		DirectoryPageSize: v.GetInt("LINK_DIRECTORY_PAGE_SIZE"),
		PersonIDClaim:     v.GetString("LINK_PERSON_ID_CLAIM"),
		StudentIDClaim:    v.GetString("LINK_STUDENT_ID_CLAIM"),
		FirstNameClaim:    v.GetString("LINK_FIRST_NAME_CLAIM"),
		LastNameClaim:     v.GetString("LINK_LAST_NAME_CLAIM"),
		BatchWorkers:      v.GetInt("LINK_BATCH_WORKERS"),
		BatchDelay:        parseDuration(v.GetString("LINK_BATCH_DELAY"), 500*time.Millisecond),
	}

	cfg.Export = ExportConfig{
		MaxRows: v.GetInt("EXPORT_MAX_ROWS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "attend_sync")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "12h")
	v.SetDefault("JWT_ISSUER", "attend-sync")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("POPULI_API_KEY", "")
	v.SetDefault("POPULI_API_BASE", "https://pbc.populiweb.com/api2")
	v.SetDefault("POPULI_ACADEMIC_TERM_ID", "")
	v.SetDefault("POPULI_SEARCH_TIMEOUT", "30s")
	v.SetDefault("POPULI_DIRECTORY_TIMEOUT", "45s")
	v.SetDefault("POPULI_DETAIL_TIMEOUT", "15s")

	v.SetDefault("SYNC_PAGE_SIZE", 100)
	v.SetDefault("SYNC_LOOKBACK", "24h")
	v.SetDefault("SYNC_PAGE_VIEW_DEBOUNCE", "10m")

	v.SetDefault("LINK_DIRECTORY_TTL", "24h")
	v.SetDefault("LINK_DIRECTORY_PAGE_SIZE", 200)
	v.SetDefault("LINK_PERSON_ID_CLAIM", "populi_person_id")
	v.SetDefault("LINK_STUDENT_ID_CLAIM", "populi_student_id")
	v.SetDefault("LINK_FIRST_NAME_CLAIM", "given_name")
	v.SetDefault("LINK_LAST_NAME_CLAIM", "family_name")
	v.SetDefault("LINK_BATCH_WORKERS", 1)
	v.SetDefault("LINK_BATCH_DELAY", "500ms")

	v.SetDefault("EXPORT_MAX_ROWS", 5000)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
