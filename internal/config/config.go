package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreDriverPostgres  = "postgres"
	StoreDriverSQLite    = "sqlite"
	StoreDriverFirestore = "firestore"
	StoreDriverMongo     = "mongodb"
)

// Identity providers.
const (
	AuthProviderJWT      = "jwt"
	AuthProviderFirebase = "firebase"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                 string
	AppEnv                  string
	AppPort                 string
	StoreDriver             string
	DatabaseURL             string
	DatabaseMaxConns        int
	SQLitePath              string
	RedisURL                string
	NATSURL                 string
	ChannelBase             string
	FirebaseProject         string
	FirebaseCredentialsFile string
	MongoURI                string
	MongoDatabase           string
	AuthProvider            string
	JWTSecret               string
	FeedCacheTTL            time.Duration
	SSEKeepAlive            time.Duration
	CloudinaryCloudName     string
	CloudinaryAPIKey        string
	CloudinaryAPISecret     string
	CloudinaryUploadFolder  string
	UploadMaxSizeMB         int
	RateLimitMax            int
	RateLimitWindow         time.Duration
	SeedEnabled             bool
	CORSAllowOrigins        []string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("HEALTHWATCH")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "HealthWatch API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("store.driver", StoreDriverPostgres)
	v.SetDefault("sqlite.path", "healthwatch.db")
	v.SetDefault("channel.base", "healthwatch")
	v.SetDefault("mongodb.database", "healthwatch")
	v.SetDefault("auth.provider", AuthProviderJWT)
	v.SetDefault("feed.cache_ttl", "2m")
	v.SetDefault("sse.keepalive", "25s")
	v.SetDefault("cloudinary.folder", "healthwatch/content")
	v.SetDefault("upload.max_size_mb", 5)
	v.SetDefault("rate_limit.max", 60)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("seed.enabled", false)
	v.SetDefault("database.max_conns", 20)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	cacheTTL, err := parseDuration(v, "feed.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	keepAlive, err := parseDuration(v, "sse.keepalive")
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "rate_limit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                 v.GetString("app.name"),
		AppEnv:                  v.GetString("app.env"),
		AppPort:                 v.GetString("app.port"),
		StoreDriver:             strings.ToLower(strings.TrimSpace(v.GetString("store.driver"))),
		DatabaseURL:             v.GetString("database.url"),
		DatabaseMaxConns:        v.GetInt("database.max_conns"),
		SQLitePath:              v.GetString("sqlite.path"),
		RedisURL:                v.GetString("redis.url"),
		NATSURL:                 v.GetString("nats.url"),
		ChannelBase:             v.GetString("channel.base"),
		FirebaseProject:         v.GetString("firebase.project"),
		FirebaseCredentialsFile: v.GetString("firebase.credentials_file"),
		MongoURI:                v.GetString("mongodb.uri"),
		MongoDatabase:           v.GetString("mongodb.database"),
		AuthProvider:            strings.ToLower(strings.TrimSpace(v.GetString("auth.provider"))),
		JWTSecret:               v.GetString("jwt.secret"),
		FeedCacheTTL:            cacheTTL,
		SSEKeepAlive:            keepAlive,
		CloudinaryCloudName:     v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:        v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:     v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder:  v.GetString("cloudinary.folder"),
		UploadMaxSizeMB:         v.GetInt("upload.max_size_mb"),
		RateLimitMax:            v.GetInt("rate_limit.max"),
		RateLimitWindow:         window,
		SeedEnabled:             v.GetBool("seed.enabled"),
		CORSAllowOrigins:        splitList(v.GetString("cors.allow_origins")),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database url must be provided for the postgres store")
		}
	case StoreDriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite path must be provided for the sqlite store")
		}
	case StoreDriverFirestore:
		if c.FirebaseProject == "" {
			return fmt.Errorf("firebase project must be provided for the firestore store")
		}
	case StoreDriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("mongodb uri must be provided for the mongodb store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	switch c.AuthProvider {
	case AuthProviderJWT:
		if c.JWTSecret == "" {
			return fmt.Errorf("jwt secret must be provided")
		}
	case AuthProviderFirebase:
		if c.FirebaseProject == "" {
			return fmt.Errorf("firebase project must be provided for firebase auth")
		}
	default:
		return fmt.Errorf("unknown auth provider %q", c.AuthProvider)
	}

	if c.UploadMaxSizeMB <= 0 {
		return fmt.Errorf("upload max size must be positive")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
