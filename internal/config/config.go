// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported DB_TYPE values
const (
	DBMemory    = "memory"
	DBPostgres  = "postgres"
	DBMongo     = "mongo"
	DBFirestore = "firestore"
)

// ServerConfig holds all server-related settings
type ServerConfig struct {
	Port           int
	Host           string
	MetricsEnabled bool
	RequestTimeout time.Duration
}

// DatabaseConfig holds database configuration settings
type DatabaseConfig struct {
	Type     string // memory, postgres, mongo or firestore
	URI      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// FirebaseConfig points at the Firebase project backing the firestore store and
// ID-token verification.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

// Enabled reports whether a Firebase project is configured.
func (f *FirebaseConfig) Enabled() bool {
	return f.ProjectID != ""
}

// CoreConfig tunes the optimistic and notification machinery.
type CoreConfig struct {
	NotificationPollInterval time.Duration
	NotifyWorkers            int
	WriteWorkers             int
	MountedMutations         int
	MountedThreads           int
	ProfileCacheSize         int

	// Demo records written at startup; zero disables seeding.
	SeedUsers int
	SeedPosts int
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string
	Format string
}

// Config holds the complete application configuration
type Config struct {
	Server         *ServerConfig
	Database       *DatabaseConfig
	Firebase       *FirebaseConfig
	Core           *CoreConfig
	Log            *LogConfig
	JWTSecret      string
	AllowedOrigins []string
	Debug          bool
}

// DefaultConfig provides default server settings
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:           8080,
		Host:           "0.0.0.0",
		MetricsEnabled: true,
		RequestTimeout: 5 * time.Second,
	}
}

// DefaultDatabaseConfig provides default database settings
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Type:    DBMemory,
		Port:    5432,
		SSLMode: "require",
	}
}

// DefaultCoreConfig mirrors the mobile client's polling cadence.
func DefaultCoreConfig() *CoreConfig {
	return &CoreConfig{
		NotificationPollInterval: 10 * time.Second,
		NotifyWorkers:            4,
		WriteWorkers:             8,
		MountedMutations:         4096,
		MountedThreads:           1024,
		ProfileCacheSize:         1024,
	}
}

// LoadConfig loads configuration from environment variables and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",          // Current directory
		"../../.env",    // Project root when running from cmd/engine
		"../../../.env", // Even higher directory
		filepath.Join(os.Getenv("GOPATH"), "src/snapfeed/.env"),
	}

	envLoaded := false
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		// Silent when no .env exists
		_ = godotenv.Load()
	}

	return FromEnv()
}

// FromEnv builds the configuration from the current environment only.
func FromEnv() (*Config, error) {
	serverConfig := DefaultConfig()

	if port, ok := getEnvInt("PORT"); ok {
		serverConfig.Port = port
	}
	if host := os.Getenv("HOST"); host != "" {
		serverConfig.Host = host
	}
	if metricsEnabled := os.Getenv("METRICS_ENABLED"); metricsEnabled != "" {
		serverConfig.MetricsEnabled = metricsEnabled == "true"
	}
	if timeout, ok := getEnvDuration("REQUEST_TIMEOUT"); ok {
		serverConfig.RequestTimeout = timeout
	}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, err
	}

	firebaseConfig := &FirebaseConfig{
		ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
		CredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		CredentialsJSON: os.Getenv("FIREBASE_CREDENTIALS_JSON"),
	}
	if dbConfig.Type == DBFirestore && !firebaseConfig.Enabled() {
		return nil, fmt.Errorf("FIREBASE_PROJECT_ID environment variable is required when DB_TYPE is firestore")
	}

	coreConfig := DefaultCoreConfig()
	if interval, ok := getEnvDuration("NOTIFICATION_POLL_INTERVAL"); ok {
		coreConfig.NotificationPollInterval = interval
	}
	if workers, ok := getEnvInt("NOTIFY_WORKERS"); ok && workers > 0 {
		coreConfig.NotifyWorkers = workers
	}
	if workers, ok := getEnvInt("WRITE_WORKERS"); ok && workers > 0 {
		coreConfig.WriteWorkers = workers
	}
	if mounted, ok := getEnvInt("MOUNTED_MUTATIONS"); ok && mounted > 0 {
		coreConfig.MountedMutations = mounted
	}
	if mounted, ok := getEnvInt("MOUNTED_THREADS"); ok && mounted > 0 {
		coreConfig.MountedThreads = mounted
	}
	if users, ok := getEnvInt("SEED_USERS"); ok && users > 0 {
		coreConfig.SeedUsers = users
		coreConfig.SeedPosts, _ = getEnvInt("SEED_POSTS")
	}
	if size, ok := getEnvInt("PROFILE_CACHE_SIZE"); ok && size > 0 {
		coreConfig.ProfileCacheSize = size
	}

	config := &Config{
		Server:   serverConfig,
		Database: dbConfig,
		Firebase: firebaseConfig,
		Core:     coreConfig,
		Log: &LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
		JWTSecret:      os.Getenv("JWT_SECRET"),
		AllowedOrigins: []string{"*"}, // Default to allow all origins
		Debug:          false,
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
		config.Log.Level = "debug"
		config.Log.Format = getEnvOrDefault("LOG_FORMAT", "console")
	}

	if config.JWTSecret == "" && !config.Firebase.Enabled() {
		if !config.Debug {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required unless FIREBASE_PROJECT_ID is set")
		}
		config.JWTSecret = "snapfeed-debug-secret"
	}

	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	dbConfig := DefaultDatabaseConfig()

	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		dbConfig.Type = strings.ToLower(dbType)
	}

	switch dbConfig.Type {
	case DBMemory, DBFirestore:
	case DBPostgres:
		// Prioritize DATABASE_URL if provided
		if uri := os.Getenv("DATABASE_URL"); uri != "" {
			dbConfig.URI = uri
			dbConfig.SSLMode = getSSLModeFromURI(uri)
			break
		}

		dbConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
		if port, ok := getEnvInt("DB_PORT"); ok {
			dbConfig.Port = port
		}

		dbConfig.User = os.Getenv("DB_USER")
		if dbConfig.User == "" {
			return nil, fmt.Errorf("DB_USER environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}

		dbConfig.Password = os.Getenv("DB_PASSWORD")
		if dbConfig.Password == "" {
			return nil, fmt.Errorf("DB_PASSWORD environment variable is required when DB_TYPE is postgres and DATABASE_URL is not set")
		}

		dbConfig.Name = getEnvOrDefault("DB_NAME", "postgres")
		dbConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "require")

		dbConfig.URI = fmt.Sprintf(
			"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
			dbConfig.User,
			dbConfig.Password,
			dbConfig.Host,
			dbConfig.Port,
			dbConfig.Name,
			dbConfig.SSLMode,
		)
	case DBMongo:
		dbConfig.URI = getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017")
		dbConfig.Name = getEnvOrDefault("MONGO_DB", "snapfeed")
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbConfig.Type)
	}

	return dbConfig, nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string) (int, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// getEnvDuration accepts Go durations ("10s") or bare seconds ("10").
func getEnvDuration(key string) (time.Duration, bool) {
	value := os.Getenv(key)
	if value == "" {
		return 0, false
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d, true
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// Helper function to extract sslmode from a DSN, defaults to "require"
func getSSLModeFromURI(uri string) string {
	if strings.Contains(uri, "sslmode=") {
		parts := strings.Split(uri, "?")
		if len(parts) > 1 {
			queryParams := strings.Split(parts[1], "&")
			for _, param := range queryParams {
				kv := strings.SplitN(param, "=", 2)
				if len(kv) == 2 && kv[0] == "sslmode" {
					return kv[1]
				}
			}
		}
	}
	return "require"
}
