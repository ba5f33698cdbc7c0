package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"linkreach/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

// MailerConfig holds the mail-campaign provider credentials.
type MailerConfig struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"-"`
	WebhookSecret string `json:"-"`
}

// LLMConfig holds the Anthropic classification/personalization settings.
type LLMConfig struct {
	APIKey string `json:"-"`
	Model  string `json:"model"`
}

// IMAPConfig holds the shared reply inbox credentials.
type IMAPConfig struct {
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"-"`
	Mailbox    string `json:"mailbox"`
	Encryption string `json:"encryption"` // SSL, STARTTLS, or none
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	// DryRun is the global outbound kill switch: when set, no contact
	// is ever enrolled or messaged.
	DryRun bool `json:"dry_run"`

	Mailer MailerConfig `json:"mailer"`
	LLM    LLMConfig    `json:"llm"`
	IMAP   IMAPConfig   `json:"imap"`
	Redis  RedisConfig  `json:"redis"`

	SentryDSN string `json:"-"`

	// DefaultListUIDs maps a language code to the provider list used
	// when neither the campaign nor the settings table override it.
	DefaultListUIDs map[string]string `json:"default_list_uids"`

	// Outreach pacing
	OutreachPerMinute int `json:"outreach_per_minute"`
}

func init() {
	// .env is optional; real deployments use environment variables.
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "linkreach"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 50),

		DryRun: getEnvAsBool("OUTREACH_DRY_RUN", false),

		Mailer: MailerConfig{
			BaseURL:       getEnv("MAILER_BASE_URL", ""),
			APIKey:        getEnv("MAILER_API_KEY", ""),
			WebhookSecret: getEnv("MAILER_WEBHOOK_SECRET", ""),
		},
		LLM: LLMConfig{
			APIKey: getEnv("ANTHROPIC_API_KEY", ""),
			Model:  getEnv("ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
		},
		IMAP: IMAPConfig{
			Host:       getEnv("IMAP_HOST", ""),
			Port:       getEnvAsInt("IMAP_PORT", 993),
			Username:   getEnv("IMAP_USERNAME", ""),
			Password:   getEnv("IMAP_PASSWORD", ""),
			Mailbox:    getEnv("IMAP_MAILBOX", "INBOX"),
			Encryption: getEnv("IMAP_ENCRYPTION", "SSL"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		SentryDSN: getEnv("SENTRY_DSN", ""),

		DefaultListUIDs:   loadListUIDs(),
		OutreachPerMinute: getEnvAsInt("OUTREACH_PER_MINUTE", 30),
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.Mailer.BaseURL == "" || AppConfig.Mailer.APIKey == "" {
			return fmt.Errorf("MAILER_BASE_URL and MAILER_API_KEY are required in production")
		}
		if AppConfig.Mailer.WebhookSecret == "" {
			return fmt.Errorf("MAILER_WEBHOOK_SECRET is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// loadListUIDs reads every LIST_UID_<LANG> variable into a language map.
func loadListUIDs() map[string]string {
	uids := make(map[string]string)
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 || !strings.HasPrefix(parts[0], "LIST_UID_") {
			continue
		}
		lang := strings.ToLower(strings.TrimPrefix(parts[0], "LIST_UID_"))
		if lang != "" && parts[1] != "" {
			uids[lang] = parts[1]
		}
	}
	return uids
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Dry run: %t", AppConfig.DryRun)
	log.Printf("Default lists: %d languages", len(AppConfig.DefaultListUIDs))
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Prospect{},
		&models.Contact{},
		&models.Campaign{},
		&models.Enrollment{},
		&models.Backlink{},
		&models.SuppressionEntry{},
		&models.Event{},
		&models.Setting{},
	)
}
