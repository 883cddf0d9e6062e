package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	HTTP         HTTPConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Codes        CodesConfig
	Reminders    RemindersConfig
	Cron         CronConfig
	WhatsApp     WhatsAppConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Reminders.Location(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"RECHARGE_APP_ENV" required:"true"`
	Port         string `envconfig:"RECHARGE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"RECHARGE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"RECHARGE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"RECHARGE_LOG_WARN_STACK" default:"false"`
}

// ConsoleLogs reports whether logs should be human readable instead of JSON.
func (a AppConfig) ConsoleLogs() bool {
	return strings.EqualFold(a.LogFormat, LogFormatConsole)
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type HTTPConfig struct {
	AllowedOrigins []string      `envconfig:"RECHARGE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
	ReadTimeout    time.Duration `envconfig:"RECHARGE_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout   time.Duration `envconfig:"RECHARGE_HTTP_WRITE_TIMEOUT" default:"30s"`
	IdleTimeout    time.Duration `envconfig:"RECHARGE_HTTP_IDLE_TIMEOUT" default:"60s"`
}

type ServiceConfig struct {
	Kind string `envconfig:"RECHARGE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"RECHARGE_DB_DSN"`
	Driver string `envconfig:"RECHARGE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"RECHARGE_DB_HOST"`
	LegacyPort     int    `envconfig:"RECHARGE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"RECHARGE_DB_USER"`
	LegacyPassword string `envconfig:"RECHARGE_DB_PASSWORD"`
	LegacyName     string `envconfig:"RECHARGE_DB_NAME"`
	LegacySSLMode  string `envconfig:"RECHARGE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"RECHARGE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"RECHARGE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"RECHARGE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"RECHARGE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"RECHARGE_REDIS_URL"`
	Address      string        `envconfig:"RECHARGE_REDIS_ADDR"`
	Password     string        `envconfig:"RECHARGE_REDIS_PASSWORD"`
	DB           int           `envconfig:"RECHARGE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"RECHARGE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"RECHARGE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"RECHARGE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"RECHARGE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"RECHARGE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"RECHARGE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"RECHARGE_JWT_ISSUER" default:"rechargecodes"`
	ExpirationMinutes int    `envconfig:"RECHARGE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"RECHARGE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"RECHARGE_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"RECHARGE_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"RECHARGE_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"RECHARGE_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SalesTopic     string `envconfig:"RECHARGE_PUBSUB_SALES_TOPIC" default:"rc-sales-events"`
	RemindersTopic string `envconfig:"RECHARGE_PUBSUB_REMINDERS_TOPIC" default:"rc-reminder-events"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"RECHARGE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"RECHARGE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"RECHARGE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CodesConfig struct {
	ExpiryHorizonDays int `envconfig:"RECHARGE_CODES_EXPIRY_HORIZON_DAYS" default:"30"`
	MaxImportBatch    int `envconfig:"RECHARGE_CODES_MAX_IMPORT_BATCH" default:"5000"`
	MaxClaimAttempts  int `envconfig:"RECHARGE_CODES_MAX_CLAIM_ATTEMPTS" default:"32"`
}

// ExpiryHorizon returns how long an imported code stays sellable.
func (c CodesConfig) ExpiryHorizon() time.Duration {
	days := c.ExpiryHorizonDays
	if days <= 0 {
		days = DefaultCodeExpiryDays
	}
	return time.Duration(days) * 24 * time.Hour
}

type RemindersConfig struct {
	Timezone    string        `envconfig:"RECHARGE_REMINDERS_TIMEZONE" default:"UTC"`
	SendTimeout time.Duration `envconfig:"RECHARGE_REMINDERS_SEND_TIMEOUT" default:"10s"`
	Concurrency int           `envconfig:"RECHARGE_REMINDERS_CONCURRENCY" default:"4"`
}

// Location resolves the calendar used for day truncation.
func (r RemindersConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(r.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("loading reminders timezone %q: %w", name, err)
	}
	return loc, nil
}

type CronConfig struct {
	Interval time.Duration `envconfig:"RECHARGE_CRON_INTERVAL" default:"24h"`
	LockTTL  time.Duration `envconfig:"RECHARGE_CRON_LOCK_TTL" default:"25h"`
}

type WhatsAppConfig struct {
	Enabled  bool   `envconfig:"RECHARGE_WHATSAPP_ENABLED" default:"false"`
	BaseURL  string `envconfig:"RECHARGE_WHATSAPP_BASE_URL"`
	Token    string `envconfig:"RECHARGE_WHATSAPP_TOKEN"`
	SenderID string `envconfig:"RECHARGE_WHATSAPP_SENDER_ID"`
}

// Configured reports whether reminders can be delivered at all.
func (w WhatsAppConfig) Configured() bool {
	return w.Enabled && strings.TrimSpace(w.BaseURL) != "" && strings.TrimSpace(w.Token) != ""
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
