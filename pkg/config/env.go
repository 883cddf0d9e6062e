package config

// EnvPrefix namespaces every variable read by Load.
const EnvPrefix = "RECHARGE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	LogFormatConsole = "console"

	DefaultCodeExpiryDays = 30
)

const (
	EnvAppEnv   = "RECHARGE_APP_ENV"
	EnvPort     = "RECHARGE_APP_PORT"
	EnvLogLevel = "RECHARGE_LOG_LEVEL"

	EnvDBDSN  = "RECHARGE_DB_DSN"
	EnvDBHost = "RECHARGE_DB_HOST"
	EnvDBUser = "RECHARGE_DB_USER"
	EnvDBName = "RECHARGE_DB_NAME"

	EnvRedisURL = "RECHARGE_REDIS_URL"

	EnvJWTSecret  = "RECHARGE_JWT_SECRET"
	EnvJWTIssuer  = "RECHARGE_JWT_ISSUER"
	EnvJWTExpMins = "RECHARGE_JWT_EXPIRATION_MINUTES"

	EnvGCPProjectID = "RECHARGE_GCP_PROJECT_ID"

	EnvCodesExpiryHorizonDays = "RECHARGE_CODES_EXPIRY_HORIZON_DAYS"
	EnvRemindersTimezone      = "RECHARGE_REMINDERS_TIMEZONE"
	EnvRemindersSendTimeout   = "RECHARGE_REMINDERS_SEND_TIMEOUT"

	EnvWhatsAppEnabled = "RECHARGE_WHATSAPP_ENABLED"
	EnvWhatsAppBaseURL = "RECHARGE_WHATSAPP_BASE_URL"
	EnvWhatsAppToken   = "RECHARGE_WHATSAPP_TOKEN"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
