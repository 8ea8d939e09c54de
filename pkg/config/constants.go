package config

const (
	EnvPrefix = "ONBOARDING"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "ONBOARDING_APP_ENV"
	EnvPort     = "ONBOARDING_APP_PORT"
	EnvLogLevel = "ONBOARDING_LOG_LEVEL"

	EnvDBDSN  = "ONBOARDING_DB_DSN"
	EnvDBHost = "ONBOARDING_DB_HOST"
	EnvDBUser = "ONBOARDING_DB_USER"
	EnvDBName = "ONBOARDING_DB_NAME"

	EnvRedisURL = "ONBOARDING_REDIS_URL"

	EnvGCPProjectID             = "ONBOARDING_GCP_PROJECT_ID"
	EnvPubSubNotificationTopic  = "ONBOARDING_PUBSUB_NOTIFICATION_TOPIC"
	EnvApplicationWindowDays    = "ONBOARDING_APPLICATION_WINDOW_BUSINESS_DAYS"
	EnvOnboardingWindowDays     = "ONBOARDING_ONBOARDING_WINDOW_BUSINESS_DAYS"
	EnvSweepIntervalSeconds     = "ONBOARDING_SWEEP_INTERVAL_SECONDS"
	EnvStaleClaimTimeoutSeconds = "ONBOARDING_STALE_CLAIM_TIMEOUT_SECONDS"
	EnvApproachingWindowDays    = "ONBOARDING_APPROACHING_WINDOW_BUSINESS_DAYS"
	EnvSweepConcurrency         = "ONBOARDING_SWEEP_CONCURRENCY"
	EnvHolidays                 = "ONBOARDING_HOLIDAYS"
	EnvHolidaysFile             = "ONBOARDING_HOLIDAYS_FILE"
	EnvTimezone                 = "ONBOARDING_TIMEZONE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
