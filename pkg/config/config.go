package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	FeatureFlags  FeatureFlagsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	Onboarding    OnboardingConfig
	Notifications NotificationsConfig
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Onboarding.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"ONBOARDING_APP_ENV" required:"true" validate:"required"`
	Port         string `envconfig:"ONBOARDING_APP_PORT" default:"8080" validate:"required,numeric"`
	LogLevel     string `envconfig:"ONBOARDING_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ONBOARDING_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ONBOARDING_SERVICE_KIND" default:"onboarding-worker"`
}

type DBConfig struct {
	DSN    string `envconfig:"ONBOARDING_DB_DSN"`
	Driver string `envconfig:"ONBOARDING_DB_DRIVER" default:"postgres" validate:"oneof=postgres sqlite"`

	LegacyHost     string `envconfig:"ONBOARDING_DB_HOST"`
	LegacyPort     int    `envconfig:"ONBOARDING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ONBOARDING_DB_USER"`
	LegacyPassword string `envconfig:"ONBOARDING_DB_PASSWORD"`
	LegacyName     string `envconfig:"ONBOARDING_DB_NAME"`
	LegacySSLMode  string `envconfig:"ONBOARDING_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ONBOARDING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ONBOARDING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ONBOARDING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ONBOARDING_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"ONBOARDING_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ONBOARDING_REDIS_URL"`
	Address      string        `envconfig:"ONBOARDING_REDIS_ADDR"`
	Password     string        `envconfig:"ONBOARDING_REDIS_PASSWORD"`
	DB           int           `envconfig:"ONBOARDING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ONBOARDING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ONBOARDING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ONBOARDING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ONBOARDING_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ONBOARDING_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ONBOARDING_AUTO_MIGRATE" default:"false"`
	Warnings    bool `envconfig:"ONBOARDING_FEATURE_DEADLINE_WARNINGS" default:"true"`
	// SingleSweeper makes scheduled sweeps take a redis lock so only one
	// instance sweeps per tick. Manual triggers ignore it.
	SingleSweeper bool `envconfig:"ONBOARDING_FEATURE_SINGLE_SWEEPER" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ONBOARDING_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ONBOARDING_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	NotificationTopic string `envconfig:"ONBOARDING_PUBSUB_NOTIFICATION_TOPIC"`
}

// Enabled reports whether notifications should be published to Pub/Sub.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.NotificationTopic) != ""
}

type OnboardingConfig struct {
	ApplicationWindowBusinessDays int           `envconfig:"ONBOARDING_APPLICATION_WINDOW_BUSINESS_DAYS" default:"3" validate:"gte=1"`
	OnboardingWindowBusinessDays  int           `envconfig:"ONBOARDING_ONBOARDING_WINDOW_BUSINESS_DAYS" default:"1" validate:"gte=1"`
	SweepIntervalSeconds          int           `envconfig:"ONBOARDING_SWEEP_INTERVAL_SECONDS" default:"60" validate:"gte=1"`
	StaleClaimTimeoutSeconds      int           `envconfig:"ONBOARDING_STALE_CLAIM_TIMEOUT_SECONDS" default:"300" validate:"gte=1"`
	ApproachingWindowBusinessDays int           `envconfig:"ONBOARDING_APPROACHING_WINDOW_BUSINESS_DAYS" default:"1" validate:"gte=1"`
	SweepConcurrency              int           `envconfig:"ONBOARDING_SWEEP_CONCURRENCY" default:"4" validate:"gte=1,lte=64"`
	ManualTriggerTimeout          time.Duration `envconfig:"ONBOARDING_MANUAL_TRIGGER_TIMEOUT" default:"30s" validate:"gt=0"`
	WarningCooldown               time.Duration `envconfig:"ONBOARDING_WARNING_COOLDOWN" default:"24h" validate:"gt=0"`
	Holidays                      []string      `envconfig:"ONBOARDING_HOLIDAYS" validate:"dive,datetime=2006-01-02"`
	HolidaysFile                  string        `envconfig:"ONBOARDING_HOLIDAYS_FILE"`
	Timezone                      string        `envconfig:"ONBOARDING_TIMEZONE" default:"UTC"`
}

func (o OnboardingConfig) SweepInterval() time.Duration {
	return time.Duration(o.SweepIntervalSeconds) * time.Second
}

func (o OnboardingConfig) StaleClaimTimeout() time.Duration {
	return time.Duration(o.StaleClaimTimeoutSeconds) * time.Second
}

// Location resolves the timezone business days are evaluated in.
func (o OnboardingConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(o.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

type NotificationsConfig struct {
	QueueSize int `envconfig:"ONBOARDING_NOTIFICATIONS_QUEUE_SIZE" default:"256" validate:"gte=1"`
	Workers   int `envconfig:"ONBOARDING_NOTIFICATIONS_WORKERS" default:"2" validate:"gte=1"`
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
