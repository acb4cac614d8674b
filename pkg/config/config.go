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
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Backend      BackendConfig
	Square       SquareConfig
	Payments     PaymentsConfig
	Checkout     CheckoutConfig
	Cart         CartConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Backend.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"FARMGATE_APP_ENV" required:"true"`
	Port         string `envconfig:"FARMGATE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FARMGATE_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"FARMGATE_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"FARMGATE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"FARMGATE_DB_DSN"`
	Driver string `envconfig:"FARMGATE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FARMGATE_DB_HOST"`
	LegacyPort     int    `envconfig:"FARMGATE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FARMGATE_DB_USER"`
	LegacyPassword string `envconfig:"FARMGATE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FARMGATE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FARMGATE_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"FARMGATE_SQLITE_PATH" default:"farmgate.db"`

	MaxOpenConns    int           `envconfig:"FARMGATE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FARMGATE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FARMGATE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FARMGATE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"FARMGATE_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FARMGATE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FARMGATE_REDIS_ADDR"`
	Password     string        `envconfig:"FARMGATE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FARMGATE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FARMGATE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FARMGATE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FARMGATE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FARMGATE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FARMGATE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FARMGATE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FARMGATE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FARMGATE_JWT_EXPIRATION_MINUTES" default:"60"`
}

// BackendConfig points at the marketplace backend; every endpoint is relative to BaseURL.
type BackendConfig struct {
	BaseURL       string        `envconfig:"FARMGATE_BACKEND_BASE_URL" required:"true"`
	Timeout       time.Duration `envconfig:"FARMGATE_BACKEND_TIMEOUT" default:"15s"`
	SessionCheck  bool          `envconfig:"FARMGATE_BACKEND_SESSION_CHECK" default:"false"`
	UserAgentName string        `envconfig:"FARMGATE_BACKEND_USER_AGENT" default:"farmgate-checkout"`
}

func (b BackendConfig) validate() error {
	raw := strings.TrimSpace(b.BaseURL)
	if raw == "" {
		return fmt.Errorf("%s is required", EnvBackendBaseURL)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute url", EnvBackendBaseURL)
	}
	return nil
}

type SquareConfig struct {
	AccessToken string `envconfig:"FARMGATE_SQUARE_ACCESS_TOKEN"`
	LocationID  string `envconfig:"FARMGATE_SQUARE_LOCATION_ID"`
	Env         string `envconfig:"FARMGATE_SQUARE_ENV" default:"sandbox"`
	Currency    string `envconfig:"FARMGATE_SQUARE_CURRENCY" default:"USD"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

// Enabled reports whether enough credentials exist to talk to Square at all.
func (s SquareConfig) Enabled() bool {
	return strings.TrimSpace(s.AccessToken) != "" && strings.TrimSpace(s.LocationID) != ""
}

type PaymentsConfig struct {
	ForceSimulated   bool          `envconfig:"FARMGATE_PAYMENTS_FORCE_SIMULATED" default:"false"`
	ProbeTimeout     time.Duration `envconfig:"FARMGATE_PAYMENTS_PROBE_TIMEOUT" default:"3s"`
	SimulatedLatency time.Duration `envconfig:"FARMGATE_PAYMENTS_SIMULATED_LATENCY" default:"1500ms"`
}

type CheckoutConfig struct {
	ShippingFeeCents int64         `envconfig:"FARMGATE_CHECKOUT_SHIPPING_FEE_CENTS" default:"250"`
	Currency         string        `envconfig:"FARMGATE_CHECKOUT_CURRENCY" default:"USD"`
	LogoutDelay      time.Duration `envconfig:"FARMGATE_CHECKOUT_LOGOUT_DELAY" default:"3s"`
	AttemptTTL       time.Duration `envconfig:"FARMGATE_CHECKOUT_ATTEMPT_TTL" default:"30m"`
	AbandonedAfter   time.Duration `envconfig:"FARMGATE_CHECKOUT_ABANDONED_AFTER" default:"1h"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"FARMGATE_CART_TTL" default:"720h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"FARMGATE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"FARMGATE_AUTO_MIGRATE" default:"false"`
}

// RateLimitConfig throttles checkout submissions per IP and per device.
type RateLimitConfig struct {
	SubmitWindow      time.Duration `envconfig:"FARMGATE_RATE_LIMIT_SUBMIT_WINDOW" default:"1m"`
	SubmitIPLimit     int           `envconfig:"FARMGATE_RATE_LIMIT_SUBMIT_IP" default:"30"`
	SubmitClientLimit int           `envconfig:"FARMGATE_RATE_LIMIT_SUBMIT_CLIENT" default:"10"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"FARMGATE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FARMGATE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FARMGATE_GCP_CREDENTIALS_JSON"`
}

// OutboxConfig routes checkout events through the outbox_events table instead of
// publishing them inline.
type OutboxConfig struct {
	Enabled        bool          `envconfig:"FARMGATE_OUTBOX_ENABLED" default:"false"`
	BatchSize      int           `envconfig:"FARMGATE_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FARMGATE_OUTBOX_POLL_INTERVAL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FARMGATE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FARMGATE_OUTBOX_RETENTION" default:"168h"`
}

type PubSubConfig struct {
	CheckoutTopic string `envconfig:"FARMGATE_PUBSUB_CHECKOUT_TOPIC"`
}

// Enabled reports whether checkout outcome events should be published.
func (p PubSubConfig) Enabled() bool {
	return strings.TrimSpace(p.CheckoutTopic) != ""
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DBDriverSQLite
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
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
