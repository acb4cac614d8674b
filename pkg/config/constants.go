package config

// EnvPrefix is handed to envconfig; every field carries an explicit variable name.
const EnvPrefix = "FARMGATE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv              = "FARMGATE_APP_ENV"
	EnvPort                = "FARMGATE_APP_PORT"
	EnvDBDSN               = "FARMGATE_DB_DSN"
	EnvDBHost              = "FARMGATE_DB_HOST"
	EnvDBUser              = "FARMGATE_DB_USER"
	EnvDBName              = "FARMGATE_DB_NAME"
	EnvUseSQLite           = "FARMGATE_USE_SQLITE"
	EnvRedisURL            = "FARMGATE_REDIS_URL"
	EnvJWTSecret           = "FARMGATE_JWT_SECRET"
	EnvJWTIssuer           = "FARMGATE_JWT_ISSUER"
	EnvBackendBaseURL      = "FARMGATE_BACKEND_BASE_URL"
	EnvShippingFee         = "FARMGATE_CHECKOUT_SHIPPING_FEE_CENTS"
	EnvSquareToken         = "FARMGATE_SQUARE_ACCESS_TOKEN"
	EnvSquareLocation      = "FARMGATE_SQUARE_LOCATION_ID"
	EnvPubSubCheckoutTopic = "FARMGATE_PUBSUB_CHECKOUT_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
