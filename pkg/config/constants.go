package config

const EnvPrefix = "DASHBITE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv                 = "DASHBITE_APP_ENV"
	EnvPort                   = "DASHBITE_APP_PORT"
	EnvDBDSN                  = "DASHBITE_DB_DSN"
	EnvDBDriver               = "DASHBITE_DB_DRIVER"
	EnvDBHost                 = "DASHBITE_DB_HOST"
	EnvDBUser                 = "DASHBITE_DB_USER"
	EnvDBName                 = "DASHBITE_DB_NAME"
	EnvRedisURL               = "DASHBITE_REDIS_URL"
	EnvJWTSecret              = "DASHBITE_JWT_SECRET"
	EnvJWTIssuer              = "DASHBITE_JWT_ISSUER"
	EnvJWTExpMins             = "DASHBITE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "DASHBITE_REFRESH_TOKEN_TTL_MINUTES"
	EnvCartDeviceKeyName      = "DASHBITE_CART_DEVICE_KEY_NAME"
	EnvCartDiscardStale       = "DASHBITE_CART_DISCARD_STALE"
	EnvDeviceStorePath        = "DASHBITE_DEVICE_STORE_PATH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
