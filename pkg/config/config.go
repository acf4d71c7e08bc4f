package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App     AppConfig
	Service ServiceConfig
	DB      DBConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Cart    CartConfig
	Device  DeviceConfig
	Metrics MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient parses the subset of configuration needed by device-side tools.
// The API-only sections (port, JWT issuer) are not required.
func LoadClient() (*ClientConfig, error) {
	var cfg ClientConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ClientConfig is the device-side view of the configuration.
type ClientConfig struct {
	LogLevel  string `envconfig:"DASHBITE_LOG_LEVEL" default:"info"`
	JWTSecret string `envconfig:"DASHBITE_JWT_SECRET"`
	JWTIssuer string `envconfig:"DASHBITE_JWT_ISSUER" default:"dashbite"`
	DB        DBConfig
	Redis     ClientRedisConfig
	Cart      CartConfig
	Device    DeviceConfig
	Metrics   MetricsConfig
}

// JWT returns the verification-only JWT settings for device-side token checks.
func (c ClientConfig) JWT() JWTConfig {
	return JWTConfig{Secret: c.JWTSecret, Issuer: c.JWTIssuer}
}

type AppConfig struct {
	Env          string   `envconfig:"DASHBITE_APP_ENV" required:"true"`
	Port         string   `envconfig:"DASHBITE_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"DASHBITE_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"DASHBITE_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool     `envconfig:"DASHBITE_AUTO_MIGRATE" default:"false"`
	CORSOrigins  []string `envconfig:"DASHBITE_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"DASHBITE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"DASHBITE_DB_DSN"`
	Driver string `envconfig:"DASHBITE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"DASHBITE_DB_HOST"`
	LegacyPort     int    `envconfig:"DASHBITE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"DASHBITE_DB_USER"`
	LegacyPassword string `envconfig:"DASHBITE_DB_PASSWORD"`
	LegacyName     string `envconfig:"DASHBITE_DB_NAME"`
	LegacySSLMode  string `envconfig:"DASHBITE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DASHBITE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"DASHBITE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"DASHBITE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"DASHBITE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver is the embedded sqlite driver.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"DASHBITE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"DASHBITE_REDIS_ADDR"`
	Password     string        `envconfig:"DASHBITE_REDIS_PASSWORD"`
	DB           int           `envconfig:"DASHBITE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"DASHBITE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"DASHBITE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"DASHBITE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"DASHBITE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"DASHBITE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ClientRedisConfig mirrors RedisConfig without the required URL; the CLI runs
// without live updates when redis is not configured.
type ClientRedisConfig struct {
	URL     string `envconfig:"DASHBITE_REDIS_URL"`
	Address string `envconfig:"DASHBITE_REDIS_ADDR"`
}

// Enabled reports whether a redis endpoint was configured.
func (r ClientRedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

// Full expands the client view into a RedisConfig with default pool settings.
func (r ClientRedisConfig) Full() RedisConfig {
	return RedisConfig{
		URL:          r.URL,
		Address:      r.Address,
		PoolSize:     4,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

type JWTConfig struct {
	Secret                 string `envconfig:"DASHBITE_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"DASHBITE_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"DASHBITE_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"DASHBITE_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

// CartConfig controls cart identity resolution and count synchronization.
type CartConfig struct {
	DeviceKeyName      string        `envconfig:"DASHBITE_CART_DEVICE_KEY_NAME" default:"cart_device_key"`
	DeviceCookieTTL    time.Duration `envconfig:"DASHBITE_CART_DEVICE_COOKIE_TTL" default:"8760h"`
	DeviceCookieSecure bool          `envconfig:"DASHBITE_CART_DEVICE_COOKIE_SECURE" default:"true"`
	LiveFeedEnabled    bool          `envconfig:"DASHBITE_CART_LIVE_FEED" default:"true"`
	DiscardStale       bool          `envconfig:"DASHBITE_CART_DISCARD_STALE" default:"true"`
}

// DeviceConfig locates the local key-value store used by device-side clients.
type DeviceConfig struct {
	StorePath string `envconfig:"DASHBITE_DEVICE_STORE_PATH" default:"~/.dashbite/device.db"`
	TokenKey  string `envconfig:"DASHBITE_DEVICE_TOKEN_KEY" default:"auth_token"`
}

type MetricsConfig struct {
	Enabled bool   `envconfig:"DASHBITE_METRICS_ENABLED" default:"true"`
	Addr    string `envconfig:"DASHBITE_METRICS_ADDR"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
