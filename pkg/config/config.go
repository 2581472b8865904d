package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"` // grpc | http
	} `mapstructure:"OTEL"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
		CorsOrigins  []string      `mapstructure:"CORS_ORIGINS"`
	} `mapstructure:"HTTP_SERVER"`
	Grpc struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"GRPC_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		Metrics        bool   `mapstructure:"METRICS"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	Worker struct {
		Concurrency     int           `mapstructure:"CONCURRENCY"`
		ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	} `mapstructure:"WORKER"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Snowflake struct {
		NodeID int64 `mapstructure:"NODE_ID"`
	} `mapstructure:"SNOWFLAKE"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Engagement Engagement `mapstructure:"ENGAGEMENT"`
}

type Engagement struct {
	ReferralCodePrefix string        `mapstructure:"REFERRAL_CODE_PREFIX"`
	ReferralTTL        time.Duration `mapstructure:"REFERRAL_TTL"`
	BadgeCacheTTL      time.Duration `mapstructure:"BADGE_CACHE_TTL"`
	ScanBatchSize      int           `mapstructure:"SCAN_BATCH_SIZE"`
	Schedule           struct {
		BadgeScan      string `mapstructure:"BADGE_SCAN"`
		ReferralTiers  string `mapstructure:"REFERRAL_TIERS"`
		ReferralExpiry string `mapstructure:"REFERRAL_EXPIRY"`
	} `mapstructure:"SCHEDULE"`
	Activity struct {
		UsersTable          string `mapstructure:"USERS_TABLE"`
		UserIDColumn        string `mapstructure:"USER_ID_COLUMN"`
		LastLoginColumn     string `mapstructure:"LAST_LOGIN_COLUMN"`
		SubscriptionsTable  string `mapstructure:"SUBSCRIPTIONS_TABLE"`
		SubscriptionUserCol string `mapstructure:"SUBSCRIPTION_USER_COLUMN"`
		SubscriptionStatus  string `mapstructure:"SUBSCRIPTION_STATUS_COLUMN"`
	} `mapstructure:"ACTIVITY"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {
	// A missing .env is fine outside local development.
	_ = godotenv.Load()

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	if err := config.ReadInConfig(); err != nil {
		zap.L().Error("failed to read config", zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	cfg.applyDefaults()

	return &cfg
}

func (c *Config) applyDefaults() {
	e := &c.Engagement
	if e.ReferralCodePrefix == "" {
		e.ReferralCodePrefix = "GOAL-"
	}
	if e.ReferralTTL <= 0 {
		e.ReferralTTL = 30 * 24 * time.Hour
	}
	if e.BadgeCacheTTL <= 0 {
		e.BadgeCacheTTL = time.Minute
	}
	if e.ScanBatchSize <= 0 {
		e.ScanBatchSize = 250
	}
	if e.Schedule.BadgeScan == "" {
		e.Schedule.BadgeScan = "0 * * * *"
	}
	if e.Schedule.ReferralTiers == "" {
		e.Schedule.ReferralTiers = "*/10 * * * *"
	}
	if e.Schedule.ReferralExpiry == "" {
		e.Schedule.ReferralExpiry = "0 1 * * *"
	}
	a := &e.Activity
	if a.UsersTable == "" {
		a.UsersTable = "users"
	}
	if a.UserIDColumn == "" {
		a.UserIDColumn = "id"
	}
	if a.LastLoginColumn == "" {
		a.LastLoginColumn = "last_login_at"
	}
	if a.SubscriptionsTable == "" {
		a.SubscriptionsTable = "subscriptions"
	}
	if a.SubscriptionUserCol == "" {
		a.SubscriptionUserCol = "user_id"
	}
	if a.SubscriptionStatus == "" {
		a.SubscriptionStatus = "status"
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 10
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Otel.Protocol == "" {
		c.Otel.Protocol = "grpc"
	}
}

// Default returns a configuration with only defaults applied. Used by tests and
// by cmd/migrate when no config file is present.
func Default() *Config {
	var cfg Config
	cfg.AppEnv = "development"
	cfg.AppName = "goalplay-engagement"
	cfg.Database.Type = "sqlite"
	cfg.Database.DBNAME = "engagement.db"
	cfg.Snowflake.NodeID = 1
	cfg.applyDefaults()
	return &cfg
}
