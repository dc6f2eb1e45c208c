package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var config = viper.New()

// Config is loaded once at process start and treated as immutable afterwards.
// Role and window settings feed the lifecycle engine through constructors,
// never through globals.
type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	Server     struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
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
	Esign struct {
		// Pre-shared HMAC key used to verify webhook payloads.
		WebhookKey string `mapstructure:"WEBHOOK_KEY"`
		// The provider presents its HMAC in either of two header slots
		// depending on the account's connect-configuration version. Both
		// stay permanently valid.
		SignatureHeaders []string `mapstructure:"SIGNATURE_HEADERS"`
		MaxBodyBytes     int64    `mapstructure:"MAX_BODY_BYTES"`
	} `mapstructure:"ESIGN"`
	FeeAgreement struct {
		// Agreements that never reach a terminal state are expired by the
		// sweep once this window has elapsed since their last transition.
		ExpirationWindow time.Duration `mapstructure:"EXPIRATION_WINDOW"`
		// Reminders go out when an unsigned agreement is within this window
		// of its deadline.
		ReminderWindow     time.Duration `mapstructure:"REMINDER_WINDOW"`
		SweepInterval      time.Duration `mapstructure:"SWEEP_INTERVAL"`
		SweepConcurrency   int           `mapstructure:"SWEEP_CONCURRENCY"`
		RequireCountersign bool          `mapstructure:"REQUIRE_COUNTERSIGN"`
	} `mapstructure:"FEE_AGREEMENT"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))

func LoadConfig() *Config {

	config.SetConfigName("config")
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()

	setDefaults()

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	return &cfg
}

func setDefaults() {
	config.SetDefault("APP_ENV", "development")
	config.SetDefault("APP_NAME", "recruitflow-crm")
	config.SetDefault("HTTP_SERVER.ADDR", ":8080")
	config.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	config.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	config.SetDefault("DATABASE.TYPE", "postgres")
	config.SetDefault("DATABASE.SSLMODE", "disable")
	config.SetDefault("REDIS.ADDR", "127.0.0.1:6379")
	config.SetDefault("ESIGN.SIGNATURE_HEADERS", []string{"X-Esign-Signature-1", "X-Esign-Signature-2"})
	config.SetDefault("ESIGN.MAX_BODY_BYTES", int64(5<<20))
	config.SetDefault("FEE_AGREEMENT.EXPIRATION_WINDOW", 30*24*time.Hour)
	config.SetDefault("FEE_AGREEMENT.REMINDER_WINDOW", 5*24*time.Hour)
	config.SetDefault("FEE_AGREEMENT.SWEEP_INTERVAL", time.Hour)
	config.SetDefault("FEE_AGREEMENT.SWEEP_CONCURRENCY", 8)
	config.SetDefault("FEE_AGREEMENT.REQUIRE_COUNTERSIGN", true)
}
