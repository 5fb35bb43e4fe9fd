package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/blocktank/channel-backend/internal/types/environments"
)

type AppConfig struct {
	Environment environments.Environment
	ApiServer   ApiServerConfig
	Postgres    DBConnection
	Bitcoin     BitcoinConfig
	Lightning   LightningConfig
	Order       OrderConfig
	ZeroConf    ZeroConfConfig
	Compliance  ComplianceConfig
	Alert       AlertConfig
	Kafka       KafkaConfig
	Auth        AuthConfig
}

type ApiServerConfig struct {
	AllowedOrigins string
}

type DBConnection struct {
	Host string
	Port string
	User string
	Name string
	Pass string

	SSLMode string
}

type BitcoinConfig struct {
	WorkerURL string
	Timeout   time.Duration

	// Network selects the chain parameters used for address validation:
	// mainnet, testnet or regtest.
	Network string
}

type LightningConfig struct {
	WorkerURL string
	Timeout   time.Duration

	// MinWalletBuffer is the on-chain balance kept in reserve: new orders are
	// refused when funding them would dip into it.
	MinWalletBuffer int64
}

type OrderConfig struct {
	// On-chain payments are good funds after this many blocks on top of the
	// payment's block.
	MinConfirmations int64

	// Orders stay payable for this long after creation.
	PaymentWindow time.Duration

	// Channel opener settings.
	MaxChannelOpenAttempts int
	OpenLookback           time.Duration
	OpenBatchSize          int
	ThrottleMaxAttempts    int
	ThrottleWindow         time.Duration

	// Grace window between scheduling a batch close of expired channels and
	// actually closing them. A second trigger inside the window cancels.
	CloseGraceDelay time.Duration
}

type ZeroConfConfig struct {
	// Largest single order total eligible for zero-conf treatment.
	MaxOrderAmount int64
	// Largest single unconfirmed payment accepted.
	MaxPaymentAmount int64
	// Per-block cumulative caps.
	MaxTotalAmount int64
	MaxCount       int64
}

type ComplianceConfig struct {
	WorkerURL string
	Enabled   bool
	Timeout   time.Duration
}

type AlertConfig struct {
	WebhookURL string
}

type KafkaConfig struct {
	Brokers string
	Topic   string
	Enabled bool
}

type AuthConfig struct {
	JWTSecret     string
	AdminUsername string
	AdminPassword string
}

func New() *AppConfig {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// will not override env variables that already exist
	godotenv.Load(".env." + env)

	return &AppConfig{
		Environment: environments.Environment(env),
		ApiServer: ApiServerConfig{
			AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		},
		Postgres: DBConnection{
			Host:    os.Getenv("DB_HOST"),
			Port:    os.Getenv("DB_PORT"),
			User:    os.Getenv("DB_USER"),
			Name:    os.Getenv("DB_NAME"),
			Pass:    os.Getenv("DB_PASS"),
			SSLMode: os.Getenv("DB_SSL_MODE"),
		},
		Bitcoin: BitcoinConfig{
			WorkerURL: os.Getenv("BTC_WORKER_URL"),
			Timeout:   envVarAsDuration("BTC_WORKER_TIMEOUT", 30*time.Second),
			Network:   envVarOrDefault("BTC_NETWORK", "mainnet"),
		},
		Lightning: LightningConfig{
			WorkerURL:       os.Getenv("LN_WORKER_URL"),
			Timeout:         envVarAsDuration("LN_WORKER_TIMEOUT", 60*time.Second),
			MinWalletBuffer: envVarAsInt64("LN_MIN_WALLET_BUFFER", 1_000_000),
		},
		Order: OrderConfig{
			MinConfirmations:       envVarAsInt64("ORDER_MIN_CONFIRMATIONS", 3),
			PaymentWindow:          envVarAsDuration("ORDER_PAYMENT_WINDOW", 3*time.Hour),
			MaxChannelOpenAttempts: int(envVarAsInt64("ORDER_MAX_OPEN_ATTEMPTS", 3)),
			OpenLookback:           envVarAsDuration("ORDER_OPEN_LOOKBACK", 48*time.Hour),
			OpenBatchSize:          int(envVarAsInt64("ORDER_OPEN_BATCH_SIZE", 100)),
			ThrottleMaxAttempts:    int(envVarAsInt64("ORDER_OPEN_THROTTLE_MAX", 10)),
			ThrottleWindow:         envVarAsDuration("ORDER_OPEN_THROTTLE_WINDOW", 60*time.Second),
			CloseGraceDelay:        envVarAsDuration("ORDER_CLOSE_GRACE_DELAY", 30*time.Second),
		},
		ZeroConf: ZeroConfConfig{
			MaxOrderAmount:   envVarAsInt64("ZERO_CONF_MAX_ORDER_AMOUNT", 500_000),
			MaxPaymentAmount: envVarAsInt64("ZERO_CONF_MAX_PAYMENT_AMOUNT", 500_000),
			MaxTotalAmount:   envVarAsInt64("ZERO_CONF_MAX_TOTAL_AMOUNT", 2_000_000),
			MaxCount:         envVarAsInt64("ZERO_CONF_MAX_COUNT", 6),
		},
		Compliance: ComplianceConfig{
			WorkerURL: os.Getenv("COMPLIANCE_WORKER_URL"),
			Enabled:   envVarAsBool("COMPLIANCE_CHECK_ENABLED"),
			Timeout:   envVarAsDuration("COMPLIANCE_WORKER_TIMEOUT", 15*time.Second),
		},
		Alert: AlertConfig{
			WebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   os.Getenv("KAFKA_ORDER_EVENTS_TOPIC"),
			Enabled: envVarAsBool("KAFKA_ENABLED"),
		},
		Auth: AuthConfig{
			JWTSecret:     os.Getenv("AUTH_JWT_SECRET"),
			AdminUsername: os.Getenv("AUTH_ADMIN_USERNAME"),
			AdminPassword: os.Getenv("AUTH_ADMIN_PASSWORD"),
		},
	}
}

func envVarOrDefault(envName, defaultValue string) string {
	value := os.Getenv(envName)
	if value == "" {
		return defaultValue
	}
	return value
}

func envVarAsInt64(envName string, defaultValue int64) int64 {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func envVarAsDuration(envName string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(envName)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func envVarAsBool(envName string) bool {
	return os.Getenv(envName) == "true"
}
