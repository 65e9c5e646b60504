package config

import (
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/pkg/errors"
)

var config *Config

// Config holds every setting the binaries read. Nothing else in the module
// reads the environment directly.
type Config struct {
	AppEnv              string `env:"APP_ENV,default=dev"`
	AppName             string `env:"APP_NAME,default=sms_credits"`
	AppDebug            bool   `env:"APP_DEBUG,default=true"`
	AppDebugMetricsAddr string `env:"APP_DEBUG_METRIC_ADDR"`
	AppDebugMetricsURI  string `env:"APP_DEBUG_METRIC_URI,default=/metrics"`
	AppBaseUrl          string `env:"APP_BASE_URL,default=http://localhost:8080"`

	HttpListenAddr     string `env:"HTTP_LISTEN_ADDR,default=:8080"`
	HttpBaseRequestUrl string `env:"HTTP_BASE_REQUEST_URI,default=/api/v1"`

	PostgresReadHost     string `env:"POSTGRES_READ_HOST"`
	PostgresReadPort     string `env:"POSTGRES_READ_PORT,default=5432"`
	PostgresReadUser     string `env:"POSTGRES_READ_USER"`
	PostgresReadPassword string `env:"POSTGRES_READ_PASSWORD"`
	PostgresReadDatabase string `env:"POSTGRES_READ_DBNAME"`

	PostgresWriteHost     string `env:"POSTGRES_WRITE_HOST"`
	PostgresWritePort     string `env:"POSTGRES_WRITE_PORT,default=5432"`
	PostgresWriteUser     string `env:"POSTGRES_WRITE_USER"`
	PostgresWritePassword string `env:"POSTGRES_WRITE_PASSWORD"`
	PostgresWriteDatabase string `env:"POSTGRES_WRITE_DBNAME"`
	PostgresSSLMode       string `env:"POSTGRES_SSL_MODE,default=disable"`

	RedisAddr               string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisUsername           string `env:"REDIS_USER"`
	RedisPassword           string `env:"REDIS_PASS"`
	RedisDatabase           int    `env:"REDIS_DATABASE"`
	RedisUniversalKeyPrefix string `env:"REDIS_UNIVERSAL_KEY_PREFIX,default=smscredits:"`

	PromNamespace string `env:"PROM_NAMESPACE,default=smscredits"`

	JWTSecret      string `env:"JWT_SECRET"`
	JWTExpireHours int    `env:"JWT_EXPIRE_HOURS,default=24"`

	MpesaPrimaryUrl     string        `env:"MPESA_PRIMARY_URL,default=https://sandbox.safaricom.co.ke"`
	MpesaSecondaryUrl   string        `env:"MPESA_SECONDARY_URL"`
	MpesaConsumerKey    string        `env:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret string        `env:"MPESA_CONSUMER_SECRET"`
	MpesaShortCode      string        `env:"MPESA_SHORTCODE,default=174379"`
	MpesaPassKey        string        `env:"MPESA_PASSKEY"`
	MpesaCallbackURL    string        `env:"MPESA_CALLBACK_URL"`
	MpesaCallbackToken  string        `env:"MPESA_CALLBACK_TOKEN"`
	MpesaTimeout        time.Duration `env:"MPESA_TIMEOUT,default=30s"`

	SmsPrimaryUrl   string        `env:"SMS_PRIMARY_URL,default=https://api.sandbox.africastalking.com"`
	SmsSecondaryUrl string        `env:"SMS_SECONDARY_URL"`
	SmsUsername     string        `env:"SMS_USERNAME,default=sandbox"`
	SmsApiKey       string        `env:"SMS_API_KEY"`
	SmsSenderID     string        `env:"SMS_SENDER_ID"`
	SmsTimeout      time.Duration `env:"SMS_TIMEOUT,default=30s"`

	PaymentRechargeCreditsPerUnit uint `env:"PAYMENT_RECHARGE_CREDITS_PER_UNIT,default=1"`
	PlanCacheSize                 int  `env:"PLAN_CACHE_SIZE,default=64"`

	DispatchMaxRecipients int `env:"DISPATCH_MAX_RECIPIENTS,default=1000"`
	DispatchMaxBodyLength int `env:"DISPATCH_MAX_BODY_LENGTH,default=918"`

	SweepInterval    time.Duration `env:"SWEEP_INTERVAL,default=1m"`
	SweepGracePeriod time.Duration `env:"SWEEP_GRACE_PERIOD,default=10m"`
	SweepExpireAfter time.Duration `env:"SWEEP_EXPIRE_AFTER,default=24h"`
	SweepBatchSize   int           `env:"SWEEP_BATCH_SIZE,default=100"`

	InboxName              string        `env:"INBOX_NAME,default=callbacks"`
	InboxConsumerGroup     string        `env:"INBOX_CONSUMER_GROUP,default=reconcilers"`
	InboxConsumerName      string        `env:"INBOX_CONSUMER_NAME,default=processor-1"`
	InboxConsumers         int           `env:"INBOX_CONSUMERS,default=4"`
	InboxMaxRetries        int           `env:"INBOX_MAX_RETRIES,default=5"`
	InboxVisibilityTimeout time.Duration `env:"INBOX_VISIBILITY_TIMEOUT,default=30s"`
	InboxPollInterval      time.Duration `env:"INBOX_POLL_INTERVAL,default=1s"`
	InboxBatchSize         int64         `env:"INBOX_BATCH_SIZE,default=10"`
	InboxMaxLen            int64         `env:"INBOX_MAX_LEN,default=100000"`
	InboxEnableDLQ         bool          `env:"INBOX_ENABLE_DLQ,default=true"`
}

func Load(path string) error {
	logger.Info("loading configs..", "path", path)
	c := &Config{}
	var err error
	if path != "" {
		logger.Info("trying to publish env from file", "path", path)
		err = godotenv.Load(path)
		if err != nil {
			return errors.New("failed to load configuration file " + path + " error: " + err.Error())
		}
	}

	_, err = env.UnmarshalFromEnviron(c)
	if err != nil {
		return errors.Wrap(err, "failed to map env variables to Configuration object")
	}

	config = c
	return nil
}

func Get() *Config {
	if config == nil {
		logger.Panic("Config is not initialized")
	}
	return config
}

// Set replaces the global config; used by tests and by commands that build
// a Config from flags.
func Set(c *Config) {
	config = c
}
