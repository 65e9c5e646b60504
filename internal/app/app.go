// Package app wires configuration into the concrete stores, gateways and
// services shared by the binaries under cmd/.
package app

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/sms-credits/internal/config"
	gateway "github.com/nimasrn/sms-credits/internal/gateways"
	"github.com/nimasrn/sms-credits/internal/queue"
	"github.com/nimasrn/sms-credits/internal/repository"
	"github.com/nimasrn/sms-credits/internal/services"
	"github.com/nimasrn/sms-credits/pkg/logger"
	"github.com/nimasrn/sms-credits/pkg/pg"
	"github.com/nimasrn/sms-credits/pkg/prom"
	"github.com/nimasrn/sms-credits/pkg/redis"
)

// EnvPathFromArgs returns the value of a "--env=path" argument if the file
// exists.
func EnvPathFromArgs(args []string) string {
	for _, v := range args {
		path, ok := strings.CutPrefix(v, "--env=")
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			logger.Error("failed to open the passed env file", "path", path, "error", err)
			return ""
		}
		return path
	}
	return ""
}

func PostgresConfigs(c *config.Config) (read pg.Config, write pg.Config) {
	read = pg.Config{
		User:     c.PostgresReadUser,
		Host:     c.PostgresReadHost,
		Port:     c.PostgresReadPort,
		Password: c.PostgresReadPassword,
		Database: c.PostgresReadDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
	write = pg.Config{
		User:     c.PostgresWriteUser,
		Host:     c.PostgresWriteHost,
		Port:     c.PostgresWritePort,
		Password: c.PostgresWritePassword,
		Database: c.PostgresWriteDatabase,
		SSLMode:  c.PostgresSSLMode,
	}
	// a single database deployment only sets the write side
	if read.Host == "" {
		read = write
	}
	return read, write
}

func OpenDB(c *config.Config) (*pg.DB, error) {
	read, write := PostgresConfigs(c)
	return pg.CreateReadWrite(read, write, c.AppEnv == "dev" && c.AppDebug)
}

func OpenRedis(c *config.Config, connName string) (redis.RedisAdapter, error) {
	return redis.NewRedisAdapter(connName, c.RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{c.RedisAddr},
		ClientName: connName,
		DB:         c.RedisDatabase,
		Username:   c.RedisUsername,
		Password:   c.RedisPassword,
	})
}

func providers(primary, secondary string) []gateway.ProviderConfig {
	out := []gateway.ProviderConfig{{Name: "primary", URL: primary, Weight: 100}}
	if secondary != "" {
		out = append(out, gateway.ProviderConfig{Name: "secondary", URL: secondary, Weight: 80})
	}
	return out
}

func NewMpesaClient(c *config.Config, tokens gateway.TokenCache) (*gateway.MpesaClient, *gateway.Pool, error) {
	pool, err := gateway.NewPool(gateway.PoolConfig{
		Name:                    "mpesa",
		Providers:               providers(c.MpesaPrimaryUrl, c.MpesaSecondaryUrl),
		Timeout:                 c.MpesaTimeout,
		MaxConns:                256,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("mpesa pool: %w", err)
	}

	client := gateway.NewMpesaClient(pool, gateway.MpesaConfig{
		ConsumerKey:    c.MpesaConsumerKey,
		ConsumerSecret: c.MpesaConsumerSecret,
		ShortCode:      c.MpesaShortCode,
		PassKey:        c.MpesaPassKey,
		CallbackURL:    MpesaCallbackURL(c),
	}, tokens)
	return client, pool, nil
}

// MpesaCallbackURL is the URL Daraja posts results to, carrying the
// callback token when one is configured.
func MpesaCallbackURL(c *config.Config) string {
	callbackURL := c.MpesaCallbackURL
	if callbackURL == "" {
		callbackURL = strings.TrimRight(c.AppBaseUrl, "/") + c.HttpBaseRequestUrl + "/payments/callback"
	}
	if c.MpesaCallbackToken != "" {
		callbackURL += "?token=" + url.QueryEscape(c.MpesaCallbackToken)
	}
	return callbackURL
}

func NewSMSClient(c *config.Config) (*gateway.SMSClient, *gateway.Pool, error) {
	pool, err := gateway.NewPool(gateway.PoolConfig{
		Name:                    "sms",
		Providers:               providers(c.SmsPrimaryUrl, c.SmsSecondaryUrl),
		Timeout:                 c.SmsTimeout,
		MaxConns:                256,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("sms pool: %w", err)
	}
	return gateway.NewSMSClient(pool, gateway.SMSConfig{
		Username: c.SmsUsername,
		APIKey:   c.SmsApiKey,
		SenderID: c.SmsSenderID,
	}), pool, nil
}

func InboxQueueConfig(c *config.Config) queue.QueueConfig {
	return queue.QueueConfig{
		Name:              c.InboxName,
		ConsumerGroup:     c.InboxConsumerGroup,
		ConsumerName:      c.InboxConsumerName,
		MaxRetries:        c.InboxMaxRetries,
		VisibilityTimeout: c.InboxVisibilityTimeout,
		PollInterval:      c.InboxPollInterval,
		BatchSize:         c.InboxBatchSize,
		MaxLen:            c.InboxMaxLen,
		EnableDLQ:         c.InboxEnableDLQ,
	}
}

type Services struct {
	Payments *services.PaymentService
	Dispatch *services.DispatchService
	Credits  *services.CreditService
	Plans    *services.PlanService
	Health   *services.HealthService
}

// NewServices builds every service over db. sms may be nil for binaries
// that never send messages.
func NewServices(c *config.Config, db *pg.DB, rds redis.RedisAdapter, mpesa services.PaymentGateway, sms services.MessagingGateway) (*Services, error) {
	users := repository.NewUserRepository(db)
	transactions := repository.NewTransactionRepository(db)

	plans, err := services.NewPlanService(repository.NewPlanRepository(db), c.PlanCacheSize)
	if err != nil {
		return nil, err
	}

	out := &Services{
		Plans:   plans,
		Credits: services.NewCreditService(users),
		Payments: services.NewPaymentService(db, users, transactions, plans, mpesa, services.PaymentConfig{
			RechargeCreditsPerUnit: c.PaymentRechargeCreditsPerUnit,
			SweepGracePeriod:       c.SweepGracePeriod,
			SweepExpireAfter:       c.SweepExpireAfter,
			SweepBatchSize:         c.SweepBatchSize,
		}),
		Health: services.NewHealthService(map[string]services.Pinger{
			"postgres": db,
			"redis":    rds,
		}),
	}
	if sms != nil {
		out.Dispatch = services.NewDispatchService(db, users, transactions,
			repository.NewMessageRepository(db),
			repository.NewDeliveryReportRepository(db),
			sms,
			services.DispatchConfig{
				MaxRecipients: c.DispatchMaxRecipients,
				MaxBodyLength: c.DispatchMaxBodyLength,
			})
	}
	return out, nil
}

// StartMetrics registers the prometheus metrics and, when an address is
// configured, serves them in the background.
func StartMetrics(c *config.Config) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, c.AppEnv, c.PromNamespace); err != nil {
		return err
	}
	if c.AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(c.AppDebugMetricsAddr, c.AppDebugMetricsURI)
	}
	return nil
}
