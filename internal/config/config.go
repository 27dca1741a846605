package config

import (
	"strings"

	"github.com/urfave/cli/v2"
)

type Config struct {
	Port          int
	ProviderPort  int
	DBPath        string
	MigrationsDir string
	RedisAddr     string
	LogJSON       bool
	APISecret     string

	// Provider simulator
	DBSource       string
	SecretKey      string
	PublishableKey string
	WebhookURL     string
	WebhookSecret  string

	// Storefront side of the provider
	ProviderURL    string
	Currency       string
	CheckoutAPIURL string

	KafkaBrokers []string
	KafkaTopic   string
}

func Default() Config {
	return Config{
		Port:           8080,
		ProviderPort:   8090,
		DBPath:         "cartpay.db",
		MigrationsDir:  "db/migrations",
		LogJSON:        false,
		APISecret:      "default-secret",
		SecretKey:      "sk_test_cartpay",
		PublishableKey: "pk_test_cartpay",
		WebhookURL:     "http://localhost:8080/api/v1/payment/webhook",
		WebhookSecret:  "whsec_cartpay",
		ProviderURL:    "http://localhost:8090",
		Currency:       "usd",
		KafkaTopic:     "orders",
	}
}

// DefaultAPISecret reports whether tokens would be signed with the built-in
// secret.
func (c Config) DefaultAPISecret() bool {
	return c.APISecret == Default().APISecret
}

// Flags are the command line flags of the binary. Each one can also be set
// through the environment variable of the same name.
func Flags() []cli.Flag {
	d := Default()
	return []cli.Flag{
		&cli.IntFlag{Name: "port", Value: d.Port, EnvVars: []string{"PORT"}, Usage: "storefront HTTP port"},
		&cli.IntFlag{Name: "provider-port", Value: d.ProviderPort, EnvVars: []string{"PROVIDER_PORT"}, Usage: "provider simulator port, 0 disables it"},
		&cli.StringFlag{Name: "db-path", Value: d.DBPath, EnvVars: []string{"DB_PATH"}, Usage: "storefront SQLite file"},
		&cli.StringFlag{Name: "migrations-dir", Value: d.MigrationsDir, EnvVars: []string{"MIGRATIONS_DIR"}},
		&cli.StringFlag{Name: "redis-addr", Value: d.RedisAddr, EnvVars: []string{"REDIS_ADDR"}, Usage: "cart state Redis; empty keeps state in memory"},
		&cli.BoolFlag{Name: "log-json", Value: d.LogJSON, EnvVars: []string{"LOG_JSON"}},
		&cli.StringFlag{Name: "api-secret", Value: d.APISecret, EnvVars: []string{"API_SECRET"}, Usage: "JWT signing secret"},
		&cli.StringFlag{Name: "db-source", Value: d.DBSource, EnvVars: []string{"DB_SOURCE"}, Usage: "Postgres DSN for provider intents; empty keeps them in memory"},
		&cli.StringFlag{Name: "provider-secret-key", Value: d.SecretKey, EnvVars: []string{"PROVIDER_SECRET_KEY"}},
		&cli.StringFlag{Name: "provider-publishable-key", Value: d.PublishableKey, EnvVars: []string{"PROVIDER_PUBLISHABLE_KEY"}},
		&cli.StringFlag{Name: "webhook-url", Value: d.WebhookURL, EnvVars: []string{"WEBHOOK_URL"}},
		&cli.StringFlag{Name: "webhook-secret", Value: d.WebhookSecret, EnvVars: []string{"WEBHOOK_SECRET"}},
		&cli.StringFlag{Name: "provider-url", Value: d.ProviderURL, EnvVars: []string{"PROVIDER_URL"}},
		&cli.StringFlag{Name: "currency", Value: d.Currency, EnvVars: []string{"CURRENCY"}},
		&cli.StringFlag{Name: "checkout-api-url", Value: d.CheckoutAPIURL, EnvVars: []string{"CHECKOUT_API_URL"}, Usage: "remote payment backend; empty processes payments in-process"},
		&cli.StringFlag{Name: "kafka-brokers", Value: strings.Join(d.KafkaBrokers, ","), EnvVars: []string{"KAFKA_BROKERS"}, Usage: "comma separated; empty disables order events"},
		&cli.StringFlag{Name: "kafka-topic", Value: d.KafkaTopic, EnvVars: []string{"KAFKA_TOPIC"}},
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FromContext reads the flags declared by Flags.
func FromContext(c *cli.Context) Config {
	return Config{
		Port:           c.Int("port"),
		ProviderPort:   c.Int("provider-port"),
		DBPath:         c.String("db-path"),
		MigrationsDir:  c.String("migrations-dir"),
		RedisAddr:      c.String("redis-addr"),
		LogJSON:        c.Bool("log-json"),
		APISecret:      c.String("api-secret"),
		DBSource:       c.String("db-source"),
		SecretKey:      c.String("provider-secret-key"),
		PublishableKey: c.String("provider-publishable-key"),
		WebhookURL:     c.String("webhook-url"),
		WebhookSecret:  c.String("webhook-secret"),
		ProviderURL:    c.String("provider-url"),
		Currency:       strings.ToLower(c.String("currency")),
		CheckoutAPIURL: c.String("checkout-api-url"),
		KafkaBrokers:   splitList(c.String("kafka-brokers")),
		KafkaTopic:     c.String("kafka-topic"),
	}
}
