package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string           `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTPServer HTTPServerConfig `yaml:"http_server"`
	Mongo      MongoConfig      `yaml:"mongo"`
	JWT        JWTConfig        `yaml:"jwt"`
	Redis      RedisConfig      `yaml:"redis"`
	RabbitMQ   RabbitMQConfig   `yaml:"rabbitmq"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Mpesa      MpesaConfig      `yaml:"mpesa"`
}

type HTTPServerConfig struct {
	Address     string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	Timeout     time.Duration `yaml:"timeout" env:"HTTP_TIMEOUT" env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

type MongoConfig struct {
	URI    string `yaml:"uri" env:"MONGO_URI" env-default:"mongodb://localhost:27017"`
	DBName string `yaml:"db_name" env:"DB_NAME" env-default:"storefront"`
}

type JWTConfig struct {
	Secret         string        `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"24h"`
}

// RedisConfig is optional; without an address the M-Pesa token is fetched per request.
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// RabbitMQConfig is optional; without a URL events are only logged.
type RabbitMQConfig struct {
	URL      string `yaml:"-" env:"RABBITMQ_URL"`
	Exchange string `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"storefront.orders"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"-" env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `yaml:"-" env:"STRIPE_WEBHOOK_SECRET"`
	Currency      string `yaml:"currency" env:"STRIPE_CURRENCY" env-default:"usd"`
}

type MpesaConfig struct {
	BaseURL         string        `yaml:"base_url" env:"MPESA_BASE_URL" env-default:"https://sandbox.safaricom.co.ke"`
	ConsumerKey     string        `yaml:"-" env:"CONSUMER_KEY"`
	ConsumerSecret  string        `yaml:"-" env:"CONSUMER_SECRET"`
	ShortCode       string        `yaml:"short_code" env:"BUSINESS_SHORTCODE"`
	PassKey         string        `yaml:"-" env:"PASSKEY"`
	CallbackURL     string        `yaml:"callback_url" env:"CALLBACK_URL"`
	CallbackSecret  string        `yaml:"-" env:"MPESA_CALLBACK_SECRET"`
	TransactionType string        `yaml:"transaction_type" env:"MPESA_TRANSACTION_TYPE" env-default:"CustomerPayBillOnline"`
	TransactionDesc string        `yaml:"transaction_desc" env:"MPESA_TRANSACTION_DESC" env-default:"Checkout payment"`
	CountryCode     string        `yaml:"country_code" env:"MPESA_COUNTRY_CODE" env-default:"254"`
	ConversionRate  float64       `yaml:"conversion_rate" env:"MPESA_CONVERSION_RATE" env-default:"135"`
	Timeout         time.Duration `yaml:"timeout" env:"MPESA_TIMEOUT" env-default:"10s"`
}

// MustLoad reads .env (if any), then the YAML file named by -config or
// CONFIG_PATH (if any), then the environment. It panics on invalid config.
func MustLoad() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}

	cfg, err := Load(fetchConfigPath())
	if err != nil {
		panic(err)
	}
	return cfg
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

// Load builds the config from an optional YAML file plus the environment.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read env config: %w", err)
		}
		return &cfg, cfg.validate()
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Mpesa.ConversionRate <= 0 {
		return fmt.Errorf("mpesa conversion rate must be positive, got %v", c.Mpesa.ConversionRate)
	}
	if c.Mpesa.CallbackSecret == "" {
		c.Mpesa.CallbackSecret = c.JWT.Secret
	}
	return nil
}
