package config

import (
	"fmt"
	"log"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var AppEnv Config

type Config struct {
	Port           string
	MongoURI       string
	DBName         string
	JWTSecret      string
	RequestTimeout time.Duration

	Razorpay RazorpayConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Log      LogConfig

	DeliveryEstimate time.Duration
	// DisplayTimezone names the zone order timeline times are shown in;
	// DisplayLocation is nil when the name does not resolve.
	DisplayTimezone string
	DisplayLocation *time.Location
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Currency  string
}

type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level       string
	Development bool
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_NAME", "bakery")
	v.SetDefault("REQUEST_TIMEOUT", 5*time.Second)
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com/v1")
	v.SetDefault("PAYMENT_CURRENCY", "INR")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	v.SetDefault("KAFKA_TOPIC", "bakery.orders")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("DELIVERY_ESTIMATE", 45*time.Minute)
	v.SetDefault("DISPLAY_TIMEZONE", "Asia/Kolkata")
}

// Load reads .env (when present) and the process environment into AppEnv.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}

	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	AppEnv = cfg
	return &AppEnv, nil
}

func fromViper(v *viper.Viper) Config {
	zone := getString(v, "DISPLAY_TIMEZONE")
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = nil
	}

	return Config{
		Port:           getString(v, "PORT"),
		MongoURI:       getString(v, "MONGO_URI"),
		DBName:         getString(v, "DB_NAME"),
		JWTSecret:      getString(v, "JWT_SECRET"),
		RequestTimeout: positiveDuration(v, "REQUEST_TIMEOUT"),
		Razorpay: RazorpayConfig{
			KeyID:     getString(v, "RAZORPAY_KEY_ID"),
			KeySecret: getString(v, "RAZORPAY_KEY_SECRET"),
			BaseURL:   strings.TrimSuffix(getString(v, "RAZORPAY_BASE_URL"), "/"),
			Currency:  strings.ToUpper(getString(v, "PAYMENT_CURRENCY")),
		},
		Redis: RedisConfig{
			Addr:           getString(v, "REDIS_ADDR"),
			Password:       getString(v, "REDIS_PASSWORD"),
			DB:             v.GetInt("REDIS_DB"),
			IdempotencyTTL: positiveDuration(v, "IDEMPOTENCY_TTL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getString(v, "KAFKA_BROKERS")),
			Topic:   getString(v, "KAFKA_TOPIC"),
		},
		Log: LogConfig{
			Level:       strings.ToLower(getString(v, "LOG_LEVEL")),
			Development: v.GetBool("LOG_DEVELOPMENT"),
		},
		DeliveryEstimate: positiveDuration(v, "DELIVERY_ESTIMATE"),
		DisplayTimezone:  zone,
		DisplayLocation:  loc,
	}
}

// Validate reports every missing required key in one error.
func (c Config) Validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.Razorpay.KeySecret == "" {
		missing = append(missing, "RAZORPAY_KEY_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.DisplayLocation == nil {
		return fmt.Errorf("unknown DISPLAY_TIMEZONE %q", c.DisplayTimezone)
	}
	return nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

// positiveDuration falls back to the registered default when the value is
// unparsable or not positive.
func positiveDuration(v *viper.Viper, key string) time.Duration {
	if d := v.GetDuration(key); d > 0 {
		return d
	}
	fallback := viper.New()
	defaults(fallback)
	return fallback.GetDuration(key)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	out := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
