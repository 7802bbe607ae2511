package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost             string
	DBUser             string
	DBPassword         string
	DBName             string
	DBPort             string
	AppPort            string
	AppEnv             string
	ZarinpalMerchantID string
	PaymentCallbackURL string
	KafkaBrokers       []string
	OrderEventsTopic   string
	JWTSecret          string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:             os.Getenv("DB_HOST"),
		DBUser:             os.Getenv("DB_USER"),
		DBPassword:         os.Getenv("DB_PASSWORD"),
		DBName:             os.Getenv("DB_NAME"),
		DBPort:             os.Getenv("DB_PORT"),
		AppPort:            os.Getenv("APP_PORT"),
		AppEnv:             os.Getenv("APP_ENV"),
		ZarinpalMerchantID: os.Getenv("ZARINPAL_MERCHANT_ID"),
		PaymentCallbackURL: os.Getenv("PAYMENT_CALLBACK_URL"),
		KafkaBrokers:       splitBrokers(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:   os.Getenv("ORDER_EVENTS_TOPIC"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
	}

	if cfg.OrderEventsTopic == "" {
		cfg.OrderEventsTopic = "order-events"
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}

func splitBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
