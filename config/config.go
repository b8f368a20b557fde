package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"pool-service/internal/database"

	"go.uber.org/zap"
)

type Config struct {
	Port string
	DB   DB

	Kafka     Kafka
	Redis     Redis
	Provider  Provider
	Reconcile Reconcile
}

type DB struct {
	database.Config
}

type Kafka struct {
	Enabled bool
	Brokers []string
	Topic   string
}

type Redis struct {
	Enabled    bool
	Addr       string
	Password   string
	DB         int
	TTLSeconds int
}

type Provider struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

type Reconcile struct {
	Enabled  bool
	Interval time.Duration
}

func Load(log *zap.Logger) *Config {
	cfg := &Config{
		Port: getEnv("APP_PORT", log),
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnv("DB_SSLMODE", log),
			},
		},
		Kafka: Kafka{
			Enabled: os.Getenv("KAFKA_ENABLED") == "true",
			Brokers: splitAndTrim(os.Getenv("KAFKA_BROKERS")),
			Topic:   os.Getenv("KAFKA_TOPIC_POOL_EVENTS"),
		},
		Redis: Redis{
			Enabled:    os.Getenv("REDIS_ENABLED") == "true",
			Addr:       os.Getenv("REDIS_ADDR"),
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         atoiDefault(os.Getenv("REDIS_DB"), 0),
			TTLSeconds: atoiDefault(os.Getenv("CACHE_TTL_SECONDS"), 5),
		},
		Provider: Provider{
			BaseURL:        getEnv("PAYMENT_PROVIDER_URL", log),
			APIKey:         os.Getenv("PAYMENT_PROVIDER_API_KEY"),
			TimeoutSeconds: atoiDefault(os.Getenv("PAYMENT_PROVIDER_TIMEOUT_SECONDS"), 10),
		},
		Reconcile: Reconcile{
			Enabled:  os.Getenv("RECONCILE_ENABLED") == "true",
			Interval: time.Duration(atoiDefault(os.Getenv("RECONCILE_INTERVAL_SECONDS"), 60)) * time.Second,
		},
	}

	if cfg.Kafka.Enabled && (len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "") {
		log.Error("Kafka включён, но KAFKA_BROKERS/KAFKA_TOPIC_POOL_EVENTS не заданы")
		panic("invalid kafka configuration")
	}
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		log.Error("Redis включён, но REDIS_ADDR не задан")
		panic("invalid redis configuration")
	}

	return cfg
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("Обязательная переменная окружения не установлена", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		pt := strings.TrimSpace(p)
		if pt != "" {
			parts = append(parts, pt)
		}
	}
	return parts
}
