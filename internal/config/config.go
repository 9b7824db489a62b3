package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port          string
	AllowedOrigin string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LinxHost                 string
	LinxPort                 string
	DeliveryTimeoutSeconds   int
	SchedulerIntervalSeconds int
	MaxDeliveryAttempts      int
	RetryBackoffMinutes      int
	ProductCacheTTLSeconds   int

	EvolutionAPIURL    string
	EvolutionAPIKey    string
	EvolutionInstance  string
	DefaultCountryCode string
	GroupID            string

	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:          getEnv("PORT", "3000"),
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		LinxHost:                 getEnv("LINX_HOST", "192.168.1.100"),
		LinxPort:                 getEnv("LINX_PORT", "5050"),
		DeliveryTimeoutSeconds:   positiveEnv("DELIVERY_TIMEOUT_SECONDS", 10),
		SchedulerIntervalSeconds: positiveEnv("SCHEDULER_INTERVAL_SECONDS", 30),
		MaxDeliveryAttempts:      positiveEnv("MAX_DELIVERY_ATTEMPTS", 5),
		RetryBackoffMinutes:      positiveEnv("RETRY_BACKOFF_MINUTES", 5),
		ProductCacheTTLSeconds:   positiveEnv("PRODUCT_CACHE_TTL_SECONDS", 60),

		EvolutionAPIURL:    os.Getenv("EVOLUTION_API_URL"),
		EvolutionAPIKey:    os.Getenv("EVOLUTION_API_KEY"),
		EvolutionInstance:  getEnv("EVOLUTION_INSTANCE", "caminhocerto"),
		DefaultCountryCode: getEnv("DEFAULT_COUNTRY_CODE", "55"),
		GroupID:            os.Getenv("WHATSAPP_GROUP_ID"),

		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveEnv("ACCESS_TOKEN_TTL_MINUTES", 480),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// LinxURL builds the base URL of the Linx sync interface on the store LAN.
func (c Config) LinxURL() string {
	return fmt.Sprintf("http://%s:%s", c.LinxHost, c.LinxPort)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveEnv(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}
