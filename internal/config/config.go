/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the settlement-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort                   string `mapstructure:"SERVER_PORT"`
	DatabaseURL                  string `mapstructure:"DATABASE_URL"`
	RabbitMQURL                  string `mapstructure:"RABBITMQ_URL"`
	EventExchange                string `mapstructure:"EVENT_EXCHANGE"`
	ProcessorEventQueue          string `mapstructure:"PROCESSOR_EVENT_QUEUE"`
	ProcessorAPIBaseURL          string `mapstructure:"PROCESSOR_API_BASE_URL"`
	ProcessorAPIKey              string `mapstructure:"PROCESSOR_API_KEY"`
	JWKSURL                      string `mapstructure:"JWKS_URL"`
	InternalAPIKey               string `mapstructure:"INTERNAL_API_KEY"`
	RedisURL                     string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix         string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	SettlementCurrency           string `mapstructure:"SETTLEMENT_CURRENCY"`
	TopUpMinAmount               int64  `mapstructure:"TOP_UP_MIN_AMOUNT"`
	TopUpMaxAmount               int64  `mapstructure:"TOP_UP_MAX_AMOUNT"`
	PayoutMinAmount              int64  `mapstructure:"PAYOUT_MIN_AMOUNT"`
	FailedPaymentMaxRetries      int    `mapstructure:"FAILED_PAYMENT_MAX_RETRIES"`
	TopUpRateLimitPerMinute      int    `mapstructure:"TOP_UP_RATE_LIMIT_PER_MINUTE"`
	PayoutRateLimitPerMinute     int    `mapstructure:"PAYOUT_RATE_LIMIT_PER_MINUTE"`
	CompletionApprovalOrderTypes string `mapstructure:"COMPLETION_APPROVAL_ORDER_TYPES"`
}

// LoadConfig reads configuration from environment variables from the given path.
// It uses Viper to automatically bind environment variables to the Config struct.
func LoadConfig(path string) (config Config, err error) {
	// Tell viper the path to look for the optional .env file.
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	// Enable automatic binding of environment variables.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENT_EXCHANGE", "giglane.events")
	viper.SetDefault("PROCESSOR_EVENT_QUEUE", "settlement_service.processor_updates")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "giglane:rate_limit")
	viper.SetDefault("SETTLEMENT_CURRENCY", "USD")
	viper.SetDefault("TOP_UP_MIN_AMOUNT", 500)
	viper.SetDefault("TOP_UP_MAX_AMOUNT", 10000000)
	viper.SetDefault("PAYOUT_MIN_AMOUNT", 100)
	viper.SetDefault("FAILED_PAYMENT_MAX_RETRIES", 3)
	viper.SetDefault("TOP_UP_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("PAYOUT_RATE_LIMIT_PER_MINUTE", 5)
	viper.SetDefault("COMPLETION_APPROVAL_ORDER_TYPES", "service")

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENT_EXCHANGE")
	_ = viper.BindEnv("PROCESSOR_EVENT_QUEUE")
	_ = viper.BindEnv("PROCESSOR_API_BASE_URL")
	_ = viper.BindEnv("PROCESSOR_API_KEY")
	_ = viper.BindEnv("JWKS_URL")
	_ = viper.BindEnv("INTERNAL_API_KEY")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("SETTLEMENT_CURRENCY")
	_ = viper.BindEnv("TOP_UP_MIN_AMOUNT")
	_ = viper.BindEnv("TOP_UP_MAX_AMOUNT")
	_ = viper.BindEnv("PAYOUT_MIN_AMOUNT")
	_ = viper.BindEnv("FAILED_PAYMENT_MAX_RETRIES")
	_ = viper.BindEnv("TOP_UP_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("PAYOUT_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("COMPLETION_APPROVAL_ORDER_TYPES")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	// Unmarshal the configuration into the Config struct.
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "giglane:rate_limit"
	}

	if config.TopUpMinAmount <= 0 {
		log.Printf("level=warn component=config msg=\"invalid top-up minimum; using default\" value=%d", config.TopUpMinAmount)
		config.TopUpMinAmount = 500
	}
	if config.TopUpMaxAmount < config.TopUpMinAmount {
		log.Printf("level=warn component=config msg=\"top-up maximum below minimum; using default\" value=%d", config.TopUpMaxAmount)
		config.TopUpMaxAmount = 10000000
	}
	if config.PayoutMinAmount <= 0 {
		log.Printf("level=warn component=config msg=\"invalid payout minimum; using default\" value=%d", config.PayoutMinAmount)
		config.PayoutMinAmount = 100
	}
	if config.FailedPaymentMaxRetries <= 0 {
		config.FailedPaymentMaxRetries = 3
	}
	if config.TopUpRateLimitPerMinute < 0 {
		config.TopUpRateLimitPerMinute = 0
	}
	if config.PayoutRateLimitPerMinute < 0 {
		config.PayoutRateLimitPerMinute = 0
	}

	return
}

// ApprovalOrderTypes parses the configured comma-separated list of order
// types whose completion requires buyer approval.
func (c Config) ApprovalOrderTypes() []string {
	var types []string
	for _, t := range strings.Split(c.CompletionApprovalOrderTypes, ",") {
		t = strings.TrimSpace(strings.ToLower(t))
		if t != "" {
			types = append(types, t)
		}
	}
	return types
}
