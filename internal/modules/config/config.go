package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
	brokerKeyENV      = "BROKER_API_KEY"
	brokerSecretENV   = "BROKER_API_SECRET"
)

// Config ...
type Config struct {
	DB      string `yaml:"db_dsn"`
	Service struct {
		Name       string `yaml:"name"`
		Host       string `yaml:"host"`
		PublicPort int    `yaml:"public_port"`
		AdminPort  int    `yaml:"admin_port"`
	} `yaml:"service"`

	Broker struct {
		BaseURL   string `yaml:"base_url"`
		WSURL     string `yaml:"ws_url"`
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
	} `yaml:"broker"`

	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`

	// Event bus history ring size.
	EventHistorySize int `yaml:"event_history_size"`

	// Default hold applied by the ownership lock when no duration is given.
	DefaultLockDuration time.Duration

	// Intake queue. Signals arriving while recovery has not finished are
	// dropped and logged.
	IntakeQueueMax int
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := yaml.NewDecoder(file)
	config := Config{
		EventHistorySize:    intFromEnv("EVENT_HISTORY_SIZE", 1000),
		DefaultLockDuration: durationFromEnv("DEFAULT_LOCK_DURATION", "24h"),
		IntakeQueueMax:      intFromEnv("INTAKE_QUEUE_MAX", 256),
	}
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if config.Service.Name == "" {
		config.Service.Name = "order_core"
	}

	if token := os.Getenv(tokenTelegramENV); token != "" {
		config.Telegram.Token = token
	}
	if dsn := os.Getenv(databaseDSN); dsn != "" {
		config.DB = dsn
	}
	if k := os.Getenv(brokerKeyENV); k != "" {
		config.Broker.APIKey = k
	}
	if s := os.Getenv(brokerSecretENV); s != "" {
		config.Broker.APISecret = s
	}

	return &config, nil
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
