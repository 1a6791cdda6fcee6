package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	DBDSN         string `mapstructure:"DB_DSN"`
	Environment   string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	Redis RedisConfig
	Stats StatsConfig

	Waitlist WaitlistConfig
	Bot      BotConfig
}

// RedisConfig хранилище статистики; пустой Addr - статистика в памяти
type RedisConfig struct {
	Addr     string `mapstructure:"REDIS_ADDR"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

type StatsConfig struct {
	Prefix   string        `mapstructure:"STATS_PREFIX"`
	DailyTTL time.Duration `mapstructure:"STATS_DAILY_TTL"`
}

// WaitlistConfig истечение записей очереди; ноль отключает
type WaitlistConfig struct {
	WaitingTTL    time.Duration `mapstructure:"WAITLIST_WAITING_TTL"`
	ApprovedTTL   time.Duration `mapstructure:"WAITLIST_APPROVED_TTL"`
	SweepInterval time.Duration `mapstructure:"WAITLIST_SWEEP_INTERVAL"`
}

// BotConfig ограничение частоты команд одного пользователя
type BotConfig struct {
	RatePerSecond float64 `mapstructure:"BOT_RATE_PER_SECOND"`
	RateBurst     int     `mapstructure:"BOT_RATE_BURST"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{
		DBDSN:         os.Getenv("DB_DSN"),
		TelegramToken: os.Getenv("TELEGRAM_TOKEN"),
		Environment:   getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Stats: StatsConfig{
			Prefix: getEnv("STATS_PREFIX", "hallpass:stats"),
		},
	}

	var err error
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Stats.DailyTTL, err = getEnvDuration("STATS_DAILY_TTL", 30*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Waitlist.WaitingTTL, err = getEnvDuration("WAITLIST_WAITING_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.Waitlist.ApprovedTTL, err = getEnvDuration("WAITLIST_APPROVED_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.Waitlist.SweepInterval, err = getEnvDuration("WAITLIST_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.Bot.RatePerSecond, err = getEnvFloat("BOT_RATE_PER_SECOND", 1); err != nil {
		return nil, err
	}
	if cfg.Bot.RateBurst, err = getEnvInt("BOT_RATE_BURST", 5); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.Waitlist.SweepInterval <= 0 {
		return nil, fmt.Errorf("WAITLIST_SWEEP_INTERVAL must be positive")
	}

	log.Printf("Config loaded\n")

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
