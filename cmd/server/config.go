package main

import (
	"errors"
	"fmt"
	"homelab/internal/chat"
	"homelab/internal/requestlog"
	"time"

	"github.com/Netflix/go-env"
	"github.com/samber/lo"
)

const (
	storePostgres = "postgres"
	storeRedis    = "redis"
	storeBadger   = "badger"
	storeMemory   = "memory"
)

type Config struct {
	HTTPAddr         string        `env:"HTTP_ADDR,default=:8080"`
	DBDSN            string        `env:"DB_DSN,required=true"`
	JWTSecret        string        `env:"JWT_SECRET,required=true"`
	JWTTTL           time.Duration `env:"JWT_TTL,default=24h"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
	ChatStore        string        `env:"CHAT_STORE,default=postgres"`
	RedisAddr        string        `env:"REDIS_ADDR,default=localhost:6379"`
	BadgerPath       string        `env:"BADGER_PATH,default=./data/chat"`
	OutboxSize       int           `env:"OUTBOX_SIZE,default=256"`
	MaxMessageSize   int64         `env:"MAX_MESSAGE_SIZE,default=8192"`
	MaxContentLength int           `env:"MAX_CONTENT_LENGTH,default=4000"`
	DefaultPageSize  int           `env:"DEFAULT_PAGE_SIZE,default=50"`
	MaxPageSize      int           `env:"MAX_PAGE_SIZE,default=200"`

	RequestLogFlushInterval time.Duration `env:"REQUEST_LOG_FLUSH_INTERVAL,default=5s"`
	RequestLogRetention     time.Duration `env:"REQUEST_LOG_RETENTION,default=720h"`
	RequestLogQueueSize     int           `env:"REQUEST_LOG_QUEUE_SIZE,default=1024"`
}

func loadConfig() (Config, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.DBDSN == "" {
		errs = append(errs, errors.New("DB_DSN is not set"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if !lo.Contains([]string{storePostgres, storeRedis, storeBadger, storeMemory}, c.ChatStore) {
		errs = append(errs, fmt.Errorf("CHAT_STORE %q is not one of postgres, redis, badger, memory", c.ChatStore))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	for name, v := range map[string]int64{
		"OUTBOX_SIZE":                int64(c.OutboxSize),
		"MAX_MESSAGE_SIZE":           c.MaxMessageSize,
		"MAX_CONTENT_LENGTH":         int64(c.MaxContentLength),
		"DEFAULT_PAGE_SIZE":          int64(c.DefaultPageSize),
		"MAX_PAGE_SIZE":              int64(c.MaxPageSize),
		"REQUEST_LOG_QUEUE_SIZE":     int64(c.RequestLogQueueSize),
		"REQUEST_LOG_FLUSH_INTERVAL": int64(c.RequestLogFlushInterval),
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.RequestLogRetention < 0 {
		errs = append(errs, errors.New("REQUEST_LOG_RETENTION cannot be negative"))
	}
	if c.DefaultPageSize > c.MaxPageSize {
		errs = append(errs, errors.New("DEFAULT_PAGE_SIZE cannot exceed MAX_PAGE_SIZE"))
	}
	return errors.Join(errs...)
}

func (c Config) Chat() chat.Config {
	return chat.Config{
		OutboxSize:       c.OutboxSize,
		MaxMessageSize:   c.MaxMessageSize,
		MaxContentLength: c.MaxContentLength,
		DefaultPageSize:  c.DefaultPageSize,
		MaxPageSize:      c.MaxPageSize,
	}
}

func (c Config) RequestLog() requestlog.Config {
	return requestlog.Config{
		FlushInterval: c.RequestLogFlushInterval,
		Retention:     c.RequestLogRetention,
		QueueSize:     c.RequestLogQueueSize,
	}
}
