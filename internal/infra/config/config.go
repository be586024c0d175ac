package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	AMQP struct {
		URL      string `envconfig:"AMQP_URL"`
		Exchange string `envconfig:"AMQP_EXCHANGE" default:"vibez.events"`
	} `envconfig:""`

	Auth struct {
		Secret string `envconfig:"AUTH_SECRET"`
	} `envconfig:""`

	Feed struct {
		DefaultPageSize int `envconfig:"FEED_PAGE_SIZE" default:"20"`
		MaxPageSize     int `envconfig:"FEED_MAX_PAGE_SIZE" default:"50"`
	} `envconfig:""`

	Actors struct {
		CacheSize int           `envconfig:"ACTOR_CACHE_SIZE" default:"4096"`
		CacheTTL  time.Duration `envconfig:"ACTOR_CACHE_TTL" default:"15m"`
	} `envconfig:""`

	Search struct {
		CacheSize int           `envconfig:"SEARCH_CACHE_SIZE" default:"256"`
		CacheTTL  time.Duration `envconfig:"SEARCH_CACHE_TTL" default:"30s"`
		Limit     int           `envconfig:"SEARCH_LIMIT" default:"20"`
	} `envconfig:""`

	Queues struct {
		PostEvents string `envconfig:"POST_EVENTS_QUEUE_KEY" default:"post_events"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
