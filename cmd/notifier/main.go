package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"vibez-backend/internal/adapters/repo"
	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/cache"
	"vibez-backend/internal/infra/config"
	"vibez-backend/internal/infra/db"
	logpkg "vibez-backend/internal/infra/log"
	"vibez-backend/internal/infra/metrics"
	"vibez-backend/internal/infra/queue"
	"vibez-backend/internal/usecase/notify"
)

func main() {
	cfg := config.Load()
	logger := logpkg.NewLogger(cfg.AppEnv, "notifier")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("notifier: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var eventQueue domain.PostEventQueue
	switch {
	case cfg.AMQP.URL != "":
		rabbitQueue, err := queue.NewRabbitPostEventQueue(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.Queues.PostEvents)
		if err != nil {
			logger.Fatal().Err(err).Msg("notifier: нет подключения к брокеру")
		}
		defer rabbitQueue.Close()
		eventQueue = rabbitQueue
	case redisClient != nil:
		eventQueue = queue.NewRedisPostEventQueue(redisClient, cfg.Queues.PostEvents)
	default:
		logger.Fatal().Msg("notifier: не настроена очередь событий (AMQP_URL или REDIS_ADDR)")
	}

	var dedup domain.Cache
	if redisClient != nil {
		dedup = cache.NewRedis(redisClient)
	} else {
		dedup = cache.NewMemory(1024)
	}

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	service := notify.NewService(repoAdapter, dedup, logger.With().Str("component", "fanout").Logger())

	logger.Info().Msg("notifier: старт")
	for {
		event, ack, err := eventQueue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			logger.Error().Err(err).Msg("notifier: ошибка получения события")
			metrics.NotifierEvents.WithLabelValues("receive_error").Inc()
			time.Sleep(time.Second)
			continue
		}
		handled := service.HandleEvent(ctx, event)
		if err := ack(handled); err != nil {
			logger.Error().Err(err).Str("event", event.ID).Msg("notifier: не удалось подтвердить событие")
		}
	}
	logger.Info().Msg("notifier: остановка")
}
