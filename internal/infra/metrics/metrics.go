package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	FeedBuildSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "feed_build_seconds",
		Help:    "Время сборки страницы ленты",
		Buckets: prometheus.DefBuckets,
	})
	FeedPagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_pages_total",
		Help: "Количество собранных страниц ленты",
	})
	FeedPostsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_posts_dropped_total",
		Help: "Посты, исключённые из ленты при нормализации",
	}, []string{"reason"})
	FeedEnrichmentFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_enrichment_fallbacks_total",
		Help: "Обогащения ленты, деградировавшие до пустого результата",
	}, []string{"enrichment"})

	ActorCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actor_cache_hits_total",
		Help: "Попадания в кэш резолвера акторов",
	})
	ActorCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "actor_cache_misses_total",
		Help: "Промахи кэша резолвера акторов",
	})

	NotifierEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_total",
		Help: "Обработанные события постов в нотификаторе",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		FeedBuildSeconds,
		FeedPagesTotal,
		FeedPostsDropped,
		FeedEnrichmentFallbacks,
		ActorCacheHits,
		ActorCacheMisses,
		NotifierEvents,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveFeedBuild записывает длительность сборки страницы ленты.
func ObserveFeedBuild(start time.Time) {
	FeedBuildSeconds.Observe(time.Since(start).Seconds())
	FeedPagesTotal.Inc()
}

// IncPostDropped увеличивает счётчик исключённых постов.
func IncPostDropped(reason string) {
	FeedPostsDropped.WithLabelValues(reason).Inc()
}

// IncEnrichmentFallback увеличивает счётчик деградаций обогащения.
func IncEnrichmentFallback(enrichment string) {
	FeedEnrichmentFallbacks.WithLabelValues(enrichment).Inc()
}
