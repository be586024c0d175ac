package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"vibez-backend/internal/adapters/repo"
	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/cache"
	"vibez-backend/internal/infra/config"
	"vibez-backend/internal/infra/db"
	httpinfra "vibez-backend/internal/infra/http"
	logpkg "vibez-backend/internal/infra/log"
	"vibez-backend/internal/infra/metrics"
	"vibez-backend/internal/infra/queue"
	"vibez-backend/internal/usecase/actors"
	"vibez-backend/internal/usecase/feed"
	"vibez-backend/internal/usecase/moderation"
	"vibez-backend/internal/usecase/posts"
	"vibez-backend/internal/usecase/search"
)

func main() {
	cfg := config.Load()
	logger := logpkg.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}

	var actorCache domain.Cache
	if redisClient != nil {
		actorCache = cache.NewRedis(redisClient)
	} else {
		actorCache = cache.NewMemory(cfg.Actors.CacheSize)
	}
	searchCache := cache.NewMemory(cfg.Search.CacheSize)

	var eventQueue domain.PostEventQueue
	switch {
	case cfg.AMQP.URL != "":
		rabbitQueue, err := queue.NewRabbitPostEventQueue(cfg.AMQP.URL, cfg.AMQP.Exchange, cfg.Queues.PostEvents)
		if err != nil {
			logger.Fatal().Err(err).Msg("api: нет подключения к брокеру")
		}
		defer rabbitQueue.Close()
		eventQueue = rabbitQueue
	case redisClient != nil:
		eventQueue = queue.NewRedisPostEventQueue(redisClient, cfg.Queues.PostEvents)
	default:
		logger.Fatal().Msg("api: не настроена очередь событий (AMQP_URL или REDIS_ADDR)")
	}

	resolver := actors.NewResolver(repoAdapter, actorCache, cfg.Actors.CacheTTL)
	moderationService := moderation.NewService(repoAdapter)
	feedService := feed.NewService(
		repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter,
		moderationService, logger.With().Str("component", "feed").Logger(),
		cfg.Feed.DefaultPageSize, cfg.Feed.MaxPageSize,
	)
	postsService := posts.NewService(
		resolver, repoAdapter, repoAdapter, repoAdapter, repoAdapter, eventQueue,
		logger.With().Str("component", "posts").Logger(),
	)
	searchService := search.NewService(
		repoAdapter, repoAdapter, searchCache, cfg.Search.CacheTTL, cfg.Search.Limit,
		logger.With().Str("component", "search").Logger(),
	)

	recordMetric := func(ctx context.Context, metric domain.BusinessMetric) {
		if err := repoAdapter.RecordBusinessMetric(ctx, metric); err != nil {
			logger.Error().Err(err).Str("event", metric.Event).Msg("api: не удалось сохранить бизнес-метрику")
		}
	}

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())

	server.Router.Group(func(protected chi.Router) {
		protected.Use(httpinfra.ViewerAuthMiddleware(cfg.Auth.Secret))

		protected.Get("/api/v1/feed", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			query := domain.FeedQuery{RealmID: r.URL.Query().Get("realm_id")}
			if rawCursor := r.URL.Query().Get("cursor"); rawCursor != "" {
				cursor, err := time.Parse(time.RFC3339Nano, rawCursor)
				if err != nil {
					writeError(w, http.StatusBadRequest, "некорректный курсор")
					return
				}
				query.CursorCreatedAt = &cursor
			}
			if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
				limit, err := strconv.Atoi(rawLimit)
				if err != nil {
					writeError(w, http.StatusBadRequest, "некорректный limit")
					return
				}
				query.PageSize = limit
			}
			page, err := feedService.FetchPage(r.Context(), viewer, query)
			if err != nil {
				if errors.Is(err, feed.ErrEmptyRealm) {
					writeError(w, http.StatusBadRequest, "realm_id обязателен")
					return
				}
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: сборка ленты")
				writeError(w, http.StatusInternalServerError, "не удалось собрать ленту")
				return
			}
			writeJSON(w, toFeedPageResponse(page))
		})

		protected.Post("/api/v1/posts", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			var req createPostRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			post, err := postsService.Create(r.Context(), viewer, posts.CreatePostInput{
				RealmID:      req.RealmID,
				Text:         req.Text,
				Title:        req.Title,
				PostType:     req.PostType,
				MediaURL:     req.MediaURL,
				MediaType:    req.MediaType,
				LocationText: req.LocationText,
			})
			if err != nil {
				switch {
				case errors.Is(err, posts.ErrEmptyRealm), errors.Is(err, posts.ErrEmptyPost), errors.Is(err, domain.ErrViewerIncomplete):
					writeError(w, http.StatusBadRequest, err.Error())
				default:
					logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: публикация поста")
					writeError(w, http.StatusInternalServerError, "не удалось опубликовать пост")
				}
				return
			}
			recordMetric(r.Context(), domain.BusinessMetric{
				Event:    domain.BusinessMetricEventPostCreated,
				ActorID:  &post.ActorID,
				ObjectID: &post.ID,
				Metadata: map[string]any{"realm_id": post.RealmID, "post_type": post.PostType},
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"id": post.ID, "created_at": post.CreatedAt})
		})

		protected.Delete("/api/v1/posts/{id}", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			postID := chi.URLParam(r, "id")
			if err := postsService.Delete(r.Context(), viewer, postID); err != nil {
				if errors.Is(err, domain.ErrPostNotFound) {
					writeError(w, http.StatusNotFound, "пост не найден")
					return
				}
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: удаление поста")
				writeError(w, http.StatusInternalServerError, "не удалось удалить пост")
				return
			}
			recordMetric(r.Context(), domain.BusinessMetric{
				Event:    domain.BusinessMetricEventPostDeleted,
				ActorID:  &viewer.ActorID,
				ObjectID: &postID,
			})
			w.WriteHeader(http.StatusNoContent)
		})

		protected.Post("/api/v1/posts/{id}/hide", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			postID := chi.URLParam(r, "id")
			if err := moderationService.HidePost(r.Context(), viewer, postID); err != nil {
				writeModerationError(w, r, logger, err)
				return
			}
			recordMetric(r.Context(), domain.BusinessMetric{
				Event:    domain.BusinessMetricEventPostHidden,
				ActorID:  &viewer.ActorID,
				ObjectID: &postID,
			})
			writeJSON(w, map[string]string{"status": "ok"})
		})

		protected.Post("/api/v1/posts/{id}/unhide", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			if err := moderationService.UnhidePost(r.Context(), viewer, chi.URLParam(r, "id")); err != nil {
				writeModerationError(w, r, logger, err)
				return
			}
			writeJSON(w, map[string]string{"status": "ok"})
		})

		protected.Post("/api/v1/blocks", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			var req blockRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			if req.ActorID == "" || req.ActorID == viewer.ActorID {
				writeError(w, http.StatusBadRequest, "некорректный actor_id")
				return
			}
			if err := repoAdapter.AddBlock(viewer.ActorID, req.ActorID); err != nil {
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: блокировка актора")
				writeError(w, http.StatusInternalServerError, "не удалось заблокировать актора")
				return
			}
			recordMetric(r.Context(), domain.BusinessMetric{
				Event:    domain.BusinessMetricEventActorBlocked,
				ActorID:  &viewer.ActorID,
				ObjectID: &req.ActorID,
			})
			writeJSON(w, map[string]string{"status": "ok"})
		})

		protected.Delete("/api/v1/blocks/{actor_id}", func(w http.ResponseWriter, r *http.Request) {
			viewer, _ := httpinfra.ViewerFromContext(r.Context())
			if err := repoAdapter.RemoveBlock(viewer.ActorID, chi.URLParam(r, "actor_id")); err != nil {
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: снятие блокировки")
				writeError(w, http.StatusInternalServerError, "не удалось снять блокировку")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		protected.Get("/api/v1/actors/search", func(w http.ResponseWriter, r *http.Request) {
			limit := 0
			if rawLimit := r.URL.Query().Get("limit"); rawLimit != "" {
				limit, _ = strconv.Atoi(rawLimit)
			}
			results, err := searchService.Search(r.Context(), r.URL.Query().Get("q"), limit)
			if err != nil {
				if errors.Is(err, search.ErrQueryTooShort) {
					writeError(w, http.StatusBadRequest, "слишком короткий запрос")
					return
				}
				logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: поиск акторов")
				writeError(w, http.StatusInternalServerError, "поиск не удался")
				return
			}
			writeJSON(w, map[string]any{"results": results})
		})

		protected.Post("/api/v1/actors/resolve", func(w http.ResponseWriter, r *http.Request) {
			defer r.Body.Close()
			var req resolveRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			actorID, err := resolver.Resolve(r.Context(), domain.ActorDescriptor{
				Kind:      domain.ActorKind(req.Kind),
				ProfileID: req.ProfileID,
				VportID:   req.VportID,
			})
			if err != nil {
				switch {
				case errors.Is(err, actors.ErrUnknownKind),
					errors.Is(err, actors.ErrMissingProfileID),
					errors.Is(err, actors.ErrMissingVportID):
					writeError(w, http.StatusBadRequest, err.Error())
				default:
					logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: резолв актора")
					writeError(w, http.StatusInternalServerError, "не удалось зарезолвить актора")
				}
				return
			}
			writeJSON(w, map[string]string{"actor_id": actorID})
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

type createPostRequest struct {
	RealmID      string `json:"realm_id"`
	Text         string `json:"text"`
	Title        string `json:"title"`
	PostType     string `json:"post_type"`
	MediaURL     string `json:"media_url"`
	MediaType    string `json:"media_type"`
	LocationText string `json:"location_text"`
}

type blockRequest struct {
	ActorID string `json:"actor_id"`
}

type resolveRequest struct {
	Kind      string `json:"kind"`
	ProfileID string `json:"profile_id"`
	VportID   string `json:"vport_id"`
}

type actorSummaryDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

type mediaItemDTO struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

type feedPostDTO struct {
	ID              string                     `json:"id"`
	Text            string                     `json:"text"`
	Title           string                     `json:"title,omitempty"`
	PostType        string                     `json:"post_type,omitempty"`
	Actor           actorSummaryDTO            `json:"actor"`
	Media           []mediaItemDTO             `json:"media"`
	Mentions        map[string]actorSummaryDTO `json:"mentions,omitempty"`
	HiddenForViewer bool                       `json:"hidden_for_viewer,omitempty"`
	LocationText    string                     `json:"location_text,omitempty"`
	CreatedAt       time.Time                  `json:"created_at"`
	EditedAt        *time.Time                 `json:"edited_at,omitempty"`
}

type feedPageResponse struct {
	Posts      []feedPostDTO `json:"posts"`
	HasMore    bool          `json:"has_more"`
	NextCursor *time.Time    `json:"next_cursor,omitempty"`
}

func toActorSummaryDTO(summary domain.ActorSummary) actorSummaryDTO {
	return actorSummaryDTO{
		ID:          summary.ID,
		Kind:        string(summary.Kind),
		DisplayName: summary.DisplayName,
		Username:    summary.Username,
		AvatarURL:   summary.AvatarURL,
	}
}

func toFeedPageResponse(page domain.FeedPage) feedPageResponse {
	resp := feedPageResponse{
		Posts:      make([]feedPostDTO, 0, len(page.Posts)),
		HasMore:    page.HasMore,
		NextCursor: page.NextCursorCreatedAt,
	}
	for _, post := range page.Posts {
		dto := feedPostDTO{
			ID:              post.ID,
			Text:            post.Text,
			Title:           post.Title,
			PostType:        post.PostType,
			Actor:           toActorSummaryDTO(post.Actor),
			Media:           make([]mediaItemDTO, 0, len(post.Media)),
			HiddenForViewer: post.HiddenForViewer,
			LocationText:    post.LocationText,
			CreatedAt:       post.CreatedAt,
			EditedAt:        post.EditedAt,
		}
		for _, item := range post.Media {
			dto.Media = append(dto.Media, mediaItemDTO{Type: item.Type, URL: item.URL})
		}
		if len(post.Mentions) > 0 {
			dto.Mentions = make(map[string]actorSummaryDTO, len(post.Mentions))
			for token, summary := range post.Mentions {
				dto.Mentions[token] = toActorSummaryDTO(summary)
			}
		}
		resp.Posts = append(resp.Posts, dto)
	}
	return resp
}

func writeModerationError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	if errors.Is(err, moderation.ErrEmptyObjectID) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logger.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Msg("api: модерационное действие")
	writeError(w, http.StatusInternalServerError, "не удалось выполнить действие")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(httpinfra.ErrorResponse{Error: msg})
}
