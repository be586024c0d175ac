package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// ErrEmptyRealm возвращается, если не указан реалм ленты.
var ErrEmptyRealm = errors.New("не указан реалм ленты")

// mentionMarker — дешёвая проверка наличия упоминаний в тексте,
// чтобы не ходить за рёбрами упоминаний без необходимости.
const mentionMarker = "@"

// HiddenPostResolver возвращает подмножество постов, скрытых наблюдателем.
type HiddenPostResolver interface {
	HiddenPostSet(ctx context.Context, viewerActorID string, postIDs []string) (map[string]struct{}, error)
}

// Service собирает страницы ленты: забирает посты, параллельно обогащает их
// медиа, упоминаниями, данными авторов и фильтрует по видимости.
type Service struct {
	posts    domain.PostRepo
	media    domain.MediaRepo
	mentions domain.MentionRepo
	actors   domain.ActorRepo
	profiles domain.ProfileRepo
	vports   domain.VportRepo
	blocks   domain.BlockRepo
	hidden   HiddenPostResolver
	log      zerolog.Logger

	defaultPageSize int
	maxPageSize     int
}

var _ domain.FeedService = (*Service)(nil)

// NewService создаёт сервис ленты.
func NewService(
	posts domain.PostRepo,
	media domain.MediaRepo,
	mentions domain.MentionRepo,
	actors domain.ActorRepo,
	profiles domain.ProfileRepo,
	vports domain.VportRepo,
	blocks domain.BlockRepo,
	hidden HiddenPostResolver,
	logger zerolog.Logger,
	defaultPageSize, maxPageSize int,
) *Service {
	return &Service{
		posts:           posts,
		media:           media,
		mentions:        mentions,
		actors:          actors,
		profiles:        profiles,
		vports:          vports,
		blocks:          blocks,
		hidden:          hidden,
		log:             logger,
		defaultPageSize: defaultPageSize,
		maxPageSize:     maxPageSize,
	}
}

type enrichment struct {
	media         map[string][]domain.Media
	mentions      []domain.Mention
	mentionBundle domain.ActorBundle
	hiddenSet     map[string]struct{}
	bundle        domain.ActorBundle
	blockedSet    map[string]struct{}

	bundleErr  error
	blockedErr error
}

// FetchPage возвращает одну страницу ленты для наблюдателя.
func (s *Service) FetchPage(ctx context.Context, viewer domain.Viewer, query domain.FeedQuery) (domain.FeedPage, error) {
	if query.RealmID == "" {
		return domain.FeedPage{}, ErrEmptyRealm
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if s.maxPageSize > 0 && pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	start := time.Now()
	defer metrics.ObserveFeedBuild(start)

	// Одна лишняя строка позволяет определить hasMore без второго запроса.
	rows, err := s.posts.ListFeedPosts(query.RealmID, query.CursorCreatedAt, pageSize+1)
	if err != nil {
		return domain.FeedPage{}, fmt.Errorf("получение постов: %w", err)
	}
	if len(rows) == 0 {
		return domain.FeedPage{Posts: []domain.FeedPost{}}, nil
	}

	enriched := s.enrich(ctx, viewer, rows)
	if enriched.bundleErr != nil {
		return domain.FeedPage{}, fmt.Errorf("данные авторов: %w", enriched.bundleErr)
	}
	if enriched.blockedErr != nil {
		return domain.FeedPage{}, fmt.Errorf("блокировки: %w", enriched.blockedErr)
	}

	normalized := s.normalize(viewer, rows, enriched)

	hasMore := len(normalized) > pageSize
	if hasMore {
		normalized = normalized[:pageSize]
	}
	page := domain.FeedPage{Posts: normalized, HasMore: hasMore}
	if len(normalized) > 0 {
		cursor := normalized[len(normalized)-1].CreatedAt
		page.NextCursorCreatedAt = &cursor
	}
	return page, nil
}

// enrich выполняет параллельные подзапросы страницы. Декоративные обогащения
// (медиа, упоминания, скрытые посты) при ошибке деградируют до пустых данных;
// данные авторов и блокировки критичны для видимости и роняют страницу.
func (s *Service) enrich(ctx context.Context, viewer domain.Viewer, rows []domain.Post) enrichment {
	postIDs := make([]string, 0, len(rows))
	actorIDs := make([]string, 0, len(rows))
	seenActors := make(map[string]struct{}, len(rows))
	hasMentionMarker := false
	for _, row := range rows {
		postIDs = append(postIDs, row.ID)
		if _, ok := seenActors[row.ActorID]; !ok {
			seenActors[row.ActorID] = struct{}{}
			actorIDs = append(actorIDs, row.ActorID)
		}
		if strings.Contains(row.Text, mentionMarker) {
			hasMentionMarker = true
		}
	}

	result := enrichment{
		media:     map[string][]domain.Media{},
		hiddenSet: map[string]struct{}{},
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		media, err := s.media.ListMediaByPostIDs(postIDs)
		if err != nil {
			s.log.Warn().Err(err).Msg("лента: медиа недоступны, продолжаем без них")
			metrics.IncEnrichmentFallback("media")
			return
		}
		result.media = media
	}()

	if hasMentionMarker {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mentions, err := s.mentions.ListMentionsByPostIDs(postIDs)
			if err != nil {
				s.log.Warn().Err(err).Msg("лента: упоминания недоступны, продолжаем без них")
				metrics.IncEnrichmentFallback("mentions")
				return
			}
			targetIDs := make([]string, 0, len(mentions))
			seen := make(map[string]struct{}, len(mentions))
			for _, mention := range mentions {
				if _, ok := seen[mention.ActorID]; ok {
					continue
				}
				seen[mention.ActorID] = struct{}{}
				targetIDs = append(targetIDs, mention.ActorID)
			}
			bundle, err := s.loadActorBundle(targetIDs)
			if err != nil {
				s.log.Warn().Err(err).Msg("лента: авторы упоминаний недоступны, продолжаем без них")
				metrics.IncEnrichmentFallback("mentions")
				return
			}
			result.mentions = mentions
			result.mentionBundle = bundle
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		hiddenSet, err := s.hidden.HiddenPostSet(ctx, viewer.ActorID, postIDs)
		if err != nil {
			s.log.Warn().Err(err).Msg("лента: скрытые посты недоступны, продолжаем без них")
			metrics.IncEnrichmentFallback("hidden")
			return
		}
		result.hiddenSet = hiddenSet
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		result.bundle, result.bundleErr = s.loadActorBundle(actorIDs)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		result.blockedSet, result.blockedErr = s.blocks.BlockedActorSet(viewer.ActorID, actorIDs)
	}()

	wg.Wait()
	return result
}

// loadActorBundle резолвит акторов в их профили и vport'ы батчами.
func (s *Service) loadActorBundle(actorIDs []string) (domain.ActorBundle, error) {
	bundle := domain.ActorBundle{
		Actors:   map[string]domain.Actor{},
		Profiles: map[string]domain.Profile{},
		Vports:   map[string]domain.Vport{},
	}
	if len(actorIDs) == 0 {
		return bundle, nil
	}
	actors, err := s.actors.GetActorsByIDs(actorIDs)
	if err != nil {
		return bundle, fmt.Errorf("акторы: %w", err)
	}
	bundle.Actors = actors

	var profileIDs, vportIDs []string
	for _, actor := range actors {
		switch actor.Kind {
		case domain.ActorKindUser:
			if actor.ProfileID != nil {
				profileIDs = append(profileIDs, *actor.ProfileID)
			}
		case domain.ActorKindVport:
			if actor.VportID != nil {
				vportIDs = append(vportIDs, *actor.VportID)
			}
		}
	}
	if len(profileIDs) > 0 {
		profiles, err := s.profiles.GetProfilesByIDs(profileIDs)
		if err != nil {
			return bundle, fmt.Errorf("профили: %w", err)
		}
		bundle.Profiles = profiles
	}
	if len(vportIDs) > 0 {
		vports, err := s.vports.GetVportsByIDs(vportIDs)
		if err != nil {
			return bundle, fmt.Errorf("vport'ы: %w", err)
		}
		bundle.Vports = vports
	}
	return bundle, nil
}
