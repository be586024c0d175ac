package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vibez-backend/internal/domain"
)

// ErrQueryTooShort возвращается для запросов короче двух символов.
var ErrQueryTooShort = errors.New("слишком короткий поисковый запрос")

// Result — найденный актор. Вместо идентификатора актора возвращается
// дескриптор: поиск не должен создавать строки акторов как побочный эффект.
type Result struct {
	Kind        domain.ActorKind `json:"kind"`
	ProfileID   string           `json:"profile_id,omitempty"`
	VportID     string           `json:"vport_id,omitempty"`
	DisplayName string           `json:"display_name"`
	Username    string           `json:"username"`
	AvatarURL   string           `json:"avatar_url,omitempty"`
}

// Service ищет акторов по профилям и vport'ам с коротким кэшем результатов.
type Service struct {
	profiles domain.ProfileRepo
	vports   domain.VportRepo
	cache    domain.Cache
	cacheTTL time.Duration
	limit    int
	log      zerolog.Logger
}

// NewService создаёт сервис поиска.
func NewService(profiles domain.ProfileRepo, vports domain.VportRepo, cache domain.Cache, cacheTTL time.Duration, limit int, logger zerolog.Logger) *Service {
	return &Service{
		profiles: profiles,
		vports:   vports,
		cache:    cache,
		cacheTTL: cacheTTL,
		limit:    limit,
		log:      logger,
	}
}

// Search возвращает акторов, чьи юзернеймы или имена совпадают с запросом.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	trimmed := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "@")))
	if len([]rune(trimmed)) < 2 {
		return nil, ErrQueryTooShort
	}
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}

	cacheKey := fmt.Sprintf("search|%s|%d", trimmed, limit)
	if cached, err := s.cache.Get(cacheKey); err == nil {
		var results []Result
		if err := json.Unmarshal(cached, &results); err == nil {
			return results, nil
		}
	}

	results, err := s.lookup(trimmed, limit)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(results)
	if err == nil {
		if err := s.cache.Set(cacheKey, payload, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("query", trimmed).Msg("search: не удалось закэшировать результаты")
		}
	}
	return results, nil
}

func (s *Service) lookup(query string, limit int) ([]Result, error) {
	profiles, err := s.profiles.SearchProfiles(query, limit)
	if err != nil {
		return nil, fmt.Errorf("поиск профилей: %w", err)
	}
	vports, err := s.vports.SearchVports(query, limit)
	if err != nil {
		return nil, fmt.Errorf("поиск vport: %w", err)
	}

	results := make([]Result, 0, len(profiles)+len(vports))
	for _, profile := range profiles {
		results = append(results, Result{
			Kind:        domain.ActorKindUser,
			ProfileID:   profile.ID,
			DisplayName: profile.DisplayName,
			Username:    profile.Username,
			AvatarURL:   profile.PhotoURL,
		})
	}
	for _, vport := range vports {
		if !vport.Active {
			continue
		}
		results = append(results, Result{
			Kind:        domain.ActorKindVport,
			VportID:     vport.ID,
			DisplayName: vport.Name,
			Username:    vport.Slug,
			AvatarURL:   vport.AvatarURL,
		})
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
