package moderation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"vibez-backend/internal/domain"
)

// ErrEmptyObjectID возвращается при попытке скрыть объект без идентификатора.
var ErrEmptyObjectID = errors.New("идентификатор объекта пуст")

// Service управляет журналом модерационных действий наблюдателя.
type Service struct {
	repo domain.ModerationRepo
}

// NewService создаёт сервис модерации.
func NewService(repo domain.ModerationRepo) *Service {
	return &Service{repo: repo}
}

// HidePost скрывает пост для наблюдателя.
func (s *Service) HidePost(ctx context.Context, viewer domain.Viewer, postID string) error {
	return s.append(viewer, postID, domain.ModerationActionHide)
}

// UnhidePost отменяет скрытие поста.
func (s *Service) UnhidePost(ctx context.Context, viewer domain.Viewer, postID string) error {
	return s.append(viewer, postID, domain.ModerationActionUnhide)
}

func (s *Service) append(viewer domain.Viewer, postID string, action domain.ModerationActionType) error {
	if postID == "" {
		return ErrEmptyObjectID
	}
	err := s.repo.AppendAction(domain.ModerationAction{
		ID:         uuid.NewString(),
		ActorID:    viewer.ActorID,
		ObjectType: domain.ModerationObjectPost,
		ObjectID:   postID,
		Action:     action,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("запись модерационного действия: %w", err)
	}
	return nil
}

// HiddenPostSet возвращает подмножество postIDs, скрытых наблюдателем.
func (s *Service) HiddenPostSet(ctx context.Context, viewerActorID string, postIDs []string) (map[string]struct{}, error) {
	if len(postIDs) == 0 {
		return map[string]struct{}{}, nil
	}
	actions, err := s.repo.ListActions(viewerActorID, domain.ModerationObjectPost, postIDs)
	if err != nil {
		return nil, fmt.Errorf("чтение журнала модерации: %w", err)
	}
	return ResolveHidden(actions), nil
}

// ResolveHidden вычисляет актуальное состояние «скрыто» по журналу действий:
// для каждого объекта действует самое позднее действие. Порядок входного
// списка не важен — сортировка выполняется внутри.
func ResolveHidden(actions []domain.ModerationAction) map[string]struct{} {
	sorted := make([]domain.ModerationAction, len(actions))
	copy(sorted, actions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	hidden := make(map[string]struct{})
	seen := make(map[string]struct{}, len(sorted))
	for _, action := range sorted {
		if _, ok := seen[action.ObjectID]; ok {
			continue
		}
		seen[action.ObjectID] = struct{}{}
		if action.Action == domain.ModerationActionHide {
			hidden[action.ObjectID] = struct{}{}
		}
	}
	return hidden
}
