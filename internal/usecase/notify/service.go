package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// dedupTTL ограничивает окно, в котором повторная доставка события
// не порождает повторного фанаута.
const dedupTTL = 24 * time.Hour

// Service раскладывает события постов в уведомления упомянутым акторам.
type Service struct {
	notifications domain.NotificationRepo
	dedup         domain.Cache
	log           zerolog.Logger
}

// NewService создаёт сервис нотификаций.
func NewService(notifications domain.NotificationRepo, dedup domain.Cache, logger zerolog.Logger) *Service {
	return &Service{notifications: notifications, dedup: dedup, log: logger}
}

// HandleEvent обрабатывает одно событие очереди. Возвращает true, если
// событие можно подтверждать; false требует повторной доставки.
func (s *Service) HandleEvent(ctx context.Context, event domain.PostEvent) bool {
	notifications := BuildNotifications(event)
	if len(notifications) == 0 {
		metrics.NotifierEvents.WithLabelValues("skipped").Inc()
		return true
	}
	save := func() error { return s.notifications.SaveNotifications(notifications) }
	var err error
	if s.dedup != nil && event.ID != "" {
		err = s.dedup.Once("notify_fanout|"+event.ID, dedupTTL, save)
	} else {
		err = save()
	}
	if err != nil {
		s.log.Error().Err(err).Str("event", event.ID).Msg("notifier: не удалось сохранить уведомления")
		metrics.NotifierEvents.WithLabelValues("failed").Inc()
		return false
	}
	s.log.Info().Str("event", event.ID).Int("count", len(notifications)).Msg("notifier: уведомления сохранены")
	metrics.NotifierEvents.WithLabelValues("delivered").Inc()
	return true
}

// BuildNotifications строит уведомления по событию поста.
// Самоупоминания и дубли акторов не порождают уведомлений.
func BuildNotifications(event domain.PostEvent) []domain.Notification {
	if event.Cause != domain.PostEventCauseCreated || len(event.MentionActorIDs) == 0 {
		return nil
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	seen := make(map[string]struct{}, len(event.MentionActorIDs))
	notifications := make([]domain.Notification, 0, len(event.MentionActorIDs))
	for _, actorID := range event.MentionActorIDs {
		if actorID == "" || actorID == event.AuthorActorID {
			continue
		}
		if _, ok := seen[actorID]; ok {
			continue
		}
		seen[actorID] = struct{}{}
		notifications = append(notifications, domain.Notification{
			ID:               uuid.NewString(),
			RecipientActorID: actorID,
			InitiatorActorID: event.AuthorActorID,
			Kind:             domain.NotificationKindMention,
			PostID:           event.PostID,
			CreatedAt:        occurredAt,
		})
	}
	return notifications
}
