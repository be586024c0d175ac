package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/cache"
)

type stubNotificationRepo struct {
	saved [][]domain.Notification
	err   error
}

func (s *stubNotificationRepo) SaveNotifications(notifications []domain.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, notifications)
	return nil
}

func event(mentions ...string) domain.PostEvent {
	return domain.PostEvent{
		ID:              "event-1",
		PostID:          "post-1",
		RealmID:         "realm-1",
		AuthorActorID:   "actor-author",
		MentionActorIDs: mentions,
		Cause:           domain.PostEventCauseCreated,
		OccurredAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuildNotificationsSkipsSelfAndDuplicates(t *testing.T) {
	notifications := BuildNotifications(event("actor-b", "actor-author", "actor-b", "", "actor-c"))
	if len(notifications) != 2 {
		t.Fatalf("ожидали 2 уведомления, получили %d", len(notifications))
	}
	if notifications[0].RecipientActorID != "actor-b" || notifications[1].RecipientActorID != "actor-c" {
		t.Fatalf("неверные получатели: %+v", notifications)
	}
	for _, notification := range notifications {
		if notification.Kind != domain.NotificationKindMention {
			t.Fatalf("ожидали уведомление об упоминании, получили %q", notification.Kind)
		}
		if notification.InitiatorActorID != "actor-author" || notification.PostID != "post-1" {
			t.Fatalf("неверные поля уведомления: %+v", notification)
		}
	}
}

func TestBuildNotificationsIgnoresOtherCauses(t *testing.T) {
	evt := event("actor-b")
	evt.Cause = domain.PostEventCause("edited")
	if notifications := BuildNotifications(evt); len(notifications) != 0 {
		t.Fatalf("чужие причины не должны порождать уведомлений: %+v", notifications)
	}
}

func TestHandleEventAcksWithoutMentions(t *testing.T) {
	repo := &stubNotificationRepo{}
	service := NewService(repo, cache.NewMemory(16), zerolog.Nop())
	if !service.HandleEvent(context.Background(), event()) {
		t.Fatalf("событие без упоминаний должно подтверждаться")
	}
	if len(repo.saved) != 0 {
		t.Fatalf("без упоминаний сохранять нечего")
	}
}

func TestHandleEventRequeuesOnStoreFailure(t *testing.T) {
	repo := &stubNotificationRepo{err: errors.New("бд недоступна")}
	service := NewService(repo, cache.NewMemory(16), zerolog.Nop())
	if service.HandleEvent(context.Background(), event("actor-b")) {
		t.Fatalf("при сбое хранилища событие должно вернуться в очередь")
	}
}

func TestHandleEventSavesBatch(t *testing.T) {
	repo := &stubNotificationRepo{}
	service := NewService(repo, cache.NewMemory(16), zerolog.Nop())
	if !service.HandleEvent(context.Background(), event("actor-b", "actor-c")) {
		t.Fatalf("успешная обработка должна подтверждать событие")
	}
	if len(repo.saved) != 1 || len(repo.saved[0]) != 2 {
		t.Fatalf("ожидали одну пачку из 2 уведомлений: %+v", repo.saved)
	}
}

func TestHandleEventDeduplicatesRedelivery(t *testing.T) {
	repo := &stubNotificationRepo{}
	service := NewService(repo, cache.NewMemory(16), zerolog.Nop())
	evt := event("actor-b")
	if !service.HandleEvent(context.Background(), evt) || !service.HandleEvent(context.Background(), evt) {
		t.Fatalf("оба вызова должны подтверждаться")
	}
	if len(repo.saved) != 1 {
		t.Fatalf("повторная доставка не должна порождать второй фанаут: %d", len(repo.saved))
	}
}

func TestHandleEventRetriesAfterFailureDespiteDedup(t *testing.T) {
	repo := &stubNotificationRepo{err: errors.New("бд недоступна")}
	service := NewService(repo, cache.NewMemory(16), zerolog.Nop())
	evt := event("actor-b")
	if service.HandleEvent(context.Background(), evt) {
		t.Fatalf("первый вызов должен завершиться повтором")
	}
	repo.err = nil
	if !service.HandleEvent(context.Background(), evt) {
		t.Fatalf("после восстановления хранилища событие должно обработаться")
	}
	if len(repo.saved) != 1 {
		t.Fatalf("ожидали один успешный фанаут, получили %d", len(repo.saved))
	}
}
