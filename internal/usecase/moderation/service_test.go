package moderation

import (
	"context"
	"errors"
	"testing"
	"time"

	"vibez-backend/internal/domain"
)

type stubModerationRepo struct {
	appended []domain.ModerationAction
	actions  []domain.ModerationAction
}

func (s *stubModerationRepo) AppendAction(action domain.ModerationAction) error {
	s.appended = append(s.appended, action)
	return nil
}

func (s *stubModerationRepo) ListActions(string, string, []string) ([]domain.ModerationAction, error) {
	return s.actions, nil
}

func TestResolveHiddenLatestWins(t *testing.T) {
	t1 := time.Unix(1, 0)
	t2 := time.Unix(2, 0)

	// unhide позже hide — объект не скрыт.
	hidden := ResolveHidden([]domain.ModerationAction{
		{ObjectID: "1", Action: domain.ModerationActionUnhide, CreatedAt: t2},
		{ObjectID: "1", Action: domain.ModerationActionHide, CreatedAt: t1},
	})
	if _, ok := hidden["1"]; ok {
		t.Fatalf("не ожидали скрытия: unhide позже hide")
	}

	// hide позже unhide — объект скрыт.
	hidden = ResolveHidden([]domain.ModerationAction{
		{ObjectID: "1", Action: domain.ModerationActionHide, CreatedAt: t2},
		{ObjectID: "1", Action: domain.ModerationActionUnhide, CreatedAt: t1},
	})
	if _, ok := hidden["1"]; !ok {
		t.Fatalf("ожидали скрытие: hide позже unhide")
	}
}

func TestResolveHiddenDoesNotTrustCallerOrder(t *testing.T) {
	t1 := time.Unix(1, 0)
	t2 := time.Unix(2, 0)

	// Действия переданы от старых к новым — результат тот же.
	hidden := ResolveHidden([]domain.ModerationAction{
		{ObjectID: "1", Action: domain.ModerationActionHide, CreatedAt: t1},
		{ObjectID: "1", Action: domain.ModerationActionUnhide, CreatedAt: t2},
	})
	if _, ok := hidden["1"]; ok {
		t.Fatalf("ожидали пересортировку внутри функции")
	}
}

func TestResolveHiddenPerObject(t *testing.T) {
	t1 := time.Unix(1, 0)
	t2 := time.Unix(2, 0)

	hidden := ResolveHidden([]domain.ModerationAction{
		{ObjectID: "a", Action: domain.ModerationActionHide, CreatedAt: t2},
		{ObjectID: "b", Action: domain.ModerationActionUnhide, CreatedAt: t2},
		{ObjectID: "b", Action: domain.ModerationActionHide, CreatedAt: t1},
		{ObjectID: "c", Action: domain.ModerationActionHide, CreatedAt: t1},
	})
	if len(hidden) != 2 {
		t.Fatalf("ожидали 2 скрытых объекта, получили %d", len(hidden))
	}
	for _, id := range []string{"a", "c"} {
		if _, ok := hidden[id]; !ok {
			t.Fatalf("ожидали скрытие объекта %s", id)
		}
	}
}

func TestHidePostAppendsAction(t *testing.T) {
	repo := &stubModerationRepo{}
	service := NewService(repo)
	viewer := domain.Viewer{ActorID: "v1"}

	if err := service.HidePost(context.Background(), viewer, "post-1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(repo.appended) != 1 {
		t.Fatalf("ожидали 1 запись в журнале")
	}
	action := repo.appended[0]
	if action.ActorID != "v1" || action.ObjectID != "post-1" || action.Action != domain.ModerationActionHide {
		t.Fatalf("неожиданная запись: %+v", action)
	}
}

func TestHidePostValidatesObjectID(t *testing.T) {
	service := NewService(&stubModerationRepo{})
	if err := service.HidePost(context.Background(), domain.Viewer{ActorID: "v1"}, ""); !errors.Is(err, ErrEmptyObjectID) {
		t.Fatalf("ожидали ErrEmptyObjectID, получили %v", err)
	}
}
