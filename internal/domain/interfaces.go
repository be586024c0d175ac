package domain

import (
	"context"
	"time"
)

// ActorRepo управляет маппингом акторов.
type ActorRepo interface {
	// EnsureUserActor возвращает актора для профиля, создавая маппинг при отсутствии.
	EnsureUserActor(profileID string) (Actor, error)
	// EnsureVportActor возвращает актора для vport, создавая маппинг при отсутствии.
	EnsureVportActor(vportID string) (Actor, error)
	GetActorsByIDs(ids []string) (map[string]Actor, error)
}

// ProfileRepo читает профили пользователей.
type ProfileRepo interface {
	GetProfilesByIDs(ids []string) (map[string]Profile, error)
	SearchProfiles(query string, limit int) ([]Profile, error)
}

// VportRepo читает vport'ы.
type VportRepo interface {
	GetVportsByIDs(ids []string) (map[string]Vport, error)
	SearchVports(query string, limit int) ([]Vport, error)
}

// PostRepo управляет постами.
type PostRepo interface {
	InsertPost(post Post) error
	// SoftDeletePost помечает пост удалённым, если он принадлежит актору.
	SoftDeletePost(postID, actorID string) error
	// ListFeedPosts возвращает посты реалма строго раньше before (или с начала),
	// по убыванию created_at, не более limit строк.
	ListFeedPosts(realmID string, before *time.Time, limit int) ([]Post, error)
}

// MediaRepo читает медиа постов.
type MediaRepo interface {
	// ListMediaByPostIDs возвращает медиа постов, упорядоченные по sort_order.
	ListMediaByPostIDs(postIDs []string) (map[string][]Media, error)
}

// MentionRepo управляет упоминаниями.
type MentionRepo interface {
	SaveMentions(postID string, mentions []Mention) error
	ListMentionsByPostIDs(postIDs []string) ([]Mention, error)
}

// BlockRepo управляет блокировками акторов.
type BlockRepo interface {
	// BlockedActorSet возвращает подмножество actorIDs, заблокированных
	// в любую сторону между viewer и кандидатом.
	BlockedActorSet(viewerActorID string, actorIDs []string) (map[string]struct{}, error)
	AddBlock(viewerActorID, targetActorID string) error
	RemoveBlock(viewerActorID, targetActorID string) error
}

// ModerationRepo управляет журналом модерационных действий.
type ModerationRepo interface {
	AppendAction(action ModerationAction) error
	ListActions(actorID, objectType string, objectIDs []string) ([]ModerationAction, error)
}

// NotificationRepo сохраняет уведомления.
type NotificationRepo interface {
	SaveNotifications(notifications []Notification) error
}

// ActorResolver возвращает канонический идентификатор актора.
type ActorResolver interface {
	Resolve(ctx context.Context, descriptor ActorDescriptor) (string, error)
	ResolveForViewer(ctx context.Context, viewer Viewer) (string, error)
}

// FeedService строит страницы ленты для наблюдателя.
type FeedService interface {
	FetchPage(ctx context.Context, viewer Viewer, query FeedQuery) (FeedPage, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
