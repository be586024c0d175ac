package domain

import (
	"context"
	"time"
)

// PostEventCause описывает источник события поста.
type PostEventCause string

const (
	// PostEventCauseCreated — пост создан автором.
	PostEventCauseCreated PostEventCause = "created"
)

// PostEvent содержит информацию о событии поста для фанаута уведомлений.
type PostEvent struct {
	ID              string         `json:"event_id,omitempty"`
	PostID          string         `json:"post_id"`
	RealmID         string         `json:"realm_id"`
	AuthorActorID   string         `json:"author_actor_id"`
	MentionActorIDs []string       `json:"mention_actor_ids,omitempty"`
	Cause           PostEventCause `json:"cause"`
	OccurredAt      time.Time      `json:"occurred_at"`
}

// PostEventQueue описывает очередь событий постов.
type PostEventQueue interface {
	Enqueue(ctx context.Context, event PostEvent) error
	Receive(ctx context.Context) (PostEvent, EventAckFunc, error)
}

// EventAckFunc подтверждает успешную обработку или запрашивает повтор доставки события.
type EventAckFunc func(success bool) error
