package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	ActorID    *string
	ObjectID   *string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventPostCreated фиксирует публикацию поста.
	BusinessMetricEventPostCreated = "post_created"
	// BusinessMetricEventPostDeleted фиксирует удаление поста автором.
	BusinessMetricEventPostDeleted = "post_deleted"
	// BusinessMetricEventPostHidden фиксирует скрытие поста наблюдателем.
	BusinessMetricEventPostHidden = "post_hidden"
	// BusinessMetricEventActorBlocked фиксирует блокировку актора.
	BusinessMetricEventActorBlocked = "actor_blocked"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
