package actors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

var (
	// ErrUnknownKind возвращается для неподдерживаемого типа актора.
	ErrUnknownKind = errors.New("неизвестный тип актора")
	// ErrMissingProfileID возвращается, если для kind=user не передан профиль.
	ErrMissingProfileID = errors.New("для актора-пользователя требуется profile id")
	// ErrMissingVportID возвращается, если для kind=vport не передан vport.
	ErrMissingVportID = errors.New("для актора-vport требуется vport id")
)

type inflightCall struct {
	done    chan struct{}
	actorID string
	err     error
}

// Resolver возвращает канонический идентификатор актора по натуральному,
// создавая маппинг при первом обращении. Кэш ограничен по размеру и TTL и
// передаётся снаружи; одновременные первые резолвы одного ключа разделяют
// один поход в хранилище.
type Resolver struct {
	repo     domain.ActorRepo
	cache    domain.Cache
	cacheTTL time.Duration

	mu       sync.Mutex
	inflight map[string]*inflightCall
}

var _ domain.ActorResolver = (*Resolver)(nil)

// NewResolver создаёт резолвер акторов.
func NewResolver(repo domain.ActorRepo, cache domain.Cache, cacheTTL time.Duration) *Resolver {
	return &Resolver{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
		inflight: make(map[string]*inflightCall),
	}
}

// Resolve возвращает идентификатор актора для дескриптора.
func (r *Resolver) Resolve(ctx context.Context, descriptor domain.ActorDescriptor) (string, error) {
	if err := validateDescriptor(descriptor); err != nil {
		return "", err
	}

	key := cacheKey(descriptor)
	if cached, err := r.cache.Get(key); err == nil && len(cached) > 0 {
		metrics.ActorCacheHits.Inc()
		return string(cached), nil
	}
	metrics.ActorCacheMisses.Inc()

	r.mu.Lock()
	if call, ok := r.inflight[key]; ok {
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-call.done:
			return call.actorID, call.err
		}
	}
	call := &inflightCall{done: make(chan struct{})}
	r.inflight[key] = call
	r.mu.Unlock()

	call.actorID, call.err = r.ensure(descriptor)
	if call.err == nil {
		_ = r.cache.Set(key, []byte(call.actorID), r.cacheTTL)
	}
	close(call.done)

	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()

	return call.actorID, call.err
}

// ResolveForViewer возвращает идентификатор актора, от имени которого
// действует наблюдатель (vport при включённом режиме, иначе профиль).
func (r *Resolver) ResolveForViewer(ctx context.Context, viewer domain.Viewer) (string, error) {
	descriptor, err := viewer.Descriptor()
	if err != nil {
		return "", err
	}
	return r.Resolve(ctx, descriptor)
}

func (r *Resolver) ensure(descriptor domain.ActorDescriptor) (string, error) {
	var (
		actor domain.Actor
		err   error
	)
	switch descriptor.Kind {
	case domain.ActorKindUser:
		actor, err = r.repo.EnsureUserActor(descriptor.ProfileID)
	case domain.ActorKindVport:
		actor, err = r.repo.EnsureVportActor(descriptor.VportID)
	}
	if err != nil {
		return "", fmt.Errorf("резолв актора: %w", err)
	}
	return actor.ID, nil
}

func validateDescriptor(descriptor domain.ActorDescriptor) error {
	switch descriptor.Kind {
	case domain.ActorKindUser:
		if descriptor.ProfileID == "" {
			return ErrMissingProfileID
		}
	case domain.ActorKindVport:
		if descriptor.VportID == "" {
			return ErrMissingVportID
		}
	default:
		return ErrUnknownKind
	}
	return nil
}

func cacheKey(descriptor domain.ActorDescriptor) string {
	return string(descriptor.Kind) + "|" + descriptor.ProfileID + "|" + descriptor.VportID
}
