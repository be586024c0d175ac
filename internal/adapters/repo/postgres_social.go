package repo

import (
	"time"

	"github.com/jackc/pgx/v5"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// AppendAction дописывает модерационное действие в журнал.
func (p *Postgres) AppendAction(action domain.ModerationAction) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO moderation_actions (id, actor_id, object_type, object_id, action, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, action.ID, action.ActorID, action.ObjectType, action.ObjectID, action.Action, action.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "moderation_actions_insert", "moderation_actions", start, err)
	return err
}

// ListActions возвращает действия актора над объектами по убыванию времени.
func (p *Postgres) ListActions(actorID, objectType string, objectIDs []string) ([]domain.ModerationAction, error) {
	if len(objectIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, actor_id, object_type, object_id, action, created_at
FROM moderation_actions
WHERE actor_id = $1 AND object_type = $2 AND object_id = ANY($3)
ORDER BY created_at DESC
`, actorID, objectType, objectIDs)
	metrics.ObserveNetworkRequest("postgres", "moderation_actions_list", "moderation_actions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []domain.ModerationAction
	for rows.Next() {
		var action domain.ModerationAction
		if err := rows.Scan(&action.ID, &action.ActorID, &action.ObjectType, &action.ObjectID, &action.Action, &action.CreatedAt); err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

// BlockedActorSet возвращает подмножество actorIDs, заблокированных
// в любую сторону между наблюдателем и кандидатом.
func (p *Postgres) BlockedActorSet(viewerActorID string, actorIDs []string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	if viewerActorID == "" || len(actorIDs) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT blocked_actor_id FROM actor_blocks
WHERE blocker_actor_id = $1 AND blocked_actor_id = ANY($2)
UNION
SELECT blocker_actor_id FROM actor_blocks
WHERE blocked_actor_id = $1 AND blocker_actor_id = ANY($2)
`, viewerActorID, actorIDs)
	metrics.ObserveNetworkRequest("postgres", "actor_blocks_set", "actor_blocks", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var actorID string
		if err := rows.Scan(&actorID); err != nil {
			return nil, err
		}
		out[actorID] = struct{}{}
	}
	return out, rows.Err()
}

// AddBlock добавляет блокировку. Повторная блокировка не является ошибкой.
func (p *Postgres) AddBlock(viewerActorID, targetActorID string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO actor_blocks (blocker_actor_id, blocked_actor_id)
VALUES ($1, $2)
ON CONFLICT (blocker_actor_id, blocked_actor_id) DO NOTHING
`, viewerActorID, targetActorID)
	metrics.ObserveNetworkRequest("postgres", "actor_blocks_insert", "actor_blocks", start, err)
	return err
}

// RemoveBlock снимает блокировку.
func (p *Postgres) RemoveBlock(viewerActorID, targetActorID string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
DELETE FROM actor_blocks
WHERE blocker_actor_id = $1 AND blocked_actor_id = $2
`, viewerActorID, targetActorID)
	metrics.ObserveNetworkRequest("postgres", "actor_blocks_delete", "actor_blocks", start, err)
	return err
}

// SaveNotifications сохраняет пачку уведомлений.
func (p *Postgres) SaveNotifications(notifications []domain.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	batch := &pgx.Batch{}
	for _, notification := range notifications {
		batch.Queue(`
INSERT INTO notifications (id, recipient_actor_id, initiator_actor_id, kind, post_id, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), $6)
ON CONFLICT (recipient_actor_id, post_id, kind) DO NOTHING
`, notification.ID, notification.RecipientActorID, notification.InitiatorActorID, notification.Kind, notification.PostID, notification.CreatedAt)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "notifications_send_batch", "notifications", start, nil)
	defer br.Close()
	for range notifications {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "notifications_batch_exec", "notifications", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}
