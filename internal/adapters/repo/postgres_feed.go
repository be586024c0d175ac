package repo

import (
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// InsertPost сохраняет новый пост.
func (p *Postgres) InsertPost(post domain.Post) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO posts (id, realm_id, actor_id, text, title, post_type, media_url, media_type, location_text, created_at)
VALUES ($1, $2, $3, $4, NULLIF($5,''), NULLIF($6,''), NULLIF($7,''), NULLIF($8,''), NULLIF($9,''), $10)
`, post.ID, post.RealmID, post.ActorID, post.Text, post.Title, post.PostType, post.MediaURL, post.MediaType, post.LocationText, post.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "posts_insert", "posts", start, err)
	return err
}

// SoftDeletePost помечает пост удалённым, если он принадлежит актору.
func (p *Postgres) SoftDeletePost(postID, actorID string) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posts SET deleted_at = now()
WHERE id = $1 AND actor_id = $2 AND deleted_at IS NULL
`, postID, actorID)
	metrics.ObserveNetworkRequest("postgres", "posts_soft_delete", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// ListFeedPosts возвращает посты реалма строго раньше before по убыванию created_at.
func (p *Postgres) ListFeedPosts(realmID string, before *time.Time, limit int) ([]domain.Post, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var cursor sql.NullTime
	if before != nil {
		cursor = sql.NullTime{Time: *before, Valid: true}
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, realm_id, actor_id, text, COALESCE(title,''), COALESCE(post_type,''),
       COALESCE(media_url,''), COALESCE(media_type,''), COALESCE(location_text,''),
       created_at, edited_at
FROM posts
WHERE realm_id = $1 AND deleted_at IS NULL AND ($2::timestamptz IS NULL OR created_at < $2)
ORDER BY created_at DESC
LIMIT $3
`, realmID, cursor, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list_feed", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var posts []domain.Post
	for rows.Next() {
		var (
			post     domain.Post
			editedAt sql.NullTime
		)
		if err := rows.Scan(&post.ID, &post.RealmID, &post.ActorID, &post.Text, &post.Title, &post.PostType,
			&post.MediaURL, &post.MediaType, &post.LocationText, &post.CreatedAt, &editedAt); err != nil {
			return nil, err
		}
		if editedAt.Valid {
			ts := editedAt.Time
			post.EditedAt = &ts
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// ListMediaByPostIDs возвращает медиа постов, упорядоченные по sort_order.
func (p *Postgres) ListMediaByPostIDs(postIDs []string) (map[string][]domain.Media, error) {
	out := make(map[string][]domain.Media, len(postIDs))
	if len(postIDs) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, type, url, sort_order
FROM post_media WHERE post_id = ANY($1)
ORDER BY post_id, sort_order
`, postIDs)
	metrics.ObserveNetworkRequest("postgres", "post_media_list", "post_media", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var media domain.Media
		if err := rows.Scan(&media.PostID, &media.Type, &media.URL, &media.SortOrder); err != nil {
			return nil, err
		}
		out[media.PostID] = append(out[media.PostID], media)
	}
	return out, rows.Err()
}

// SaveMentions сохраняет упоминания поста.
func (p *Postgres) SaveMentions(postID string, mentions []domain.Mention) error {
	if len(mentions) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	batch := &pgx.Batch{}
	for _, mention := range mentions {
		batch.Queue(`
INSERT INTO post_mentions (post_id, token, actor_id)
VALUES ($1, $2, $3)
ON CONFLICT (post_id, token) DO UPDATE SET actor_id = EXCLUDED.actor_id
`, postID, mention.Token, mention.ActorID)
	}
	start := time.Now()
	br := p.pool.SendBatch(ctx, batch)
	metrics.ObserveNetworkRequest("postgres", "post_mentions_send_batch", "post_mentions", start, nil)
	defer br.Close()
	for range mentions {
		start = time.Now()
		_, err := br.Exec()
		metrics.ObserveNetworkRequest("postgres", "post_mentions_batch_exec", "post_mentions", start, err)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListMentionsByPostIDs возвращает упоминания постов.
func (p *Postgres) ListMentionsByPostIDs(postIDs []string) ([]domain.Mention, error) {
	if len(postIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT post_id, token, actor_id
FROM post_mentions WHERE post_id = ANY($1)
`, postIDs)
	metrics.ObserveNetworkRequest("postgres", "post_mentions_list", "post_mentions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mentions []domain.Mention
	for rows.Next() {
		var mention domain.Mention
		if err := rows.Scan(&mention.PostID, &mention.Token, &mention.ActorID); err != nil {
			return nil, err
		}
		mentions = append(mentions, mention)
	}
	return mentions, rows.Err()
}
