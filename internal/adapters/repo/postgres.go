package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ActorRepo          = (*Postgres)(nil)
	_ domain.ProfileRepo        = (*Postgres)(nil)
	_ domain.VportRepo          = (*Postgres)(nil)
	_ domain.PostRepo           = (*Postgres)(nil)
	_ domain.MediaRepo          = (*Postgres)(nil)
	_ domain.MentionRepo        = (*Postgres)(nil)
	_ domain.BlockRepo          = (*Postgres)(nil)
	_ domain.ModerationRepo     = (*Postgres)(nil)
	_ domain.NotificationRepo   = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var actorID sql.NullString
	if metric.ActorID != nil {
		actorID = sql.NullString{String: *metric.ActorID, Valid: true}
	}
	var objectID sql.NullString
	if metric.ObjectID != nil {
		objectID = sql.NullString{String: *metric.ObjectID, Valid: true}
	}
	var payload []byte
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, actor_id, object_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4, $5)
`, metric.Event, actorID, objectID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}

func scanActor(row pgx.Row) (domain.Actor, error) {
	var (
		actor     domain.Actor
		profileID sql.NullString
		vportID   sql.NullString
	)
	if err := row.Scan(&actor.ID, &actor.Kind, &profileID, &vportID, &actor.CreatedAt); err != nil {
		return domain.Actor{}, err
	}
	if profileID.Valid {
		actor.ProfileID = &profileID.String
	}
	if vportID.Valid {
		actor.VportID = &vportID.String
	}
	return actor, nil
}

// EnsureUserActor возвращает актора профиля, создавая маппинг при отсутствии.
// Конфликт по частичному уникальному индексу возвращает существующую строку.
func (p *Postgres) EnsureUserActor(profileID string) (domain.Actor, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO actors (id, kind, profile_id)
VALUES ($1, 'user', $2)
ON CONFLICT (profile_id) WHERE profile_id IS NOT NULL
DO UPDATE SET profile_id = EXCLUDED.profile_id
RETURNING id, kind, profile_id, vport_id, created_at
`, uuid.NewString(), profileID)
	actor, err := scanActor(row)
	metrics.ObserveNetworkRequest("postgres", "actors_ensure_user", "actors", start, err)
	return actor, err
}

// EnsureVportActor возвращает актора vport, создавая маппинг при отсутствии.
func (p *Postgres) EnsureVportActor(vportID string) (domain.Actor, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
INSERT INTO actors (id, kind, vport_id)
VALUES ($1, 'vport', $2)
ON CONFLICT (vport_id) WHERE vport_id IS NOT NULL
DO UPDATE SET vport_id = EXCLUDED.vport_id
RETURNING id, kind, profile_id, vport_id, created_at
`, uuid.NewString(), vportID)
	actor, err := scanActor(row)
	metrics.ObserveNetworkRequest("postgres", "actors_ensure_vport", "actors", start, err)
	return actor, err
}

// GetActorsByIDs возвращает акторов по идентификаторам.
func (p *Postgres) GetActorsByIDs(ids []string) (map[string]domain.Actor, error) {
	out := make(map[string]domain.Actor, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, kind, profile_id, vport_id, created_at
FROM actors WHERE id = ANY($1)
`, ids)
	metrics.ObserveNetworkRequest("postgres", "actors_list", "actors", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		actor, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		out[actor.ID] = actor
	}
	return out, rows.Err()
}

func scanProfile(row pgx.Row) (domain.Profile, error) {
	var (
		profile  domain.Profile
		photoURL sql.NullString
	)
	if err := row.Scan(&profile.ID, &profile.DisplayName, &profile.Username, &photoURL, &profile.Private, &profile.CreatedAt); err != nil {
		return domain.Profile{}, err
	}
	if photoURL.Valid {
		profile.PhotoURL = photoURL.String
	}
	return profile, nil
}

// GetProfilesByIDs возвращает профили по идентификаторам.
func (p *Postgres) GetProfilesByIDs(ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, display_name, username, photo_url, private, created_at
FROM profiles WHERE id = ANY($1)
`, ids)
	metrics.ObserveNetworkRequest("postgres", "profiles_list", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[profile.ID] = profile
	}
	return out, rows.Err()
}

// SearchProfiles ищет профили по юзернейму и отображаемому имени.
func (p *Postgres) SearchProfiles(query string, limit int) ([]domain.Profile, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, display_name, username, photo_url, private, created_at
FROM profiles
WHERE username ILIKE $1 || '%' OR display_name ILIKE '%' || $1 || '%'
ORDER BY (username ILIKE $1 || '%') DESC, username
LIMIT $2
`, query, limit)
	metrics.ObserveNetworkRequest("postgres", "profiles_search", "profiles", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var profiles []domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}
	return profiles, rows.Err()
}

func scanVport(row pgx.Row) (domain.Vport, error) {
	var (
		vport     domain.Vport
		avatarURL sql.NullString
	)
	if err := row.Scan(&vport.ID, &vport.Name, &vport.Slug, &avatarURL, &vport.Active, &vport.CreatedAt); err != nil {
		return domain.Vport{}, err
	}
	if avatarURL.Valid {
		vport.AvatarURL = avatarURL.String
	}
	return vport, nil
}

// GetVportsByIDs возвращает vport'ы по идентификаторам.
func (p *Postgres) GetVportsByIDs(ids []string) (map[string]domain.Vport, error) {
	out := make(map[string]domain.Vport, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, slug, avatar_url, active, created_at
FROM vports WHERE id = ANY($1)
`, ids)
	metrics.ObserveNetworkRequest("postgres", "vports_list", "vports", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		vport, err := scanVport(rows)
		if err != nil {
			return nil, err
		}
		out[vport.ID] = vport
	}
	return out, rows.Err()
}

// SearchVports ищет vport'ы по слагу и названию.
func (p *Postgres) SearchVports(query string, limit int) ([]domain.Vport, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, name, slug, avatar_url, active, created_at
FROM vports
WHERE slug ILIKE $1 || '%' OR name ILIKE '%' || $1 || '%'
ORDER BY (slug ILIKE $1 || '%') DESC, slug
LIMIT $2
`, query, limit)
	metrics.ObserveNetworkRequest("postgres", "vports_search", "vports", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vports []domain.Vport
	for rows.Next() {
		vport, err := scanVport(rows)
		if err != nil {
			return nil, err
		}
		vports = append(vports, vport)
	}
	return vports, rows.Err()
}
