package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vibez-backend/internal/domain"
)

type stubPostRepo struct {
	posts []domain.Post
	err   error
}

func (s *stubPostRepo) InsertPost(post domain.Post) error { return nil }

func (s *stubPostRepo) SoftDeletePost(postID, actorID string) error { return nil }

func (s *stubPostRepo) ListFeedPosts(realmID string, before *time.Time, limit int) ([]domain.Post, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.Post, 0, limit)
	for _, post := range s.posts {
		if post.RealmID != realmID {
			continue
		}
		if before != nil && !post.CreatedAt.Before(*before) {
			continue
		}
		out = append(out, post)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type stubMediaRepo struct {
	media map[string][]domain.Media
	err   error
}

func (s *stubMediaRepo) ListMediaByPostIDs(postIDs []string) (map[string][]domain.Media, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.media, nil
}

type stubMentionRepo struct {
	mentions []domain.Mention
	err      error
}

func (s *stubMentionRepo) SaveMentions(postID string, mentions []domain.Mention) error { return nil }

func (s *stubMentionRepo) ListMentionsByPostIDs(postIDs []string) ([]domain.Mention, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mentions, nil
}

type stubActorRepo struct {
	actors map[string]domain.Actor
}

func (s *stubActorRepo) EnsureUserActor(profileID string) (domain.Actor, error) {
	return domain.Actor{}, errors.New("не используется")
}

func (s *stubActorRepo) EnsureVportActor(vportID string) (domain.Actor, error) {
	return domain.Actor{}, errors.New("не используется")
}

func (s *stubActorRepo) GetActorsByIDs(ids []string) (map[string]domain.Actor, error) {
	out := make(map[string]domain.Actor, len(ids))
	for _, id := range ids {
		if actor, ok := s.actors[id]; ok {
			out[id] = actor
		}
	}
	return out, nil
}

type stubProfileRepo struct {
	profiles map[string]domain.Profile
}

func (s *stubProfileRepo) GetProfilesByIDs(ids []string) (map[string]domain.Profile, error) {
	out := make(map[string]domain.Profile, len(ids))
	for _, id := range ids {
		if profile, ok := s.profiles[id]; ok {
			out[id] = profile
		}
	}
	return out, nil
}

func (s *stubProfileRepo) SearchProfiles(query string, limit int) ([]domain.Profile, error) {
	return nil, nil
}

type stubVportRepo struct {
	vports map[string]domain.Vport
}

func (s *stubVportRepo) GetVportsByIDs(ids []string) (map[string]domain.Vport, error) {
	out := make(map[string]domain.Vport, len(ids))
	for _, id := range ids {
		if vport, ok := s.vports[id]; ok {
			out[id] = vport
		}
	}
	return out, nil
}

func (s *stubVportRepo) SearchVports(query string, limit int) ([]domain.Vport, error) {
	return nil, nil
}

type stubBlockRepo struct {
	blocked map[string]struct{}
	err     error
}

func (s *stubBlockRepo) BlockedActorSet(viewerActorID string, actorIDs []string) (map[string]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]struct{}{}
	for _, id := range actorIDs {
		if _, ok := s.blocked[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (s *stubBlockRepo) AddBlock(viewerActorID, targetActorID string) error { return nil }

func (s *stubBlockRepo) RemoveBlock(viewerActorID, targetActorID string) error { return nil }

type stubHiddenResolver struct {
	hidden map[string]struct{}
	err    error
}

func (s *stubHiddenResolver) HiddenPostSet(ctx context.Context, viewerActorID string, postIDs []string) (map[string]struct{}, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hidden, nil
}

type fixture struct {
	posts    *stubPostRepo
	media    *stubMediaRepo
	mentions *stubMentionRepo
	actors   *stubActorRepo
	profiles *stubProfileRepo
	vports   *stubVportRepo
	blocks   *stubBlockRepo
	hidden   *stubHiddenResolver
}

func strPtr(s string) *string { return &s }

func newFixture() *fixture {
	return &fixture{
		posts:    &stubPostRepo{},
		media:    &stubMediaRepo{media: map[string][]domain.Media{}},
		mentions: &stubMentionRepo{},
		actors: &stubActorRepo{actors: map[string]domain.Actor{
			"actor-a": {ID: "actor-a", Kind: domain.ActorKindUser, ProfileID: strPtr("profile-a")},
			"actor-b": {ID: "actor-b", Kind: domain.ActorKindUser, ProfileID: strPtr("profile-b")},
			"actor-v": {ID: "actor-v", Kind: domain.ActorKindVport, VportID: strPtr("vport-v")},
		}},
		profiles: &stubProfileRepo{profiles: map[string]domain.Profile{
			"profile-a": {ID: "profile-a", DisplayName: "Анна", Username: "anna"},
			"profile-b": {ID: "profile-b", DisplayName: "Борис", Username: "boris"},
		}},
		vports: &stubVportRepo{vports: map[string]domain.Vport{
			"vport-v": {ID: "vport-v", Name: "Кафе Вибез", Slug: "vibez-cafe", Active: true},
		}},
		blocks: &stubBlockRepo{blocked: map[string]struct{}{}},
		hidden: &stubHiddenResolver{hidden: map[string]struct{}{}},
	}
}

func (f *fixture) service() *Service {
	return NewService(
		f.posts, f.media, f.mentions, f.actors, f.profiles, f.vports, f.blocks, f.hidden,
		zerolog.Nop(), 20, 50,
	)
}

func post(id, actorID string, createdAt time.Time) domain.Post {
	return domain.Post{ID: id, RealmID: "realm-1", ActorID: actorID, Text: "пост " + id, CreatedAt: createdAt}
}

var viewer = domain.Viewer{ActorID: "viewer-1", ProfileID: "profile-viewer"}

func TestFetchPageOrderingAndCursor(t *testing.T) {
	f := newFixture()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.posts.posts = []domain.Post{
		post("p3", "actor-a", base.Add(3*time.Minute)),
		post("p2", "actor-a", base.Add(2*time.Minute)),
		post("p1", "actor-a", base.Add(1*time.Minute)),
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 2})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("ожидали 2 поста, получили %d", len(page.Posts))
	}
	if page.Posts[0].ID != "p3" || page.Posts[1].ID != "p2" {
		t.Fatalf("неверный порядок постов: %s, %s", page.Posts[0].ID, page.Posts[1].ID)
	}
	if !page.HasMore {
		t.Fatalf("ожидали hasMore=true")
	}
	if page.NextCursorCreatedAt == nil || !page.NextCursorCreatedAt.Equal(page.Posts[1].CreatedAt) {
		t.Fatalf("курсор должен совпадать со временем последнего поста страницы")
	}

	next, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{
		RealmID: "realm-1", PageSize: 2, CursorCreatedAt: page.NextCursorCreatedAt,
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка второй страницы: %v", err)
	}
	if len(next.Posts) != 1 || next.Posts[0].ID != "p1" {
		t.Fatalf("вторая страница должна содержать только p1")
	}
	if next.HasMore {
		t.Fatalf("на второй странице hasMore должен быть false")
	}
}

func TestFetchPagePrivateProfileVisibleOnlyToAuthor(t *testing.T) {
	f := newFixture()
	f.profiles.profiles["profile-b"] = domain.Profile{
		ID: "profile-b", DisplayName: "Борис", Username: "boris", Private: true,
	}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.posts.posts = []domain.Post{
		post("p2", "actor-b", base.Add(2*time.Minute)),
		post("p1", "actor-a", base.Add(1*time.Minute)),
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].ID != "p1" {
		t.Fatalf("пост приватного профиля должен быть отброшен для чужого наблюдателя")
	}

	author := domain.Viewer{ActorID: "actor-b", ProfileID: "profile-b"}
	own, err := f.service().FetchPage(context.Background(), author, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(own.Posts) != 2 {
		t.Fatalf("автор должен видеть собственный приватный пост, получили %d постов", len(own.Posts))
	}
}

func TestFetchPageDropsBlockedAuthors(t *testing.T) {
	f := newFixture()
	f.blocks.blocked = map[string]struct{}{"actor-b": {}}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.posts.posts = []domain.Post{
		post("p2", "actor-b", base.Add(2*time.Minute)),
		post("p1", "actor-a", base.Add(1*time.Minute)),
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].ID != "p1" {
		t.Fatalf("посты заблокированного автора должны быть отброшены")
	}
}

func TestFetchPageInactiveVportDropped(t *testing.T) {
	f := newFixture()
	f.vports.vports["vport-v"] = domain.Vport{ID: "vport-v", Name: "Кафе Вибез", Slug: "vibez-cafe", Active: false}
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.posts.posts = []domain.Post{
		post("p2", "actor-v", base.Add(2*time.Minute)),
		post("p1", "actor-a", base.Add(1*time.Minute)),
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].ID != "p1" {
		t.Fatalf("пост неактивного vport должен быть отброшен")
	}
}

func TestFetchPageMediaFallbackToLegacyField(t *testing.T) {
	f := newFixture()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	withLegacy := post("p1", "actor-a", base.Add(1*time.Minute))
	withLegacy.MediaURL = "https://cdn.example/legacy.jpg"
	withLegacy.MediaType = "image"
	withTable := post("p2", "actor-a", base.Add(2*time.Minute))
	withTable.MediaURL = "https://cdn.example/ignored.jpg"
	withTable.MediaType = "image"
	f.posts.posts = []domain.Post{withTable, withLegacy}
	f.media.media = map[string][]domain.Media{
		"p2": {
			{PostID: "p2", Type: "image", URL: "https://cdn.example/a.jpg", SortOrder: 0},
			{PostID: "p2", Type: "video", URL: "https://cdn.example/b.mp4", SortOrder: 1},
		},
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts[0].Media) != 2 || page.Posts[0].Media[0].URL != "https://cdn.example/a.jpg" {
		t.Fatalf("при наличии строк медиа легаси-поле должно игнорироваться")
	}
	if len(page.Posts[1].Media) != 1 || page.Posts[1].Media[0].URL != "https://cdn.example/legacy.jpg" {
		t.Fatalf("без строк медиа должно использоваться легаси-поле поста")
	}
}

func TestFetchPageMentionsResolved(t *testing.T) {
	f := newFixture()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	row := post("p1", "actor-a", base)
	row.Text = "привет @boris и @ghost"
	f.posts.posts = []domain.Post{row}
	f.mentions.mentions = []domain.Mention{
		{PostID: "p1", Token: "@boris", ActorID: "actor-b"},
		{PostID: "p1", Token: "@ghost", ActorID: "actor-missing"},
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	mentions := page.Posts[0].Mentions
	if len(mentions) != 1 {
		t.Fatalf("ожидали одно зарезолвленное упоминание, получили %d", len(mentions))
	}
	if mentions["@boris"].Username != "boris" {
		t.Fatalf("упоминание должно резолвиться в карточку актора")
	}
}

func TestFetchPageHiddenFlaggedNotDropped(t *testing.T) {
	f := newFixture()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.posts.posts = []domain.Post{
		post("p2", "actor-a", base.Add(2*time.Minute)),
		post("p1", "actor-a", base.Add(1*time.Minute)),
	}
	f.hidden.hidden = map[string]struct{}{"p1": {}}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts) != 2 {
		t.Fatalf("скрытый пост не должен отбрасываться")
	}
	if page.Posts[0].HiddenForViewer || !page.Posts[1].HiddenForViewer {
		t.Fatalf("флаг скрытия выставлен не на том посте")
	}
}

func TestFetchPageDecorativeFailuresDegrade(t *testing.T) {
	f := newFixture()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	row := post("p1", "actor-a", base)
	row.Text = "c @упоминанием"
	f.posts.posts = []domain.Post{row}
	f.media.err = errors.New("медиа недоступны")
	f.mentions.err = errors.New("упоминания недоступны")
	f.hidden.err = errors.New("модерация недоступна")

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10})
	if err != nil {
		t.Fatalf("декоративные ошибки не должны ронять страницу: %v", err)
	}
	if len(page.Posts) != 1 {
		t.Fatalf("пост должен остаться в ленте")
	}
	if len(page.Posts[0].Media) != 0 || len(page.Posts[0].Mentions) != 0 || page.Posts[0].HiddenForViewer {
		t.Fatalf("обогащения должны деградировать до пустых значений")
	}
}

func TestFetchPageCriticalFailureAborts(t *testing.T) {
	f := newFixture()
	f.posts.posts = []domain.Post{post("p1", "actor-a", time.Now().UTC())}
	f.blocks.err = errors.New("блокировки недоступны")

	if _, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 10}); err == nil {
		t.Fatalf("ошибка блокировок должна ронять страницу")
	}
}

func TestFetchPageEndToEndExample(t *testing.T) {
	f := newFixture()
	f.blocks.blocked = map[string]struct{}{"actor-b": {}}
	t100 := time.Unix(100, 0).UTC()
	t200 := time.Unix(200, 0).UTC()
	t300 := time.Unix(300, 0).UTC()
	f.posts.posts = []domain.Post{
		post("P1", "actor-a", t300),
		post("P2", "actor-b", t200),
		post("P3", "actor-a", t100),
	}

	page, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{RealmID: "realm-1", PageSize: 2})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(page.Posts) != 2 || page.Posts[0].ID != "P1" || page.Posts[1].ID != "P3" {
		t.Fatalf("ожидали страницу [P1, P3], получили %d постов", len(page.Posts))
	}
	if page.HasMore {
		t.Fatalf("после фильтрации страница не заполнена, hasMore должен быть false")
	}
	if page.NextCursorCreatedAt == nil || !page.NextCursorCreatedAt.Equal(t100) {
		t.Fatalf("курсор должен указывать на время последнего оставшегося поста")
	}
}

func TestFetchPageEmptyRealmRejected(t *testing.T) {
	f := newFixture()
	if _, err := f.service().FetchPage(context.Background(), viewer, domain.FeedQuery{}); !errors.Is(err, ErrEmptyRealm) {
		t.Fatalf("ожидали ErrEmptyRealm, получили %v", err)
	}
}
