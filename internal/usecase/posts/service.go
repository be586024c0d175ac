package posts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vibez-backend/internal/domain"
)

var (
	// ErrEmptyRealm возвращается, если не указан реалм поста.
	ErrEmptyRealm = errors.New("не указан реалм поста")
	// ErrEmptyPost возвращается, если у поста нет ни текста, ни медиа.
	ErrEmptyPost = errors.New("пост должен содержать текст или медиа")
)

var mentionRegex = regexp.MustCompile(`(?:^|[^a-z0-9_.])@([a-z0-9_.]{2,32})`)

// CreatePostInput — входные данные публикации поста.
type CreatePostInput struct {
	RealmID      string
	Text         string
	Title        string
	PostType     string
	MediaURL     string
	MediaType    string
	LocationText string
}

// Service отвечает за путь записи постов: публикацию, упоминания,
// событие для нотификаций и мягкое удаление.
type Service struct {
	resolver domain.ActorResolver
	posts    domain.PostRepo
	mentions domain.MentionRepo
	profiles domain.ProfileRepo
	vports   domain.VportRepo
	queue    domain.PostEventQueue
	log      zerolog.Logger
}

// NewService создаёт сервис постов.
func NewService(
	resolver domain.ActorResolver,
	posts domain.PostRepo,
	mentions domain.MentionRepo,
	profiles domain.ProfileRepo,
	vports domain.VportRepo,
	queue domain.PostEventQueue,
	logger zerolog.Logger,
) *Service {
	return &Service{
		resolver: resolver,
		posts:    posts,
		mentions: mentions,
		profiles: profiles,
		vports:   vports,
		queue:    queue,
		log:      logger,
	}
}

// Create публикует пост от имени наблюдателя. Упоминания и событие очереди
// обрабатываются по возможности: их сбой не отменяет уже сохранённый пост.
func (s *Service) Create(ctx context.Context, viewer domain.Viewer, input CreatePostInput) (domain.Post, error) {
	if input.RealmID == "" {
		return domain.Post{}, ErrEmptyRealm
	}
	text := strings.TrimSpace(input.Text)
	if text == "" && input.MediaURL == "" {
		return domain.Post{}, ErrEmptyPost
	}

	actorID, err := s.resolver.ResolveForViewer(ctx, viewer)
	if err != nil {
		return domain.Post{}, fmt.Errorf("резолв автора: %w", err)
	}

	post := domain.Post{
		ID:           uuid.NewString(),
		RealmID:      input.RealmID,
		ActorID:      actorID,
		Text:         text,
		Title:        strings.TrimSpace(input.Title),
		PostType:     input.PostType,
		MediaURL:     input.MediaURL,
		MediaType:    input.MediaType,
		LocationText: input.LocationText,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.posts.InsertPost(post); err != nil {
		return domain.Post{}, fmt.Errorf("сохранение поста: %w", err)
	}

	mentions := s.resolveMentions(ctx, post.ID, text)
	if len(mentions) > 0 {
		if err := s.mentions.SaveMentions(post.ID, mentions); err != nil {
			s.log.Warn().Err(err).Str("post", post.ID).Msg("posts: не удалось сохранить упоминания")
			mentions = nil
		}
	}

	event := domain.PostEvent{
		ID:            uuid.NewString(),
		PostID:        post.ID,
		RealmID:       post.RealmID,
		AuthorActorID: actorID,
		Cause:         domain.PostEventCauseCreated,
		OccurredAt:    post.CreatedAt,
	}
	for _, mention := range mentions {
		event.MentionActorIDs = append(event.MentionActorIDs, mention.ActorID)
	}
	if err := s.queue.Enqueue(ctx, event); err != nil {
		s.log.Error().Err(err).Str("post", post.ID).Msg("posts: не удалось поставить событие в очередь")
	}
	return post, nil
}

// Delete мягко удаляет собственный пост наблюдателя.
func (s *Service) Delete(ctx context.Context, viewer domain.Viewer, postID string) error {
	if postID == "" {
		return domain.ErrPostNotFound
	}
	actorID, err := s.resolver.ResolveForViewer(ctx, viewer)
	if err != nil {
		return fmt.Errorf("резолв автора: %w", err)
	}
	if err := s.posts.SoftDeletePost(postID, actorID); err != nil {
		return fmt.Errorf("удаление поста: %w", err)
	}
	return nil
}

// ExtractMentionTokens возвращает уникальные токены упоминаний из текста.
func ExtractMentionTokens(text string) []string {
	matches := mentionRegex.FindAllStringSubmatch(strings.ToLower(text), -1)
	tokens := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		if _, ok := seen[match[1]]; ok {
			continue
		}
		seen[match[1]] = struct{}{}
		tokens = append(tokens, match[1])
	}
	return tokens
}

// resolveMentions сопоставляет токены упоминаний акторам. Токен резолвится
// только при точном совпадении юзернейма профиля или слага vport;
// нерезолвящиеся токены молча пропускаются.
func (s *Service) resolveMentions(ctx context.Context, postID, text string) []domain.Mention {
	tokens := ExtractMentionTokens(text)
	if len(tokens) == 0 {
		return nil
	}
	mentions := make([]domain.Mention, 0, len(tokens))
	for _, token := range tokens {
		actorID, ok := s.resolveMentionToken(ctx, token)
		if !ok {
			continue
		}
		mentions = append(mentions, domain.Mention{PostID: postID, Token: "@" + token, ActorID: actorID})
	}
	return mentions
}

func (s *Service) resolveMentionToken(ctx context.Context, token string) (string, bool) {
	profiles, err := s.profiles.SearchProfiles(token, 5)
	if err != nil {
		s.log.Warn().Err(err).Str("token", token).Msg("posts: поиск профиля для упоминания не удался")
	}
	for _, profile := range profiles {
		if !strings.EqualFold(profile.Username, token) {
			continue
		}
		actorID, err := s.resolver.Resolve(ctx, domain.ActorDescriptor{Kind: domain.ActorKindUser, ProfileID: profile.ID})
		if err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("posts: резолв актора упоминания не удался")
			return "", false
		}
		return actorID, true
	}

	vports, err := s.vports.SearchVports(token, 5)
	if err != nil {
		s.log.Warn().Err(err).Str("token", token).Msg("posts: поиск vport для упоминания не удался")
	}
	for _, vport := range vports {
		if !strings.EqualFold(vport.Slug, token) {
			continue
		}
		actorID, err := s.resolver.Resolve(ctx, domain.ActorDescriptor{Kind: domain.ActorKindVport, VportID: vport.ID})
		if err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("posts: резолв актора упоминания не удался")
			return "", false
		}
		return actorID, true
	}
	return "", false
}
