package domain

import (
	"errors"
	"time"
)

// ActorKind определяет тип актора.
type ActorKind string

const (
	// ActorKindUser — персональный профиль пользователя.
	ActorKindUser ActorKind = "user"
	// ActorKindVport — страница-витрина (бизнес, сообщество).
	ActorKindVport ActorKind = "vport"
)

// Actor связывает профиль или vport с единым идентификатором автора.
type Actor struct {
	ID        string
	Kind      ActorKind
	ProfileID *string
	VportID   *string
	CreatedAt time.Time
}

// ActorDescriptor описывает натуральный идентификатор для резолва актора.
type ActorDescriptor struct {
	Kind      ActorKind
	ProfileID string
	VportID   string
}

// Profile описывает персональный профиль пользователя.
type Profile struct {
	ID          string
	DisplayName string
	Username    string
	PhotoURL    string
	Private     bool
	CreatedAt   time.Time
}

// Vport описывает страницу-витрину.
type Vport struct {
	ID        string
	Name      string
	Slug      string
	AvatarURL string
	Active    bool
	CreatedAt time.Time
}

// ErrPostNotFound возвращается, если пост не найден или принадлежит другому актору.
var ErrPostNotFound = errors.New("пост не найден")

// Post представляет сохранённый пост ленты.
type Post struct {
	ID           string
	RealmID      string
	ActorID      string
	Text         string
	Title        string
	PostType     string
	MediaURL     string
	MediaType    string
	LocationText string
	CreatedAt    time.Time
	EditedAt     *time.Time
	DeletedAt    *time.Time
}

// Media описывает одну единицу медиа поста.
type Media struct {
	PostID    string
	Type      string
	URL       string
	SortOrder int
}

// MediaItem — отображаемая единица медиа.
type MediaItem struct {
	Type string
	URL  string
}

// Mention описывает упоминание актора в тексте поста.
type Mention struct {
	PostID  string
	Token   string
	ActorID string
}

// ActorSummary — краткое представление автора для отображения.
type ActorSummary struct {
	ID          string
	Kind        ActorKind
	DisplayName string
	Username    string
	AvatarURL   string
}

// FeedPost — нормализованный пост, готовый к отображению.
type FeedPost struct {
	ID              string
	Text            string
	Title           string
	PostType        string
	Actor           ActorSummary
	Media           []MediaItem
	Mentions        map[string]ActorSummary
	HiddenForViewer bool
	LocationText    string
	CreatedAt       time.Time
	EditedAt        *time.Time
}

// FeedPage — единица пагинации ленты.
type FeedPage struct {
	Posts               []FeedPost
	HasMore             bool
	NextCursorCreatedAt *time.Time
}

// FeedQuery описывает запрос страницы ленты.
type FeedQuery struct {
	RealmID         string
	CursorCreatedAt *time.Time
	PageSize        int
}

// ModerationActionType определяет тип модерационного действия.
type ModerationActionType string

const (
	// ModerationActionHide скрывает объект для актора.
	ModerationActionHide ModerationActionType = "hide"
	// ModerationActionUnhide отменяет скрытие.
	ModerationActionUnhide ModerationActionType = "unhide"
)

// ModerationObjectPost — тип объекта «пост» в журнале модерации.
const ModerationObjectPost = "post"

// ModerationAction — запись журнала модерационных действий актора.
type ModerationAction struct {
	ID         string
	ActorID    string
	ObjectType string
	ObjectID   string
	Action     ModerationActionType
	CreatedAt  time.Time
}

// Notification описывает уведомление для актора.
type Notification struct {
	ID               string
	RecipientActorID string
	InitiatorActorID string
	Kind             string
	PostID           string
	CreatedAt        time.Time
}

// NotificationKindMention — уведомление об упоминании в посте.
const NotificationKindMention = "mention"

// ActorBundle — пакет данных авторов страницы: акторы и их профили/vport'ы.
type ActorBundle struct {
	Actors   map[string]Actor
	Profiles map[string]Profile
	Vports   map[string]Vport
}
