package feed

import (
	"vibez-backend/internal/domain"
	"vibez-backend/internal/infra/metrics"
)

// normalize превращает сырые строки постов в элементы ленты и отбрасывает
// невидимые для наблюдателя посты. Скрытые наблюдателем посты не
// отбрасываются, а помечаются флагом.
func (s *Service) normalize(viewer domain.Viewer, rows []domain.Post, enriched enrichment) []domain.FeedPost {
	mentionsByPost := groupMentions(enriched.mentions)

	out := make([]domain.FeedPost, 0, len(rows))
	for _, row := range rows {
		if _, blocked := enriched.blockedSet[row.ActorID]; blocked {
			metrics.IncPostDropped("blocked")
			continue
		}
		summary, ok := s.authorSummary(viewer, row, enriched.bundle)
		if !ok {
			continue
		}

		post := domain.FeedPost{
			ID:           row.ID,
			Text:         row.Text,
			Title:        row.Title,
			PostType:     row.PostType,
			Actor:        summary,
			Media:        mediaForPost(row, enriched.media),
			Mentions:     resolveMentions(mentionsByPost[row.ID], enriched.mentionBundle),
			LocationText: row.LocationText,
			CreatedAt:    row.CreatedAt,
			EditedAt:     row.EditedAt,
		}
		if _, hiddenByViewer := enriched.hiddenSet[row.ID]; hiddenByViewer {
			post.HiddenForViewer = true
		}
		out = append(out, post)
	}
	return out
}

// authorSummary строит карточку автора поста. Возвращает false, если автор
// не должен быть виден наблюдателю.
func (s *Service) authorSummary(viewer domain.Viewer, row domain.Post, bundle domain.ActorBundle) (domain.ActorSummary, bool) {
	actor, ok := bundle.Actors[row.ActorID]
	if !ok {
		metrics.IncPostDropped("actor_missing")
		return domain.ActorSummary{}, false
	}
	switch actor.Kind {
	case domain.ActorKindVport:
		if actor.VportID == nil {
			metrics.IncPostDropped("vport_missing")
			return domain.ActorSummary{}, false
		}
		vport, ok := bundle.Vports[*actor.VportID]
		if !ok {
			metrics.IncPostDropped("vport_missing")
			return domain.ActorSummary{}, false
		}
		if !vport.Active {
			metrics.IncPostDropped("vport_inactive")
			return domain.ActorSummary{}, false
		}
		return domain.ActorSummary{
			ID:          actor.ID,
			Kind:        actor.Kind,
			DisplayName: vport.Name,
			Username:    vport.Slug,
			AvatarURL:   vport.AvatarURL,
		}, true
	default:
		if actor.ProfileID == nil {
			metrics.IncPostDropped("profile_missing")
			return domain.ActorSummary{}, false
		}
		profile, ok := bundle.Profiles[*actor.ProfileID]
		if !ok {
			metrics.IncPostDropped("profile_missing")
			return domain.ActorSummary{}, false
		}
		if profile.Private && row.ActorID != viewer.ActorID {
			metrics.IncPostDropped("private_profile")
			return domain.ActorSummary{}, false
		}
		return domain.ActorSummary{
			ID:          actor.ID,
			Kind:        actor.Kind,
			DisplayName: profile.DisplayName,
			Username:    profile.Username,
			AvatarURL:   profile.PhotoURL,
		}, true
	}
}

// mediaForPost отдаёт вложения из таблицы медиа, а при их отсутствии
// падает обратно на одиночное медиа-поле самого поста.
func mediaForPost(row domain.Post, media map[string][]domain.Media) []domain.MediaItem {
	if attached := media[row.ID]; len(attached) > 0 {
		items := make([]domain.MediaItem, 0, len(attached))
		for _, item := range attached {
			items = append(items, domain.MediaItem{Type: item.Type, URL: item.URL})
		}
		return items
	}
	if row.MediaURL != "" {
		return []domain.MediaItem{{Type: row.MediaType, URL: row.MediaURL}}
	}
	return []domain.MediaItem{}
}

func groupMentions(mentions []domain.Mention) map[string][]domain.Mention {
	grouped := make(map[string][]domain.Mention, len(mentions))
	for _, mention := range mentions {
		grouped[mention.PostID] = append(grouped[mention.PostID], mention)
	}
	return grouped
}

// resolveMentions сопоставляет токены упоминаний карточкам целевых акторов.
// Нерезолвящиеся упоминания молча пропускаются.
func resolveMentions(mentions []domain.Mention, bundle domain.ActorBundle) map[string]domain.ActorSummary {
	resolved := make(map[string]domain.ActorSummary, len(mentions))
	for _, mention := range mentions {
		actor, ok := bundle.Actors[mention.ActorID]
		if !ok {
			continue
		}
		summary := domain.ActorSummary{ID: actor.ID, Kind: actor.Kind}
		switch actor.Kind {
		case domain.ActorKindVport:
			if actor.VportID == nil {
				continue
			}
			vport, ok := bundle.Vports[*actor.VportID]
			if !ok {
				continue
			}
			summary.DisplayName = vport.Name
			summary.Username = vport.Slug
			summary.AvatarURL = vport.AvatarURL
		default:
			if actor.ProfileID == nil {
				continue
			}
			profile, ok := bundle.Profiles[*actor.ProfileID]
			if !ok {
				continue
			}
			summary.DisplayName = profile.DisplayName
			summary.Username = profile.Username
			summary.AvatarURL = profile.PhotoURL
		}
		resolved[mention.Token] = summary
	}
	return resolved
}
