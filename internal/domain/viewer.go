package domain

import "errors"

// ErrViewerIncomplete возвращается, если у наблюдателя нет идентификатора
// для выбранного режима действия.
var ErrViewerIncomplete = errors.New("у наблюдателя отсутствует идентификатор для выбранного режима")

// Viewer — явная идентичность запроса: от чьего имени выполняется операция.
// Передаётся аргументом в каждую операцию вместо глобального состояния сессии.
type Viewer struct {
	ActorID       string
	ProfileID     string
	VportID       string
	ActingAsVport bool
}

// Descriptor возвращает дескриптор актора с учётом режима «действую как vport».
func (v Viewer) Descriptor() (ActorDescriptor, error) {
	if v.ActingAsVport && v.VportID != "" {
		return ActorDescriptor{Kind: ActorKindVport, VportID: v.VportID}, nil
	}
	if v.ProfileID == "" {
		return ActorDescriptor{}, ErrViewerIncomplete
	}
	return ActorDescriptor{Kind: ActorKindUser, ProfileID: v.ProfileID}, nil
}
