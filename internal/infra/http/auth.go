package http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"vibez-backend/internal/domain"
)

type viewerContextKey struct{}

// ViewerTokenHeader — заголовок с подписанным токеном наблюдателя.
const ViewerTokenHeader = "X-Viewer-Token"

type viewerClaims struct {
	ActorID       string `json:"actor_id"`
	ProfileID     string `json:"profile_id,omitempty"`
	VportID       string `json:"vport_id,omitempty"`
	ActingAsVport bool   `json:"acting_as_vport,omitempty"`
}

// ViewerAuthMiddleware проверяет подпись токена наблюдателя и кладёт
// идентичность запроса в контекст.
func ViewerAuthMiddleware(secret string) func(http.Handler) http.Handler {
	key := sha256.Sum256([]byte(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(ViewerTokenHeader)
			if token == "" {
				http.Error(w, "токен наблюдателя отсутствует", http.StatusUnauthorized)
				return
			}
			viewer, ok := parseViewerToken(token, key[:])
			if !ok {
				http.Error(w, "подпись токена недействительна", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), viewerContextKey{}, viewer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ViewerFromContext возвращает идентичность запроса из контекста.
func ViewerFromContext(ctx context.Context) (domain.Viewer, bool) {
	viewer, ok := ctx.Value(viewerContextKey{}).(domain.Viewer)
	return viewer, ok
}

// SignViewerToken строит подписанный токен для наблюдателя.
// Используется в тестах и вспомогательных утилитах выдачи токенов.
func SignViewerToken(viewer domain.Viewer, secret string) string {
	key := sha256.Sum256([]byte(secret))
	payload, _ := json.Marshal(viewerClaims{
		ActorID:       viewer.ActorID,
		ProfileID:     viewer.ProfileID,
		VportID:       viewer.VportID,
		ActingAsVport: viewer.ActingAsVport,
	})
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	h := hmac.New(sha256.New, key[:])
	h.Write([]byte(encoded))
	return encoded + "." + hex.EncodeToString(h.Sum(nil))
}

func parseViewerToken(token string, key []byte) (domain.Viewer, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return domain.Viewer{}, false
	}
	h := hmac.New(sha256.New, key)
	h.Write([]byte(parts[0]))
	expected, err := hex.DecodeString(parts[1])
	if err != nil || !hmac.Equal(h.Sum(nil), expected) {
		return domain.Viewer{}, false
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return domain.Viewer{}, false
	}
	var claims viewerClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return domain.Viewer{}, false
	}
	if claims.ActorID == "" {
		return domain.Viewer{}, false
	}
	return domain.Viewer{
		ActorID:       claims.ActorID,
		ProfileID:     claims.ProfileID,
		VportID:       claims.VportID,
		ActingAsVport: claims.ActingAsVport,
	}, true
}

// RequestID возвращает request ID из контекста chi.
func RequestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}

// ErrorResponse описывает ошибку.
type ErrorResponse struct {
	Error string `json:"error"`
}
