package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"vibez-backend/internal/domain"
)

func TestViewerAuthMiddleware(t *testing.T) {
	secret := "test-secret"
	viewer := domain.Viewer{ActorID: "a1", ProfileID: "p1"}

	var got domain.Viewer
	handler := ViewerAuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := ViewerFromContext(r.Context())
		if !ok {
			t.Fatalf("ожидали наблюдателя в контексте")
		}
		got = v
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ViewerTokenHeader, SignViewerToken(viewer, secret))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	if got != viewer {
		t.Fatalf("ожидали %+v, получили %+v", viewer, got)
	}
}

func TestViewerAuthMiddlewareRejectsMissingToken(t *testing.T) {
	handler := ViewerAuthMiddleware("s")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("хендлер не должен вызываться")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
}

func TestViewerAuthMiddlewareRejectsForgedSignature(t *testing.T) {
	viewer := domain.Viewer{ActorID: "a1"}
	token := SignViewerToken(viewer, "secret-one")

	handler := ViewerAuthMiddleware("secret-two")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("хендлер не должен вызываться")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ViewerTokenHeader, token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидали 401, получили %d", rec.Code)
	}
}
