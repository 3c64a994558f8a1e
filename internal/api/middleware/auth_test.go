package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler — заглушка, отвечающая 200.
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAPIKeyAuth_ValidKeyHeader(t *testing.T) {
	auth := NewAPIKeyAuth("secret-key")
	handler := auth.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	req.Header.Set("X-API-Key", "secret-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("статус: ожидалось 200, получено %d", rec.Code)
	}
}

func TestAPIKeyAuth_ValidBearerToken(t *testing.T) {
	auth := NewAPIKeyAuth("secret-key")
	handler := auth.Middleware()(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/list", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("статус: ожидалось 200, получено %d", rec.Code)
	}
}

func TestAPIKeyAuth_Rejected(t *testing.T) {
	auth := NewAPIKeyAuth("secret-key")
	handler := auth.Middleware()(okHandler())

	cases := map[string]func(*http.Request){
		"без ключа":      func(_ *http.Request) {},
		"неверный ключ":  func(r *http.Request) { r.Header.Set("X-API-Key", "wrong") },
		"неверный Bearer": func(r *http.Request) { r.Header.Set("Authorization", "Bearer wrong") },
		"Basic вместо Bearer": func(r *http.Request) {
			r.Header.Set("Authorization", "Basic c2VjcmV0LWtleQ==")
		},
	}

	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/list", nil)
			setup(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("статус: ожидалось 401, получено %d", rec.Code)
			}
		})
	}
}
