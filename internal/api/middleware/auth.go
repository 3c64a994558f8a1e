// auth.go — middleware аутентификации по статическому API-ключу.
// Клиенты передают ключ в заголовке X-API-Key или как Bearer-токен.
// Публичные endpoints (health, metrics) подключаются без этого middleware.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	apierrors "github.com/dolphin-storage/storage-server/internal/api/errors"
)

// APIKeyAuth — middleware проверки статического API-ключа.
type APIKeyAuth struct {
	apiKey string
}

// NewAPIKeyAuth создаёт middleware с заданным ключом.
func NewAPIKeyAuth(apiKey string) *APIKeyAuth {
	return &APIKeyAuth{apiKey: apiKey}
}

// Middleware возвращает http middleware, отклоняющий запросы
// без корректного ключа с 401 UNAUTHORIZED.
func (a *APIKeyAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			// Сравнение за постоянное время, чтобы не утекала длина совпавшего префикса
			if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) != 1 {
				apierrors.Unauthorized(w, "Отсутствует или неверен API-ключ")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractAPIKey извлекает ключ из X-API-Key или Authorization: Bearer.
func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
