// health.go — обработчик GET /health.
// Публичный endpoint (без аутентификации) для Kubernetes probes
// и внешнего мониторинга.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dolphin-storage/storage-server/internal/config"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// DatabaseChecker — проверка доступности базы данных.
type DatabaseChecker interface {
	CheckReady() (status string, message string)
}

// HealthHandler — обработчик health endpoint.
type HealthHandler struct {
	version string
	// dataDir — директория блобов (для проверки FS)
	dataDir string
	db      DatabaseChecker
}

// NewHealthHandler создаёт обработчик health endpoint.
func NewHealthHandler(dataDir string, db DatabaseChecker) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dataDir: dataDir,
		db:      db,
	}
}

// Health обрабатывает GET /health.
// Проверяет: директория данных на запись, доступность базы.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	dbCheck := h.checkDatabase()
	if dbCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "storage-server",
		"checks": map[string]any{
			"filesystem": fsCheck,
			"database":   dbCheck,
		},
	}

	writeJSON(w, httpStatus, resp)
}

// checkFilesystem проверяет доступность директории данных на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	testFile := filepath.Join(h.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория данных недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{"status": "ok"}
}

// checkDatabase проверяет доступность базы коротким ping.
func (h *HealthHandler) checkDatabase() map[string]any {
	if h.db == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	status, message := h.db.CheckReady()
	check := map[string]any{"status": status}
	if message != "" {
		check["message"] = message
	}
	return check
}
