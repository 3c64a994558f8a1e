// maintenance.go — обработчик POST /cleanup: ручной запуск sweep.
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/dolphin-storage/storage-server/internal/api/errors"
	"github.com/dolphin-storage/storage-server/internal/service"
)

// MaintenanceHandler — обработчик обслуживающих endpoints.
type MaintenanceHandler struct {
	cleanup *service.CleanupService
	logger  *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик обслуживающих endpoints.
func NewMaintenanceHandler(cleanup *service.CleanupService, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		cleanup: cleanup,
		logger:  logger.With(slog.String("component", "maintenance_handler")),
	}
}

// Cleanup обрабатывает POST /cleanup — немедленный запуск sweep
// по текущей политике из settings. Запуск синхронный: ответ содержит
// результат завершённого прохода.
func (h *MaintenanceHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	result, err := h.cleanup.RunOnce(r.Context())
	if err != nil {
		h.logger.Error("Ошибка ручного запуска sweep", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка выполнения cleanup")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
