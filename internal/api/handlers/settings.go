// settings.go — обработчики GET/PUT /settings: политика cleanup.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	apierrors "github.com/dolphin-storage/storage-server/internal/api/errors"
	"github.com/dolphin-storage/storage-server/internal/repository"
)

// SettingsHandler — обработчик endpoints настроек.
type SettingsHandler struct {
	settings repository.SettingsRepository
}

// NewSettingsHandler создаёт обработчик настроек.
func NewSettingsHandler(settings repository.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// settingsUpdate — тело PUT /settings. Поля опциональны:
// обновляются только переданные.
type settingsUpdate struct {
	CleanupEnabled     *bool `json:"cleanup_enabled"`
	CleanupMaxAgeHours *int  `json:"cleanup_max_age_hours"`
}

// Get обрабатывает GET /settings — все настройки в виде map.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.List(r.Context())
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения настроек")
		return
	}

	values := make(map[string]string, len(settings))
	for _, s := range settings {
		values[s.Key] = s.Value
	}

	writeJSON(w, http.StatusOK, values)
}

// Update обрабатывает PUT /settings.
// cleanup_max_age_hours обязан быть положительным: нулевой или
// отрицательный возраст превратил бы sweep в немедленное удаление всего.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var update settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON: "+err.Error())
		return
	}
	if update.CleanupEnabled == nil && update.CleanupMaxAgeHours == nil {
		apierrors.ValidationError(w, "Не передано ни одной настройки")
		return
	}
	if update.CleanupMaxAgeHours != nil && *update.CleanupMaxAgeHours <= 0 {
		apierrors.ValidationError(w, "cleanup_max_age_hours должен быть положительным")
		return
	}

	ctx := r.Context()
	if update.CleanupEnabled != nil {
		value := strconv.FormatBool(*update.CleanupEnabled)
		if err := h.settings.Set(ctx, repository.SettingCleanupEnabled, value); err != nil {
			apierrors.InternalError(w, "Ошибка сохранения настройки")
			return
		}
	}
	if update.CleanupMaxAgeHours != nil {
		value := strconv.Itoa(*update.CleanupMaxAgeHours)
		if err := h.settings.Set(ctx, repository.SettingCleanupMaxAgeHours, value); err != nil {
			apierrors.InternalError(w, "Ошибка сохранения настройки")
			return
		}
	}

	h.Get(w, r)
}
