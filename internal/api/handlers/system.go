// system.go — обработчик GET /stats: агрегаты по записям + диск.
package handlers

import (
	"net/http"

	apierrors "github.com/dolphin-storage/storage-server/internal/api/errors"
	"github.com/dolphin-storage/storage-server/internal/config"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	files repository.FilesRepository
	blobs *blobstore.BlobStore
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(files repository.FilesRepository, blobs *blobstore.BlobStore) *SystemHandler {
	return &SystemHandler{files: files, blobs: blobs}
}

// Stats обрабатывает GET /stats.
// Счётчики записей из базы плюс занятость файловой системы данных.
func (h *SystemHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.files.Stats(r.Context())
	if err != nil {
		apierrors.InternalError(w, "Ошибка получения статистики")
		return
	}

	resp := map[string]any{
		"version": config.Version,
		"files":   stats,
	}

	// Отказ statfs не валит весь ответ: счётчики записей полезны и без него
	if usage, err := h.blobs.Usage(); err == nil {
		resp["disk"] = usage
	}

	writeJSON(w, http.StatusOK, resp)
}
