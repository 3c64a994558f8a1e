// files.go — HTTP handlers файловых операций: upload, download,
// delete, check, list.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/dolphin-storage/storage-server/internal/api/errors"
	"github.com/dolphin-storage/storage-server/internal/domain/model"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/service"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// maxMultipartMemory — буфер парсинга multipart формы в памяти,
// остальное уходит во временные файлы.
const maxMultipartMemory = 32 << 20 // 32 MB

// jobIDHeader — заголовок идентификатора задания при raw-загрузке.
const jobIDHeader = "X-Job-Id"

// Лимиты пагинации /list.
const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploadSvc   *service.UploadService
	retrieveSvc *service.RetrieveService
	deleteSvc   *service.DeleteService
	files       repository.FilesRepository
	blobs       *blobstore.BlobStore
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploadSvc *service.UploadService,
	retrieveSvc *service.RetrieveService,
	deleteSvc *service.DeleteService,
	files repository.FilesRepository,
	blobs *blobstore.BlobStore,
) *FilesHandler {
	return &FilesHandler{
		uploadSvc:   uploadSvc,
		retrieveSvc: retrieveSvc,
		deleteSvc:   deleteSvc,
		files:       files,
		blobs:       blobs,
	}
}

// Upload обрабатывает POST /upload.
// Два формата: multipart form (поля file + job_id) или raw body
// с заголовком X-Job-Id.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	jobID, payload, cleanup, ok := extractUpload(w, r)
	if !ok {
		return
	}
	defer cleanup()

	rec, uerr := h.uploadSvc.Upload(r.Context(), jobID, payload)
	if uerr != nil {
		apierrors.WriteError(w, uerr.StatusCode, uerr.Code, uerr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// extractUpload определяет формат загрузки и возвращает job_id и reader
// с данными. При ошибке пишет ответ и возвращает ok = false.
func extractUpload(w http.ResponseWriter, r *http.Request) (string, io.Reader, func(), bool) {
	noop := func() {}

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		// raw body: идентификатор в заголовке
		jobID := r.Header.Get(jobIDHeader)
		if jobID == "" {
			apierrors.ValidationError(w, "Не указан job_id: нужен заголовок "+jobIDHeader+" или multipart форма")
			return "", nil, noop, false
		}
		return jobID, r.Body, noop, true
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return "", nil, noop, false
	}

	jobID := r.FormValue("job_id")
	if jobID == "" {
		apierrors.ValidationError(w, "Поле 'job_id' обязательно")
		return "", nil, noop, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return "", nil, noop, false
	}

	return jobID, file, func() { file.Close() }, true
}

// Download обрабатывает GET /download/{job_id}?keep=.
// Отдаёт блоб потоком; без keep=true блоб после выдачи удаляется
// с небольшой задержкой.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	// keep — без учёта регистра: клиенты присылают и True, и TRUE
	keep := strings.EqualFold(r.URL.Query().Get("keep"), "true")

	rec, f, rerr := h.retrieveSvc.Retrieve(r.Context(), jobID, keep)
	if rerr != nil {
		apierrors.WriteError(w, rerr.StatusCode, rerr.Code, rerr.Message)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Length", strconv.FormatInt(rec.SizeBytes, 10))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", jobID+blobstore.BlobSuffix))

	// Ошибка отдачи тела уже не меняет судьбу записи: downloaded_at
	// зафиксирован до начала потока
	_, _ = io.Copy(w, f)
}

// Delete обрабатывает DELETE /delete/{job_id}.
func (h *FilesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	if derr := h.deleteSvc.Delete(r.Context(), jobID); derr != nil {
		apierrors.WriteError(w, derr.StatusCode, derr.Code, derr.Message)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "deleted",
		"job_id": jobID,
	})
}

// Check обрабатывает GET /check/{job_id} — проба наличия блоба.
// 200 только для активной записи с блобом на диске; всё остальное
// (неизвестный id, tombstone, потерянный блоб) — 404.
func (h *FilesHandler) Check(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	rec, err := h.files.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			apierrors.NotFound(w, "Блоб не найден: "+jobID)
			return
		}
		apierrors.InternalError(w, "Ошибка чтения записи из базы")
		return
	}
	if rec.Deleted || !h.blobs.Exists(jobID) {
		apierrors.NotFound(w, "Блоб не найден: "+jobID)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// List обрабатывает GET /list?limit=&offset= — записи, новые первыми.
// Отдаёт и активные записи, и tombstones.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxListLimit {
			apierrors.ValidationError(w, fmt.Sprintf("Параметр limit должен быть от 1 до %d", maxListLimit))
			return
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apierrors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
		offset = n
	}

	records, err := h.files.List(r.Context(), limit, offset)
	if err != nil {
		apierrors.InternalError(w, "Ошибка получения списка записей")
		return
	}
	if records == nil {
		records = []*model.FileRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"files":  records,
		"count":  len(records),
		"limit":  limit,
		"offset": offset,
	})
}

// writeJSON сериализует ответ в JSON с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
