// delete.go — ручное удаление блоба.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dolphin-storage/storage-server/internal/api/middleware"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// DeleteService — сервис ручного удаления блобов.
type DeleteService struct {
	files  repository.FilesRepository
	blobs  *blobstore.BlobStore
	locks  *JobLocks
	logger *slog.Logger
}

// NewDeleteService создаёт сервис удаления.
func NewDeleteService(
	files repository.FilesRepository,
	blobs *blobstore.BlobStore,
	locks *JobLocks,
	logger *slog.Logger,
) *DeleteService {
	return &DeleteService{
		files:  files,
		blobs:  blobs,
		locks:  locks,
		logger: logger.With(slog.String("component", "delete_service")),
	}
}

// Delete удаляет блоб с диска и ставит tombstone. Уже удалённая
// запись — 404: с точки зрения клиента удалять больше нечего.
// Отсутствие блоба на диске при активной записи не блокирует
// удаление: Remove терпим к ErrNotExist.
func (s *DeleteService) Delete(ctx context.Context, jobID string) *Error {
	if jobID == "" {
		return errValidation("Не указан job_id")
	}

	s.locks.Lock(jobID)
	defer s.locks.Unlock(jobID)

	rec, err := s.files.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("delete", "not_found").Inc()
			return errNotFound("Блоб не найден: %s", jobID)
		}
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Ошибка чтения записи",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return errInternal("Ошибка чтения записи из базы")
	}

	if rec.Deleted {
		middleware.OperationsTotal.WithLabelValues("delete", "not_found").Inc()
		return errNotFound("Блоб уже удалён: %s", jobID)
	}

	if err := s.blobs.Remove(jobID); err != nil {
		// tombstone не ставим: блоб остался на диске
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Ошибка удаления блоба",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return errInternal("Ошибка удаления блоба с диска")
	}

	if err := s.files.MarkDeleted(ctx, jobID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Ошибка установки tombstone",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return errInternal("Ошибка установки tombstone")
	}

	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()
	s.logger.Info("Блоб удалён вручную",
		slog.String("job_id", jobID),
	)

	return nil
}
