// upload.go — сервис загрузки блобов.
package service

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/dolphin-storage/storage-server/internal/api/middleware"
	"github.com/dolphin-storage/storage-server/internal/domain/model"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// UploadService — сервис загрузки блобов.
type UploadService struct {
	files  repository.FilesRepository
	blobs  *blobstore.BlobStore
	locks  *JobLocks
	logger *slog.Logger
}

// NewUploadService создаёт сервис загрузки.
func NewUploadService(
	files repository.FilesRepository,
	blobs *blobstore.BlobStore,
	locks *JobLocks,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		files:  files,
		blobs:  blobs,
		locks:  locks,
		logger: logger.With(slog.String("component", "upload_service")),
	}
}

// Upload сохраняет блоб для job_id и создаёт (или полностью замещает)
// запись жизненного цикла: uploaded_at = now, downloaded_at = null,
// deleted = false.
//
// Поток:
//  1. Валидация job_id и непустого payload
//  2. Атомарная запись блоба на диск (temp → fsync → rename)
//  3. Upsert записи в files
//
// Блоб и запись пишутся под мьютексом job_id, чтобы повторная загрузка
// не перемежалась с конкурирующим удалением того же идентификатора.
func (s *UploadService) Upload(ctx context.Context, jobID string, payload io.Reader) (*model.FileRecord, *Error) {
	if jobID == "" {
		return nil, errValidation("Не указан job_id")
	}

	// Проверяем, что payload не пуст, не буферизуя его целиком
	br := bufio.NewReader(payload)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errValidation("Пустой payload")
		}
		return nil, errInternal("Ошибка чтения payload")
	}

	s.locks.Lock(jobID)
	defer s.locks.Unlock(jobID)

	size, err := s.blobs.Save(jobID, br)
	if err != nil {
		if errors.Is(err, blobstore.ErrInvalidJobID) {
			return nil, errValidation("Недопустимый job_id: %q", jobID)
		}
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Error("Ошибка записи блоба",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, errInternal("Ошибка сохранения блоба на диск")
	}

	blobPath, _ := s.blobs.Path(jobID)
	rec, err := s.files.Put(ctx, jobID, blobPath, size, time.Now().UTC())
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		s.logger.Error("Ошибка сохранения записи",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, errInternal("Ошибка сохранения записи в базе")
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	s.logger.Info("Блоб загружен",
		slog.String("job_id", jobID),
		slog.Int64("size", size),
	)

	return rec, nil
}
