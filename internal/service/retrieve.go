// retrieve.go — сервис выдачи блобов с отложенным авто-удалением.
package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/dolphin-storage/storage-server/internal/api/middleware"
	"github.com/dolphin-storage/storage-server/internal/domain/model"
	"github.com/dolphin-storage/storage-server/internal/repository"
)

// RetrieveService — сервис выдачи блобов.
type RetrieveService struct {
	files  repository.FilesRepository
	blobs  blobOpener
	locks  *JobLocks
	reaper *Reaper
	logger *slog.Logger

	// autoDelete — глобальный выключатель авто-удаления после скачивания
	autoDelete bool
}

// blobOpener — чтение блобов, нужное сервису выдачи.
type blobOpener interface {
	Open(jobID string) (*os.File, error)
}

// NewRetrieveService создаёт сервис выдачи.
func NewRetrieveService(
	files repository.FilesRepository,
	blobs blobOpener,
	locks *JobLocks,
	reaper *Reaper,
	autoDelete bool,
	logger *slog.Logger,
) *RetrieveService {
	return &RetrieveService{
		files:      files,
		blobs:      blobs,
		locks:      locks,
		reaper:     reaper,
		logger:     logger.With(slog.String("component", "retrieve_service")),
		autoDelete: autoDelete,
	}
}

// Retrieve открывает блоб для отдачи клиенту и отмечает скачивание.
// keep = true подавляет авто-удаление для этого запроса.
//
// Различение ответов:
//   - записи нет → 404
//   - запись есть, deleted = true → 410 (блоб жил и был удалён)
//   - запись активна, но блоба нет на диске → 404 + лог аварии
//
// downloaded_at фиксируется ДО возврата потока: факт выдачи не должен
// зависеть от того, дочитал ли клиент тело. Закрыть файл обязан вызывающий.
func (s *RetrieveService) Retrieve(ctx context.Context, jobID string, keep bool) (*model.FileRecord, *os.File, *Error) {
	if jobID == "" {
		return nil, nil, errValidation("Не указан job_id")
	}

	rec, f, rerr := s.open(ctx, jobID)
	if rerr != nil {
		return nil, nil, rerr
	}

	// Мьютекс job_id к этому моменту отпущен: Schedule в синхронных
	// ветках (переполнение очереди, останов) выполняет задачу
	// немедленно и сам берёт этот мьютекс.
	if s.autoDelete && !keep {
		s.reaper.Schedule(jobID)
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	s.logger.Info("Блоб выдан",
		slog.String("job_id", jobID),
		slog.Int64("size", rec.SizeBytes),
		slog.Bool("keep", keep),
	)

	return rec, f, nil
}

// open открывает блоб и отмечает скачивание под мьютексом job_id.
func (s *RetrieveService) open(ctx context.Context, jobID string) (*model.FileRecord, *os.File, *Error) {
	s.locks.Lock(jobID)
	defer s.locks.Unlock(jobID)

	rec, err := s.files.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
			return nil, nil, errNotFound("Блоб не найден: %s", jobID)
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка чтения записи",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, nil, errInternal("Ошибка чтения записи из базы")
	}

	if rec.Deleted {
		middleware.OperationsTotal.WithLabelValues("download", "gone").Inc()
		return nil, nil, errGone("Блоб уже удалён: %s", jobID)
	}

	f, err := s.blobs.Open(jobID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// запись активна, а блоба нет: рассинхронизация базы и диска
			middleware.OperationsTotal.WithLabelValues("download", "not_found").Inc()
			s.logger.Error("Запись активна, но блоб отсутствует на диске",
				slog.String("job_id", jobID),
				slog.String("blob_path", rec.BlobPath),
			)
			return nil, nil, errNotFound("Блоб не найден: %s", jobID)
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка открытия блоба",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, nil, errInternal("Ошибка открытия блоба")
	}

	rec, err = s.files.MarkDownloaded(ctx, jobID, time.Now().UTC())
	if err != nil {
		f.Close()
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка отметки скачивания",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, nil, errInternal("Ошибка отметки скачивания")
	}

	return rec, f, nil
}
