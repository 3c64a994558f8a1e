// cleanup.go — периодический sweep скачанных блобов.
//
// Политика хранится в таблице settings и перечитывается перед каждым
// запуском: cleanup_enabled включает sweep, cleanup_max_age_hours задаёт
// возраст с момента первого скачивания, после которого блоб удаляется.
// Никогда не скачанные блобы sweep не трогает.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/dolphin-storage/storage-server/internal/api/middleware"
	"github.com/dolphin-storage/storage-server/internal/domain/model"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// Значения политики по умолчанию, когда ключи в settings отсутствуют.
const (
	defaultCleanupEnabled     = false
	defaultCleanupMaxAgeHours = 24
)

// Статусы результата запуска sweep.
const (
	// CleanupStatusSkipped — sweep выключен политикой.
	CleanupStatusSkipped = "skipped"
	// CleanupStatusCompleted — sweep выполнен.
	CleanupStatusCompleted = "completed"
)

// CleanupResult — результат одного запуска sweep.
type CleanupResult struct {
	// Статус запуска: skipped или completed
	Status string `json:"status"`
	// Количество удалённых блобов
	DeletedCount int `json:"deleted_count"`
	// Действовавший возраст в часах
	MaxAgeHours int `json:"max_age_hours"`
	// Время запуска
	Timestamp time.Time `json:"timestamp"`
}

// CleanupService — периодический sweep скачанных блобов.
type CleanupService struct {
	files    repository.FilesRepository
	settings repository.SettingsRepository
	blobs    *blobstore.BlobStore
	locks    *JobLocks
	logger   *slog.Logger

	// interval — период между автоматическими запусками (0 — только вручную)
	interval time.Duration

	// runMutex сериализует запуски: тикер и ручной POST /cleanup
	// не должны выполняться одновременно
	runMutex sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCleanupService создаёт сервис sweep.
func NewCleanupService(
	files repository.FilesRepository,
	settings repository.SettingsRepository,
	blobs *blobstore.BlobStore,
	locks *JobLocks,
	interval time.Duration,
	logger *slog.Logger,
) *CleanupService {
	return &CleanupService{
		files:    files,
		settings: settings,
		blobs:    blobs,
		locks:    locks,
		logger:   logger.With(slog.String("component", "cleanup_service")),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start запускает периодический sweep: немедленный запуск, затем по
// тикеру. При interval = 0 автоматика выключена, остаётся ручной запуск.
func (s *CleanupService) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("Периодический sweep выключен, только ручной запуск")
		return
	}

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("Cleanup service запущен",
		slog.Duration("interval", s.interval),
	)
}

// Stop останавливает периодический sweep. Текущий запуск, если он идёт,
// дорабатывает до конца.
func (s *CleanupService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("Cleanup service остановлен")
}

// run — цикл периодических запусков.
func (s *CleanupService) run(ctx context.Context) {
	defer s.wg.Done()

	// Первый запуск сразу: процесс мог простоять дольше interval
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Ошибка выполнения sweep", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Ошибка выполнения sweep", slog.String("error", err.Error()))
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce выполняет один sweep по текущей политике из settings.
// Безопасен для конкурентного вызова: запуски сериализованы.
func (s *CleanupService) RunOnce(ctx context.Context) (*CleanupResult, error) {
	s.runMutex.Lock()
	defer s.runMutex.Unlock()

	start := time.Now().UTC()

	policy, err := s.loadPolicy(ctx)
	if err != nil {
		middleware.CleanupRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &CleanupResult{
		MaxAgeHours: policy.MaxAgeHours,
		Timestamp:   start,
	}

	if !policy.Enabled {
		result.Status = CleanupStatusSkipped
		middleware.CleanupRunsTotal.WithLabelValues("skipped").Inc()
		s.logger.Info("Sweep пропущен: выключен политикой")
		return result, nil
	}

	cutoff := start.Add(-time.Duration(policy.MaxAgeHours) * time.Hour)

	candidates, err := s.files.CleanupCandidates(ctx, cutoff)
	if err != nil {
		middleware.CleanupRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	deleted := 0
	for _, rec := range candidates {
		if s.sweepOne(ctx, rec.JobID, cutoff) {
			deleted++
		}
	}

	result.Status = CleanupStatusCompleted
	result.DeletedCount = deleted

	// Отметка последнего запуска — best effort: её потеря не делает
	// sweep некорректным, только лог
	if err := s.settings.Set(ctx, repository.SettingCleanupLastRun, start.Format(time.RFC3339)); err != nil {
		s.logger.Error("Ошибка записи cleanup_last_run", slog.String("error", err.Error()))
	}

	middleware.CleanupRunsTotal.WithLabelValues("completed").Inc()
	middleware.CleanupDeletedTotal.Add(float64(deleted))
	middleware.CleanupDurationSeconds.Observe(time.Since(start).Seconds())

	s.logger.Info("Sweep завершён",
		slog.Int("candidates", len(candidates)),
		slog.Int("deleted", deleted),
		slog.Int("max_age_hours", policy.MaxAgeHours),
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// sweepOne удаляет один блоб-кандидат. Перед удалением повторно
// проверяет запись под мьютексом job_id: между выборкой кандидатов
// и этим моментом мог пройти повторный upload или другое удаление.
func (s *CleanupService) sweepOne(ctx context.Context, jobID string, cutoff time.Time) bool {
	s.locks.Lock(jobID)
	defer s.locks.Unlock(jobID)

	rec, err := s.files.Get(ctx, jobID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Ошибка перепроверки кандидата",
				slog.String("job_id", jobID),
				slog.String("error", err.Error()),
			)
		}
		return false
	}
	if rec.Deleted || !rec.Downloaded() || !rec.DownloadedAt.Before(cutoff) {
		return false
	}

	if err := s.blobs.Remove(jobID); err != nil {
		// tombstone не ставим: блоб остался на диске, попробуем в следующий sweep
		s.logger.Error("Ошибка удаления блоба при sweep",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := s.files.MarkDeleted(ctx, jobID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("Ошибка установки tombstone при sweep",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.Info("Блоб удалён sweep-ом",
		slog.String("job_id", jobID),
		slog.Time("downloaded_at", *rec.DownloadedAt),
	)
	return true
}

// loadPolicy читает политику sweep из settings. Отсутствующий ключ —
// значение по умолчанию, некорректное значение — ошибка (политику
// лучше не выполнять, чем выполнить с мусорным возрастом).
func (s *CleanupService) loadPolicy(ctx context.Context) (*model.CleanupPolicy, error) {
	policy := &model.CleanupPolicy{
		Enabled:     defaultCleanupEnabled,
		MaxAgeHours: defaultCleanupMaxAgeHours,
	}

	enabled, err := s.settings.Get(ctx, repository.SettingCleanupEnabled)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		policy.Enabled = enabled.Value == "true"
	}

	maxAge, err := s.settings.Get(ctx, repository.SettingCleanupMaxAgeHours)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		hours, convErr := strconv.Atoi(maxAge.Value)
		if convErr != nil || hours <= 0 {
			return nil, errors.New("некорректное значение cleanup_max_age_hours: " + maxAge.Value)
		}
		policy.MaxAgeHours = hours
	}

	return policy, nil
}
