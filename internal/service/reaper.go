// reaper.go — отложенное удаление блобов после скачивания.
//
// Вместо fire-and-forget горутины на каждое скачивание — одна очередь
// задач и один воркер: удаления выполняются последовательно, Stop
// дожидается обработки всех запланированных задач (без выдержки delay),
// и ни одна задача не теряется при штатном завершении процесса.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dolphin-storage/storage-server/internal/api/middleware"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// reaperQueueSize — ёмкость очереди отложенных удалений.
const reaperQueueSize = 256

// reaperTask — одна задача отложенного удаления.
type reaperTask struct {
	jobID string
	// dueAt — момент, раньше которого удаление не выполняется
	dueAt time.Time
}

// Reaper — воркер отложенного удаления блобов.
type Reaper struct {
	files  repository.FilesRepository
	blobs  *blobstore.BlobStore
	locks  *JobLocks
	logger *slog.Logger

	// delay — задержка между скачиванием и удалением
	delay time.Duration

	tasks chan reaperTask
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	stopped bool
}

// NewReaper создаёт воркер отложенного удаления.
// delay — пауза между ответом клиенту и фактическим удалением,
// чтобы поток ответа успел уйти до исчезновения блоба с диска.
func NewReaper(
	files repository.FilesRepository,
	blobs *blobstore.BlobStore,
	locks *JobLocks,
	delay time.Duration,
	logger *slog.Logger,
) *Reaper {
	return &Reaper{
		files:  files,
		blobs:  blobs,
		locks:  locks,
		logger: logger.With(slog.String("component", "reaper")),
		delay:  delay,
		tasks:  make(chan reaperTask, reaperQueueSize),
		done:   make(chan struct{}),
	}
}

// Start запускает воркер очереди.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()

	r.logger.Info("Reaper запущен",
		slog.Duration("delay", r.delay),
	)
}

// Stop останавливает воркер: новые задачи больше не принимаются,
// уже запланированные обрабатываются немедленно, без выдержки delay.
// Блокирует до полной обработки очереди.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.done)
	close(r.tasks)
	r.wg.Wait()

	r.logger.Info("Reaper остановлен")
}

// Schedule ставит удаление job_id в очередь с выдержкой delay.
// После Stop (или при переполненной очереди) задача выполняется
// синхронно без выдержки: поздно или тесно — но не потеряно.
//
// Вызывающий не должен удерживать мьютекс этого job_id: синхронные
// ветки берут его сами, и повторный захват заблокировал бы вызов
// навсегда.
func (r *Reaper) Schedule(jobID string) {
	task := reaperTask{
		jobID: jobID,
		dueAt: time.Now().Add(r.delay),
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.process(task.jobID)
		return
	}

	select {
	case r.tasks <- task:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		r.logger.Warn("Очередь reaper переполнена, удаляем синхронно",
			slog.String("job_id", jobID),
		)
		r.process(task.jobID)
	}
}

// run — цикл воркера: выдержать delay, удалить, повторить.
func (r *Reaper) run() {
	defer r.wg.Done()

	for task := range r.tasks {
		if wait := time.Until(task.dueAt); wait > 0 {
			select {
			case <-time.After(wait):
			case <-r.done:
				// останов: оставшиеся задачи обрабатываются без выдержки
			}
		}
		r.process(task.jobID)
	}
}

// process удаляет блоб и ставит tombstone. Повторно проверяет запись
// под мьютексом: между скачиванием и срабатыванием таймера мог пройти
// повторный upload или ручное удаление.
func (r *Reaper) process(jobID string) {
	r.locks.Lock(jobID)
	defer r.locks.Unlock(jobID)

	// Фоновая задача переживает HTTP-запрос, породивший её
	ctx := context.Background()

	rec, err := r.files.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.ReaperTasksTotal.WithLabelValues("skipped").Inc()
			return
		}
		middleware.ReaperTasksTotal.WithLabelValues("error").Inc()
		r.logger.Error("Ошибка чтения записи перед удалением",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	if rec.Deleted {
		middleware.ReaperTasksTotal.WithLabelValues("skipped").Inc()
		return
	}
	if !rec.Downloaded() {
		// повторный upload сбросил downloaded_at — блоб снова ждёт скачивания
		middleware.ReaperTasksTotal.WithLabelValues("skipped").Inc()
		return
	}

	if err := r.blobs.Remove(jobID); err != nil {
		// tombstone не ставим: блоб остался на диске, его подберёт sweep
		middleware.ReaperTasksTotal.WithLabelValues("error").Inc()
		r.logger.Error("Ошибка удаления блоба",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := r.files.MarkDeleted(ctx, jobID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		middleware.ReaperTasksTotal.WithLabelValues("error").Inc()
		r.logger.Error("Ошибка установки tombstone",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	middleware.ReaperTasksTotal.WithLabelValues("deleted").Inc()
	r.logger.Info("Блоб удалён после скачивания",
		slog.String("job_id", jobID),
	)
}
