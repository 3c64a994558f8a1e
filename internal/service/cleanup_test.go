package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

type cleanupEnv struct {
	cleanup  *CleanupService
	upload   *UploadService
	files    *fakeFilesRepo
	settings *fakeSettingsRepo
	blobs    *blobstore.BlobStore
}

func newCleanupEnv(t *testing.T) *cleanupEnv {
	t.Helper()

	bs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания BlobStore: %v", err)
	}
	files := newFakeFilesRepo()
	settings := newFakeSettingsRepo()
	locks := NewJobLocks()
	logger := testLogger()

	return &cleanupEnv{
		cleanup:  NewCleanupService(files, settings, bs, locks, 0, logger),
		upload:   NewUploadService(files, bs, locks, logger),
		files:    files,
		settings: settings,
		blobs:    bs,
	}
}

// uploadDownloadedAt загружает блоб и отмечает его скачанным в указанное время.
func (e *cleanupEnv) uploadDownloadedAt(t *testing.T, jobID string, downloadedAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if _, uerr := e.upload.Upload(ctx, jobID, strings.NewReader("данные "+jobID)); uerr != nil {
		t.Fatalf("Ошибка загрузки %s: %v", jobID, uerr)
	}
	if _, err := e.files.MarkDownloaded(ctx, jobID, downloadedAt); err != nil {
		t.Fatalf("Ошибка отметки скачивания %s: %v", jobID, err)
	}
}

func (e *cleanupEnv) enableCleanup(t *testing.T, maxAgeHours string) {
	t.Helper()
	ctx := context.Background()
	if err := e.settings.Set(ctx, repository.SettingCleanupEnabled, "true"); err != nil {
		t.Fatalf("Ошибка установки настройки: %v", err)
	}
	if maxAgeHours != "" {
		if err := e.settings.Set(ctx, repository.SettingCleanupMaxAgeHours, maxAgeHours); err != nil {
			t.Fatalf("Ошибка установки настройки: %v", err)
		}
	}
}

func TestCleanup_SkippedWhenDisabled(t *testing.T) {
	env := newCleanupEnv(t)

	// Политика по умолчанию: cleanup выключен
	env.uploadDownloadedAt(t, "job-1", time.Now().Add(-48*time.Hour))

	result, err := env.cleanup.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Неожиданная ошибка sweep: %v", err)
	}
	if result.Status != CleanupStatusSkipped {
		t.Errorf("Ожидался статус %q, получен %q", CleanupStatusSkipped, result.Status)
	}
	if env.files.get("job-1").Deleted {
		t.Error("Выключенный sweep не должен трогать записи")
	}
	if _, ok := env.settings.get(repository.SettingCleanupLastRun); ok {
		t.Error("Пропущенный sweep не должен писать cleanup_last_run")
	}
}

func TestCleanup_AgeThreshold(t *testing.T) {
	env := newCleanupEnv(t)
	env.enableCleanup(t, "") // возраст по умолчанию: 24 часа

	now := time.Now()
	env.uploadDownloadedAt(t, "job-fresh", now.Add(-1*time.Hour))
	env.uploadDownloadedAt(t, "job-stale", now.Add(-25*time.Hour))

	result, err := env.cleanup.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Неожиданная ошибка sweep: %v", err)
	}

	if result.Status != CleanupStatusCompleted {
		t.Errorf("Ожидался статус %q, получен %q", CleanupStatusCompleted, result.Status)
	}
	if result.DeletedCount != 1 {
		t.Errorf("Ожидалось 1 удаление, получено %d", result.DeletedCount)
	}
	if result.MaxAgeHours != 24 {
		t.Errorf("Ожидался возраст по умолчанию 24, получен %d", result.MaxAgeHours)
	}

	if env.files.get("job-fresh").Deleted {
		t.Error("Свежая запись не должна удаляться")
	}
	if !env.files.get("job-stale").Deleted {
		t.Error("Старая запись должна получить tombstone")
	}
	if env.blobs.Exists("job-stale") {
		t.Error("Старый блоб должен исчезнуть с диска")
	}

	// Завершённый sweep пишет отметку последнего запуска
	lastRun, ok := env.settings.get(repository.SettingCleanupLastRun)
	if !ok {
		t.Fatal("Завершённый sweep должен писать cleanup_last_run")
	}
	if _, err := time.Parse(time.RFC3339, lastRun); err != nil {
		t.Errorf("cleanup_last_run должен быть в RFC 3339: %v", err)
	}
}

func TestCleanup_CustomMaxAge(t *testing.T) {
	env := newCleanupEnv(t)
	env.enableCleanup(t, "1")

	now := time.Now()
	env.uploadDownloadedAt(t, "job-1", now.Add(-90*time.Minute))
	env.uploadDownloadedAt(t, "job-2", now.Add(-30*time.Minute))

	result, err := env.cleanup.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("Неожиданная ошибка sweep: %v", err)
	}
	if result.DeletedCount != 1 {
		t.Errorf("Ожидалось 1 удаление, получено %d", result.DeletedCount)
	}
	if !env.files.get("job-1").Deleted {
		t.Error("Запись старше часа должна получить tombstone")
	}
	if env.files.get("job-2").Deleted {
		t.Error("Запись моложе часа не должна удаляться")
	}
}

func TestCleanup_IgnoresNeverDownloaded(t *testing.T) {
	env := newCleanupEnv(t)
	env.enableCleanup(t, "1")

	// Загружен давно, но ни разу не скачан
	ctx := context.Background()
	if _, uerr := env.upload.Upload(ctx, "job-1", strings.NewReader("данные")); uerr != nil {
		t.Fatalf("Ошибка загрузки: %v", uerr)
	}

	result, err := env.cleanup.RunOnce(ctx)
	if err != nil {
		t.Fatalf("Неожиданная ошибка sweep: %v", err)
	}
	if result.DeletedCount != 0 {
		t.Errorf("Ожидалось 0 удалений, получено %d", result.DeletedCount)
	}
	if env.files.get("job-1").Deleted {
		t.Error("Никогда не скачанная запись не должна удаляться")
	}
}

func TestCleanup_IgnoresTombstones(t *testing.T) {
	env := newCleanupEnv(t)
	env.enableCleanup(t, "1")
	ctx := context.Background()

	env.uploadDownloadedAt(t, "job-1", time.Now().Add(-2*time.Hour))
	if err := env.files.MarkDeleted(ctx, "job-1"); err != nil {
		t.Fatalf("Ошибка установки tombstone: %v", err)
	}

	result, err := env.cleanup.RunOnce(ctx)
	if err != nil {
		t.Fatalf("Неожиданная ошибка sweep: %v", err)
	}
	if result.DeletedCount != 0 {
		t.Errorf("Tombstone не должен считаться удалением, получено %d", result.DeletedCount)
	}
}

func TestCleanup_InvalidMaxAge(t *testing.T) {
	env := newCleanupEnv(t)

	for _, value := range []string{"abc", "0", "-5"} {
		env.enableCleanup(t, value)
		if _, err := env.cleanup.RunOnce(context.Background()); err == nil {
			t.Errorf("Ожидалась ошибка для cleanup_max_age_hours = %q", value)
		}
	}
}

func TestCleanup_SettingsError(t *testing.T) {
	env := newCleanupEnv(t)
	env.settings.failGet = errDatabase

	if _, err := env.cleanup.RunOnce(context.Background()); err == nil {
		t.Fatal("Ожидалась ошибка при сбое чтения настроек")
	}
}

func TestCleanup_StartStop(t *testing.T) {
	bs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания BlobStore: %v", err)
	}
	files := newFakeFilesRepo()
	settings := newFakeSettingsRepo()

	svc := NewCleanupService(files, settings, bs, NewJobLocks(), 50*time.Millisecond, testLogger())
	svc.Start(context.Background())

	// Немедленный первый запуск по умолчанию пропущен (cleanup выключен)
	time.Sleep(20 * time.Millisecond)
	svc.Stop()
}
