package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

// retrieveEnv — всё окружение сервиса выдачи для одного теста.
type retrieveEnv struct {
	upload   *UploadService
	retrieve *RetrieveService
	reaper   *Reaper
	files    *fakeFilesRepo
	blobs    *blobstore.BlobStore
}

func newRetrieveEnv(t *testing.T, autoDelete bool) *retrieveEnv {
	t.Helper()

	bs, err := blobstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("Ошибка создания BlobStore: %v", err)
	}
	files := newFakeFilesRepo()
	locks := NewJobLocks()
	logger := testLogger()

	// Нулевая задержка, чтобы тесты не ждали
	reaper := NewReaper(files, bs, locks, 0, logger)

	return &retrieveEnv{
		upload:   NewUploadService(files, bs, locks, logger),
		retrieve: NewRetrieveService(files, bs, locks, reaper, autoDelete, logger),
		reaper:   reaper,
		files:    files,
		blobs:    bs,
	}
}

func (e *retrieveEnv) mustUpload(t *testing.T, jobID, payload string) {
	t.Helper()
	if _, uerr := e.upload.Upload(context.Background(), jobID, strings.NewReader(payload)); uerr != nil {
		t.Fatalf("Ошибка загрузки %s: %v", jobID, uerr)
	}
}

func TestRetrieve(t *testing.T) {
	env := newRetrieveEnv(t, true)
	env.reaper.Start()
	defer env.reaper.Stop()

	payload := "данные для выдачи"
	env.mustUpload(t, "job-1", payload)

	rec, f, rerr := env.retrieve.Retrieve(context.Background(), "job-1", false)
	if rerr != nil {
		t.Fatalf("Неожиданная ошибка выдачи: %v", rerr)
	}
	defer f.Close()

	if rec.DownloadedAt == nil {
		t.Error("downloaded_at должен быть установлен после выдачи")
	}
	if rec.SizeBytes != int64(len(payload)) {
		t.Errorf("Ожидался размер %d, получен %d", len(payload), rec.SizeBytes)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		t.Fatalf("Ошибка чтения блоба: %v", err)
	}
	if buf.String() != payload {
		t.Error("Содержимое блоба не совпадает с загруженным")
	}

	// Reaper обработает задачу с нулевой задержкой; Stop дожидается очереди
	env.reaper.Stop()

	after := env.files.get("job-1")
	if !after.Deleted {
		t.Error("После выдачи без keep запись должна получить tombstone")
	}
	if env.blobs.Exists("job-1") {
		t.Error("После выдачи без keep блоб должен исчезнуть с диска")
	}
}

func TestRetrieve_Keep(t *testing.T) {
	env := newRetrieveEnv(t, true)
	env.reaper.Start()

	env.mustUpload(t, "job-1", "сохраняемые данные")

	_, f, rerr := env.retrieve.Retrieve(context.Background(), "job-1", true)
	if rerr != nil {
		t.Fatalf("Неожиданная ошибка выдачи: %v", rerr)
	}
	f.Close()

	env.reaper.Stop()

	after := env.files.get("job-1")
	if after.Deleted {
		t.Error("При keep=true запись не должна получать tombstone")
	}
	if after.DownloadedAt == nil {
		t.Error("downloaded_at должен быть установлен и при keep=true")
	}
	if !env.blobs.Exists("job-1") {
		t.Error("При keep=true блоб должен остаться на диске")
	}
}

func TestRetrieve_AutoDeleteDisabled(t *testing.T) {
	env := newRetrieveEnv(t, false)
	env.reaper.Start()

	env.mustUpload(t, "job-1", "данные")

	_, f, rerr := env.retrieve.Retrieve(context.Background(), "job-1", false)
	if rerr != nil {
		t.Fatalf("Неожиданная ошибка выдачи: %v", rerr)
	}
	f.Close()

	env.reaper.Stop()

	if env.files.get("job-1").Deleted {
		t.Error("При выключенном авто-удалении запись не должна получать tombstone")
	}
	if !env.blobs.Exists("job-1") {
		t.Error("При выключенном авто-удалении блоб должен остаться на диске")
	}
}

func TestRetrieve_FirstDownloadWins(t *testing.T) {
	env := newRetrieveEnv(t, false)

	env.mustUpload(t, "job-1", "данные")
	ctx := context.Background()

	rec1, f1, rerr := env.retrieve.Retrieve(ctx, "job-1", true)
	if rerr != nil {
		t.Fatalf("Неожиданная ошибка первой выдачи: %v", rerr)
	}
	f1.Close()

	time.Sleep(10 * time.Millisecond)

	rec2, f2, rerr := env.retrieve.Retrieve(ctx, "job-1", true)
	if rerr != nil {
		t.Fatalf("Неожиданная ошибка второй выдачи: %v", rerr)
	}
	f2.Close()

	if !rec2.DownloadedAt.Equal(*rec1.DownloadedAt) {
		t.Errorf("Повторная выдача не должна менять downloaded_at: было %v, стало %v",
			rec1.DownloadedAt, rec2.DownloadedAt)
	}
}

func TestRetrieve_ReaperQueueFull(t *testing.T) {
	env := newRetrieveEnv(t, true)

	// Воркер не запущен: очередь заполняется до отказа, и следующий
	// Schedule уйдёт в синхронную ветку
	for i := 0; i < reaperQueueSize; i++ {
		env.reaper.Schedule(fmt.Sprintf("filler-%d", i))
	}

	env.mustUpload(t, "job-1", "данные")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, f, rerr := env.retrieve.Retrieve(context.Background(), "job-1", false)
		if rerr != nil {
			t.Errorf("Неожиданная ошибка выдачи: %v", rerr)
			return
		}
		f.Close()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Retrieve завис при переполненной очереди отложенных удалений")
	}

	// Синхронная ветка выполняет удаление сразу, без выдержки
	if env.blobs.Exists("job-1") {
		t.Error("Блоб должен быть удалён синхронно при переполненной очереди")
	}
	if !env.files.get("job-1").Deleted {
		t.Error("Запись должна получить tombstone")
	}
}

func TestRetrieve_NotFound(t *testing.T) {
	env := newRetrieveEnv(t, true)

	_, _, rerr := env.retrieve.Retrieve(context.Background(), "unknown", false)
	if rerr == nil {
		t.Fatal("Ожидалась ошибка для неизвестного job_id")
	}
	if rerr.StatusCode != http.StatusNotFound {
		t.Errorf("Ожидался статус 404, получен %d", rerr.StatusCode)
	}
}

func TestRetrieve_Gone(t *testing.T) {
	env := newRetrieveEnv(t, true)
	ctx := context.Background()

	env.mustUpload(t, "job-1", "данные")
	if err := env.files.MarkDeleted(ctx, "job-1"); err != nil {
		t.Fatalf("Ошибка установки tombstone: %v", err)
	}

	_, _, rerr := env.retrieve.Retrieve(ctx, "job-1", false)
	if rerr == nil {
		t.Fatal("Ожидалась ошибка для удалённого блоба")
	}
	if rerr.StatusCode != http.StatusGone {
		t.Errorf("Ожидался статус 410, получен %d", rerr.StatusCode)
	}
}

func TestRetrieve_BlobMissingOnDisk(t *testing.T) {
	env := newRetrieveEnv(t, true)
	ctx := context.Background()

	env.mustUpload(t, "job-1", "данные")
	// Блоб исчез с диска, запись осталась активной
	if err := env.blobs.Remove("job-1"); err != nil {
		t.Fatalf("Ошибка удаления блоба: %v", err)
	}

	_, _, rerr := env.retrieve.Retrieve(ctx, "job-1", false)
	if rerr == nil {
		t.Fatal("Ожидалась ошибка при отсутствии блоба на диске")
	}
	if rerr.StatusCode != http.StatusNotFound {
		t.Errorf("Ожидался статус 404, получен %d", rerr.StatusCode)
	}

	// Запись остаётся активной: рассинхронизацию чинит оператор, не выдача
	if env.files.get("job-1").Deleted {
		t.Error("Выдача не должна ставить tombstone при отсутствии блоба")
	}
}
