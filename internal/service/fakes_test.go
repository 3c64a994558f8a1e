// fakes_test.go — in-memory реализации репозиториев для тестов
// сервисного слоя. Семантика повторяет SQL-реализации: upsert с
// сохранением seq, COALESCE для downloaded_at, tombstone вместо
// удаления строк.
package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dolphin-storage/storage-server/internal/domain/model"
	"github.com/dolphin-storage/storage-server/internal/repository"
)

// fakeFilesRepo — in-memory FilesRepository.
type fakeFilesRepo struct {
	mu      sync.Mutex
	records map[string]*model.FileRecord
	nextSeq int64

	// failGet / failMarkDeleted позволяют имитировать ошибки базы
	failGet         error
	failMarkDeleted error
}

func newFakeFilesRepo() *fakeFilesRepo {
	return &fakeFilesRepo{records: make(map[string]*model.FileRecord)}
}

func (f *fakeFilesRepo) Put(_ context.Context, jobID, blobPath string, sizeBytes int64, now time.Time) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seq := int64(0)
	if prev, ok := f.records[jobID]; ok {
		seq = prev.Seq
	} else {
		f.nextSeq++
		seq = f.nextSeq
	}

	rec := &model.FileRecord{
		JobID:      jobID,
		BlobPath:   blobPath,
		SizeBytes:  sizeBytes,
		UploadedAt: now,
		Seq:        seq,
	}
	f.records[jobID] = rec
	return copyRecord(rec), nil
}

func (f *fakeFilesRepo) Get(_ context.Context, jobID string) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failGet != nil {
		return nil, f.failGet
	}
	rec, ok := f.records[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (f *fakeFilesRepo) MarkDownloaded(_ context.Context, jobID string, now time.Time) (*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec, ok := f.records[jobID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if rec.DownloadedAt == nil {
		t := now
		rec.DownloadedAt = &t
	}
	return copyRecord(rec), nil
}

func (f *fakeFilesRepo) MarkDeleted(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failMarkDeleted != nil {
		return f.failMarkDeleted
	}
	rec, ok := f.records[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Deleted = true
	return nil
}

func (f *fakeFilesRepo) List(_ context.Context, limit, offset int) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	all := make([]*model.FileRecord, 0, len(f.records))
	for _, rec := range f.records {
		all = append(all, copyRecord(rec))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.After(all[j].UploadedAt)
		}
		// при равных uploaded_at — порядок вставки
		return all[i].Seq < all[j].Seq
	})

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (f *fakeFilesRepo) CleanupCandidates(_ context.Context, cutoff time.Time) ([]*model.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []*model.FileRecord
	for _, rec := range f.records {
		if !rec.Deleted && rec.DownloadedAt != nil && rec.DownloadedAt.Before(cutoff) {
			result = append(result, copyRecord(rec))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DownloadedAt.Before(*result[j].DownloadedAt)
	})
	return result, nil
}

func (f *fakeFilesRepo) Stats(_ context.Context) (*model.StoreStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &model.StoreStats{}
	for _, rec := range f.records {
		s.Total++
		if rec.Deleted {
			s.Deleted++
		} else {
			s.Active++
			s.LiveBytes += rec.SizeBytes
		}
		if rec.DownloadedAt != nil {
			s.Downloaded++
		}
	}
	return s, nil
}

// get возвращает живую запись для проверок в тестах.
func (f *fakeFilesRepo) get(jobID string) *model.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[jobID]
	if !ok {
		return nil
	}
	return copyRecord(rec)
}

func copyRecord(rec *model.FileRecord) *model.FileRecord {
	cp := *rec
	if rec.DownloadedAt != nil {
		t := *rec.DownloadedAt
		cp.DownloadedAt = &t
	}
	return &cp
}

// fakeSettingsRepo — in-memory SettingsRepository.
type fakeSettingsRepo struct {
	mu     sync.Mutex
	values map[string]string

	failGet error
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{values: make(map[string]string)}
}

func (f *fakeSettingsRepo) Get(_ context.Context, key string) (*repository.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failGet != nil {
		return nil, f.failGet
	}
	value, ok := f.values[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &repository.Setting{Key: key, Value: value, UpdatedAt: time.Now()}, nil
}

func (f *fakeSettingsRepo) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeSettingsRepo) List(_ context.Context) ([]repository.Setting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	settings := make([]repository.Setting, 0, len(keys))
	for _, k := range keys {
		settings = append(settings, repository.Setting{Key: k, Value: f.values[k]})
	}
	return settings, nil
}

// get возвращает значение ключа для проверок в тестах.
func (f *fakeSettingsRepo) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// errDatabase — произвольная ошибка базы для негативных сценариев.
var errDatabase = errors.New("ошибка базы данных")
