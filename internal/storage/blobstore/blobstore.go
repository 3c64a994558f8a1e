// Пакет blobstore — операции с блобами на диске.
// Один блоб на job_id, путь выводится из идентификатора:
// {data_dir}/{job_id}.zip. Запись атомарна: temp → fsync → rename.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// BlobSuffix — расширение файла блоба на диске.
const BlobSuffix = ".zip"

// ErrInvalidJobID — job_id не может быть использован как имя файла.
var ErrInvalidJobID = errors.New("недопустимый job_id")

// BlobStore — управление блобами на диске.
type BlobStore struct {
	// dataDir — корневая директория хранения блобов (SS_DATA_DIR)
	dataDir string
}

// New создаёт новый BlobStore. Создаёт директорию данных,
// если она не существует.
func New(dataDir string) (*BlobStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &BlobStore{dataDir: dataDir}, nil
}

// DataDir возвращает корневую директорию хранения.
func (bs *BlobStore) DataDir() string {
	return bs.dataDir
}

// Path возвращает путь блоба для job_id или ошибку,
// если идентификатор не годится как имя файла.
func (bs *BlobStore) Path(jobID string) (string, error) {
	if err := validateJobID(jobID); err != nil {
		return "", err
	}
	return filepath.Join(bs.dataDir, jobID+BlobSuffix), nil
}

// Save атомарно записывает данные из reader в блоб job_id,
// полностью замещая предыдущее содержимое.
// Паттерн: temp файл → запись → fsync → atomic rename.
// При ошибке temp файл удаляется. Возвращает размер записанных данных.
func (bs *BlobStore) Save(jobID string, reader io.Reader) (int64, error) {
	fullPath, err := bs.Path(jobID)
	if err != nil {
		return 0, err
	}
	tmpPath := fullPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("не удалось создать temp файл: %w", err)
	}

	size, err := io.Copy(f, reader)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка записи блоба: %w", err)
	}

	// fsync гарантирует, что данные на диске до rename
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка закрытия temp файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("ошибка atomic rename: %w", err)
	}

	return size, nil
}

// Open открывает блоб для чтения. Если блоба нет — os.ErrNotExist.
func (bs *BlobStore) Open(jobID string) (*os.File, error) {
	fullPath, err := bs.Path(jobID)
	if err != nil {
		return nil, err
	}
	return os.Open(fullPath)
}

// Exists проверяет наличие блоба на диске.
func (bs *BlobStore) Exists(jobID string) bool {
	fullPath, err := bs.Path(jobID)
	if err != nil {
		return false
	}
	_, err = os.Stat(fullPath)
	return err == nil
}

// Remove удаляет блоб с диска. Отсутствующий блоб — не ошибка:
// отложенное удаление, sweep и ручное удаление могут целиться
// в один и тот же блоб.
func (bs *BlobStore) Remove(jobID string) error {
	fullPath, err := bs.Path(jobID)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("ошибка удаления блоба %s: %w", jobID, err)
	}
	return nil
}

// validateJobID отклоняет идентификаторы, не пригодные как имя файла:
// пустые, с разделителями пути и служебные имена каталогов.
func validateJobID(jobID string) error {
	if jobID == "" {
		return ErrInvalidJobID
	}
	if strings.ContainsAny(jobID, "/\\") || strings.ContainsRune(jobID, 0) {
		return ErrInvalidJobID
	}
	if jobID == "." || jobID == ".." {
		return ErrInvalidJobID
	}
	return nil
}
