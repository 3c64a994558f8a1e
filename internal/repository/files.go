// files.go — репозиторий таблицы files: записи жизненного цикла блобов.
// Единственный владелец мутаций записей. Строки никогда не удаляются:
// deleted — tombstone, а не удаление строки.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dolphin-storage/storage-server/internal/domain/model"
)

// fileColumns — список колонок files в порядке сканирования.
const fileColumns = `job_id, blob_path, size_bytes, uploaded_at, downloaded_at, deleted, seq`

// FilesRepository — интерфейс для таблицы files.
type FilesRepository interface {
	// Put создаёт или полностью перезаписывает запись для job_id:
	// uploaded_at = now, downloaded_at = NULL, deleted = false.
	Put(ctx context.Context, jobID, blobPath string, sizeBytes int64, now time.Time) (*model.FileRecord, error)
	// Get возвращает запись по job_id. Если не найдена — ErrNotFound.
	Get(ctx context.Context, jobID string) (*model.FileRecord, error)
	// MarkDownloaded ставит downloaded_at = now, если оно ещё не задано.
	// Повторные вызовы значение не меняют (первое скачивание фиксирует
	// отсчёт для cleanup). Если записи нет — ErrNotFound.
	MarkDownloaded(ctx context.Context, jobID string, now time.Time) (*model.FileRecord, error)
	// MarkDeleted ставит tombstone deleted = true. Повторный вызов —
	// no-op с успехом: sweeper и ручное удаление метят одну и ту же
	// запись независимо. Если записи нет — ErrNotFound.
	MarkDeleted(ctx context.Context, jobID string) error
	// List возвращает записи по uploaded_at DESC, при равенстве —
	// в порядке вставки. Чистая функция от limit/offset.
	List(ctx context.Context, limit, offset int) ([]*model.FileRecord, error)
	// CleanupCandidates возвращает записи, подлежащие sweep:
	// deleted = false, downloaded_at задан и старше cutoff.
	CleanupCandidates(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error)
	// Stats возвращает агрегированную статистику по таблице.
	Stats(ctx context.Context) (*model.StoreStats, error)
}

// filesRepo — реализация FilesRepository.
type filesRepo struct {
	db DBTX
}

// NewFilesRepository создаёт репозиторий записей блобов.
func NewFilesRepository(db DBTX) FilesRepository {
	return &filesRepo{db: db}
}

func (r *filesRepo) Put(ctx context.Context, jobID, blobPath string, sizeBytes int64, now time.Time) (*model.FileRecord, error) {
	// Повторная загрузка с тем же job_id полностью замещает запись,
	// seq при этом сохраняется (порядок вставки не меняется).
	query := `
		INSERT INTO files (job_id, blob_path, size_bytes, uploaded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO UPDATE
		SET blob_path = EXCLUDED.blob_path,
			size_bytes = EXCLUDED.size_bytes,
			uploaded_at = EXCLUDED.uploaded_at,
			downloaded_at = NULL,
			deleted = FALSE
		RETURNING ` + fileColumns

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query, jobID, blobPath, sizeBytes, now))
	if err != nil {
		return nil, fmt.Errorf("ошибка сохранения записи files[%s]: %w", jobID, err)
	}
	return rec, nil
}

func (r *filesRepo) Get(ctx context.Context, jobID string) (*model.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE job_id = $1`

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи files[%s]: %w", jobID, err)
	}
	return rec, nil
}

func (r *filesRepo) MarkDownloaded(ctx context.Context, jobID string, now time.Time) (*model.FileRecord, error) {
	query := `
		UPDATE files
		SET downloaded_at = COALESCE(downloaded_at, $2)
		WHERE job_id = $1
		RETURNING ` + fileColumns

	rec, err := scanFileRecord(r.db.QueryRow(ctx, query, jobID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка отметки скачивания files[%s]: %w", jobID, err)
	}
	return rec, nil
}

func (r *filesRepo) MarkDeleted(ctx context.Context, jobID string) error {
	query := `UPDATE files SET deleted = TRUE WHERE job_id = $1`

	tag, err := r.db.Exec(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("ошибка установки tombstone files[%s]: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *filesRepo) List(ctx context.Context, limit, offset int) ([]*model.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files
		ORDER BY uploaded_at DESC, seq ASC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка files: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}

func (r *filesRepo) CleanupCandidates(ctx context.Context, cutoff time.Time) ([]*model.FileRecord, error) {
	// Никогда не скачанные записи под sweep не попадают: они ещё
	// ждут первого скачивания.
	query := `
		SELECT ` + fileColumns + `
		FROM files
		WHERE deleted = FALSE
			AND downloaded_at IS NOT NULL
			AND downloaded_at < $1
		ORDER BY downloaded_at`

	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки кандидатов cleanup: %w", err)
	}
	defer rows.Close()

	return collectFileRecords(rows)
}

func (r *filesRepo) Stats(ctx context.Context) (*model.StoreStats, error) {
	query := `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE NOT deleted),
			COUNT(*) FILTER (WHERE deleted),
			COUNT(downloaded_at),
			COALESCE(SUM(size_bytes) FILTER (WHERE NOT deleted), 0)
		FROM files`

	s := &model.StoreStats{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.Total, &s.Active, &s.Deleted, &s.Downloaded, &s.LiveBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики files: %w", err)
	}
	return s, nil
}

// scanFileRecord сканирует одну строку files в модель.
func scanFileRecord(row pgx.Row) (*model.FileRecord, error) {
	rec := &model.FileRecord{}
	err := row.Scan(
		&rec.JobID, &rec.BlobPath, &rec.SizeBytes,
		&rec.UploadedAt, &rec.DownloadedAt, &rec.Deleted, &rec.Seq,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// collectFileRecords сканирует все строки результата в срез моделей.
func collectFileRecords(rows pgx.Rows) ([]*model.FileRecord, error) {
	var result []*model.FileRecord
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи files: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
