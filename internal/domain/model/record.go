// Пакет model — доменные модели Storage Server.
// FileRecord — запись жизненного цикла одного блоба, привязанного к job_id.
package model

import (
	"time"
)

// FileRecord — метаданные блоба, хранящиеся в таблице files.
// Запись никогда не удаляется физически: поле Deleted — tombstone,
// блоб при этом отсутствует на диске.
//
// Жизненный цикл: uploaded → downloaded → deleted,
// а также uploaded → deleted (ручное удаление без скачивания).
// Deleted — терминальное состояние, переходов из него нет.
type FileRecord struct {
	// JobID — непрозрачный идентификатор задания, первичный ключ
	JobID string `json:"job_id"`

	// BlobPath — путь к блобу на диске. Выводится из job_id,
	// неизменен до удаления.
	BlobPath string `json:"-"`

	// SizeBytes — размер блоба на момент загрузки
	SizeBytes int64 `json:"file_size"`

	// UploadedAt — время загрузки (UTC), ставится при создании записи
	UploadedAt time.Time `json:"uploaded_at"`

	// DownloadedAt — время первого успешного скачивания.
	// nil, пока блоб ни разу не скачивался. Повторные скачивания
	// значение не меняют.
	DownloadedAt *time.Time `json:"downloaded_at"`

	// Deleted — tombstone: true после удаления блоба с диска
	Deleted bool `json:"deleted"`

	// Seq — монотонный порядковый номер вставки. Используется как
	// tie-break при сортировке по uploaded_at; наружу не отдаётся.
	Seq int64 `json:"-"`
}

// Downloaded возвращает true, если блоб хотя бы раз скачивался.
func (r *FileRecord) Downloaded() bool {
	return r.DownloadedAt != nil
}

// StoreStats — агрегированная статистика по таблице files.
// Отдаётся admin-поверхностью (/stats).
type StoreStats struct {
	// Total — всего записей, включая tombstone
	Total int64 `json:"total"`
	// Active — записей с deleted = false
	Active int64 `json:"active"`
	// Deleted — записей-tombstone
	Deleted int64 `json:"deleted"`
	// Downloaded — записей, скачанных хотя бы раз
	Downloaded int64 `json:"downloaded"`
	// LiveBytes — суммарный размер неудалённых блобов
	LiveBytes int64 `json:"live_bytes"`
}

// CleanupPolicy — политика retention для Cleanup Sweeper.
// Читается из таблицы settings при каждом запуске sweep,
// чтобы изменения через admin-поверхность применялись без рестарта.
type CleanupPolicy struct {
	// Enabled — включён ли sweep
	Enabled bool
	// MaxAgeHours — возраст записи с момента первого скачивания,
	// после которого блоб подлежит удалению
	MaxAgeHours int
}
