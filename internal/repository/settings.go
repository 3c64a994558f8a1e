// settings.go — репозиторий таблицы settings: key-value настройки
// политики cleanup, изменяемые через admin-поверхность.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Ключи настроек cleanup.
const (
	// SettingCleanupEnabled — включён ли sweep ("true"/"false").
	SettingCleanupEnabled = "cleanup_enabled"
	// SettingCleanupMaxAgeHours — возраст скачанной записи в часах,
	// после которого блоб удаляется sweep-ом.
	SettingCleanupMaxAgeHours = "cleanup_max_age_hours"
	// SettingCleanupLastRun — время последнего выполненного sweep (RFC 3339).
	SettingCleanupLastRun = "cleanup_last_run"
)

// Setting — модель записи из таблицы settings.
type Setting struct {
	// Ключ настройки
	Key string `json:"key"`
	// Значение настройки (строковое представление)
	Value string `json:"value"`
	// Время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingsRepository — интерфейс для таблицы settings.
type SettingsRepository interface {
	// Get возвращает настройку по ключу. Если не найдена — ErrNotFound.
	Get(ctx context.Context, key string) (*Setting, error)
	// Set создаёт или обновляет настройку (upsert).
	Set(ctx context.Context, key, value string) error
	// List возвращает все настройки, отсортированные по ключу.
	List(ctx context.Context) ([]Setting, error)
}

// settingsRepo — реализация SettingsRepository.
type settingsRepo struct {
	db DBTX
}

// NewSettingsRepository создаёт репозиторий настроек.
func NewSettingsRepository(db DBTX) SettingsRepository {
	return &settingsRepo{db: db}
}

func (r *settingsRepo) Get(ctx context.Context, key string) (*Setting, error) {
	query := `
		SELECT key, value, updated_at
		FROM settings
		WHERE key = $1`

	s := &Setting{}
	err := r.db.QueryRow(ctx, query, key).Scan(&s.Key, &s.Value, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения settings[%s]: %w", key, err)
	}
	return s, nil
}

func (r *settingsRepo) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
			updated_at = NOW()`

	_, err := r.db.Exec(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("ошибка сохранения settings[%s]: %w", key, err)
	}
	return nil
}

func (r *settingsRepo) List(ctx context.Context) ([]Setting, error) {
	query := `
		SELECT key, value, updated_at
		FROM settings
		ORDER BY key`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования settings: %w", err)
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}
