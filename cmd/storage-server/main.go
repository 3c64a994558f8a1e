// Точка входа Storage Server — сервис хранения блобов по job_id.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// инициализирует blob store, репозитории и сервисный слой, запускает
// фоновые воркеры (reaper, cleanup sweep) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/dolphin-storage/storage-server/internal/api/handlers"
	"github.com/dolphin-storage/storage-server/internal/config"
	"github.com/dolphin-storage/storage-server/internal/database"
	"github.com/dolphin-storage/storage-server/internal/repository"
	"github.com/dolphin-storage/storage-server/internal/server"
	"github.com/dolphin-storage/storage-server/internal/service"
	"github.com/dolphin-storage/storage-server/internal/storage/blobstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Storage Server запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("data_dir", cfg.DataDir),
	)

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 5. Blob store
	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Репозитории
	filesRepo := repository.NewFilesRepository(pool)
	settingsRepo := repository.NewSettingsRepository(pool)

	// 7. Сервисный слой
	locks := service.NewJobLocks()
	reaper := service.NewReaper(filesRepo, blobs, locks, cfg.DeleteDelay, logger)
	uploadSvc := service.NewUploadService(filesRepo, blobs, locks, logger)
	retrieveSvc := service.NewRetrieveService(filesRepo, blobs, locks, reaper, cfg.AutoDelete, logger)
	deleteSvc := service.NewDeleteService(filesRepo, blobs, locks, logger)
	cleanupSvc := service.NewCleanupService(filesRepo, settingsRepo, blobs, locks, cfg.CleanupInterval, logger)

	// 8. Фоновые воркеры
	reaper.Start()
	cleanupSvc.Start(ctx)

	// 9. HTTP handlers и сервер
	h := &server.Handlers{
		Files:       handlers.NewFilesHandler(uploadSvc, retrieveSvc, deleteSvc, filesRepo, blobs),
		Health:      handlers.NewHealthHandler(cfg.DataDir, database.NewReadinessChecker(pool)),
		Maintenance: handlers.NewMaintenanceHandler(cleanupSvc, logger),
		Settings:    handlers.NewSettingsHandler(settingsRepo),
		System:      handlers.NewSystemHandler(filesRepo, blobs),
	}

	srv := server.New(cfg, logger, h)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
	}

	// 10. Останов фоновых воркеров: сначала sweep (не принимает новых
	// проходов), затем reaper (дренирует очередь отложенных удалений)
	cleanupSvc.Stop()
	reaper.Stop()

	logger.Info("Storage Server остановлен")
}
