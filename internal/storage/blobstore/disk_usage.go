// disk_usage.go — получение информации об ёмкости диска.
// Платформозависимый код для Unix-подобных систем.
package blobstore

import (
	"fmt"
	"syscall"
)

// DiskUsage — информация о дисковом пространстве директории данных.
type DiskUsage struct {
	// TotalBytes — общий объём файловой системы
	TotalBytes int64 `json:"total_bytes"`
	// UsedBytes — занято
	UsedBytes int64 `json:"used_bytes"`
	// AvailableBytes — доступно для записи
	AvailableBytes int64 `json:"available_bytes"`
}

// Usage возвращает информацию о дисковом пространстве в директории данных.
func (bs *BlobStore) Usage() (*DiskUsage, error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(bs.dataDir, &stat); err != nil {
		return nil, fmt.Errorf("ошибка statfs %s: %w", bs.dataDir, err)
	}

	total := int64(stat.Blocks) * int64(stat.Bsize)
	available := int64(stat.Bavail) * int64(stat.Bsize)

	return &DiskUsage{
		TotalBytes:     total,
		UsedBytes:      total - available,
		AvailableBytes: available,
	}, nil
}
