// disk_usage.go — получение информации об ёмкости диска через gopsutil.
package main

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"

	"github.com/bigkaa/wavpipe/internal/api/handlers"
)

// getDiskUsage возвращает ёмкость файловой системы, на которой лежит path.
func getDiskUsage(path string) (*handlers.DiskUsage, error) {
	stat, err := disk.Usage(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения ёмкости диска %s: %w", path, err)
	}

	return &handlers.DiskUsage{
		Path:           path,
		TotalBytes:     stat.Total,
		UsedBytes:      stat.Used,
		AvailableBytes: stat.Free,
		UsedPercent:    stat.UsedPercent,
	}, nil
}
