// metrics.go — обновление бизнес-метрик из состояния реестра.
package service

import (
	"github.com/bigkaa/wavpipe/internal/api/middleware"
	"github.com/bigkaa/wavpipe/internal/domain/model"
	"github.com/bigkaa/wavpipe/internal/storage/registry"
)

// refreshFileGauges выставляет wp_files_total по статусам.
func refreshFileGauges(reg *registry.Registry) {
	for _, st := range model.AllStatuses {
		middleware.FilesTotal.WithLabelValues(string(st)).Set(float64(reg.CountByStatus(st)))
	}
}

// countOperation увеличивает wp_operations_total.
func countOperation(op, result string) {
	middleware.OperationsTotal.WithLabelValues(op, result).Inc()
}
