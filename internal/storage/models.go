// Package storage содержит хранилища состояния: SQLite, Redis и память.
package storage

import "time"

// ConversionStatus определяет итог конвертации в истории.
type ConversionStatus string

const (
	// StatusOK - конвертация успешна.
	StatusOK ConversionStatus = "ok"
	// StatusFailed - конвертация завершилась с ошибкой.
	StatusFailed ConversionStatus = "failed"
)

// Conversion - запись истории конвертаций.
type Conversion struct {
	// ID - идентификатор записи.
	ID int64 `db:"id"`

	// JobID - идентификатор задачи в очереди.
	JobID string `db:"job_id"`

	// SrcName - исходное имя файла.
	SrcName string `db:"src_name"`

	// SrcSize - размер источника в байтах.
	SrcSize int64 `db:"src_size"`

	// OutFormat - фактический выходной формат.
	OutFormat string `db:"out_format"`

	// OutSize - размер результата в байтах.
	OutSize int64 `db:"out_size"`

	// OutParamsHash - sha256 параметров конвертации.
	OutParamsHash string `db:"out_params_hash"`

	// Width, Height - итоговые размеры.
	Width  int `db:"width"`
	Height int `db:"height"`

	// Status - итог.
	Status ConversionStatus `db:"status"`

	// Error - сообщение об ошибке (если есть).
	Error string `db:"error"`

	// CacheHit - результат взят из кэша.
	CacheHit bool `db:"cache_hit"`

	// Duration - длительность обработки.
	Duration time.Duration `db:"duration_ms"`

	// FinishedAt - время завершения.
	FinishedAt time.Time `db:"finished_at"`
}

// HistoryStats - агрегаты по истории.
type HistoryStats struct {
	Total       int64
	OK          int64
	Failed      int64
	CacheHits   int64
	InputBytes  int64
	OutputBytes int64
}

// SavedBytes возвращает количество сэкономленных байт.
func (s HistoryStats) SavedBytes() int64 {
	return s.InputBytes - s.OutputBytes
}
