package storage

// migrations содержит SQL-миграции в порядке выполнения.
var migrations = []string{
	// Миграция 1: ключ-значение для счётчиков использования и статуса лицензии
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`,

	// Миграция 2: история конвертаций
	`CREATE TABLE IF NOT EXISTS conversions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		src_name TEXT NOT NULL,
		src_size INTEGER NOT NULL,
		out_format TEXT NOT NULL,
		out_size INTEGER NOT NULL DEFAULT 0,
		out_params_hash TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		cache_hit INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		finished_at INTEGER NOT NULL
	);`,

	// Миграция 3: индекс для выборки по статусу
	`CREATE INDEX IF NOT EXISTS ix_conversions_status ON conversions (status);`,

	// Миграция 4: индекс для выборки последних записей
	`CREATE INDEX IF NOT EXISTS ix_conversions_finished ON conversions (finished_at);`,

	// Миграция 5: таблица метаданных для версионирования схемы
	`CREATE TABLE IF NOT EXISTS schema_info (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,

	// Миграция 6: запись версии схемы
	`INSERT OR REPLACE INTO schema_info (key, value) VALUES ('version', '1');`,
}

// GetMigrations возвращает список SQL-миграций.
func GetMigrations() []string {
	return migrations
}
