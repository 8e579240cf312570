package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage - SQLite хранилище: ключ-значение и история конвертаций.
type Storage struct {
	db *sql.DB
}

// New создаёт новое подключение к SQLite и выполняет миграции.
func New(dbPath string) (*Storage, error) {
	// Создаём директорию для БД, если не существует
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию для БД: %w", err)
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть БД: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite не поддерживает concurrent writes
	db.SetMaxIdleConns(1)

	s := &Storage{db: db}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("не удалось выполнить миграции: %w", err)
	}

	return s, nil
}

// migrate выполняет все SQL-миграции.
func (s *Storage) migrate() error {
	for i, m := range GetMigrations() {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("миграция %d: %w", i+1, err)
		}
	}
	return nil
}

// Close закрывает подключение к БД.
func (s *Storage) Close() error {
	return s.db.Close()
}

// Get возвращает значение по ключу. ok=false, если ключа нет.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("не удалось прочитать ключ %s: %w", key, err)
	}
	return value, true, nil
}

// Set сохраняет значение по ключу.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("не удалось записать ключ %s: %w", key, err)
	}
	return nil
}

// RecordConversion добавляет запись в историю конвертаций.
func (s *Storage) RecordConversion(ctx context.Context, c Conversion) error {
	finished := c.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	var errMsg *string
	if c.Error != "" {
		errMsg = &c.Error
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversions (job_id, src_name, src_size, out_format, out_size, out_params_hash,
		                         width, height, status, error, cache_hit, duration_ms, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.JobID, c.SrcName, c.SrcSize, c.OutFormat, c.OutSize, c.OutParamsHash,
		c.Width, c.Height, c.Status, errMsg, c.CacheHit, c.Duration.Milliseconds(), finished.Unix(),
	)
	if err != nil {
		return fmt.Errorf("не удалось записать историю: %w", err)
	}
	return nil
}

// History возвращает последние записи истории, новые первыми.
func (s *Storage) History(ctx context.Context, limit int) ([]Conversion, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, src_name, src_size, out_format, out_size, out_params_hash,
		       width, height, status, error, cache_hit, duration_ms, finished_at
		FROM conversions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать историю: %w", err)
	}
	defer rows.Close()

	var result []Conversion
	for rows.Next() {
		var (
			c          Conversion
			errMsg     sql.NullString
			durationMs int64
			finished   int64
		)
		if err := rows.Scan(&c.ID, &c.JobID, &c.SrcName, &c.SrcSize, &c.OutFormat, &c.OutSize,
			&c.OutParamsHash, &c.Width, &c.Height, &c.Status, &errMsg, &c.CacheHit,
			&durationMs, &finished); err != nil {
			return nil, fmt.Errorf("не удалось прочитать запись истории: %w", err)
		}
		c.Error = errMsg.String
		c.Duration = time.Duration(durationMs) * time.Millisecond
		c.FinishedAt = time.Unix(finished, 0)
		result = append(result, c)
	}
	return result, rows.Err()
}

// GetStats возвращает агрегаты по истории конвертаций.
func (s *Storage) GetStats(ctx context.Context) (HistoryStats, error) {
	var st HistoryStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = 'ok' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(cache_hit), 0),
		       COALESCE(SUM(CASE WHEN status = 'ok' THEN src_size ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = 'ok' THEN out_size ELSE 0 END), 0)
		FROM conversions
	`).Scan(&st.Total, &st.OK, &st.Failed, &st.CacheHits, &st.InputBytes, &st.OutputBytes)
	if err != nil {
		return HistoryStats{}, fmt.Errorf("не удалось получить статистику: %w", err)
	}
	return st, nil
}

/*
Возможные расширения:
- Очистка старых записей истории
- Экспорт истории в CSV
*/
