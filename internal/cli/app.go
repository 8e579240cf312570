package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/artemshloyda/photobatch/internal/admission"
	"github.com/artemshloyda/photobatch/internal/bgremoval"
	"github.com/artemshloyda/photobatch/internal/cache"
	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/converter"
	"github.com/artemshloyda/photobatch/internal/scheduler"
	"github.com/artemshloyda/photobatch/internal/storage"
	"github.com/artemshloyda/photobatch/internal/usage"
	"github.com/artemshloyda/photobatch/internal/vipsfinder"
)

// app связывает компоненты одного запуска.
type app struct {
	cfg    *config.Config
	logger *zap.Logger

	db      *storage.Storage
	redis   *storage.RedisStore
	gate    *usage.Gate
	queue   *scheduler.Queue
	admit   *admission.Admitter
	vips    *vipsfinder.VipsInfo
	hasAI   bool
	device  bgremoval.Device
	closers []func() error
}

// openState открывает SQLite и хранилище счётчиков использования.
// Redis используется для счётчиков, если задан URL.
func openState(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию состояния: %w", err)
	}

	db, err := storage.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("не удалось инициализировать БД: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, db: db}
	a.closers = append(a.closers, db.Close)

	var store usage.Store = db
	if cfg.RedisURL != "" {
		rs, err := storage.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.redis = rs
		a.closers = append(a.closers, rs.Close)
		store = rs
		logger.Debug("счётчики использования в Redis")
	}

	a.gate = usage.NewGate(store, usage.NewDeviceIdentity(store), cfg.DailyLimit, logger)
	return a, nil
}

// newApp собирает конвейер конвертации и очередь.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a, err := openState(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var external converter.Encoder
	var transcoder converter.Transcoder
	info, err := vipsfinder.NewFinder(cfg.VipsPath).Find()
	if err != nil {
		logger.Warn("vips не найден: WebP и AVIF недоступны, HEIC/SVG/ICO не декодируются", zap.Error(err))
	} else {
		a.vips = info
		vc := converter.NewVipsCodec(info)
		if cfg.VipsTimeout > 0 {
			vc.SetTimeout(cfg.VipsTimeout)
		}
		external = vc
		transcoder = vc
	}

	pipeline := converter.NewPipeline(converter.NewCodec(external), logger)
	if transcoder != nil {
		pipeline.SetTranscoder(transcoder)
	}
	pipeline.SetMemoryLimiter(converter.NewMemoryLimiter(cfg.MaxMemoryMB))

	var seg bgremoval.Segmenter
	if es, err := bgremoval.NewExecSegmenter(cfg.SegmenterCmd); err != nil {
		logger.Debug("AI сегментация недоступна", zap.Error(err))
	} else {
		seg = es
		a.hasAI = true
		a.device = es.Device()
	}
	pipeline.SetRemover(bgremoval.NewRemover(seg, logger))

	q := scheduler.New(pipeline, logger)
	if err := q.SetSettings(cfg.Settings); err != nil {
		_ = a.Close()
		return nil, err
	}
	q.SetRecorder(a.db)

	if cfg.CacheEnabled {
		c, err := cache.New(cfg.CacheDir, true)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		q.SetCache(c)
	}

	a.queue = q
	a.admit = admission.New(q, logger)
	a.admit.SetThumbnails(!cfg.NoThumbnails)
	return a, nil
}

// Close закрывает открытые ресурсы.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
