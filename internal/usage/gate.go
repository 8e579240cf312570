// Package usage реализует учёт бесплатной квоты конвертаций и премиум-доступ.
package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// KeyUsage - префикс ключа счётчиков. Счётчики устройства хранятся под
	// KeyUsage + ":" + id устройства, сам KeyUsage - старая запись без привязки к устройству.
	KeyUsage = "webp_usage_data"

	// KeyPremium - ключ хранилища для статуса премиум-доступа.
	KeyPremium = "webp_premium_status"

	// MinLicenseLength - минимальная длина лицензионного ключа.
	MinLicenseLength = 8

	dateLayout = "2006-01-02"
)

var (
	// ErrQuotaExceeded - дневная квота исчерпана.
	ErrQuotaExceeded = errors.New("дневной лимит бесплатных конвертаций исчерпан")

	// ErrInvalidLicense - ключ не прошёл проверку.
	ErrInvalidLicense = errors.New("неверный лицензионный ключ")
)

// Store - хранилище ключ-значение для состояния учёта.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Ledger - счётчики использования устройства.
type Ledger struct {
	DeviceID         string `json:"deviceId"`
	Date             string `json:"date"`
	Conversions      int    `json:"conversions"`
	TotalConversions int    `json:"totalConversions"`
}

// Entitlement - статус премиум-доступа.
type Entitlement struct {
	IsPremium   bool       `json:"isPremium"`
	LicenseKey  string     `json:"licenseKey,omitempty"`
	ActivatedAt *time.Time `json:"activatedAt,omitempty"`
}

// Status - производное состояние для отображения.
type Status struct {
	Ledger
	Entitlement

	DailyLimit     int
	RemainingToday int
	CanConvert     bool
}

// Gate - учёт квоты. Чтение-изменение-запись атомарно внутри процесса.
type Gate struct {
	mu       sync.Mutex
	store    Store
	identity Identity
	limit    int
	now      func() time.Time
	logger   *zap.Logger
}

// NewGate создаёт Gate. limit - дневная бесплатная квота.
func NewGate(store Store, identity Identity, limit int, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		store:    store,
		identity: identity,
		limit:    limit,
		now:      time.Now,
		logger:   logger,
	}
}

// SetClock подменяет источник времени.
func (g *Gate) SetClock(now func() time.Time) {
	g.now = now
}

// DailyLimit возвращает дневную квоту.
func (g *Gate) DailyLimit() int {
	return g.limit
}

// CheckAdmission сообщает, можно ли запустить count конвертаций.
func (g *Gate) CheckAdmission(ctx context.Context, count int) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ledger, ent, err := g.load(ctx)
	if err != nil {
		return false, err
	}
	return g.allowed(ledger, ent, count), nil
}

// Admit - CheckAdmission с ошибкой ErrQuotaExceeded при отказе.
func (g *Gate) Admit(ctx context.Context, count int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ledger, ent, err := g.load(ctx)
	if err != nil {
		return err
	}
	if !g.allowed(ledger, ent, count) {
		return fmt.Errorf("%w: запрошено %d, осталось %d из %d",
			ErrQuotaExceeded, count, remaining(g.limit, ledger.Conversions), g.limit)
	}
	return nil
}

// RecordUsage учитывает count конвертаций. Для премиум-доступа счётчики растут
// без ограничения. Иначе при превышении квоты возвращает false и ничего не меняет.
func (g *Gate) RecordUsage(ctx context.Context, count int) (bool, error) {
	if count < 0 {
		return false, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ledger, ent, err := g.load(ctx)
	if err != nil {
		return false, err
	}
	if !ent.IsPremium && ledger.Conversions+count > g.limit {
		return false, nil
	}

	ledger.Conversions += count
	ledger.TotalConversions += count
	if err := g.saveJSON(ctx, LedgerKey(ledger.DeviceID), ledger); err != nil {
		return false, err
	}
	return true, nil
}

// ActivatePremium включает премиум-доступ. Проверка локальная: непустой ключ
// длиной не меньше MinLicenseLength.
func (g *Gate) ActivatePremium(ctx context.Context, licenseKey string) error {
	key := strings.TrimSpace(licenseKey)
	if len(key) < MinLicenseLength {
		return ErrInvalidLicense
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	return g.saveJSON(ctx, KeyPremium, Entitlement{
		IsPremium:   true,
		LicenseKey:  key,
		ActivatedAt: &now,
	})
}

// DeactivatePremium выключает премиум-доступ.
func (g *Gate) DeactivatePremium(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.saveJSON(ctx, KeyPremium, Entitlement{})
}

// Status возвращает текущее состояние учёта.
func (g *Gate) Status(ctx context.Context) (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ledger, ent, err := g.load(ctx)
	if err != nil {
		return Status{}, err
	}

	rem := remaining(g.limit, ledger.Conversions)
	return Status{
		Ledger:         ledger,
		Entitlement:    ent,
		DailyLimit:     g.limit,
		RemainingToday: rem,
		CanConvert:     ent.IsPremium || rem > 0,
	}, nil
}

func (g *Gate) allowed(ledger Ledger, ent Entitlement, count int) bool {
	if ent.IsPremium {
		return true
	}
	return ledger.Conversions+count <= g.limit
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}

// LedgerKey возвращает ключ счётчиков устройства.
func LedgerKey(deviceID string) string {
	return KeyUsage + ":" + deviceID
}

// load читает счётчики текущего устройства и сбрасывает дневной счётчик при смене даты.
// Общий счётчик сохраняется.
func (g *Gate) load(ctx context.Context) (Ledger, Entitlement, error) {
	deviceID, err := g.identity.DeviceID(ctx)
	if err != nil {
		return Ledger{}, Entitlement{}, fmt.Errorf("не удалось определить устройство: %w", err)
	}
	today := g.now().Format(dateLayout)
	key := LedgerKey(deviceID)

	var l Ledger
	ok, err := g.loadJSON(ctx, key, &l)
	if err != nil {
		return Ledger{}, Entitlement{}, err
	}
	if !ok {
		if l, err = g.migrateLegacy(ctx, deviceID); err != nil {
			return Ledger{}, Entitlement{}, err
		}
	}

	var ent Entitlement
	if _, err := g.loadJSON(ctx, KeyPremium, &ent); err != nil {
		return Ledger{}, Entitlement{}, err
	}

	if l.DeviceID != deviceID || l.Date != today {
		l = Ledger{DeviceID: deviceID, Date: today, TotalConversions: l.TotalConversions}
	} else if ok {
		return l, ent, nil
	}
	if err := g.saveJSON(ctx, key, l); err != nil {
		return Ledger{}, Entitlement{}, err
	}
	return l, ent, nil
}

// migrateLegacy переносит старую запись KeyUsage в счётчики устройства. Запись того же
// устройства переносится целиком, чужая даёт только общий счётчик. После переноса старая
// запись обнуляется, поэтому перенос выполняется один раз.
func (g *Gate) migrateLegacy(ctx context.Context, deviceID string) (Ledger, error) {
	var legacy Ledger
	ok, err := g.loadJSON(ctx, KeyUsage, &legacy)
	if err != nil || !ok {
		return Ledger{}, err
	}
	if legacy == (Ledger{}) {
		return Ledger{}, nil
	}
	if err := g.saveJSON(ctx, KeyUsage, Ledger{}); err != nil {
		return Ledger{}, err
	}

	g.logger.Info("перенесены счётчики использования",
		zap.String("device", deviceID), zap.String("from", legacy.DeviceID),
		zap.Int("total", legacy.TotalConversions))

	if legacy.DeviceID == deviceID {
		return legacy, nil
	}
	return Ledger{DeviceID: deviceID, TotalConversions: legacy.TotalConversions}, nil
}

// loadJSON читает значение; повреждённое значение считается отсутствующим.
func (g *Gate) loadJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, ok, err := g.store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		g.logger.Warn("повреждённое значение в хранилище, используется значение по умолчанию",
			zap.String("key", key), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (g *Gate) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("не удалось сериализовать %s: %w", key, err)
	}
	return g.store.Set(ctx, key, string(data))
}
