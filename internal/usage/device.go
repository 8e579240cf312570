package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"
)

// KeyDeviceID - ключ хранилища для идентификатора устройства.
const KeyDeviceID = "webp_device_id"

// Identity возвращает идентификатор устройства.
type Identity interface {
	DeviceID(ctx context.Context) (string, error)
}

// HashString - некриптографический 32-битный хэш строки (множитель 31),
// результат - модуль в hex, дополненный нулями до 8 символов.
func HashString(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return fmt.Sprintf("%08x", abs)
}

// Fingerprint строит отпечаток "hash1-hash2" из компонентов окружения.
// hash2 считается по развёрнутой строке.
func Fingerprint(components []string) string {
	joined := strings.Join(components, "|")

	units := utf16.Encode([]rune(joined))
	for i, j := 0, len(units)-1; i < j; i, j = i+1, j-1 {
		units[i], units[j] = units[j], units[i]
	}
	reversed := string(utf16.Decode(units))

	return HashString(joined) + "-" + HashString(reversed)
}

// EnvironmentComponents собирает характеристики окружения для отпечатка.
func EnvironmentComponents() []string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "unknown"
	}
	zone, _ := time.Now().Zone()

	return []string{
		host,
		runtime.GOOS,
		runtime.GOARCH,
		strconv.Itoa(runtime.NumCPU()),
		home,
		zone,
	}
}

// deviceRecord - сохранённый идентификатор устройства.
type deviceRecord struct {
	Fingerprint string `json:"fingerprint"`
	Random      string `json:"random"`
	DeviceID    string `json:"deviceId"`
}

// DeviceIdentity - идентификатор устройства из отпечатка и сохранённой случайной соли.
// Тот же отпечаток возвращает сохранённый ID; изменившийся отпечаток получает новый ID
// со старой солью.
type DeviceIdentity struct {
	store      Store
	components func() []string
	salt       func() string
}

// NewDeviceIdentity создаёт DeviceIdentity по окружению процесса.
func NewDeviceIdentity(store Store) *DeviceIdentity {
	return &DeviceIdentity{
		store:      store,
		components: EnvironmentComponents,
		salt:       randomSalt,
	}
}

// randomSalt возвращает 8 случайных символов.
func randomSalt() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// DeviceID реализует Identity.
func (d *DeviceIdentity) DeviceID(ctx context.Context) (string, error) {
	fp := Fingerprint(d.components())

	raw, ok, err := d.store.Get(ctx, KeyDeviceID)
	if err != nil {
		return "", err
	}

	if ok {
		var rec deviceRecord
		if err := json.Unmarshal([]byte(raw), &rec); err == nil && rec.Random != "" {
			if rec.Fingerprint == fp && rec.DeviceID != "" {
				return rec.DeviceID, nil
			}
			return d.save(ctx, fp, rec.Random)
		}
	}

	return d.save(ctx, fp, d.salt())
}

// save сохраняет запись и возвращает ID.
func (d *DeviceIdentity) save(ctx context.Context, fp, random string) (string, error) {
	rec := deviceRecord{
		Fingerprint: fp,
		Random:      random,
		DeviceID:    fp + "-" + random,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("не удалось сериализовать идентификатор устройства: %w", err)
	}
	if err := d.store.Set(ctx, KeyDeviceID, string(data)); err != nil {
		return "", err
	}
	return rec.DeviceID, nil
}
