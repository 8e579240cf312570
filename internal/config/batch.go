// Package config содержит настройки конвертации и конфигурацию приложения.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// NamedPreset представляет сохранённый пользователем пресет.
type NamedPreset struct {
	// Name - имя пресета.
	Name string
	// Path - путь к файлу пресета.
	Path string
	// Config - содержимое пресета (nil, если файл повреждён).
	Config *FileConfig
}

// PresetStore хранит именованные пресеты в виде YAML файлов в одной директории.
type PresetStore struct {
	// Dir - директория с пресетами.
	Dir string
}

// NewPresetStore создаёт хранилище пресетов в указанной директории.
func NewPresetStore(dir string) *PresetStore {
	return &PresetStore{Dir: dir}
}

// DefaultPresetStore возвращает хранилище в ~/.config/photobatch/presets.
func DefaultPresetStore() (*PresetStore, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("не удалось получить домашнюю директорию: %w", err)
	}
	return NewPresetStore(filepath.Join(homeDir, ".config", "photobatch", "presets")), nil
}

// PathFor возвращает путь к файлу пресета по имени.
func (ps *PresetStore) PathFor(name string) (string, error) {
	safeName := sanitizePresetName(name)
	if safeName == "" {
		return "", fmt.Errorf("некорректное имя пресета: %q", name)
	}
	return filepath.Join(ps.Dir, safeName+".yaml"), nil
}

// sanitizePresetName оставляет в имени только буквы, цифры, дефисы и подчёркивания.
func sanitizePresetName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Save сохраняет конфигурацию как именованный пресет.
func (ps *PresetStore) Save(name string, cfg *Config) (string, error) {
	presetPath, err := ps.PathFor(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(ps.Dir, 0755); err != nil {
		return "", fmt.Errorf("не удалось создать директорию пресетов: %w", err)
	}

	if err := FromConfig(cfg).SaveToFile(presetPath); err != nil {
		return "", fmt.Errorf("не удалось сохранить пресет: %w", err)
	}

	return presetPath, nil
}

// Load загружает именованный пресет.
func (ps *PresetStore) Load(name string) (*FileConfig, string, error) {
	presetPath, err := ps.PathFor(name)
	if err != nil {
		return nil, "", err
	}

	fc, err := LoadFromFile(presetPath)
	if err != nil {
		return nil, "", fmt.Errorf("не удалось загрузить пресет '%s': %w", name, err)
	}
	if fc == nil {
		return nil, "", fmt.Errorf("пресет '%s' не найден", name)
	}

	return fc, presetPath, nil
}

// List возвращает все сохранённые пресеты, отсортированные по имени.
func (ps *PresetStore) List() ([]NamedPreset, error) {
	entries, err := os.ReadDir(ps.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []NamedPreset{}, nil
		}
		return nil, fmt.Errorf("не удалось прочитать директорию пресетов: %w", err)
	}

	var presets []NamedPreset
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		presetPath := filepath.Join(ps.Dir, name)
		fc, _ := LoadFromFile(presetPath)

		presets = append(presets, NamedPreset{
			Name:   strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml"),
			Path:   presetPath,
			Config: fc,
		})
	}

	sort.Slice(presets, func(i, j int) bool {
		return presets[i].Name < presets[j].Name
	})

	return presets, nil
}

// Delete удаляет именованный пресет.
func (ps *PresetStore) Delete(name string) error {
	presetPath, err := ps.PathFor(name)
	if err != nil {
		return err
	}

	if err := os.Remove(presetPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("пресет '%s' не найден", name)
		}
		return fmt.Errorf("не удалось удалить пресет: %w", err)
	}

	return nil
}

// Exists проверяет существование пресета.
func (ps *PresetStore) Exists(name string) bool {
	presetPath, err := ps.PathFor(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(presetPath)
	return err == nil
}
