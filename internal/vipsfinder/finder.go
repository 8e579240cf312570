// Package vipsfinder отвечает за поиск бинарника vips и определение его возможностей.
package vipsfinder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// EnvVar - переменная окружения с путём к vips.
const EnvVar = "PHOTOBATCH_VIPS"

// VipsInfo содержит информацию о найденном vips.
type VipsInfo struct {
	// Path - абсолютный путь к бинарнику vips.
	Path string

	// Version - версия vips (например, "8.14.2").
	Version string

	// savers - имена операций сохранения (webpsave, heifsave, ...).
	savers map[string]bool
}

// Finder ищет бинарник vips.
type Finder struct {
	// CustomPath - пользовательский путь к vips (из флага --vips-path).
	CustomPath string

	// EnvVar - имя переменной окружения для пути к vips.
	EnvVar string
}

// NewFinder создаёт новый Finder.
func NewFinder(customPath string) *Finder {
	return &Finder{
		CustomPath: customPath,
		EnvVar:     EnvVar,
	}
}

// Find ищет vips в следующем порядке:
// 1. CustomPath (если задан)
// 2. Переменная окружения PHOTOBATCH_VIPS
// 3. PATH
// 4. Рядом с исполняемым файлом в ./bin/<os-arch>/vips
func (f *Finder) Find() (*VipsInfo, error) {
	var candidates []string

	if f.CustomPath != "" {
		candidates = append(candidates, f.CustomPath)
	}
	if envPath := os.Getenv(f.EnvVar); envPath != "" {
		candidates = append(candidates, envPath)
	}
	if pathVips, err := exec.LookPath("vips"); err == nil {
		candidates = append(candidates, pathVips)
	}
	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		platformDir := fmt.Sprintf("%s-%s", runtime.GOOS, runtime.GOARCH)
		candidates = append(candidates,
			filepath.Join(execDir, "bin", platformDir, binaryName()),
			filepath.Join(execDir, "bin", binaryName()),
		)
	}

	for _, path := range candidates {
		if info, err := probe(path); err == nil {
			return info, nil
		}
	}

	return nil, fmt.Errorf("vips не найден (установите libvips-tools / brew install vips, "+
		"задайте %s или флаг --vips-path); WebP/AVIF и HEIC будут недоступны", f.EnvVar)
}

// probe проверяет, является ли путь рабочим vips, и читает список операций сохранения.
func probe(path string) (*VipsInfo, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("файл не найден: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось получить абсолютный путь: %w", err)
	}

	output, err := exec.Command(absPath, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("не удалось выполнить vips --version: %w", err)
	}

	info := &VipsInfo{
		Path:    absPath,
		Version: parseVersion(string(output)),
	}

	if classes, err := exec.Command(absPath, "list", "classes").Output(); err == nil {
		info.savers = parseSavers(string(classes))
	}

	return info, nil
}

// parseVersion извлекает версию из вывода "vips --version".
// Пример вывода: "vips-8.14.2"
func parseVersion(output string) string {
	output = strings.TrimSpace(output)
	if v, ok := strings.CutPrefix(output, "vips-"); ok {
		return v
	}
	if v, ok := strings.CutPrefix(output, "vips "); ok {
		return v
	}
	return output
}

// parseSavers извлекает имена операций *save из вывода "vips list classes".
// Пример строки: "  VipsForeignSaveWebpFile (webpsave), save image to webp file"
func parseSavers(output string) map[string]bool {
	savers := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		open := strings.Index(line, "(")
		if open < 0 {
			continue
		}
		end := strings.Index(line[open:], ")")
		if end < 0 {
			continue
		}
		name := line[open+1 : open+end]
		if strings.HasSuffix(name, "save") {
			savers[name] = true
		}
	}
	return savers
}

// HasSaver сообщает, умеет ли vips сохранять через операцию name (например, "webpsave").
// Если список классов прочитать не удалось, предполагается стандартная сборка с webp и heif.
func (v *VipsInfo) HasSaver(name string) bool {
	if v == nil {
		return false
	}
	if len(v.savers) == 0 {
		switch name {
		case "webpsave", "heifsave", "jpegsave", "pngsave":
			return true
		}
		return false
	}
	return v.savers[name]
}

// binaryName возвращает имя бинарника vips для текущей ОС.
func binaryName() string {
	if runtime.GOOS == "windows" {
		return "vips.exe"
	}
	return "vips"
}
