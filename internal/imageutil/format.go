package imageutil

import "github.com/artemshloyda/photobatch/internal/config"

// EncodeSupport сообщает, умеет ли среда выполнения кодировать в формат.
type EncodeSupport interface {
	Supports(format config.OutputFormat) bool
}

// SupportFunc адаптирует функцию к EncodeSupport.
type SupportFunc func(format config.OutputFormat) bool

// Supports реализует EncodeSupport.
func (f SupportFunc) Supports(format config.OutputFormat) bool {
	return f(format)
}

// ResolveEffectiveFormat возвращает запрошенный формат, если он поддерживается,
// иначе WebP, иначе PNG. PNG считается поддерживаемым всегда.
func ResolveEffectiveFormat(requested config.OutputFormat, support EncodeSupport) config.OutputFormat {
	if requested == config.FormatPNG || support.Supports(requested) {
		return requested
	}
	if support.Supports(config.FormatWebP) {
		return config.FormatWebP
	}
	return config.FormatPNG
}
