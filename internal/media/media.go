// Пакет media — определение MIME-типов, проверка пригодности для
// стриминга и вспомогательные функции для имён и размеров файлов.
package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// mimeByExtension — переопределения MIME-типов по расширению.
// Telegram нередко присылает application/octet-stream для медиафайлов,
// расширение имени файла надёжнее.
var mimeByExtension = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".mov":  "video/quicktime",
	".ts":   "video/mp2t",
	".m4v":  "video/x-m4v",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".wav":  "audio/wav",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".txt":  "text/plain",
	".srt":  "text/plain",
}

// ContentType возвращает MIME-тип файла.
// Приоритет: расширение имени → тип из Telegram → application/octet-stream.
func ContentType(filename, telegramMime string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if mime, ok := mimeByExtension[ext]; ok {
		return mime
	}
	if telegramMime != "" {
		return telegramMime
	}
	return "application/octet-stream"
}

// IsStreamable проверяет, воспроизводим ли тип встроенным плеером браузера.
func IsStreamable(contentType string) bool {
	return strings.HasPrefix(contentType, "video/") ||
		strings.HasPrefix(contentType, "audio/")
}

// SafeFilename приводит имя файла к безопасному для URL и заголовков виду:
// убирает разделители путей, управляющие символы и кавычки.
// Для пустого результата возвращает "file".
func SafeFilename(name string) string {
	// Защита от path traversal: берём только базовое имя
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))

	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			// управляющие символы выбрасываем
		case r == '"' || r == '/' || r == '\\':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" || cleaned == "." || cleaned == ".." {
		return "file"
	}
	return cleaned
}

// FormatSize возвращает размер в человекочитаемом виде (двоичные единицы).
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(size)/float64(div), "KMGTPE"[exp])
}
