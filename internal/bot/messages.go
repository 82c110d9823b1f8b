// messages.go — тексты ответов бота в одном месте.
package bot

import (
	"fmt"

	"github.com/bigkaa/tglink/internal/media"
	"github.com/bigkaa/tglink/internal/service"
)

const (
	msgStart = "Привет! Я раздаю прямые ссылки на файлы из Telegram.\n\n" +
		"Перешли мне сообщение с файлом и ответь на него командой /dl — " +
		"получишь ссылку на скачивание.\n\nПодробнее: /help"

	msgHelp = "Как получить ссылку:\n" +
		"1. Перешли мне сообщение с файлом (документ, видео, аудио).\n" +
		"2. Ответь на это сообщение командой /dl (или .dl).\n" +
		"3. Получи ссылки на скачивание и просмотр.\n\n" +
		"Ссылка отдаёт файл напрямую, без ограничений Telegram на размер."

	msgNotReply = "Команда /dl работает как ответ на сообщение с файлом. " +
		"Ответь на нужное сообщение командой /dl."

	msgNoFile = "В этом сообщении нет файла. " +
		"Команда работает с документами, видео и аудио."

	msgTransient = "Telegram сейчас не отвечает. Попробуй ещё раз через минуту."

	msgInternalError = "Что-то пошло не так. Попробуй позже."
)

// msgNotMember — отказ при включённой проверке подписки.
func msgNotMember(channel string) string {
	return fmt.Sprintf("Сначала подпишись на канал @%s, затем повтори команду.", channel)
}

// msgTooLarge — файл превышает лимит.
func msgTooLarge(maxSize int64) string {
	return fmt.Sprintf("Файл слишком большой. Максимальный размер: %s.", media.FormatSize(maxSize))
}

// msgLinks — успешный ответ со ссылками.
func msgLinks(res *service.MintResult) string {
	text := "Готово!\n\nСкачать:\n" + res.DownloadURL
	if media.IsStreamable(res.Descriptor.ContentType) {
		text += "\n\nСмотреть онлайн:\n" + res.PlayerURL
	}
	if res.Descriptor.Size > 0 {
		text += fmt.Sprintf("\n\nРазмер: %s", media.FormatSize(res.Descriptor.Size))
	}
	return text
}

// linkCaption — подпись к копии файла в лог-группе.
func linkCaption(res *service.MintResult) string {
	return res.DownloadURL
}
