// Пакет player — HTML-страница встроенного просмотра медиафайлов.
// Страница отдаёт <video> или <audio> с src на /stream/{token}:
// сам файл через страницу не проходит.
package player

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

// PageData — данные для шаблона страницы плеера.
type PageData struct {
	// Title — имя файла для заголовка страницы
	Title string
	// StreamURL — URL потоковой отдачи для атрибута src
	StreamURL string
	// DownloadURL — URL скачивания для ссылки под плеером
	DownloadURL string
	// ContentType — MIME-тип для элемента source
	ContentType string
	// IsVideo выбирает между <video> и <audio>
	IsVideo bool
	// SizeHuman — размер файла в человекочитаемом виде
	SizeHuman string
}

const pageTemplate = `<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex">
<title>{{.Title}}</title>
<style>
body { margin: 0; background: #111; color: #eee; font-family: sans-serif;
       display: flex; flex-direction: column; align-items: center;
       justify-content: center; min-height: 100vh; }
video, audio { max-width: 95vw; max-height: 80vh; }
.info { margin: 1em; font-size: 0.9em; color: #aaa; }
.info a { color: #6af; }
</style>
</head>
<body>
{{if .IsVideo}}<video controls autoplay preload="metadata">
<source src="{{.StreamURL}}" type="{{.ContentType}}">
Браузер не поддерживает воспроизведение видео.
</video>{{else}}<audio controls autoplay preload="metadata">
<source src="{{.StreamURL}}" type="{{.ContentType}}">
Браузер не поддерживает воспроизведение аудио.
</audio>{{end}}
<div class="info">{{.Title}} ({{.SizeHuman}}) &mdash; <a href="{{.DownloadURL}}">скачать</a></div>
</body>
</html>
`

// Renderer рендерит страницу плеера.
type Renderer struct {
	tmpl *template.Template
}

// NewRenderer разбирает шаблон страницы. Паникует при ошибке шаблона:
// шаблон статический, ошибка означает дефект сборки.
func NewRenderer() *Renderer {
	return &Renderer{
		tmpl: template.Must(template.New("player").Parse(pageTemplate)),
	}
}

// Render пишет страницу плеера в w.
func (r *Renderer) Render(w io.Writer, data PageData) error {
	if err := r.tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("рендеринг страницы плеера: %w", err)
	}
	return nil
}

// IsVideoType сообщает, нужен ли элемент <video> для данного MIME-типа.
func IsVideoType(contentType string) bool {
	return strings.HasPrefix(contentType, "video/")
}
