// files.go — endpoints отдачи файлов: /download и /stream.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/tglink/internal/api/errors"
	"github.com/bigkaa/tglink/internal/domain/model"
	"github.com/bigkaa/tglink/internal/media"
	"github.com/bigkaa/tglink/internal/service"
)

// FilesHandler — отдача файлов клиентам.
type FilesHandler struct {
	stream *service.StreamService
	logger *slog.Logger
}

// NewFilesHandler создаёт обработчик отдачи файлов.
func NewFilesHandler(stream *service.StreamService, logger *slog.Logger) *FilesHandler {
	return &FilesHandler{
		stream: stream,
		logger: logger.With(slog.String("component", "files_handler")),
	}
}

// Download обрабатывает GET/HEAD /download/{token}[/{filename}].
// Запрос без имени файла перенаправляется на URL с именем, чтобы
// менеджеры закачек сохраняли файл под исходным именем.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, service.DispositionAttachment, "/download/")
}

// Stream обрабатывает GET/HEAD /stream/{token}[/{filename}].
// Отличается от Download только Content-Disposition: inline позволяет
// браузеру воспроизводить медиа без скачивания.
func (h *FilesHandler) Stream(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, service.DispositionInline, "/stream/")
}

func (h *FilesHandler) serve(w http.ResponseWriter, r *http.Request, disposition, prefix string) {
	token := chi.URLParam(r, "token")

	// Без имени файла в пути: redirect на именованный URL
	if chi.URLParam(r, "filename") == "" {
		d, err := h.stream.Descriptor(r.Context(), token)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				apierrors.NotFound(w, "Ссылка не найдена или истекла")
				return
			}
			h.logger.Error("Ошибка реестра токенов", slog.String("error", err.Error()))
			apierrors.InternalError(w, "Внутренняя ошибка")
			return
		}
		if d.Filename != "" {
			named := prefix + token + "/" + url.PathEscape(media.SafeFilename(d.Filename))
			http.Redirect(w, r, named, http.StatusFound)
			return
		}
		// У файла нет имени, отдаём напрямую
	}

	writeStreamError(w, h.stream.Serve(w, r, token, disposition))
}

// writeStreamError транслирует ошибку сервиса в HTTP-ответ.
// nil означает, что ответ уже отправлен.
func writeStreamError(w http.ResponseWriter, serr *service.StreamError) {
	if serr == nil {
		return
	}
	if serr.Code == apierrors.CodeInvalidRange {
		apierrors.InvalidRange(w, serr.Size, serr.Message)
		return
	}
	apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
}
