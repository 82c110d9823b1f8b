// player.go — страница встроенного просмотра: GET /play/{token}.
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
	"github.com/bigkaa/tglink/internal/player"
	"github.com/bigkaa/tglink/internal/service"
)

// PlayerHandler — HTML-страница с плеером для медиафайлов.
type PlayerHandler struct {
	stream   *service.StreamService
	renderer *player.Renderer
	logger   *slog.Logger
}

// NewPlayerHandler создаёт обработчик страницы плеера.
func NewPlayerHandler(stream *service.StreamService, renderer *player.Renderer, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{
		stream:   stream,
		renderer: renderer,
		logger:   logger.With(slog.String("component", "player_handler")),
	}
}

// Play обрабатывает GET /play/{token}[/{filename}].
// Для нестримимых типов (документы, архивы) перенаправляет на скачивание.
func (h *PlayerHandler) Play(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

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

	suffix := ""
	if d.Filename != "" {
		suffix = "/" + url.PathEscape(media.SafeFilename(d.Filename))
	}
	downloadURL := "/download/" + token + suffix

	// Плеер бессмыслен для нестримимых типов
	if !media.IsStreamable(d.ContentType) {
		http.Redirect(w, r, downloadURL, http.StatusFound)
		return
	}

	title := d.Filename
	if title == "" {
		title = token
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = h.renderer.Render(w, player.PageData{
		Title:       title,
		StreamURL:   "/stream/" + token + suffix,
		DownloadURL: downloadURL,
		ContentType: d.ContentType,
		IsVideo:     player.IsVideoType(d.ContentType),
		SizeHuman:   media.FormatSize(d.Size),
	})
	if err != nil {
		h.logger.Error("Ошибка рендеринга плеера", slog.String("error", err.Error()))
	}
}
