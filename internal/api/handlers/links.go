// links.go — API выдачи ссылок: POST /api/v1/links.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/tglink/internal/api/errors"
	"github.com/bigkaa/tglink/internal/api/middleware"
	"github.com/bigkaa/tglink/internal/domain/model"
	"github.com/bigkaa/tglink/internal/service"
)

// LinksHandler — программная выдача ссылок для интеграций.
type LinksHandler struct {
	mint   *service.MintService
	logger *slog.Logger
}

// NewLinksHandler создаёт обработчик API выдачи ссылок.
func NewLinksHandler(mint *service.MintService, logger *slog.Logger) *LinksHandler {
	return &LinksHandler{
		mint:   mint,
		logger: logger.With(slog.String("component", "links_handler")),
	}
}

// createLinkRequest — тело запроса выдачи ссылки.
type createLinkRequest struct {
	// ChatID — идентификатор чата с сообщением
	ChatID int64 `json:"chat_id"`
	// MessageID — идентификатор сообщения с файлом
	MessageID int `json:"message_id"`
	// AccessHash — access_hash канала (0 для личных чатов)
	AccessHash int64 `json:"access_hash"`
}

// createLinkResponse — тело ответа с выданной ссылкой.
type createLinkResponse struct {
	Token       string `json:"token"`
	DownloadURL string `json:"download_url"`
	StreamURL   string `json:"stream_url"`
	PlayerURL   string `json:"player_url"`
	Filename    string `json:"filename,omitempty"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// CreateLink обрабатывает POST /api/v1/links.
// Разрешает сообщение Telegram в файл и возвращает ссылки на него.
func (h *LinksHandler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректный JSON в теле запроса")
		return
	}

	if req.ChatID == 0 {
		apierrors.ValidationError(w, "Поле chat_id обязательно")
		return
	}
	if req.MessageID <= 0 {
		apierrors.ValidationError(w, "Поле message_id должно быть положительным")
		return
	}

	res, err := h.mint.MintLink(r.Context(), model.RemoteRef{
		ChatID:     req.ChatID,
		MessageID:  req.MessageID,
		AccessHash: req.AccessHash,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrGone):
			apierrors.NotFound(w, "Сообщение не найдено или не содержит файла")
		case errors.Is(err, model.ErrTooLarge):
			apierrors.FileTooLarge(w, "Файл превышает максимальный размер")
		case model.IsTransient(err):
			apierrors.UpstreamUnavailable(w, "Telegram временно недоступен, повторите запрос позже")
		default:
			h.logger.Error("Ошибка выдачи ссылки",
				slog.Int64("chat_id", req.ChatID),
				slog.Int("message_id", req.MessageID),
				slog.String("error", err.Error()),
			)
			apierrors.InternalError(w, "Внутренняя ошибка")
		}
		return
	}

	h.logger.Info("Ссылка выдана через API",
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
		slog.Int64("chat_id", req.ChatID),
		slog.Int("message_id", req.MessageID),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(createLinkResponse{
		Token:       res.Token,
		DownloadURL: res.DownloadURL,
		StreamURL:   res.StreamURL,
		PlayerURL:   res.PlayerURL,
		Filename:    res.Descriptor.Filename,
		Size:        res.Descriptor.Size,
		ContentType: res.Descriptor.ContentType,
	})
}
