// stream.go — отдача байтов файла клиенту.
//
// Сервис связывает реестр токенов, resolver и fetcher: токен
// разрешается в дескриптор, дескриптор в живую file-ссылку, ссылка
// читается курсором и передаётся клиенту chunk за chunk-ом.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/tglink/internal/api/errors"
	"github.com/bigkaa/tglink/internal/domain/model"
	"github.com/bigkaa/tglink/internal/media"
	"github.com/bigkaa/tglink/internal/telegram"
)

// Prometheus-метрики стриминга
var (
	// streamsTotal — завершённые стримы по результату.
	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lg_streams_total",
		Help: "Общее количество стримов по результату (completed, aborted, truncated)",
	}, []string{"result"})

	// streamBytesTotal — отданные клиентам байты.
	streamBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_stream_bytes_total",
		Help: "Общее количество байт, отданных клиентам",
	})

	// activeStreams — стримы, выполняющиеся прямо сейчас.
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lg_active_streams",
		Help: "Количество активных стримов",
	})
)

// LiveResolver — получение живой file-ссылки из Telegram.
// Реализуется telegram.Resolver; тесты подставляют фейк.
type LiveResolver interface {
	ResolveLive(ctx context.Context, ref model.RemoteRef) (*telegram.FileHandle, error)
}

// ChunkCursor — последовательное чтение chunk-ов файла.
type ChunkCursor interface {
	Next(ctx context.Context) ([]byte, error)
	Close()
}

// ChunkOpener — фабрика курсоров чтения.
type ChunkOpener interface {
	OpenCursor(handle *telegram.FileHandle, offset int64) ChunkCursor
}

// fetcherOpener адаптирует *telegram.Fetcher к ChunkOpener:
// OpenCursor у fetcher-а возвращает конкретный тип.
type fetcherOpener struct {
	f *telegram.Fetcher
}

func (o fetcherOpener) OpenCursor(handle *telegram.FileHandle, offset int64) ChunkCursor {
	return o.f.OpenCursor(handle, offset)
}

// WrapFetcher оборачивает fetcher для использования в StreamService.
func WrapFetcher(f *telegram.Fetcher) ChunkOpener {
	return fetcherOpener{f: f}
}

// Варианты Content-Disposition.
const (
	DispositionAttachment = "attachment"
	DispositionInline     = "inline"
)

// StreamService — отдача файлов клиентам с поддержкой Range.
type StreamService struct {
	registry TokenRegistry
	resolver LiveResolver
	opener   ChunkOpener
	cache    *HandleCache
	logger   *slog.Logger
}

// NewStreamService создаёт сервис стриминга.
func NewStreamService(
	registry TokenRegistry,
	resolver LiveResolver,
	opener ChunkOpener,
	cache *HandleCache,
	logger *slog.Logger,
) *StreamService {
	return &StreamService{
		registry: registry,
		resolver: resolver,
		opener:   opener,
		cache:    cache,
		logger:   logger.With(slog.String("component", "stream_service")),
	}
}

// StreamError — ошибка стриминга с HTTP-кодом.
// Возвращается только до отправки заголовков.
type StreamError struct {
	StatusCode int
	Code       string
	Message    string
	// Size — полный размер ресурса для Content-Range при 416
	Size int64
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Descriptor возвращает метаданные файла по токену без обращения
// к Telegram. Используется страницей плеера.
func (s *StreamService) Descriptor(ctx context.Context, token string) (*model.FileDescriptor, error) {
	return s.registry.Resolve(ctx, token)
}

// Serve отдаёт файл клиенту.
// Поддерживает Range requests (206 Partial Content), HEAD и файлы
// нулевой длины. disposition — attachment или inline.
// Ошибку возвращает только до отправки заголовков; после первого
// байта сбой означает обрыв соединения.
func (s *StreamService) Serve(w http.ResponseWriter, r *http.Request, token, disposition string) *StreamError {
	ctx := r.Context()

	// stream_id связывает записи лога одного стрима
	streamID := uuid.NewString()
	logger := s.logger.With(slog.String("stream_id", streamID))

	// 1. Токен -> дескриптор
	d, err := s.registry.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return &StreamError{
				StatusCode: http.StatusNotFound,
				Code:       apierrors.CodeNotFound,
				Message:    "Ссылка не найдена или истекла",
			}
		}
		logger.Error("Ошибка реестра токенов", slog.String("error", err.Error()))
		return &StreamError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}

	// 2. Дескриптор -> живая file-ссылка (кэш, затем Telegram)
	handle, serr := s.resolveHandle(ctx, logger, token, d)
	if serr != nil {
		return serr
	}

	// Размер из дескриптора авторитетен: клиент увидел его при выдаче
	// ссылки. Расхождение с Telegram логируем и продолжаем.
	size := d.Size
	if handle.Size != size {
		logger.Warn("Размер файла в Telegram изменился",
			slog.Int64("minted_size", size),
			slog.Int64("live_size", handle.Size),
		)
	}

	// 3. Разбор Range
	status := http.StatusOK
	rng := byteRange{start: 0, end: size - 1}
	if header := r.Header.Get("Range"); header != "" {
		parsed, err := parseRange(header, size)
		if err != nil {
			return &StreamError{
				StatusCode: http.StatusRequestedRangeNotSatisfiable,
				Code:       apierrors.CodeInvalidRange,
				Message:    fmt.Sprintf("Недопустимый диапазон %q", header),
				Size:       size,
			}
		}
		rng = parsed
		status = http.StatusPartialContent
	}

	// 4. Заголовки
	filename := media.SafeFilename(d.Filename)
	if d.Filename == "" {
		filename = token
	}
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	if status == http.StatusPartialContent {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(rng.length(), 10))
	} else {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(status)

	// HEAD и пустой файл: тело не передаётся
	if r.Method == http.MethodHead || size == 0 {
		return nil
	}

	// 5. Передача байтов
	s.pump(ctx, logger, w, token, d, handle, rng)
	return nil
}

// resolveHandle возвращает живую file-ссылку: из кэша или через
// resolver. При Gone токен отзывается, чтобы дальнейшие запросы
// не ходили в Telegram.
func (s *StreamService) resolveHandle(
	ctx context.Context,
	logger *slog.Logger,
	token string,
	d *model.FileDescriptor,
) (*telegram.FileHandle, *StreamError) {
	if handle, ok := s.cache.Get(token); ok {
		return handle, nil
	}

	handle, err := s.resolver.ResolveLive(ctx, d.Ref)
	if err == nil && d.DocumentID != 0 && handle.DocumentID != d.DocumentID {
		// В сообщении теперь другой документ: медиа заменили после
		// выдачи токена. Отдавать чужие байты под старой ссылкой нельзя.
		logger.Warn("Документ в сообщении заменён",
			slog.Int64("minted_document_id", d.DocumentID),
			slog.Int64("live_document_id", handle.DocumentID),
		)
		err = model.ErrGone
	}
	if err != nil {
		if errors.Is(err, model.ErrGone) {
			logger.Info("Файл удалён в источнике, токен отозван",
				slog.Int64("chat_id", d.Ref.ChatID),
				slog.Int("message_id", d.Ref.MessageID),
			)
			s.cache.Delete(token)
			if rerr := s.registry.Revoke(ctx, token); rerr != nil {
				logger.Error("Ошибка отзыва токена", slog.String("error", rerr.Error()))
			}
			return nil, &StreamError{
				StatusCode: http.StatusNotFound,
				Code:       apierrors.CodeNotFound,
				Message:    "Ссылка не найдена или истекла",
			}
		}
		if model.IsTransient(err) {
			logger.Warn("Telegram временно недоступен", slog.String("error", err.Error()))
			return nil, &StreamError{
				StatusCode: http.StatusServiceUnavailable,
				Code:       apierrors.CodeUpstreamUnavailable,
				Message:    "Источник временно недоступен, повторите запрос позже",
			}
		}
		logger.Error("Ошибка получения file-ссылки", slog.String("error", err.Error()))
		return nil, &StreamError{
			StatusCode: http.StatusInternalServerError,
			Code:       apierrors.CodeInternalError,
			Message:    "Внутренняя ошибка",
		}
	}

	s.cache.Set(token, handle)
	return handle, nil
}

// pump передаёт диапазон байтов клиенту. Заголовки уже отправлены,
// все сбои здесь заканчиваются обрывом соединения, а не HTTP-ошибкой.
func (s *StreamService) pump(
	ctx context.Context,
	logger *slog.Logger,
	w http.ResponseWriter,
	token string,
	d *model.FileDescriptor,
	handle *telegram.FileHandle,
	rng byteRange,
) {
	activeStreams.Inc()
	defer activeStreams.Dec()

	rc := http.NewResponseController(w)

	cursor := s.opener.OpenCursor(handle, rng.start)
	defer func() { cursor.Close() }()

	var written int64
	remaining := rng.length()
	// Одна попытка обновить устаревший file_reference на стрим
	refreshed := false

	for remaining > 0 {
		chunk, err := cursor.Next(ctx)

		if errors.Is(err, io.EOF) {
			// Файл в Telegram короче заявленного размера
			logger.Error("Источник закончился раньше заявленного размера",
				slog.Int64("expected", rng.length()),
				slog.Int64("written", written),
				slog.Int64("size", d.Size),
			)
			streamsTotal.WithLabelValues("truncated").Inc()
			return
		}

		if errors.Is(err, telegram.ErrStaleFileReference) && !refreshed {
			refreshed = true
			cursor.Close()

			fresh, rerr := s.resolver.ResolveLive(ctx, d.Ref)
			if rerr != nil {
				logger.Error("Не удалось обновить file_reference",
					slog.String("error", rerr.Error()),
				)
				s.cache.Delete(token)
				streamsTotal.WithLabelValues("aborted").Inc()
				return
			}
			s.cache.Set(token, fresh)

			cursor = s.opener.OpenCursor(fresh, rng.start+written)
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("Клиент отключился",
					slog.Int64("written", written),
				)
			} else {
				logger.Error("Ошибка чтения из Telegram",
					slog.Int64("written", written),
					slog.String("error", err.Error()),
				)
			}
			streamsTotal.WithLabelValues("aborted").Inc()
			return
		}

		if int64(len(chunk)) > remaining {
			chunk = chunk[:remaining]
		}

		n, werr := w.Write(chunk)
		written += int64(n)
		remaining -= int64(n)
		streamBytesTotal.Add(float64(n))

		if werr != nil {
			logger.Debug("Запись клиенту прервана",
				slog.Int64("written", written),
				slog.String("error", werr.Error()),
			)
			streamsTotal.WithLabelValues("aborted").Inc()
			return
		}

		// Chunk уходит клиенту сразу, не дожидаясь заполнения буфера
		_ = rc.Flush()
	}

	streamsTotal.WithLabelValues("completed").Inc()
	logger.Debug("Стрим завершён",
		slog.String("filename", d.Filename),
		slog.Int64("written", written),
	)
}
