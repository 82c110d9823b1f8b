// fetcher.go — последовательное чтение файла из Telegram кусками
// upload.getFile.
//
// Telegram требует, чтобы offset и limit были кратны 4096, а limit
// делил 1 MiB. Курсор выравнивает первый запрос вниз и отрезает
// лишнюю голову первого chunk-а.
//
// Глобальный семафор ограничивает количество одновременных
// upload.getFile на весь процесс (LG_MAX_CONCURRENT_FETCHES).
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/semaphore"

	"github.com/bigkaa/tglink/internal/domain/model"
)

// ErrStaleFileReference — file_reference в локации устарел.
// Вызывающий должен заново сделать ResolveLive и открыть новый курсор.
var ErrStaleFileReference = errors.New("file_reference устарел")

// Prometheus метрики fetcher-а
var (
	// chunkFetchesTotal — количество запросов upload.getFile.
	chunkFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lg_chunk_fetches_total",
		Help: "Общее количество запросов upload.getFile",
	}, []string{"result"})

	// chunkRetriesTotal — количество повторов после временных ошибок.
	chunkRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_chunk_retries_total",
		Help: "Общее количество повторов chunk-запросов",
	})

	// floodWaitsTotal — количество полученных FLOOD_WAIT.
	floodWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_flood_waits_total",
		Help: "Общее количество FLOOD_WAIT от Telegram",
	})

	// fetchSlotTimeoutsTotal — отказы из-за занятости семафора.
	fetchSlotTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_fetch_slot_timeouts_total",
		Help: "Общее количество отказов по таймауту ожидания слота загрузки",
	})
)

// FileInvoker — подмножество RPC, нужное fetcher-у.
// *tg.Client реализует интерфейс; тесты подставляют фейк.
type FileInvoker interface {
	UploadGetFile(ctx context.Context, request *tg.UploadGetFileRequest) (tg.UploadFileClass, error)
}

// Fetcher — фабрика курсоров последовательного чтения.
type Fetcher struct {
	api         FileInvoker
	chunkSize   int64
	retries     int
	retryBase   time.Duration
	waitTimeout time.Duration
	sem         *semaphore.Weighted
	logger      *slog.Logger
}

// NewFetcher создаёт fetcher.
// chunkSize кратен 4096 и делит 1 MiB (валидируется конфигурацией),
// maxConcurrent — глобальный лимит одновременных запросов.
func NewFetcher(
	api FileInvoker,
	chunkSize int64,
	retries int,
	retryBase time.Duration,
	maxConcurrent int64,
	waitTimeout time.Duration,
	logger *slog.Logger,
) *Fetcher {
	return &Fetcher{
		api:         api,
		chunkSize:   chunkSize,
		retries:     retries,
		retryBase:   retryBase,
		waitTimeout: waitTimeout,
		sem:         semaphore.NewWeighted(maxConcurrent),
		logger:      logger.With(slog.String("component", "fetcher")),
	}
}

// ChunkSize возвращает размер chunk-а в байтах.
func (f *Fetcher) ChunkSize() int64 {
	return f.chunkSize
}

// OpenCursor создаёт курсор чтения с указанного байтового смещения.
// Сетевых операций не выполняет: первый запрос уходит при первом Next.
func (f *Fetcher) OpenCursor(handle *FileHandle, offset int64) *Cursor {
	// Выравнивание вниз до кратного 4096, голова отрезается при чтении
	aligned := offset - offset%4096
	return &Cursor{
		fetcher: f,
		loc:     handle.Location,
		offset:  aligned,
		skip:    offset - aligned,
	}
}

// Cursor — последовательный курсор чтения файла.
// Не потокобезопасен: один курсор обслуживает один запрос.
type Cursor struct {
	fetcher *Fetcher
	loc     tg.InputFileLocationClass
	offset  int64 // выровненное смещение следующего запроса
	skip    int64 // сколько байт отрезать от головы следующего chunk-а
	done    bool  // достигнут конец файла
	closed  bool
}

// Next возвращает следующий chunk файла.
// Возвращает io.EOF после последнего chunk-а, ErrStaleFileReference при
// устаревании file_reference, model.TransientError после исчерпания
// повторов. Chunk-и выдаются строго последовательно.
func (c *Cursor) Next(ctx context.Context) ([]byte, error) {
	if c.closed {
		return nil, fmt.Errorf("курсор закрыт")
	}
	if c.done {
		return nil, io.EOF
	}

	raw, err := c.fetchChunk(ctx)
	if err != nil {
		return nil, err
	}

	// Короткий chunk означает конец файла
	if int64(len(raw)) < c.fetcher.chunkSize {
		c.done = true
	}
	c.offset += c.fetcher.chunkSize

	// Отрезаем голову первого chunk-а после выравнивания
	if c.skip > 0 {
		if c.skip >= int64(len(raw)) {
			// Запрошенное смещение за концом файла
			c.done = true
			return nil, io.EOF
		}
		raw = raw[c.skip:]
		c.skip = 0
	}

	if len(raw) == 0 {
		c.done = true
		return nil, io.EOF
	}

	return raw, nil
}

// Close закрывает курсор. Идемпотентен.
func (c *Cursor) Close() {
	c.closed = true
}

// fetchChunk выполняет один запрос upload.getFile с ограничением
// семафором и повторами при временных ошибках.
func (c *Cursor) fetchChunk(ctx context.Context) ([]byte, error) {
	f := c.fetcher

	// Слот семафора на время одного запроса: долгий стрим не должен
	// монополизировать лимит между chunk-ами.
	acquireCtx, cancel := context.WithTimeout(ctx, f.waitTimeout)
	err := f.sem.Acquire(acquireCtx, 1)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		fetchSlotTimeoutsTotal.Inc()
		return nil, &model.TransientError{
			Op:  "fetch",
			Err: fmt.Errorf("исчерпан лимит одновременных загрузок: %w", err),
		}
	}
	defer f.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt <= f.retries; attempt++ {
		if attempt > 0 {
			chunkRetriesTotal.Inc()
			// Exponential backoff: base, 2*base, 4*base...
			if err := sleepCtx(ctx, f.retryBase<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		res, err := f.api.UploadGetFile(ctx, &tg.UploadGetFileRequest{
			Location: c.loc,
			Offset:   c.offset,
			Limit:    int(f.chunkSize),
		})
		if err == nil {
			file, ok := res.(*tg.UploadFile)
			if !ok {
				// CDN-файлы не встречаются для обычных документов бота
				chunkFetchesTotal.WithLabelValues("error").Inc()
				return nil, &model.TransientError{
					Op:  "fetch",
					Err: fmt.Errorf("неожиданный тип ответа %T", res),
				}
			}
			chunkFetchesTotal.WithLabelValues("success").Inc()
			return file.Bytes, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// file_reference устарел: повторы бесполезны, нужен новый resolve
		if tgerr.Is(err, "FILE_REFERENCE_EXPIRED") {
			chunkFetchesTotal.WithLabelValues("stale_reference").Inc()
			return nil, fmt.Errorf("%w: %v", ErrStaleFileReference, err)
		}

		classified := classifyRPCError("fetch", err)
		if errors.Is(classified, model.ErrGone) {
			chunkFetchesTotal.WithLabelValues("gone").Inc()
			return nil, classified
		}

		// FLOOD_WAIT: ждём предписанную паузу, попытка засчитывается
		var te *model.TransientError
		if errors.As(classified, &te) && te.RetryAfter > 0 {
			floodWaitsTotal.Inc()
			f.logger.Warn("FLOOD_WAIT от Telegram",
				slog.Duration("wait", te.RetryAfter),
				slog.Int("attempt", attempt),
			)
			if err := sleepCtx(ctx, te.RetryAfter); err != nil {
				return nil, err
			}
		}

		chunkFetchesTotal.WithLabelValues("error").Inc()
		lastErr = classified

		f.logger.Debug("Ошибка chunk-запроса",
			slog.Int64("offset", c.offset),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
	}

	return nil, fmt.Errorf("исчерпаны повторы chunk-запроса: %w", lastErr)
}

// sleepCtx ждёт d или отмены контекста.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
