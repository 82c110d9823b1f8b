// sweeper.go — фоновая очистка истёкших токенов in-memory реестра.
//
// Истёкший токен и так невидим через Resolve, sweeper лишь освобождает
// память. Redis-реестру sweeper не нужен: TTL ключей делает то же самое
// на стороне сервера.
//
// Запускается как горутина с периодическим тикером (LG_SWEEP_INTERVAL).
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus метрики sweeper-а
var (
	// sweeperRunsTotal — количество запусков очистки.
	sweeperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_sweeper_runs_total",
		Help: "Общее количество запусков очистки истёкших токенов",
	})

	// tokensExpiredTotal — количество удалённых истёкших токенов.
	tokensExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_tokens_expired_total",
		Help: "Общее количество токенов, удалённых по истечении срока",
	})

	// registrySize — текущее количество записей в реестре.
	registrySize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lg_registry_size",
		Help: "Текущее количество токенов в реестре",
	})
)

// Sweeper — сервис фоновой очистки истёкших токенов.
type Sweeper struct {
	store    *MemoryStore
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweeper создаёт сервис очистки для in-memory хранилища.
func NewSweeper(store *MemoryStore, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Очистка истёкших токенов запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс очистки.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Очистка истёкших токенов остановлена")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	s.RunOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
// Возвращает количество удалённых токенов.
func (s *Sweeper) RunOnce() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.store.Sweep(time.Now().UTC())
	remaining, _ := s.store.Len(context.Background())

	sweeperRunsTotal.Inc()
	tokensExpiredTotal.Add(float64(removed))
	registrySize.Set(float64(remaining))

	if removed > 0 {
		s.logger.Info("Очистка завершена",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining),
		)
	} else {
		s.logger.Debug("Очистка завершена, истёкших токенов нет",
			slog.Int("remaining", remaining),
		)
	}

	return removed
}
