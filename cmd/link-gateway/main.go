// Link Gateway — шлюз прямых ссылок на файлы из Telegram.
//
// Процесс держит одно MTProto-соединение с Telegram и HTTP-сервер.
// Бот выдаёт токены по команде /dl, HTTP-сервер отдаёт файлы по
// /download/{token} и /stream/{token} с поддержкой Range.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	tdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"

	"github.com/bigkaa/tglink/internal/api/handlers"
	"github.com/bigkaa/tglink/internal/api/middleware"
	"github.com/bigkaa/tglink/internal/bot"
	"github.com/bigkaa/tglink/internal/config"
	"github.com/bigkaa/tglink/internal/player"
	"github.com/bigkaa/tglink/internal/registry"
	"github.com/bigkaa/tglink/internal/server"
	"github.com/bigkaa/tglink/internal/service"
	"github.com/bigkaa/tglink/internal/telegram"
)

const (
	// jwksRefreshInterval — период обновления ключей из JWKS endpoint
	jwksRefreshInterval = 5 * time.Minute
	// jwtLeeway — допуск на рассинхронизацию часов при проверке exp/nbf
	jwtLeeway = 30 * time.Second
	// mintScope — scope, требуемый для выдачи ссылок через API
	mintScope = "links:mint"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка загрузки конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Запуск Link Gateway",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("base_url", cfg.BaseURL),
	)

	// Контекст жизни фоновых процессов: отменяется при выходе
	// или при обрыве Telegram-клиента
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Реестр токенов: Redis при заданном LG_REDIS_ADDR,
	//    иначе память процесса с фоновой уборкой истёкших токенов
	var (
		store      registry.Store
		sweeper    *registry.Sweeper
		redisStore *registry.RedisStore
	)
	if cfg.RedisAddr != "" {
		redisStore, err = registry.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Error("Не удалось подключиться к Redis",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		store = redisStore
		logger.Info("Реестр токенов в Redis", slog.String("addr", cfg.RedisAddr))
	} else {
		mem := registry.NewMemoryStore()
		sweeper = registry.NewSweeper(mem, cfg.SweepInterval, logger)
		sweeper.Start(ctx)
		store = mem
		logger.Info("Реестр токенов в памяти процесса")
	}
	reg := registry.New(store, cfg.MaxFileSize, cfg.TokenTTL, cfg.SecretKey, logger)

	// 2. Telegram-клиент. Обработчик updates создаётся через замыкание:
	//    бот требует сервис выдачи ссылок, который строится поверх API
	//    клиента. Присваивание b происходит до Run, updates раньше
	//    соединения не приходят.
	var b *bot.Bot
	updates := tdtelegram.UpdateHandlerFunc(func(ctx context.Context, u tg.UpdatesClass) error {
		return b.Handler().Handle(ctx, u)
	})

	tgClient, err := telegram.NewClient(cfg.APIID, cfg.APIHash, cfg.BotToken, cfg.SessionDir, updates, logger)
	if err != nil {
		logger.Error("Не удалось создать Telegram-клиент", slog.String("error", err.Error()))
		os.Exit(1)
	}

	api := tgClient.API()
	resolver := telegram.NewResolver(api, logger)
	fetcher := telegram.NewFetcher(
		api,
		cfg.ChunkSize,
		cfg.FetchRetries,
		cfg.FetchRetryBase,
		cfg.MaxConcurrentFetches,
		cfg.FetchWaitTimeout,
		logger,
	)

	// 3. Сервисы
	mint := service.NewMintService(reg, resolver, cfg.BaseURL, logger)
	handleCache := service.NewHandleCache(cfg.HandleCacheSize, cfg.HandleCacheTTL)
	stream := service.NewStreamService(reg, resolver, service.WrapFetcher(fetcher), handleCache, logger)
	b = bot.New(mint, cfg.MaxFileSize, cfg.RequiredChannel, cfg.MediaGroupID, logger)

	// 4. Запуск Telegram-клиента. Обрыв соединения роняет процесс
	//    через cancel: оркестратор перезапустит под.
	go func() {
		err := tgClient.Run(ctx, func(ctx context.Context, api *tg.Client) error {
			b.Bind(ctx, api)
			logger.Info("Telegram-клиент готов")
			<-ctx.Done()
			return ctx.Err()
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("Telegram-клиент завершился", slog.String("error", err.Error()))
			cancel()
		}
	}()

	// 5. Мониторинг зависимостей (dephealth)
	var deps handlers.DependencyHealth
	dephealthSvc, err := service.NewDephealthService(
		cfg.DephealthName,
		cfg.DephealthGroup,
		cfg.DephealthDepName,
		cfg.DephealthURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Warn("Dephealth не инициализирован", slog.String("error", err.Error()))
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("Dephealth не запущен", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		deps = dephealthSvc
	}

	// 6. JWT-аутентификация API выдачи ссылок
	var authMW func(http.Handler) http.Handler
	if cfg.JWKSUrl != "" {
		jwtAuth, err := middleware.NewJWTAuth(cfg.JWKSUrl, jwksRefreshInterval, jwtLeeway, logger)
		if err != nil {
			logger.Warn("JWT-аутентификация не инициализирована, запуск без аутентификации",
				slog.String("error", err.Error()),
			)
		} else {
			authMW = func(next http.Handler) http.Handler {
				return jwtAuth.Middleware()(middleware.RequireScope(mintScope)(next))
			}
			logger.Info("JWT-аутентификация включена", slog.String("jwks_url", cfg.JWKSUrl))
		}
	} else {
		logger.Warn("LG_JWKS_URL не задан, запуск без аутентификации (для разработки)")
	}

	// 7. HTTP handlers и сервер
	h := handlers.NewHandler(
		handlers.NewFilesHandler(stream, logger),
		handlers.NewPlayerHandler(stream, player.NewRenderer(), logger),
		handlers.NewLinksHandler(mint, logger),
		handlers.NewHealthHandler(tgClient, reg, deps),
		authMW,
	)

	srv := server.New(cfg, logger, h)

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Ошибка работы сервера", slog.String("error", runErr.Error()))
	}

	// --- Graceful shutdown фоновых процессов ---
	cancel()

	if sweeper != nil {
		sweeper.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			logger.Warn("Ошибка закрытия соединения с Redis", slog.String("error", err.Error()))
		}
	}

	logger.Info("Link Gateway остановлен")

	if runErr != nil {
		os.Exit(1)
	}
}
