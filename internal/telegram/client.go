// Пакет telegram — доступ к Telegram через MTProto (gotd/td).
//
// Клиент авторизуется как бот и живёт всё время работы процесса.
// Resolver и Fetcher работают поверх узких интерфейсов invoker-а,
// чтобы сервисный слой и тесты не зависели от живого соединения.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// Client — обёртка над MTProto-клиентом gotd с bot-авторизацией
// и файловым хранилищем сессии.
type Client struct {
	client   *telegram.Client
	botToken string
	ready    atomic.Bool
	logger   *slog.Logger
}

// NewClient создаёт MTProto-клиент.
// sessionDir создаётся при необходимости; в нём хранится session.json,
// переживающий рестарты (повторная авторизация не требуется).
// handler — обработчик updates (nil, если бот не слушает сообщения).
func NewClient(apiID int, apiHash, botToken, sessionDir string, handler telegram.UpdateHandler, logger *slog.Logger) (*Client, error) {
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("создание директории сессии %s: %w", sessionDir, err)
	}

	client := telegram.NewClient(apiID, apiHash, telegram.Options{
		SessionStorage: &session.FileStorage{
			Path: filepath.Join(sessionDir, "session.json"),
		},
		UpdateHandler: handler,
	})

	return &Client{
		client:   client,
		botToken: botToken,
		logger:   logger.With(slog.String("component", "telegram")),
	}, nil
}

// Run устанавливает соединение, авторизует бота и передаёт управление
// в onReady. Блокируется до завершения onReady или обрыва соединения:
// запускать в отдельной горутине.
func (c *Client) Run(ctx context.Context, onReady func(ctx context.Context, api *tg.Client) error) error {
	return c.client.Run(ctx, func(ctx context.Context) error {
		status, err := c.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("проверка статуса авторизации: %w", err)
		}

		if !status.Authorized {
			if _, err := c.client.Auth().Bot(ctx, c.botToken); err != nil {
				return fmt.Errorf("bot-авторизация: %w", err)
			}
			c.logger.Info("Бот авторизован в Telegram")
		} else {
			c.logger.Info("Сессия Telegram восстановлена из файла")
		}

		c.ready.Store(true)
		defer c.ready.Store(false)

		return onReady(ctx, c.client.API())
	})
}

// Ready сообщает, установлено ли авторизованное соединение.
// Используется readiness probe.
func (c *Client) Ready() bool {
	return c.ready.Load()
}

// API возвращает низкоуровневый RPC-клиент.
// Сам объект можно создавать заранее, но вызовы проходят только
// при установленном соединении (внутри Run).
func (c *Client) API() *tg.Client {
	return c.client.API()
}
