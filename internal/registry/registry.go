// Пакет registry — реестр токенов Link Gateway.
//
// Токен — непрозрачный URL-safe идентификатор, привязанный к
// FileDescriptor. Реестр выдаёт токены (Mint), разрешает их в
// дескрипторы (Resolve) и отзывает (Revoke). Хранение — за
// интерфейсом Store: in-memory или Redis.
package registry

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tglink/internal/domain/model"
)

// randomTokenBytes — длина случайного токена в байтах (144 бита энтропии).
const randomTokenBytes = 18

// Prometheus метрики реестра
var (
	// tokensMintedTotal — количество выданных токенов.
	tokensMintedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_tokens_minted_total",
		Help: "Общее количество выданных токенов",
	})

	// tokensRevokedTotal — количество отозванных токенов.
	tokensRevokedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_tokens_revoked_total",
		Help: "Общее количество отозванных токенов",
	})

	// mintRejectedTotal — количество отказов в выдаче токена.
	mintRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lg_mint_rejected_total",
		Help: "Общее количество отказов в выдаче токена",
	}, []string{"reason"})
)

// Store — хранилище записей реестра.
// Реализации: MemoryStore (по умолчанию), RedisStore (LG_REDIS_ADDR).
type Store interface {
	// Put сохраняет дескриптор по его токену, перезаписывая существующий.
	Put(ctx context.Context, d *model.FileDescriptor) error
	// Get возвращает дескриптор по токену или model.ErrNotFound.
	// Истечение срока Get не проверяет, это зона ответственности Registry.
	Get(ctx context.Context, token string) (*model.FileDescriptor, error)
	// Delete удаляет запись. Отсутствие записи не является ошибкой.
	Delete(ctx context.Context, token string) error
	// Len возвращает текущее количество записей.
	Len(ctx context.Context) (int, error)
}

// Registry — реестр токенов.
type Registry struct {
	store       Store
	maxFileSize int64
	tokenTTL    time.Duration
	secretKey   []byte
	logger      *slog.Logger
}

// New создаёт реестр токенов.
// maxFileSize — потолок размера файла, tokenTTL — срок жизни токена
// (0 = бессрочно), secretKey — секрет для детерминированных токенов
// (пустой = случайные токены).
func New(store Store, maxFileSize int64, tokenTTL time.Duration, secretKey string, logger *slog.Logger) *Registry {
	var key []byte
	if secretKey != "" {
		key = []byte(secretKey)
	}
	return &Registry{
		store:       store,
		maxFileSize: maxFileSize,
		tokenTTL:    tokenTTL,
		secretKey:   key,
		logger:      logger.With(slog.String("component", "registry")),
	}
}

// Mint выдаёт токен для дескриптора и сохраняет запись в реестре.
// Поле Token в переданном дескрипторе игнорируется и перезаписывается.
// Возвращает model.ErrTooLarge, если размер превышает лимит.
//
// При заданном секрете токен детерминирован по RemoteRef: повторный
// Mint того же сообщения возвращает тот же токен и обновляет запись.
func (r *Registry) Mint(ctx context.Context, d *model.FileDescriptor) (string, error) {
	if d.Size > r.maxFileSize {
		mintRejectedTotal.WithLabelValues("too_large").Inc()
		return "", fmt.Errorf("%w: %d > %d", model.ErrTooLarge, d.Size, r.maxFileSize)
	}
	if d.Size < 0 {
		mintRejectedTotal.WithLabelValues("invalid_size").Inc()
		return "", fmt.Errorf("некорректный размер файла: %d", d.Size)
	}

	token, err := r.tokenFor(ctx, &d.Ref)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	stored := *d
	stored.Token = token
	stored.MintedAt = now
	if r.tokenTTL > 0 {
		expires := now.Add(r.tokenTTL)
		stored.ExpiresAt = &expires
	} else {
		stored.ExpiresAt = nil
	}

	if err := r.store.Put(ctx, &stored); err != nil {
		return "", fmt.Errorf("сохранение токена: %w", err)
	}

	tokensMintedTotal.Inc()

	r.logger.Info("Токен выдан",
		slog.Int64("chat_id", d.Ref.ChatID),
		slog.Int("message_id", d.Ref.MessageID),
		slog.Int64("size", d.Size),
		slog.String("content_type", d.ContentType),
	)

	return token, nil
}

// Resolve возвращает дескриптор по токену.
// Возвращает model.ErrNotFound для неизвестных и истёкших токенов.
// К Telegram не обращается: это чистый lookup.
func (r *Registry) Resolve(ctx context.Context, token string) (*model.FileDescriptor, error) {
	if token == "" {
		return nil, model.ErrNotFound
	}

	d, err := r.store.Get(ctx, token)
	if err != nil {
		return nil, err
	}

	if d.IsExpired(time.Now().UTC()) {
		// Истёкший токен эквивалентен отсутствующему.
		// Физическое удаление оставляем sweeper-у.
		return nil, model.ErrNotFound
	}

	return d, nil
}

// Revoke отзывает токен. Отзыв несуществующего токена не является ошибкой.
func (r *Registry) Revoke(ctx context.Context, token string) error {
	if err := r.store.Delete(ctx, token); err != nil {
		return fmt.Errorf("отзыв токена: %w", err)
	}

	tokensRevokedTotal.Inc()
	r.logger.Info("Токен отозван")
	return nil
}

// Size возвращает текущее количество записей в реестре.
func (r *Registry) Size(ctx context.Context) (int, error) {
	return r.store.Len(ctx)
}

// tokenFor строит токен для ссылки на сообщение.
// С секретом — HMAC-SHA256 от канонического представления ссылки
// (детерминированный, невосстановимый без секрета). Без секрета —
// случайные 144 бита. Оба варианта кодируются base64url без padding.
func (r *Registry) tokenFor(ctx context.Context, ref *model.RemoteRef) (string, error) {
	if len(r.secretKey) > 0 {
		mac := hmac.New(sha256.New, r.secretKey)
		fmt.Fprintf(mac, "%d:%d", ref.ChatID, ref.MessageID)
		token := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

		// Детерминированный токен обязан указывать на то же сообщение.
		existing, err := r.store.Get(ctx, token)
		switch {
		case errors.Is(err, model.ErrNotFound):
			return token, nil
		case err != nil:
			return "", fmt.Errorf("проверка коллизии токена: %w", err)
		case existing.Ref.ChatID != ref.ChatID || existing.Ref.MessageID != ref.MessageID:
			return "", fmt.Errorf("коллизия токена: токен уже привязан к другому сообщению")
		}
		return token, nil
	}

	// Случайный токен: повторяем генерацию при коллизии.
	// Сбой хранилища не означает свободный токен, его пробрасываем.
	for attempt := 0; attempt < 3; attempt++ {
		buf := make([]byte, randomTokenBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("генерация токена: %w", err)
		}
		token := base64.RawURLEncoding.EncodeToString(buf)

		_, err := r.store.Get(ctx, token)
		if errors.Is(err, model.ErrNotFound) {
			return token, nil
		}
		if err != nil {
			return "", fmt.Errorf("проверка коллизии токена: %w", err)
		}
	}
	return "", fmt.Errorf("не удалось сгенерировать уникальный токен")
}
