// redis.go — Redis-реализация Store.
//
// Записи хранятся как JSON под ключами lg:token:{token}. Срок жизни
// токена выражается через TTL ключа, поэтому истёкшие записи исчезают
// без участия sweeper-а. Реестр переживает рестарт процесса.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/tglink/internal/domain/model"
)

// tokenKeyPrefix — префикс ключей реестра в Redis.
const tokenKeyPrefix = "lg:token:"

// RedisStore — хранилище реестра в Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создаёт хранилище и проверяет соединение с Redis.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("соединение с Redis %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

// Put сохраняет дескриптор. TTL ключа выставляется по ExpiresAt.
func (s *RedisStore) Put(ctx context.Context, d *model.FileDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("сериализация дескриптора: %w", err)
	}

	var ttl time.Duration // 0 = без истечения
	if d.ExpiresAt != nil {
		ttl = time.Until(*d.ExpiresAt)
		if ttl <= 0 {
			// Запись уже истекла, сохранять нечего
			return nil
		}
	}

	if err := s.client.Set(ctx, tokenKeyPrefix+d.Token, data, ttl).Err(); err != nil {
		return fmt.Errorf("запись в Redis: %w", err)
	}
	return nil
}

// Get возвращает дескриптор по токену или model.ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, token string) (*model.FileDescriptor, error) {
	data, err := s.client.Get(ctx, tokenKeyPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("чтение из Redis: %w", err)
	}

	var d model.FileDescriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("десериализация дескриптора: %w", err)
	}
	return &d, nil
}

// Delete удаляет запись. Отсутствие записи не является ошибкой.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("удаление из Redis: %w", err)
	}
	return nil
}

// Len возвращает количество записей реестра (SCAN по префиксу).
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, tokenKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("SCAN по Redis: %w", err)
	}
	return count, nil
}

// Close закрывает соединение с Redis.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
