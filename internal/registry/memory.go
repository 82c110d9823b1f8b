// memory.go — in-memory реализация Store.
//
// Потокобезопасная map под sync.RWMutex с копированием при чтении.
// Не персистентна: при рестарте все токены теряются. Для переживания
// рестартов используйте RedisStore (LG_REDIS_ADDR).
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/bigkaa/tglink/internal/domain/model"
)

// MemoryStore — потокобезопасное in-memory хранилище реестра.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]*model.FileDescriptor
}

// NewMemoryStore создаёт пустое in-memory хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens: make(map[string]*model.FileDescriptor),
	}
}

// Put сохраняет дескриптор по его токену.
func (s *MemoryStore) Put(_ context.Context, d *model.FileDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Создаём копию, чтобы избежать data race при внешних изменениях
	copied := *d
	s.tokens[d.Token] = &copied
	return nil
}

// Get возвращает дескриптор по токену или model.ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, token string) (*model.FileDescriptor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.tokens[token]
	if !ok {
		return nil, model.ErrNotFound
	}

	// Возвращаем копию для потокобезопасности
	copied := *d
	return &copied, nil
}

// Delete удаляет запись. Отсутствие записи не является ошибкой.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, token)
	return nil
}

// Len возвращает текущее количество записей.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens), nil
}

// Sweep удаляет записи с истёкшим сроком и возвращает их количество.
// Вызывается sweeper-ом по тикеру.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for token, d := range s.tokens {
		if d.IsExpired(now) {
			delete(s.tokens, token)
			count++
		}
	}
	return count
}
