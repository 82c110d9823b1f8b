// Пакет service — бизнес-логика Link Gateway.
// HandleCache — LRU-кэш живых file-ссылок с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tglink/internal/telegram"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_handle_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш file-ссылок.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lg_handle_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша file-ссылок.",
	})
)

// HandleCache — LRU-кэш живых file-ссылок с автоматическим TTL.
// TTL короткий: file_reference внутри ссылки устаревает на стороне
// Telegram, протухшую запись всё равно придётся заменять.
type HandleCache struct {
	cache *expirable.LRU[string, *telegram.FileHandle]
}

// NewHandleCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewHandleCache(maxSize int, ttl time.Duration) *HandleCache {
	cache := expirable.NewLRU[string, *telegram.FileHandle](maxSize, nil, ttl)
	return &HandleCache{cache: cache}
}

// Get возвращает file-ссылку из кэша по токену.
// Возвращает (ссылка, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *HandleCache) Get(token string) (*telegram.FileHandle, bool) {
	val, ok := c.cache.Get(token)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет ссылку в кэше.
func (c *HandleCache) Set(token string, handle *telegram.FileHandle) {
	c.cache.Add(token, handle)
}

// Delete удаляет ссылку из кэша (инвалидация при Gone и устаревании).
func (c *HandleCache) Delete(token string) {
	c.cache.Remove(token)
}
