package service

import (
	"testing"
	"time"

	"github.com/gotd/td/tg"

	"github.com/bigkaa/tglink/internal/telegram"
)

func cacheHandle(id int64) *telegram.FileHandle {
	return &telegram.FileHandle{
		Location:   &tg.InputDocumentFileLocation{ID: id},
		Size:       100,
		DocumentID: id,
	}
}

func TestHandleCache_SetGet(t *testing.T) {
	c := NewHandleCache(10, time.Minute)

	c.Set("tok-1", cacheHandle(1))

	h, ok := c.Get("tok-1")
	if !ok {
		t.Fatal("хотели hit, получили miss")
	}
	if h.DocumentID != 1 {
		t.Errorf("DocumentID: хотели 1, получили %d", h.DocumentID)
	}
}

func TestHandleCache_Miss(t *testing.T) {
	c := NewHandleCache(10, time.Minute)

	if _, ok := c.Get("nonexistent"); ok {
		t.Error("хотели miss для неизвестного токена")
	}
}

func TestHandleCache_Delete(t *testing.T) {
	c := NewHandleCache(10, time.Minute)

	c.Set("tok-1", cacheHandle(1))
	c.Delete("tok-1")

	if _, ok := c.Get("tok-1"); ok {
		t.Error("хотели miss после Delete")
	}
}

func TestHandleCache_Overwrite(t *testing.T) {
	c := NewHandleCache(10, time.Minute)

	c.Set("tok-1", cacheHandle(1))
	c.Set("tok-1", cacheHandle(2))

	h, ok := c.Get("tok-1")
	if !ok {
		t.Fatal("хотели hit после перезаписи")
	}
	if h.DocumentID != 2 {
		t.Errorf("DocumentID: хотели 2 (новая запись), получили %d", h.DocumentID)
	}
}

func TestHandleCache_TTLExpiry(t *testing.T) {
	c := NewHandleCache(10, 50*time.Millisecond)

	c.Set("tok-1", cacheHandle(1))
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("tok-1"); ok {
		t.Error("хотели miss после истечения TTL")
	}
}

func TestHandleCache_Eviction(t *testing.T) {
	c := NewHandleCache(2, time.Minute)

	c.Set("tok-1", cacheHandle(1))
	c.Set("tok-2", cacheHandle(2))
	c.Set("tok-3", cacheHandle(3))

	// Самая старая запись вытеснена
	if _, ok := c.Get("tok-1"); ok {
		t.Error("tok-1 должен быть вытеснен из кэша размера 2")
	}
	if _, ok := c.Get("tok-3"); !ok {
		t.Error("tok-3 должен остаться в кэше")
	}
}
