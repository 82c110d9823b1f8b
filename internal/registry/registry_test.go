package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bigkaa/tglink/internal/domain/model"
)

// testLogger возвращает логгер, пишущий только ошибки в stderr.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testDescriptor возвращает дескриптор для тестов.
func testDescriptor(chatID int64, messageID int) *model.FileDescriptor {
	return &model.FileDescriptor{
		Ref: model.RemoteRef{
			ChatID:    chatID,
			MessageID: messageID,
		},
		Filename:    "movie.mp4",
		ContentType: "video/mp4",
		Size:        1048576,
	}
}

func TestMintAndResolve(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	token, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}
	if token == "" {
		t.Fatal("Mint вернул пустой токен")
	}

	d, err := reg.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("неожиданная ошибка Resolve: %v", err)
	}
	if d.Ref.ChatID != 100 || d.Ref.MessageID != 1 {
		t.Errorf("Ref: хотели {100 1}, получили {%d %d}", d.Ref.ChatID, d.Ref.MessageID)
	}
	if d.Size != 1048576 {
		t.Errorf("Size: хотели 1048576, получили %d", d.Size)
	}
	if d.Token != token {
		t.Errorf("Token в дескрипторе: хотели %q, получили %q", token, d.Token)
	}
	if d.MintedAt.IsZero() {
		t.Error("MintedAt не заполнен")
	}
	if d.ExpiresAt != nil {
		t.Errorf("ExpiresAt: хотели nil (TTL=0), получили %v", d.ExpiresAt)
	}
}

func TestMint_TooLarge(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1000, 0, "", testLogger())

	d := testDescriptor(100, 1)
	d.Size = 1001

	_, err := reg.Mint(ctx, d)
	if !errors.Is(err, model.ErrTooLarge) {
		t.Errorf("хотели ErrTooLarge, получили %v", err)
	}
}

func TestMint_SizeAtLimit(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1000, 0, "", testLogger())

	d := testDescriptor(100, 1)
	d.Size = 1000

	if _, err := reg.Mint(ctx, d); err != nil {
		t.Errorf("размер на границе лимита должен проходить, получили %v", err)
	}
}

func TestMint_TokenIsURLSafe(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	token, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}

	if strings.ContainsAny(token, "+/=?&# ") {
		t.Errorf("токен содержит небезопасные для URL символы: %q", token)
	}
	// 144 бита в base64url = 24 символа
	if len(token) < 22 {
		t.Errorf("токен слишком короткий для 128 бит энтропии: %d символов", len(token))
	}
}

func TestMint_RandomTokensUnique(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := reg.Mint(ctx, testDescriptor(100, i))
		if err != nil {
			t.Fatalf("неожиданная ошибка Mint: %v", err)
		}
		if seen[token] {
			t.Fatalf("токен %q выдан повторно", token)
		}
		seen[token] = true
	}
}

func TestMint_DeterministicWithSecret(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "test-secret", testLogger())

	first, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}
	second, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка повторного Mint: %v", err)
	}

	if first != second {
		t.Errorf("детерминированные токены различаются: %q и %q", first, second)
	}

	// Другое сообщение — другой токен
	other, err := reg.Mint(ctx, testDescriptor(100, 2))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}
	if other == first {
		t.Error("токены разных сообщений совпали")
	}
}

func TestMint_DifferentSecretsDifferentTokens(t *testing.T) {
	ctx := context.Background()
	regA := New(NewMemoryStore(), 1<<30, 0, "secret-a", testLogger())
	regB := New(NewMemoryStore(), 1<<30, 0, "secret-b", testLogger())

	tokenA, err := regA.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}
	tokenB, err := regB.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}

	if tokenA == tokenB {
		t.Error("токены с разными секретами совпали")
	}
}

func TestResolve_UnknownToken(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	_, err := reg.Resolve(ctx, "nonexistent")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("хотели ErrNotFound, получили %v", err)
	}
}

func TestResolve_EmptyToken(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	_, err := reg.Resolve(ctx, "")
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("хотели ErrNotFound, получили %v", err)
	}
}

func TestResolve_ExpiredToken(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	reg := New(store, 1<<30, time.Hour, "", testLogger())

	token, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}

	// Подменяем срок истечения на прошлое напрямую в хранилище
	d, err := store.Get(ctx, token)
	if err != nil {
		t.Fatalf("неожиданная ошибка Get: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	d.ExpiresAt = &past
	if err := store.Put(ctx, d); err != nil {
		t.Fatalf("неожиданная ошибка Put: %v", err)
	}

	_, err = reg.Resolve(ctx, token)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("истёкший токен: хотели ErrNotFound, получили %v", err)
	}
}

func TestMint_TTLSetsExpiry(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, time.Hour, "", testLogger())

	token, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}

	d, err := reg.Resolve(ctx, token)
	if err != nil {
		t.Fatalf("неожиданная ошибка Resolve: %v", err)
	}
	if d.ExpiresAt == nil {
		t.Fatal("ExpiresAt не заполнен при TTL > 0")
	}
	ttl := time.Until(*d.ExpiresAt)
	if ttl < 59*time.Minute || ttl > time.Hour {
		t.Errorf("ExpiresAt: хотели примерно через час, получили через %v", ttl)
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	token, err := reg.Mint(ctx, testDescriptor(100, 1))
	if err != nil {
		t.Fatalf("неожиданная ошибка Mint: %v", err)
	}

	if err := reg.Revoke(ctx, token); err != nil {
		t.Fatalf("неожиданная ошибка Revoke: %v", err)
	}

	_, err = reg.Resolve(ctx, token)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("отозванный токен: хотели ErrNotFound, получили %v", err)
	}

	// Повторный отзыв не является ошибкой
	if err := reg.Revoke(ctx, token); err != nil {
		t.Errorf("повторный Revoke: неожиданная ошибка %v", err)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	reg := New(NewMemoryStore(), 1<<30, 0, "", testLogger())

	var wg sync.WaitGroup
	tokens := make([]string, 50)

	// Параллельный Mint
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := reg.Mint(ctx, testDescriptor(int64(i), i))
			if err != nil {
				t.Errorf("Mint #%d: %v", i, err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	// Параллельный Resolve + Revoke
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if _, err := reg.Resolve(ctx, tokens[i]); err != nil && !errors.Is(err, model.ErrNotFound) {
				t.Errorf("Resolve #%d: %v", i, err)
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			if err := reg.Revoke(ctx, tokens[i]); err != nil {
				t.Errorf("Revoke #%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	size, err := reg.Size(ctx)
	if err != nil {
		t.Fatalf("неожиданная ошибка Size: %v", err)
	}
	if size != 0 {
		t.Errorf("после отзыва всех токенов в реестре осталось %d записей", size)
	}
}

// faultyStore имитирует сбой транспорта хранилища при Get.
type faultyStore struct {
	getErr error
}

func (s *faultyStore) Put(context.Context, *model.FileDescriptor) error { return nil }
func (s *faultyStore) Get(context.Context, string) (*model.FileDescriptor, error) {
	return nil, s.getErr
}
func (s *faultyStore) Delete(context.Context, string) error { return nil }
func (s *faultyStore) Len(context.Context) (int, error)     { return 0, nil }

func TestMint_StoreFaultPropagated(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")

	// Сбой хранилища не означает, что токен свободен: случайный токен
	reg := New(&faultyStore{getErr: storeErr}, 1<<30, 0, "", testLogger())
	if _, err := reg.Mint(ctx, testDescriptor(100, 1)); !errors.Is(err, storeErr) {
		t.Errorf("случайный токен: хотели проброс ошибки хранилища, получили %v", err)
	}

	// И детерминированный токен
	regDet := New(&faultyStore{getErr: storeErr}, 1<<30, 0, "test-secret", testLogger())
	if _, err := regDet.Mint(ctx, testDescriptor(100, 1)); !errors.Is(err, storeErr) {
		t.Errorf("детерминированный токен: хотели проброс ошибки хранилища, получили %v", err)
	}
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := testDescriptor(100, 1)
	d.Token = "tok"
	if err := store.Put(ctx, d); err != nil {
		t.Fatalf("неожиданная ошибка Put: %v", err)
	}

	first, err := store.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("неожиданная ошибка Get: %v", err)
	}
	first.Size = 777

	second, err := store.Get(ctx, "tok")
	if err != nil {
		t.Fatalf("неожиданная ошибка Get: %v", err)
	}
	if second.Size == 777 {
		t.Error("изменение возвращённой копии повлияло на хранилище")
	}
}
