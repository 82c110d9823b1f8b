// mint.go — выдача ссылок на файлы Telegram.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/bigkaa/tglink/internal/domain/model"
	"github.com/bigkaa/tglink/internal/media"
)

// DescriptorResolver — получение метаданных файла из Telegram.
// Реализуется telegram.Resolver; тесты подставляют фейк.
type DescriptorResolver interface {
	ResolveDescriptor(ctx context.Context, ref model.RemoteRef) (*model.FileDescriptor, error)
}

// TokenRegistry — операции реестра токенов, нужные сервисному слою.
type TokenRegistry interface {
	Mint(ctx context.Context, d *model.FileDescriptor) (string, error)
	Resolve(ctx context.Context, token string) (*model.FileDescriptor, error)
	Revoke(ctx context.Context, token string) error
}

// MintService — сервис выдачи ссылок.
// Единственный писатель в реестр токенов.
type MintService struct {
	registry TokenRegistry
	resolver DescriptorResolver
	baseURL  string
	logger   *slog.Logger
}

// NewMintService создаёт сервис выдачи ссылок.
func NewMintService(registry TokenRegistry, resolver DescriptorResolver, baseURL string, logger *slog.Logger) *MintService {
	return &MintService{
		registry: registry,
		resolver: resolver,
		baseURL:  baseURL,
		logger:   logger.With(slog.String("component", "mint_service")),
	}
}

// MintResult — выданная ссылка со всеми вариантами URL.
type MintResult struct {
	// Token — выданный токен
	Token string `json:"token"`
	// DownloadURL — ссылка на скачивание (attachment)
	DownloadURL string `json:"download_url"`
	// StreamURL — ссылка на просмотр в браузере (inline)
	StreamURL string `json:"stream_url"`
	// PlayerURL — ссылка на HTML-плеер
	PlayerURL string `json:"player_url"`
	// Descriptor — метаданные файла
	Descriptor *model.FileDescriptor `json:"-"`
}

// MintLink разрешает сообщение в дескриптор, выдаёт токен и строит URL-ы.
// Возвращает model.ErrGone (сообщение без файла), model.ErrTooLarge
// (превышен лимит размера) или model.TransientError.
func (s *MintService) MintLink(ctx context.Context, ref model.RemoteRef) (*MintResult, error) {
	d, err := s.resolver.ResolveDescriptor(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("получение метаданных файла: %w", err)
	}

	token, err := s.registry.Mint(ctx, d)
	if err != nil {
		return nil, err
	}

	// Суффикс с именем файла, чтобы менеджеры закачек получали
	// осмысленное имя прямо из URL
	suffix := ""
	if d.Filename != "" {
		suffix = "/" + url.PathEscape(media.SafeFilename(d.Filename))
	}

	result := &MintResult{
		Token:       token,
		DownloadURL: s.baseURL + "/download/" + token + suffix,
		StreamURL:   s.baseURL + "/stream/" + token + suffix,
		PlayerURL:   s.baseURL + "/play/" + token + suffix,
		Descriptor:  d,
	}

	s.logger.Info("Ссылка выдана",
		slog.Int64("chat_id", ref.ChatID),
		slog.Int("message_id", ref.MessageID),
		slog.String("filename", d.Filename),
		slog.Int64("size", d.Size),
	)

	return result, nil
}
