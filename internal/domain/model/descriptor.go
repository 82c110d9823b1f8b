// Пакет model — доменные модели Link Gateway.
// FileDescriptor — описание файла в Telegram, зафиксированное при выдаче
// токена. Используется как in-memory представление и как JSON-формат
// записи в Redis-хранилище реестра.
package model

import (
	"time"
)

// RemoteRef — ссылка на сообщение с файлом в Telegram.
// Фиксируется при выдаче токена и не меняется в течение его жизни.
type RemoteRef struct {
	// ChatID — идентификатор чата или канала, где лежит сообщение
	ChatID int64 `json:"chat_id"`

	// MessageID — идентификатор сообщения внутри чата
	MessageID int `json:"message_id"`

	// AccessHash — access hash канала, полученный при выдаче токена.
	// 0 для обычных чатов (доступ не требует hash).
	AccessHash int64 `json:"access_hash,omitempty"`
}

// FileDescriptor — метаданные файла, привязанные к токену.
// Размер фиксируется при выдаче токена; если источник изменился,
// расхождение обнаруживается при стриминге (size mismatch).
type FileDescriptor struct {
	// Token — токен, по которому файл доступен в HTTP API
	Token string `json:"token"`

	// Ref — ссылка на сообщение-источник в Telegram
	Ref RemoteRef `json:"ref"`

	// Filename — имя файла из атрибутов документа (может быть пустым)
	Filename string `json:"filename,omitempty"`

	// ContentType — MIME-тип файла
	ContentType string `json:"content_type"`

	// Size — размер файла в байтах на момент выдачи токена
	Size int64 `json:"size"`

	// DocumentID — идентификатор документа Telegram на момент выдачи.
	// Если при стриминге в сообщении оказывается другой документ,
	// ссылка считается безвозвратно недействительной.
	DocumentID int64 `json:"document_id,omitempty"`

	// MintedAt — дата и время выдачи токена (UTC)
	MintedAt time.Time `json:"minted_at"`

	// ExpiresAt — дата истечения токена.
	// nil, если срок жизни не ограничен (LG_TOKEN_TTL=0).
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// IsExpired проверяет, истёк ли срок жизни токена.
func (d *FileDescriptor) IsExpired(now time.Time) bool {
	if d.ExpiresAt == nil {
		return false
	}
	return now.After(*d.ExpiresAt)
}
