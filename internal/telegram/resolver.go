// resolver.go — разрешение ссылки на сообщение в живую file-ссылку.
//
// Каждое обращение перечитывает сообщение из Telegram: file_reference
// внутри InputDocumentFileLocation имеет ограниченный срок жизни,
// кэшировать его надолго нельзя.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/bigkaa/tglink/internal/domain/model"
	"github.com/bigkaa/tglink/internal/media"
)

// goneRPCErrors — RPC-ошибки, означающие безвозвратную недоступность
// сообщения или файла. Retry не поможет.
var goneRPCErrors = []string{
	"CHANNEL_INVALID",
	"CHANNEL_PRIVATE",
	"MESSAGE_ID_INVALID",
	"MSG_ID_INVALID",
	"PEER_ID_INVALID",
	"FILE_ID_INVALID",
	"LOCATION_INVALID",
}

// FileHandle — живая ссылка на файл для upload.getFile.
// Содержит свежий file_reference; устаревает через десятки минут.
type FileHandle struct {
	// Location — локация файла для передачи в upload.getFile
	Location tg.InputFileLocationClass
	// Size — размер файла по данным сообщения
	Size int64
	// DocumentID — идентификатор документа для проверки подмены
	DocumentID int64
}

// MessageInvoker — подмножество RPC, нужное resolver-у.
// *tg.Client реализует интерфейс; тесты подставляют фейк.
type MessageInvoker interface {
	MessagesGetMessages(ctx context.Context, id []tg.InputMessageClass) (tg.MessagesMessagesClass, error)
	ChannelsGetMessages(ctx context.Context, request *tg.ChannelsGetMessagesRequest) (tg.MessagesMessagesClass, error)
}

// Resolver — разрешение RemoteRef в документ Telegram.
type Resolver struct {
	api    MessageInvoker
	logger *slog.Logger
}

// NewResolver создаёт resolver поверх RPC-клиента.
func NewResolver(api MessageInvoker, logger *slog.Logger) *Resolver {
	return &Resolver{
		api:    api,
		logger: logger.With(slog.String("component", "resolver")),
	}
}

// ResolveDescriptor возвращает метаданные файла для выдачи токена:
// размер, MIME-тип, имя. Поле Token остаётся пустым.
func (r *Resolver) ResolveDescriptor(ctx context.Context, ref model.RemoteRef) (*model.FileDescriptor, error) {
	doc, err := r.fetchDocument(ctx, ref)
	if err != nil {
		return nil, err
	}

	filename := documentFilename(doc)
	return &model.FileDescriptor{
		Ref:         ref,
		Filename:    filename,
		ContentType: media.ContentType(filename, doc.MimeType),
		Size:        doc.Size,
		DocumentID:  doc.ID,
	}, nil
}

// ResolveLive возвращает живую file-ссылку со свежим file_reference.
// Возвращает model.ErrGone, если сообщение удалено или медиа заменено,
// model.TransientError при временных сбоях.
func (r *Resolver) ResolveLive(ctx context.Context, ref model.RemoteRef) (*FileHandle, error) {
	doc, err := r.fetchDocument(ctx, ref)
	if err != nil {
		return nil, err
	}

	return &FileHandle{
		Location:   doc.AsInputDocumentFileLocation(),
		Size:       doc.Size,
		DocumentID: doc.ID,
	}, nil
}

// fetchDocument перечитывает сообщение и извлекает из него документ.
func (r *Resolver) fetchDocument(ctx context.Context, ref model.RemoteRef) (*tg.Document, error) {
	var (
		res tg.MessagesMessagesClass
		err error
	)

	// AccessHash != 0 — сообщение лежит в канале, нужен channels.getMessages
	if ref.AccessHash != 0 {
		res, err = r.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
			Channel: &tg.InputChannel{
				ChannelID:  ref.ChatID,
				AccessHash: ref.AccessHash,
			},
			ID: []tg.InputMessageClass{&tg.InputMessageID{ID: ref.MessageID}},
		})
	} else {
		res, err = r.api.MessagesGetMessages(ctx, []tg.InputMessageClass{
			&tg.InputMessageID{ID: ref.MessageID},
		})
	}
	if err != nil {
		return nil, classifyRPCError("resolve", err)
	}

	msg, ok := firstMessage(res)
	if !ok {
		r.logger.Debug("Сообщение не найдено",
			slog.Int64("chat_id", ref.ChatID),
			slog.Int("message_id", ref.MessageID),
		)
		return nil, model.ErrGone
	}

	doc, ok := extractDocument(msg)
	if !ok {
		r.logger.Debug("В сообщении нет документа",
			slog.Int64("chat_id", ref.ChatID),
			slog.Int("message_id", ref.MessageID),
		)
		return nil, model.ErrGone
	}

	return doc, nil
}

// firstMessage достаёт первое непустое сообщение из ответа RPC.
func firstMessage(res tg.MessagesMessagesClass) (*tg.Message, bool) {
	var messages []tg.MessageClass
	switch m := res.(type) {
	case *tg.MessagesMessages:
		messages = m.Messages
	case *tg.MessagesMessagesSlice:
		messages = m.Messages
	case *tg.MessagesChannelMessages:
		messages = m.Messages
	default:
		return nil, false
	}

	if len(messages) == 0 {
		return nil, false
	}

	msg, ok := messages[0].(*tg.Message)
	return msg, ok
}

// extractDocument достаёт документ из медиа сообщения.
func extractDocument(msg *tg.Message) (*tg.Document, bool) {
	mediaDoc, ok := msg.Media.(*tg.MessageMediaDocument)
	if !ok {
		return nil, false
	}

	docClass, ok := mediaDoc.GetDocument()
	if !ok {
		return nil, false
	}

	doc, ok := docClass.(*tg.Document)
	return doc, ok
}

// documentFilename возвращает имя файла из атрибутов документа.
func documentFilename(doc *tg.Document) string {
	for _, attr := range doc.Attributes {
		if fn, ok := attr.(*tg.DocumentAttributeFilename); ok {
			return fn.FileName
		}
	}
	return ""
}

// classifyRPCError переводит ошибку RPC в доменную:
// FLOOD_WAIT и сбои транспорта — временные, известные коды
// недоступности — ErrGone.
func classifyRPCError(op string, err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &model.TransientError{Op: op, RetryAfter: wait, Err: err}
	}
	if tgerr.Is(err, goneRPCErrors...) {
		return fmt.Errorf("%w: %v", model.ErrGone, err)
	}
	return &model.TransientError{Op: op, Err: err}
}
