// Пакет bot — командный слой поверх Telegram updates.
// Пользователь отвечает на сообщение с файлом командой /dl и получает
// прямые ссылки на скачивание и просмотр.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tglink/internal/domain/model"
	"github.com/bigkaa/tglink/internal/service"
)

// botCommandsTotal — количество обработанных команд бота.
var botCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lg_bot_commands_total",
	Help: "Общее количество обработанных команд бота",
}, []string{"command", "result"})

// Invoker — подмножество RPC, нужное боту.
// *tg.Client реализует интерфейс; тесты подставляют фейк.
type Invoker interface {
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesForwardMessages(ctx context.Context, request *tg.MessagesForwardMessagesRequest) (tg.UpdatesClass, error)
	ContactsResolveUsername(ctx context.Context, request *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error)
	ChannelsGetParticipant(ctx context.Context, request *tg.ChannelsGetParticipantRequest) (*tg.ChannelsChannelParticipant, error)
	ChannelsGetChannels(ctx context.Context, id []tg.InputChannelClass) (tg.MessagesChatsClass, error)
}

// Bot — обработчик команд /start, /help и /dl в личных чатах.
type Bot struct {
	mint        *service.MintService
	maxFileSize int64
	// requiredChannel — username канала обязательной подписки без @
	// (пустая строка отключает проверку)
	requiredChannel string
	// mediaGroupID — ID канала-архива для копий файлов (0 отключает)
	mediaGroupID int64
	logger       *slog.Logger

	dispatcher tg.UpdateDispatcher

	mu sync.RWMutex
	// api устанавливается в Bind после авторизации клиента
	api Invoker
	// channel и mediaGroup резолвятся один раз в Bind
	channel    *tg.InputChannel
	mediaGroup *tg.InputChannel
}

// New создаёт бота и регистрирует обработчики updates.
// Handler() передаётся в telegram-клиент до установки соединения,
// Bind вызывается после авторизации.
func New(mint *service.MintService, maxFileSize int64, requiredChannel string, mediaGroupID int64, logger *slog.Logger) *Bot {
	b := &Bot{
		mint:            mint,
		maxFileSize:     maxFileSize,
		requiredChannel: strings.TrimPrefix(requiredChannel, "@"),
		mediaGroupID:    mediaGroupID,
		logger:          logger.With(slog.String("component", "bot")),
	}

	d := tg.NewUpdateDispatcher()
	d.OnNewMessage(b.onNewMessage)
	b.dispatcher = d

	return b
}

// Handler возвращает обработчик updates для telegram-клиента.
func (b *Bot) Handler() telegram.UpdateHandler {
	return b.dispatcher
}

// Bind привязывает бота к живому RPC-клиенту и резолвит каналы.
// Ошибки резолва не фатальны: проверка подписки и архив отключаются
// с предупреждением в логе.
func (b *Bot) Bind(ctx context.Context, api Invoker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.api = api

	if b.requiredChannel != "" {
		ch, err := b.resolveChannelUsername(ctx, api, b.requiredChannel)
		if err != nil {
			b.logger.Warn("Канал обязательной подписки не найден, проверка отключена",
				slog.String("channel", b.requiredChannel),
				slog.String("error", err.Error()),
			)
		} else {
			b.channel = ch
		}
	}

	if b.mediaGroupID != 0 {
		ch, err := b.resolveChannelID(ctx, api, b.mediaGroupID)
		if err != nil {
			b.logger.Warn("Канал-архив недоступен, копирование отключено",
				slog.Int64("channel_id", b.mediaGroupID),
				slog.String("error", err.Error()),
			)
		} else {
			b.mediaGroup = ch
		}
	}
}

// resolveChannelUsername резолвит username в InputChannel.
func (b *Bot) resolveChannelUsername(ctx context.Context, api Invoker, username string) (*tg.InputChannel, error) {
	res, err := api.ContactsResolveUsername(ctx, &tg.ContactsResolveUsernameRequest{Username: username})
	if err != nil {
		return nil, err
	}
	for _, chat := range res.Chats {
		if ch, ok := chat.(*tg.Channel); ok {
			return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, errors.New("в ответе нет канала")
}

// resolveChannelID получает access_hash канала, в котором бот состоит.
func (b *Bot) resolveChannelID(ctx context.Context, api Invoker, channelID int64) (*tg.InputChannel, error) {
	res, err := api.ChannelsGetChannels(ctx, []tg.InputChannelClass{
		&tg.InputChannel{ChannelID: channelID},
	})
	if err != nil {
		return nil, err
	}
	chats, ok := res.(*tg.MessagesChats)
	if !ok {
		return nil, errors.New("неожиданный тип ответа")
	}
	for _, chat := range chats.Chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == channelID {
			return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, nil
		}
	}
	return nil, errors.New("канал не найден")
}

// onNewMessage обрабатывает входящее сообщение в личном чате.
func (b *Bot) onNewMessage(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	msg, ok := u.Message.(*tg.Message)
	if !ok || msg.Out {
		return nil
	}

	// Команды принимаются только в личных чатах
	peerUser, ok := msg.PeerID.(*tg.PeerUser)
	if !ok {
		return nil
	}
	user, ok := e.Users[peerUser.UserID]
	if !ok {
		return nil
	}
	peer := &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}

	fields := strings.Fields(msg.Message)
	if len(fields) == 0 {
		return nil
	}
	// Первое слово без @botname-суффикса
	cmd := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])

	switch cmd {
	case "/start":
		botCommandsTotal.WithLabelValues("start", "ok").Inc()
		return b.reply(ctx, peer, msg.ID, msgStart)
	case "/help":
		botCommandsTotal.WithLabelValues("help", "ok").Inc()
		return b.reply(ctx, peer, msg.ID, msgHelp)
	case "/dl", ".dl", "/dlink", ".dlink":
		return b.handleDL(ctx, peer, user.ID, msg)
	}

	return nil
}

// handleDL выдаёт ссылки на файл из сообщения, на которое ответили.
func (b *Bot) handleDL(ctx context.Context, peer *tg.InputPeerUser, userID int64, msg *tg.Message) error {
	replyHdr, ok := msg.GetReplyTo()
	hdr, isMsg := replyHdr.(*tg.MessageReplyHeader)
	if !ok || !isMsg || hdr.ReplyToMsgID == 0 {
		botCommandsTotal.WithLabelValues("dl", "not_reply").Inc()
		return b.reply(ctx, peer, msg.ID, msgNotReply)
	}

	if denied, err := b.membershipDenied(ctx, peer); err == nil && denied {
		botCommandsTotal.WithLabelValues("dl", "not_member").Inc()
		return b.reply(ctx, peer, msg.ID, msgNotMember(b.requiredChannel))
	}

	res, err := b.mint.MintLink(ctx, model.RemoteRef{
		ChatID:    userID,
		MessageID: hdr.ReplyToMsgID,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrGone):
			botCommandsTotal.WithLabelValues("dl", "no_file").Inc()
			return b.reply(ctx, peer, msg.ID, msgNoFile)
		case errors.Is(err, model.ErrTooLarge):
			botCommandsTotal.WithLabelValues("dl", "too_large").Inc()
			return b.reply(ctx, peer, msg.ID, msgTooLarge(b.maxFileSize))
		case model.IsTransient(err):
			botCommandsTotal.WithLabelValues("dl", "transient").Inc()
			return b.reply(ctx, peer, msg.ID, msgTransient)
		default:
			b.logger.Error("Ошибка выдачи ссылки из бота",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
			botCommandsTotal.WithLabelValues("dl", "error").Inc()
			return b.reply(ctx, peer, msg.ID, msgInternalError)
		}
	}

	botCommandsTotal.WithLabelValues("dl", "ok").Inc()

	b.forwardToArchive(ctx, peer, hdr.ReplyToMsgID, res)

	return b.reply(ctx, peer, msg.ID, msgLinks(res))
}

// membershipDenied проверяет подписку на обязательный канал.
// Возвращает (false, nil), если проверка не настроена или канал
// не зарезолвился: ошибка конфигурации не должна блокировать бота.
func (b *Bot) membershipDenied(ctx context.Context, peer *tg.InputPeerUser) (bool, error) {
	b.mu.RLock()
	api, channel := b.api, b.channel
	b.mu.RUnlock()

	if channel == nil || api == nil {
		return false, nil
	}

	_, err := api.ChannelsGetParticipant(ctx, &tg.ChannelsGetParticipantRequest{
		Channel:     channel,
		Participant: peer,
	})
	if err != nil {
		if tgerr.Is(err, "USER_NOT_PARTICIPANT") {
			return true, nil
		}
		b.logger.Warn("Ошибка проверки подписки", slog.String("error", err.Error()))
		return false, err
	}
	return false, nil
}

// forwardToArchive копирует исходное сообщение в канал-архив
// и отправляет следом ссылку. Ошибки только логируются.
func (b *Bot) forwardToArchive(ctx context.Context, from *tg.InputPeerUser, msgID int, res *service.MintResult) {
	b.mu.RLock()
	api, group := b.api, b.mediaGroup
	b.mu.RUnlock()

	if group == nil || api == nil {
		return
	}

	toPeer := &tg.InputPeerChannel{ChannelID: group.ChannelID, AccessHash: group.AccessHash}

	_, err := api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer: from,
		ID:       []int{msgID},
		RandomID: []int64{rand.Int64()},
		ToPeer:   toPeer,
	})
	if err != nil {
		b.logger.Warn("Не удалось скопировать файл в архив", slog.String("error", err.Error()))
		return
	}

	_, err = api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:      toPeer,
		Message:   linkCaption(res),
		RandomID:  rand.Int64(),
		NoWebpage: true,
	})
	if err != nil {
		b.logger.Warn("Не удалось отправить ссылку в архив", slog.String("error", err.Error()))
	}
}

// reply отправляет ответ на сообщение пользователя.
func (b *Bot) reply(ctx context.Context, peer tg.InputPeerClass, replyToID int, text string) error {
	b.mu.RLock()
	api := b.api
	b.mu.RUnlock()

	if api == nil {
		return nil
	}

	req := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   text,
		RandomID:  rand.Int64(),
		NoWebpage: true,
	}
	if replyToID > 0 {
		req.SetReplyTo(&tg.InputReplyToMessage{ReplyToMsgID: replyToID})
	}

	if _, err := api.MessagesSendMessage(ctx, req); err != nil {
		b.logger.Error("Не удалось отправить ответ", slog.String("error", err.Error()))
		return err
	}
	return nil
}
