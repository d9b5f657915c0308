package telegram_transport

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"anon_relay_bot/internal/pkg/relay/domain"
)

// maxGroupSize is the largest media group the Bot API accepts in one sendMediaGroup call.
const maxGroupSize = 10

// Transport sends relay output through the Bot API. The library calls are not cancellable, so
// ctx is only checked before each request.
type Transport struct {
	api *tgbotapi.BotAPI
}

func New(api *tgbotapi.BotAPI) *Transport {
	return &Transport{api: api}
}

func (t *Transport) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

// SendMediaGroup sends items as one album. A lone item goes out as a plain photo or video because
// the Bot API rejects single-item groups; more than ten items are split into consecutive groups.
func (t *Transport) SendMediaGroup(ctx context.Context, chatID int64, items []domain.MediaItem) error {
	for start := 0; start < len(items); start += maxGroupSize {
		end := min(start+maxGroupSize, len(items))
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		if chunk := items[start:end]; len(chunk) == 1 {
			err = t.sendSingle(chatID, chunk[0])
		} else {
			err = t.sendGroup(chatID, chunk)
		}
		if err != nil {
			return fmt.Errorf("items %d-%d: %w", start+1, end, err)
		}
	}
	return nil
}

func (t *Transport) sendSingle(chatID int64, item domain.MediaItem) error {
	file := tgbotapi.FileID(item.ContentRef)

	var c tgbotapi.Chattable
	switch item.Kind {
	case domain.MediaPhoto:
		p := tgbotapi.NewPhoto(chatID, file)
		p.Caption = item.Caption
		c = p
	case domain.MediaVideo:
		v := tgbotapi.NewVideo(chatID, file)
		v.Caption = item.Caption
		c = v
	default:
		return fmt.Errorf("unknown media kind %q", item.Kind)
	}

	_, err := t.api.Send(c)
	return err
}

func (t *Transport) sendGroup(chatID int64, items []domain.MediaItem) error {
	media := make([]interface{}, 0, len(items))
	for _, item := range items {
		file := tgbotapi.FileID(item.ContentRef)
		switch item.Kind {
		case domain.MediaPhoto:
			p := tgbotapi.NewInputMediaPhoto(file)
			p.Caption = item.Caption
			media = append(media, p)
		case domain.MediaVideo:
			v := tgbotapi.NewInputMediaVideo(file)
			v.Caption = item.Caption
			media = append(media, v)
		default:
			return fmt.Errorf("unknown media kind %q", item.Kind)
		}
	}

	_, err := t.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, media))
	return err
}

func (t *Transport) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.api.CopyMessage(tgbotapi.NewCopyMessage(toChatID, fromChatID, messageID))
	return err
}

// FromAPI converts a library message into the relay's own message type.
func FromAPI(msg *tgbotapi.Message) domain.Message {
	out := domain.Message{
		MessageID:    msg.MessageID,
		Date:         time.Unix(int64(msg.Date), 0),
		MediaGroupID: msg.MediaGroupID,
		Caption:      msg.Caption,
		Text:         msg.Text,
	}
	if msg.Chat != nil {
		out.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		out.Sender = domain.Sender{
			ID:        msg.From.ID,
			FirstName: msg.From.FirstName,
			Username:  msg.From.UserName,
		}
	}
	if msg.IsCommand() {
		out.Command = msg.Command()
	}

	if msg.Photo != nil {
		out.Photo = make([]domain.PhotoSize, 0, len(msg.Photo))
		for _, p := range msg.Photo {
			out.Photo = append(out.Photo, domain.PhotoSize{
				FileID:   p.FileID,
				Width:    p.Width,
				Height:   p.Height,
				FileSize: p.FileSize,
			})
		}
	}
	if msg.Video != nil {
		out.Video = &domain.Video{
			FileID:   msg.Video.FileID,
			FileName: msg.Video.FileName,
			MimeType: msg.Video.MimeType,
		}
	}
	return out
}
