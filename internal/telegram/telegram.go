// Package telegram adapts Telegram updates to the controller's normalized
// events and replies back to messages with inline keyboards. The core
// never depends on this package.
package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"zonebot/internal/model"
)

type Handler interface {
	HandleEvent(ctx context.Context, ev model.Event) model.Reply
}

type Bot struct {
	api     *tgbotapi.BotAPI
	handler Handler
	log     *slog.Logger
}

func New(token string, handler Handler, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Bot{api: api, handler: handler, log: log}, nil
}

func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// RegisterWebhook points Telegram at the given public URL.
func (b *Bot) RegisterWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return err
	}
	_, err = b.api.Request(wh)
	return err
}

// WebhookHandler decodes an update pushed by Telegram and processes it in
// its own goroutine so a slow provider call never backs up the webhook.
func (b *Bot) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			b.log.Warn("undecodable webhook update", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		go b.process(context.Background(), update)
		w.WriteHeader(http.StatusOK)
	}
}

// Poll consumes updates over long polling; used when no webhook URL is
// configured.
func (b *Bot) Poll(ctx context.Context) error {
	_, _ = b.api.Request(tgbotapi.DeleteWebhookConfig{})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.process(ctx, update)
		}
	}
}

func (b *Bot) process(ctx context.Context, update tgbotapi.Update) {
	ev, chatID, callbackID, ok := normalize(update)
	if !ok {
		return
	}
	if callbackID != "" {
		// Stop the client-side spinner; failures here are cosmetic.
		_, _ = b.api.Request(tgbotapi.NewCallback(callbackID, ""))
	}

	reply := b.handler.HandleEvent(ctx, ev)
	if reply.Empty() {
		return
	}
	b.send(chatID, reply)
}

func normalize(update tgbotapi.Update) (ev model.Event, chatID int64, callbackID string, ok bool) {
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		if cq.From == nil || cq.Message == nil {
			return ev, 0, "", false
		}
		ev = model.Event{UserID: cq.From.ID, Kind: model.EventButton, Payload: cq.Data}
		return ev, cq.Message.Chat.ID, cq.ID, true
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return ev, 0, "", false
		}
		if msg.IsCommand() {
			ev = model.Event{
				UserID:  msg.From.ID,
				Kind:    model.EventCommand,
				Payload: msg.Command(),
				Args:    strings.Fields(msg.CommandArguments()),
			}
		} else {
			ev = model.Event{UserID: msg.From.ID, Kind: model.EventText, Payload: msg.Text}
		}
		return ev, msg.Chat.ID, "", true
	default:
		return ev, 0, "", false
	}
}

func (b *Bot) send(chatID int64, reply model.Reply) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if len(reply.Options) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(reply.Options))
		for _, opt := range reply.Options {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(opt.Label, opt.Value),
			))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("could not send reply", "chat", chatID, "error", err)
	}
}
