/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package bot

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-logr/logr"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram is the chat transport: it feeds inbound updates to a handler
// and delivers replies. It implements Responder.
type Telegram struct {
	api     *tgbotapi.BotAPI
	log     logr.Logger
	running atomic.Bool
}

// NewTelegram authenticates against the Telegram Bot API. The token is the
// one BotFather hands out.
func NewTelegram(token string, log logr.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}

	log.Info("Connected to Telegram", "bot", api.Self.UserName)

	return &Telegram{
		api: api,
		log: log,
	}, nil
}

// Send delivers one reply to a chat. Replies are Markdown formatted;
// device and command names are always backtick-quoted by the engine, so
// user-supplied text cannot unbalance the markup.
func (t *Telegram) Send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Running reports whether the update loop is consuming updates.
func (t *Telegram) Running() bool {
	return t.running.Load()
}

// Run long-polls for updates until ctx is cancelled, passing each message
// to handle. Un update alla volta, in ordine di arrivo: i comandi girano in
// sequenza e solo le verifiche post-wake partono in goroutine separate.
func (t *Telegram) Run(ctx context.Context, handle func(context.Context, Message)) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := t.api.GetUpdatesChan(u)

	t.running.Store(true)
	defer t.running.Store(false)

	t.log.Info("Listening for commands")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.log.Info("Update loop stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			msg := update.Message
			if msg == nil {
				continue
			}

			// A missing sender maps to ID 0, which the allow-list drops
			// unless someone deliberately allowed it.
			var userID int64
			if msg.From != nil {
				userID = msg.From.ID
			}

			handle(ctx, Message{
				UserID: userID,
				ChatID: msg.Chat.ID,
				Text:   msg.Text,
			})
		}
	}
}
