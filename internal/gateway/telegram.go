package gateway

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/pkg/config"
)

type TelegramGateway struct {
	Bot *tgbotapi.BotAPI
	h   handler
}

func NewTelegramGateway(cfg config.GatewayConfig, brain agent.Brain, logger *zap.Logger) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	tg := &TelegramGateway{Bot: bot, h: newHandler("tg", brain, cfg, logger)}
	tg.h.logger.Info("Authorized.", zap.String("account", bot.Self.UserName))
	return tg, nil
}

func (tg *TelegramGateway) Name() string { return "tg" }

// Start long-polls for updates and stops polling when ctx is done.
func (tg *TelegramGateway) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return tg.Stop()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			chatID := strconv.FormatInt(update.Message.Chat.ID, 10)
			var user string
			if update.Message.From != nil {
				user = update.Message.From.UserName
			}
			response := tg.h.reply(ctx, chatID, user, update.Message.Text)

			msg := tgbotapi.NewMessage(update.Message.Chat.ID, response)
			msg.ReplyToMessageID = update.Message.MessageID
			if _, err := tg.Bot.Send(msg); err != nil {
				tg.h.logger.Warn("Failed to send reply.", zap.String("chat_id", chatID), zap.Error(err))
			}
		}
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err = tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
