package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/pkg/config"
)

// DiscordGateway answers messages in the channels and DMs the bot can read.
// Chat IDs are Discord channel IDs.
type DiscordGateway struct {
	Session *discordgo.Session
	h       handler
}

func NewDiscordGateway(cfg config.GatewayConfig, brain agent.Brain, logger *zap.Logger) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent
	return &DiscordGateway{Session: s, h: newHandler("dc", brain, cfg, logger)}, nil
}

func (dg *DiscordGateway) Name() string { return "dc" }

// Start opens the websocket and blocks until ctx is done.
func (dg *DiscordGateway) Start(ctx context.Context) error {
	remove := dg.Session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.Bot || m.Content == "" {
			return
		}
		response := dg.h.reply(ctx, m.ChannelID, m.Author.Username, m.Content)
		if _, err := s.ChannelMessageSendReply(m.ChannelID, response, m.Reference()); err != nil {
			dg.h.logger.Warn("Failed to send reply.", zap.String("chat_id", m.ChannelID), zap.Error(err))
		}
	})
	defer remove()

	if err := dg.Session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	dg.h.logger.Info("Connected.")

	<-ctx.Done()
	return dg.Stop()
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
