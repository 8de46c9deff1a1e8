// Package gateway connects chat services to the dispatcher.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rahul/autopilot/internal/agent"
	"github.com/rahul/autopilot/pkg/config"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Name is the prefix used in chat IDs, e.g. "tg" in "tg:12345".
	Name() string
	// Start listens for messages until ctx is done or the connection fails.
	Start(ctx context.Context) error
	// Send sends a message to a specific chat, without the gateway prefix.
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

const (
	busyReply  = "Too many messages, please slow down."
	errorReply = "Something went wrong handling that command."
)

// newLimiter allows cfg.Rate messages per second with bursts of cfg.Burst.
// A zero rate disables limiting.
func newLimiter(cfg config.GatewayConfig) *rate.Limiter {
	if cfg.Rate <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.Rate), burst)
}

// handler is what every gateway does with an incoming message.
type handler struct {
	name    string
	brain   agent.Brain
	limiter *rate.Limiter
	logger  *zap.Logger
}

func newHandler(name string, brain agent.Brain, cfg config.GatewayConfig, logger *zap.Logger) handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return handler{name: name, brain: brain, limiter: newLimiter(cfg), logger: logger.Named(name)}
}

// reply returns the text to send back for a message from chatID. Messages
// over the rate limit are answered without reaching the brain.
func (h handler) reply(ctx context.Context, chatID, user, text string) string {
	h.logger.Info("Message received.", zap.String("chat_id", chatID), zap.String("user", user), zap.String("text", text))

	if !h.limiter.Allow() {
		h.logger.Warn("Rate limited.", zap.String("chat_id", chatID))
		return busyReply
	}
	response, err := h.brain.Think(ctx, h.name+":"+chatID, text)
	if err != nil {
		h.logger.Error("Failed to handle message.", zap.String("chat_id", chatID), zap.Error(err))
		return errorReply
	}
	return response
}

// Router sends to whichever gateway owns a prefixed chat ID. It is the
// Messenger the scheduler uses.
type Router struct {
	gateways map[string]Messenger
}

func NewRouter(gateways ...Messenger) *Router {
	r := &Router{gateways: make(map[string]Messenger)}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

// Send delivers text to chatID of the form "<gateway>:<id>".
func (r *Router) Send(chatID string, text string) error {
	name, id, ok := strings.Cut(chatID, ":")
	if !ok {
		return fmt.Errorf("chat id %q has no gateway prefix", chatID)
	}
	g, ok := r.gateways[name]
	if !ok {
		return fmt.Errorf("no gateway %q for chat %s", name, chatID)
	}
	return g.Send(id, text)
}

var _ agent.Messenger = (*Router)(nil)
