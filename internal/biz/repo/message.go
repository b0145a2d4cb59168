package repo

import (
	"context"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
)

// ChatRepo is the chat platform repository interface
// Backed by the Feishu API in real time, nothing is stored locally
type ChatRepo interface {
	// IsClientInGuild reports whether the bot is installed in the guild (tenant)
	IsClientInGuild(ctx context.Context, guildID string) bool

	// GetChannel resolves a channel, returning an error when it does not exist or is not visible
	GetChannel(ctx context.Context, channelID string) (*domain.Channel, error)

	// SendMessage sends a text message and returns its handle
	SendMessage(ctx context.Context, channelID, text string) (domain.MessageHandle, error)

	// DeleteMessage recalls a message
	DeleteMessage(ctx context.Context, msg domain.MessageHandle) error

	// GetRecentMessages returns the most recent batch of messages sent by the bot
	GetRecentMessages(ctx context.Context, channelID string) ([]domain.MessageHandle, error)
}
