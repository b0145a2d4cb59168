package data

import (
	"context"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
	"github.com/pogostats/feishu-stats-reporter/internal/infra/feishu"
)

// feishuRepo implements the chat repository over the Feishu API
type feishuRepo struct {
	client *feishu.Client
}

// NewFeishuRepo creates a new Feishu repository
func NewFeishuRepo(client *feishu.Client) repo.ChatRepo {
	return &feishuRepo{client: client}
}

// IsClientInGuild checks that the bot belongs to the tenant
func (r *feishuRepo) IsClientInGuild(ctx context.Context, guildID string) bool {
	return r.client.InTenant(ctx, guildID)
}

// GetChannel resolves a chat
func (r *feishuRepo) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	info, err := r.client.GetChatInfo(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return &domain.Channel{
		ID:      info.ChatID,
		GuildID: info.TenantKey,
		Name:    info.Name,
	}, nil
}

// SendMessage sends a text message
func (r *feishuRepo) SendMessage(ctx context.Context, channelID, text string) (domain.MessageHandle, error) {
	id, err := r.client.SendText(ctx, channelID, text)
	if err != nil {
		return domain.MessageHandle{}, err
	}
	return domain.MessageHandle{ID: id, ChannelID: channelID}, nil
}

// DeleteMessage recalls a message
func (r *feishuRepo) DeleteMessage(ctx context.Context, msg domain.MessageHandle) error {
	return r.client.DeleteMessage(ctx, msg.ID)
}

// GetRecentMessages gets the newest batch of live bot messages
func (r *feishuRepo) GetRecentMessages(ctx context.Context, channelID string) ([]domain.MessageHandle, error) {
	msgs, err := r.client.ListRecentMessages(ctx, channelID)
	if err != nil {
		return nil, err
	}

	result := make([]domain.MessageHandle, 0, len(msgs))
	for _, m := range msgs {
		result = append(result, domain.MessageHandle{ID: m.MsgID, ChannelID: channelID})
	}
	return result, nil
}
