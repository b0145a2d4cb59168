package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"

	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

const (
	chatPageSize    = 100
	messagePageSize = 50 // API maximum

	// Bounds one history walk; a chat whose last 2000 messages hold no live bot message counts as cleared
	historyPageLimit = 40
)

// ChatInfo represents information about a chat the bot belongs to
type ChatInfo struct {
	ChatID    string `json:"chat_id"`
	Name      string `json:"name"`
	TenantKey string `json:"tenant_key"`
}

// HistoryMessage represents a message read back from a chat
type HistoryMessage struct {
	MsgID      string `json:"message_id"`
	CreateTime string `json:"create_time"`
}

// Client is the Feishu API client used for posting and clearing reports and for receiving chat commands
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	log       logging.Logger

	onMessage MessageHandler
	cancel    context.CancelFunc

	mu    sync.RWMutex
	chats map[string]ChatInfo // chat_id -> info, for chats the bot is in
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, log logging.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		log:       log.Named("Feishu"),
		chats:     make(map[string]ChatInfo),
	}
}

// RefreshChats reloads the list of chats the bot belongs to
func (c *Client) RefreshChats(ctx context.Context) error {
	chats := make(map[string]ChatInfo)
	var pageToken string

	for {
		builder := larkim.NewListChatReqBuilder().PageSize(chatPageSize)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Chat.List(ctx, builder.Build())
		if err != nil {
			return fmt.Errorf("list chats failed: %w", err)
		}
		if !resp.Success() {
			return fmt.Errorf("list chats error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			if item.ChatId == nil {
				continue
			}
			info := ChatInfo{ChatID: *item.ChatId}
			if item.Name != nil {
				info.Name = *item.Name
			}
			if item.TenantKey != nil {
				info.TenantKey = *item.TenantKey
			}
			chats[info.ChatID] = info
		}

		if resp.Data.HasMore == nil || !*resp.Data.HasMore || resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			break
		}
		pageToken = *resp.Data.PageToken
	}

	c.mu.Lock()
	c.chats = chats
	c.mu.Unlock()

	c.log.Debug(ctx, "chat list refreshed", logging.Int("chats", len(chats)))
	return nil
}

// Chats returns the cached chat list ordered by tenant, then chat id
func (c *Client) Chats() []ChatInfo {
	c.mu.RLock()
	chats := make([]ChatInfo, 0, len(c.chats))
	for _, info := range c.chats {
		chats = append(chats, info)
	}
	c.mu.RUnlock()

	sort.Slice(chats, func(i, j int) bool {
		if chats[i].TenantKey != chats[j].TenantKey {
			return chats[i].TenantKey < chats[j].TenantKey
		}
		return chats[i].ChatID < chats[j].ChatID
	})
	return chats
}

// InTenant reports whether the bot is in at least one chat of the tenant
func (c *Client) InTenant(ctx context.Context, tenantKey string) bool {
	if c.hasTenant(tenantKey) {
		return true
	}
	if err := c.RefreshChats(ctx); err != nil {
		c.log.Warn(ctx, "failed to refresh chats", logging.Err(err))
		return false
	}
	return c.hasTenant(tenantKey)
}

func (c *Client) hasTenant(tenantKey string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, info := range c.chats {
		if info.TenantKey == tenantKey {
			return true
		}
	}
	return false
}

// GetChatInfo retrieves information about a chat, from cache when possible
func (c *Client) GetChatInfo(ctx context.Context, chatID string) (*ChatInfo, error) {
	c.mu.RLock()
	info, ok := c.chats[chatID]
	c.mu.RUnlock()
	if ok {
		return &info, nil
	}

	req := larkim.NewGetChatReqBuilder().
		ChatId(chatID).
		Build()

	resp, err := c.larkCli.Im.Chat.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get chat info failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get chat info error: %s", resp.Msg)
	}

	info = ChatInfo{ChatID: chatID}
	if resp.Data.Name != nil {
		info.Name = *resp.Data.Name
	}
	if resp.Data.TenantKey != nil {
		info.TenantKey = *resp.Data.TenantKey
	}

	c.mu.Lock()
	c.chats[chatID] = info
	c.mu.Unlock()
	return &info, nil
}

// SendText sends a text message to a chat and returns its message id
func (c *Client) SendText(ctx context.Context, chatID, text string) (string, error) {
	content := map[string]string{"text": text}
	contentJSON, _ := json.Marshal(content)

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(larkim.ReceiveIdTypeChatId).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(chatID).
			MsgType(larkim.MsgTypeText).
			Content(string(contentJSON)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return "", fmt.Errorf("send message error: %s", resp.Msg)
	}

	var msgID string
	if resp.Data != nil && resp.Data.MessageId != nil {
		msgID = *resp.Data.MessageId
	}
	return msgID, nil
}

// DeleteMessage recalls a message sent by the bot
func (c *Client) DeleteMessage(ctx context.Context, messageID string) error {
	req := larkim.NewDeleteMessageReqBuilder().
		MessageId(messageID).
		Build()

	resp, err := c.larkCli.Im.Message.Delete(ctx, req)
	if err != nil {
		return fmt.Errorf("delete message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("delete message error: %s", resp.Msg)
	}
	return nil
}

// ListRecentMessages returns up to one page of the newest live messages the bot sent to a chat.
// History is walked newest first, skipping recalled messages and messages from anyone else,
// so an empty result means the bot has nothing left to recall there.
func (c *Client) ListRecentMessages(ctx context.Context, chatID string) ([]*HistoryMessage, error) {
	return c.collectBotMessages(ctx, func(ctx context.Context, pageToken string) (*larkim.ListMessageRespData, error) {
		builder := larkim.NewListMessageReqBuilder().
			ContainerIdType("chat").
			ContainerId(chatID).
			SortType("ByCreateTimeDesc").
			PageSize(messagePageSize)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.Message.List(ctx, builder.Build())
		if err != nil {
			return nil, fmt.Errorf("list messages failed: %w", err)
		}
		if !resp.Success() {
			return nil, fmt.Errorf("list messages error: %s", resp.Msg)
		}
		return resp.Data, nil
	})
}

// historyPager fetches one page of chat history, newest first
type historyPager func(ctx context.Context, pageToken string) (*larkim.ListMessageRespData, error)

// collectBotMessages follows page tokens until it has messagePageSize live bot messages,
// history runs out, or historyPageLimit pages have been read
func (c *Client) collectBotMessages(ctx context.Context, next historyPager) ([]*HistoryMessage, error) {
	var messages []*HistoryMessage
	var pageToken string

	for page := 0; page < historyPageLimit; page++ {
		data, err := next(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		if data == nil {
			break
		}

		for _, item := range data.Items {
			if item.MessageId == nil || !c.sentByBot(item.Sender) {
				continue
			}
			if item.Deleted != nil && *item.Deleted {
				continue
			}
			msg := &HistoryMessage{MsgID: *item.MessageId}
			if item.CreateTime != nil {
				msg.CreateTime = *item.CreateTime
			}
			messages = append(messages, msg)
			if len(messages) == messagePageSize {
				return messages, nil
			}
		}

		if data.HasMore == nil || !*data.HasMore || data.PageToken == nil || *data.PageToken == "" {
			break
		}
		pageToken = *data.PageToken
	}
	return messages, nil
}

// sentByBot reports whether the sender is this app; only its own messages can be recalled
func (c *Client) sentByBot(sender *larkim.Sender) bool {
	if sender == nil || sender.SenderType == nil || *sender.SenderType != "app" {
		return false
	}
	return sender.Id == nil || *sender.Id == c.appID
}
