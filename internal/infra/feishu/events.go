package feishu

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// Message represents a received text message
type Message struct {
	ChatID    string
	MsgID     string
	ChatType  string // p2p (private), group
	Text      string // Mention placeholders removed
	SenderID  string // open_id
	TenantKey string
	Mentions  int
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

var mentionKeyRe = regexp.MustCompile(`@_user_\d+`)

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Listen connects to Feishu via WebSocket and delivers messages until ctx is cancelled or Stop is called
func (c *Client) Listen(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	// Must return quickly so the SDK can ACK, otherwise Feishu redelivers
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			msg, ok := ParseMessageEvent(event)
			if !ok {
				return nil
			}
			if c.onMessage != nil {
				go c.onMessage(msg)
			}
			return nil
		})

	wsCli := larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.log.Info(ctx, "starting WebSocket connection")
	return wsCli.Start(ctx)
}

// Stop disconnects from Feishu
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// ParseMessageEvent extracts a text message from a receive event.
// Messages sent by apps, including this bot, and non-text messages are dropped.
func ParseMessageEvent(event *larkim.P2MessageReceiveV1) (*Message, bool) {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil, false
	}
	raw := event.Event.Message
	if raw.MessageType == nil || *raw.MessageType != "text" || raw.Content == nil || raw.ChatId == nil || raw.MessageId == nil {
		return nil, false
	}

	msg := &Message{
		ChatID:   *raw.ChatId,
		MsgID:    *raw.MessageId,
		Mentions: len(raw.Mentions),
	}
	if raw.ChatType != nil {
		msg.ChatType = *raw.ChatType
	}

	if sender := event.Event.Sender; sender != nil {
		if sender.SenderType != nil && *sender.SenderType == "app" {
			return nil, false
		}
		if sender.SenderId != nil && sender.SenderId.OpenId != nil {
			msg.SenderID = *sender.SenderId.OpenId
		}
		if sender.TenantKey != nil {
			msg.TenantKey = *sender.TenantKey
		}
	}

	var content struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(*raw.Content), &content); err != nil {
		logging.Get().Debug(context.Background(), "failed to parse message content",
			logging.String("message_id", msg.MsgID),
			logging.Err(err))
		return nil, false
	}
	msg.Text = strings.Join(strings.Fields(mentionKeyRe.ReplaceAllString(content.Text, "")), " ")
	return msg, true
}
