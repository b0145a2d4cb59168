package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
	"github.com/pogostats/feishu-stats-reporter/internal/infra/feishu"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
	"github.com/pogostats/feishu-stats-reporter/internal/service"
)

const usage = "usage: /stats <shiny|hundo|iv> [threshold]"

var errUsage = errors.New(usage)

// MessageSource delivers chat messages
type MessageSource interface {
	OnMessage(handler feishu.MessageHandler)
	Listen(ctx context.Context) error
	Stop()
}

// Reports runs on-demand reports
type Reports interface {
	RunCategory(ctx context.Context, req service.RunRequest) (*domain.RunSummary, error)
}

// Command is a parsed chat command
type Command struct {
	Category  domain.Category
	Threshold *float64
}

// FeishuServer answers report commands sent in Feishu group chats
type FeishuServer struct {
	source   MessageSource
	reports  Reports
	chatRepo repo.ChatRepo
	log      logging.Logger

	// Message deduplication cache
	seenMsgsMu sync.RWMutex
	seenMsgs   map[string]time.Time // msgID -> timestamp
}

// NewFeishuServer creates a new Feishu command server
func NewFeishuServer(source MessageSource, reports Reports, chatRepo repo.ChatRepo, log logging.Logger) *FeishuServer {
	return &FeishuServer{
		source:   source,
		reports:  reports,
		chatRepo: chatRepo,
		log:      log.Named("Server"),
		seenMsgs: make(map[string]time.Time),
	}
}

// Start listens for messages; it blocks until ctx is cancelled or Stop is called
func (s *FeishuServer) Start(ctx context.Context) error {
	s.source.OnMessage(s.handleMessage)
	return s.source.Listen(ctx)
}

// Stop stops listening
func (s *FeishuServer) Stop() {
	s.source.Stop()
}

// ParseCommand parses "/stats <category> [threshold]" and the "/<category>-stats [threshold]" short forms.
// ok is false for messages that are not commands at all.
func ParseCommand(text string) (cmd Command, ok bool, err error) {
	fields := strings.Fields(strings.ToLower(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, false, nil
	}

	var args []string
	switch name := strings.TrimPrefix(fields[0], "/"); {
	case name == "stats":
		if len(fields) < 2 {
			return Command{}, true, errUsage
		}
		args = fields[1:]
	case strings.HasSuffix(name, "-stats"):
		args = append([]string{strings.TrimSuffix(name, "-stats")}, fields[1:]...)
	default:
		return Command{}, false, nil
	}

	category, err := domain.ParseCategory(args[0])
	if err != nil {
		return Command{}, true, errUsage
	}
	cmd.Category = category

	switch len(args) {
	case 1:
	case 2:
		if category != domain.CategoryIV {
			return Command{}, true, errUsage
		}
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return Command{}, true, errUsage
		}
		cmd.Threshold = &v
	default:
		return Command{}, true, errUsage
	}
	return cmd, true, nil
}

// handleMessage handles Feishu messages
func (s *FeishuServer) handleMessage(msg *feishu.Message) {
	// Message deduplication: Feishu redelivers events that were not ACKed in time
	if s.isMessageSeen(msg.MsgID) {
		return
	}
	s.markMessageSeen(msg.MsgID)

	cmd, ok, err := ParseCommand(msg.Text)
	if !ok {
		return
	}

	ctx := context.Background()
	log := s.log.With(
		logging.String("chat_id", msg.ChatID),
		logging.String("tenant_key", msg.TenantKey),
		logging.String("sender_id", msg.SenderID))

	if err != nil {
		s.reply(ctx, log, msg.ChatID, err.Error())
		return
	}
	if msg.ChatType != "group" || msg.TenantKey == "" {
		s.reply(ctx, log, msg.ChatID, "stats commands only work in group chats")
		return
	}

	log.Info(ctx, "report command received", logging.String("category", cmd.Category.String()))
	summary, err := s.reports.RunCategory(ctx, service.RunRequest{
		GuildID:   msg.TenantKey,
		Category:  cmd.Category,
		Threshold: cmd.Threshold,
		Trigger:   domain.TriggerOnDemand,
	})
	s.reply(ctx, log, msg.ChatID, replyText(cmd, summary, err))
}

func replyText(cmd Command, summary *domain.RunSummary, err error) string {
	if err != nil {
		return fmt.Sprintf("%s stats: %s", cmd.Category, service.Notice(err))
	}
	return fmt.Sprintf("%s stats: %s (%d messages)", cmd.Category, service.Notice(nil), summary.MessagesSent)
}

// reply sends a notice back to the requesting chat
func (s *FeishuServer) reply(ctx context.Context, log logging.Logger, chatID, text string) {
	if _, err := s.chatRepo.SendMessage(ctx, chatID, text); err != nil {
		log.Warn(ctx, "failed to send reply", logging.Err(err))
	}
}

// isMessageSeen checks if a message has been processed
func (s *FeishuServer) isMessageSeen(msgID string) bool {
	s.seenMsgsMu.RLock()
	defer s.seenMsgsMu.RUnlock()
	_, exists := s.seenMsgs[msgID]
	return exists
}

// markMessageSeen marks a message as processed
func (s *FeishuServer) markMessageSeen(msgID string) {
	s.seenMsgsMu.Lock()
	defer s.seenMsgsMu.Unlock()
	s.seenMsgs[msgID] = time.Now()

	// Expire records older than 5 minutes
	cutoff := time.Now().Add(-5 * time.Minute)
	for id, ts := range s.seenMsgs {
		if ts.Before(cutoff) {
			delete(s.seenMsgs, id)
		}
	}
}
