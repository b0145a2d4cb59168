package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

const (
	DefaultChunkSize      = 2048
	DefaultMessageDelay   = 500 * time.Millisecond
	DefaultMaxClearPasses = 100
)

// ErrChannelNotFound is returned when a channel cannot be resolved at all
var ErrChannelNotFound = errors.New("channel not found")

// PublishInterruptedError is returned when Publish stops before attempting every chunk
type PublishInterruptedError struct {
	Attempted int // Chunks sent or failed before the interruption
	Total     int
	Err       error
}

func (e *PublishInterruptedError) Error() string {
	return fmt.Sprintf("publish interrupted after %d of %d chunks: %v", e.Attempted, e.Total, e.Err)
}

func (e *PublishInterruptedError) Unwrap() error {
	return e.Err
}

// ReporterConfig controls chunking and pacing
type ReporterConfig struct {
	ChunkSize      int           // Max runes per message
	Delay          time.Duration // Minimum gap between platform calls
	MaxClearPasses int           // Fetch iterations before ClearChannel gives up
}

// DeliveryRecorder is notified of every send and delete outcome
type DeliveryRecorder interface {
	MessageSent()
	SendFailed()
	MessageDeleted()
	DeleteFailed()
}

// ChannelReporter publishes paginated text to channels and clears them
type ChannelReporter struct {
	chatRepo repo.ChatRepo
	config   ReporterConfig
	limiter  *rate.Limiter
	recorder DeliveryRecorder
	log      logging.Logger
}

// NewChannelReporter creates a reporter. Every platform call made by the reporter shares one limiter.
func NewChannelReporter(chatRepo repo.ChatRepo, config ReporterConfig, recorder DeliveryRecorder, log logging.Logger) *ChannelReporter {
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.MaxClearPasses <= 0 {
		config.MaxClearPasses = DefaultMaxClearPasses
	}
	limit := rate.Inf
	if config.Delay > 0 {
		limit = rate.Every(config.Delay)
	}
	return &ChannelReporter{
		chatRepo: chatRepo,
		config:   config,
		limiter:  rate.NewLimiter(limit, 1),
		recorder: recorder,
		log:      log.Named("Reporter"),
	}
}

// ChunkSize returns the effective maximum message length in runes
func (r *ChannelReporter) ChunkSize() int {
	return r.config.ChunkSize
}

// SplitChunks slices text into pieces of at most size runes.
// Splitting is positional and may cut words; concatenating the chunks yields text.
func SplitChunks(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		return []string{text}
	}
	chunks := make([]string, 0, utf8.RuneCountInString(text)/size+1)
	start, n := 0, 0
	for i := range text {
		if n == size {
			chunks = append(chunks, text[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(chunks, text[start:])
}

// Publish sends text to a channel in chunks, pacing the sends.
// A failed chunk is logged and skipped; only cancellation stops the loop early,
// with a *PublishInterruptedError.
func (r *ChannelReporter) Publish(ctx context.Context, channelID, text string) ([]domain.MessageHandle, error) {
	chunks := SplitChunks(text, r.config.ChunkSize)
	handles := make([]domain.MessageHandle, 0, len(chunks))

	for i, chunk := range chunks {
		if err := r.limiter.Wait(ctx); err != nil {
			return handles, &PublishInterruptedError{Attempted: i, Total: len(chunks), Err: err}
		}
		h, err := r.chatRepo.SendMessage(ctx, channelID, chunk)
		if err != nil {
			r.log.Warn(ctx, "failed to send chunk",
				logging.String("channel_id", channelID),
				logging.Int("chunk", i+1),
				logging.Int("chunks", len(chunks)),
				logging.Err(err))
			if r.recorder != nil {
				r.recorder.SendFailed()
			}
			continue
		}
		if r.recorder != nil {
			r.recorder.MessageSent()
		}
		handles = append(handles, h)
	}

	return handles, nil
}

// ClearChannel deletes the bot's messages from a channel batch by batch until a fetch comes back empty.
// Individual delete failures are skipped; fetch failures are retried on the next pass.
func (r *ChannelReporter) ClearChannel(ctx context.Context, channelID string) (*domain.Channel, int64, error) {
	channel, err := r.chatRepo.GetChannel(ctx, channelID)
	if err != nil || channel == nil {
		r.log.Warn(ctx, "cannot resolve channel to clear",
			logging.String("channel_id", channelID),
			logging.Err(err))
		return nil, 0, ErrChannelNotFound
	}

	var deleted int64
	for pass := 1; ; pass++ {
		if pass > r.config.MaxClearPasses {
			r.log.Warn(ctx, "clear pass limit reached",
				logging.String("channel_id", channelID),
				logging.Int("passes", r.config.MaxClearPasses),
				logging.Int64("deleted", deleted))
			break
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return channel, deleted, fmt.Errorf("clear interrupted: %w", err)
		}

		batch, err := r.chatRepo.GetRecentMessages(ctx, channelID)
		if err != nil {
			r.log.Warn(ctx, "failed to fetch messages, retrying",
				logging.String("channel_id", channelID),
				logging.Int("pass", pass),
				logging.Err(err))
			continue
		}

		pending := make([]domain.MessageHandle, 0, len(batch))
		for _, m := range batch {
			if !m.Deleted {
				pending = append(pending, m)
			}
		}
		if len(pending) == 0 {
			break
		}

		for _, m := range pending {
			if err := r.limiter.Wait(ctx); err != nil {
				return channel, deleted, fmt.Errorf("clear interrupted: %w", err)
			}
			if err := r.chatRepo.DeleteMessage(ctx, m); err != nil {
				r.log.Warn(ctx, "failed to delete message",
					logging.String("channel_id", channelID),
					logging.String("message_id", m.ID),
					logging.Err(err))
				if r.recorder != nil {
					r.recorder.DeleteFailed()
				}
				continue
			}
			deleted++
			if r.recorder != nil {
				r.recorder.MessageDeleted()
			}
		}
	}

	r.log.Info(ctx, "channel cleared",
		logging.String("channel_id", channelID),
		logging.Int64("deleted", deleted))
	return channel, deleted, nil
}
