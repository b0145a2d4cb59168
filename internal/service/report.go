package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/repo"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/usecase"
	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/i18n"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
	"github.com/pogostats/feishu-stats-reporter/internal/metrics"
)

// RunRequest asks for one guild/category report
type RunRequest struct {
	GuildID   string
	Category  domain.Category
	Threshold *float64 // Only used by iv; nil or negative uses the guild's minimum_iv
	Trigger   domain.RunTrigger
}

// ReportService runs daily stat reports for the configured guilds
type ReportService struct {
	cfg        *conf.Config
	statsUC    *usecase.StatsUsecase
	reporter   *usecase.ChannelReporter
	chatRepo   repo.ChatRepo
	auditRepo  repo.AuditRepo
	translator *i18n.Translator
	metrics    *metrics.Manager
	log        logging.Logger

	// Guild/category pairs with a run in flight
	running   map[string]bool
	runningMu sync.Mutex
}

// NewReportService creates a new report service
func NewReportService(
	cfg *conf.Config,
	statsUC *usecase.StatsUsecase,
	reporter *usecase.ChannelReporter,
	chatRepo repo.ChatRepo,
	auditRepo repo.AuditRepo,
	translator *i18n.Translator,
	m *metrics.Manager,
	log logging.Logger,
) *ReportService {
	return &ReportService{
		cfg:        cfg,
		statsUC:    statsUC,
		reporter:   reporter,
		chatRepo:   chatRepo,
		auditRepo:  auditRepo,
		translator: translator,
		metrics:    m,
		log:        log.Named("Report"),
		running:    make(map[string]bool),
	}
}

// OnScheduleFired runs every enabled category of every guild in timezone, one at a time,
// in configuration order
func (s *ReportService) OnScheduleFired(ctx context.Context, t time.Time, timezone string) {
	s.metrics.TimerFired(timezone)

	guilds := 0
	for i := range s.cfg.Guilds {
		g := &s.cfg.Guilds[i]
		if s.cfg.GuildTimezone(g) != timezone {
			continue
		}
		guilds++
		for _, cat := range domain.Categories {
			cc, _ := g.DailyStats.For(cat)
			if !cc.Enabled {
				continue
			}
			// Errors are logged and audited inside RunCategory
			_, _ = s.RunCategory(ctx, RunRequest{
				GuildID:  g.ID,
				Category: cat,
				Trigger:  domain.TriggerScheduled,
			})
		}
	}

	s.log.Info(ctx, "scheduled reports done",
		logging.String("timezone", timezone),
		logging.Time("fired_at", t),
		logging.Int("guilds", guilds))
}

// RunCategory posts one category report to its configured channel.
// Each precondition failure aborts the run; the returned summary is always non-nil.
func (s *ReportService) RunCategory(ctx context.Context, req RunRequest) (*domain.RunSummary, error) {
	summary := &domain.RunSummary{
		RunID:     uuid.NewString(),
		GuildID:   req.GuildID,
		Category:  req.Category,
		Trigger:   req.Trigger,
		StartedAt: time.Now(),
	}
	log := s.log.With(
		logging.String("run_id", summary.RunID),
		logging.String("guild_id", req.GuildID),
		logging.String("category", req.Category.String()))

	err := s.run(ctx, log, req, summary)
	s.finish(ctx, log, summary, err)
	return summary, err
}

func (s *ReportService) run(ctx context.Context, log logging.Logger, req RunRequest, summary *domain.RunSummary) error {
	// 1. Configuration
	guild, ok := s.cfg.Guild(req.GuildID)
	if !ok {
		log.Debug(ctx, "guild not configured, skipping")
		summary.Status = domain.RunStatusSkipped
		return ErrGuildNotConfigured
	}
	cc, ok := guild.DailyStats.For(req.Category)
	if !ok || !cc.Enabled {
		log.Debug(ctx, "category disabled, skipping")
		summary.Status = domain.RunStatusSkipped
		return ErrCategoryDisabled
	}
	summary.ChannelID = cc.ChannelID

	key := req.GuildID + "/" + req.Category.String()
	if !s.acquire(key) {
		log.Warn(ctx, "report already running")
		summary.Status = domain.RunStatusAborted
		return ErrRunInProgress
	}
	defer s.release(key)

	// 2. Platform
	if !s.chatRepo.IsClientInGuild(ctx, guild.ID) {
		log.Warn(ctx, "bot is not in guild")
		summary.Status = domain.RunStatusAborted
		return ErrClientNotInGuild
	}
	channel, err := s.chatRepo.GetChannel(ctx, cc.ChannelID)
	if err != nil || channel == nil || (channel.GuildID != "" && channel.GuildID != guild.ID) {
		log.Warn(ctx, "channel unavailable",
			logging.String("channel_id", cc.ChannelID),
			logging.Err(err))
		summary.Status = domain.RunStatusAborted
		return fmt.Errorf("%w: %s", ErrChannelUnavailable, cc.ChannelID)
	}

	// 3. Clear
	if cc.ClearMessages {
		_, deleted, err := s.reporter.ClearChannel(ctx, channel.ID)
		summary.MessagesDeleted = deleted
		if errors.Is(err, usecase.ErrChannelNotFound) {
			summary.Status = domain.RunStatusAborted
			return fmt.Errorf("%w: %s", ErrChannelUnavailable, channel.ID)
		}
		if err != nil {
			summary.Status = domain.RunStatusFailed
			return err
		}
	}

	// 4. Aggregate
	sel := domain.Selector{Category: req.Category}
	if req.Category == domain.CategoryIV {
		sel.Threshold = cc.Threshold(req.Threshold)
		summary.Threshold = sel.Threshold
	}
	result := s.statsUC.Collect(ctx, sel)
	if result == nil {
		// Collect already logged the data source error
		summary.Status = domain.RunStatusFailed
		summary.Reason = "data source failure"
		return ErrNoStats
	}
	if result.Len() == 0 {
		log.Info(ctx, "no stats in window, nothing to post")
		summary.Status = domain.RunStatusAborted
		return ErrNoStats
	}
	summary.Entities = result.Len()

	// 5. Render, 6. Publish
	lines := s.render(guild, sel, result)
	for i, line := range lines {
		want := s.chunks(line)
		handles, err := s.reporter.Publish(ctx, channel.ID, line)
		summary.MessagesSent += len(handles)

		attempted := want
		var interrupted *usecase.PublishInterruptedError
		if errors.As(err, &interrupted) {
			attempted = interrupted.Attempted
		}
		summary.SendFailures += attempted - len(handles)

		if err != nil {
			summary.Unsent = want - attempted
			for _, rest := range lines[i+1:] {
				summary.Unsent += s.chunks(rest)
			}
			summary.Status = domain.RunStatusFailed
			return err
		}
	}

	summary.Status = domain.RunStatusOK
	if summary.SendFailures > 0 {
		summary.Status = domain.RunStatusPartial
	}
	return nil
}

// render returns the header (title and separator), one line per entity and the total line
func (s *ReportService) render(guild *conf.GuildConfig, sel domain.Selector, result *domain.AggregateResult) []string {
	window := result.To.Sub(result.From)
	start := result.From
	if loc, err := time.LoadLocation(s.cfg.GuildTimezone(guild)); err == nil {
		start = start.In(loc)
	}

	t := s.translator
	header := t.Render(i18n.TitleMessage{
		Category:  sel.Category,
		Date:      start.Format(s.cfg.DateFormat),
		Hours:     int(window / time.Hour),
		Threshold: sel.Threshold,
	}) + "\n" + t.Render(i18n.SeparatorMessage{Category: sel.Category})

	lines := make([]string, 0, result.Len()+2)
	lines = append(lines, header)
	for _, stat := range result.Entities() {
		lines = append(lines, t.Render(i18n.EntityLineMessage{
			Category:  sel.Category,
			Stat:      stat,
			Threshold: sel.Threshold,
		}))
	}
	lines = append(lines, t.Render(i18n.TotalLineMessage{
		Category:  sel.Category,
		Stat:      result.Total(),
		Threshold: sel.Threshold,
	}))
	return lines
}

// chunks returns how many messages Publish needs for line
func (s *ReportService) chunks(line string) int {
	return len(usecase.SplitChunks(line, s.reporter.ChunkSize()))
}

func (s *ReportService) finish(ctx context.Context, log logging.Logger, summary *domain.RunSummary, err error) {
	summary.Duration = time.Since(summary.StartedAt)
	if summary.Reason == "" && err != nil {
		summary.Reason = err.Error()
	}

	s.metrics.ReportRun(summary.Category.String(), string(summary.Status), summary.Duration)

	fields := []logging.Field{
		logging.String("status", string(summary.Status)),
		logging.String("trigger", string(summary.Trigger)),
		logging.Int("entities", summary.Entities),
		logging.Int("sent", summary.MessagesSent),
		logging.Int("send_failures", summary.SendFailures),
		logging.Int("unsent", summary.Unsent),
		logging.Int64("deleted", summary.MessagesDeleted),
		logging.Duration("duration", summary.Duration),
	}
	if summary.Status == domain.RunStatusSkipped {
		log.Debug(ctx, "report run finished", fields...)
	} else {
		log.Info(ctx, "report run finished", fields...)
	}

	if summary.Status == domain.RunStatusSkipped {
		return
	}
	if err := s.auditRepo.Publish(ctx, *summary); err != nil {
		log.Warn(ctx, "failed to publish run summary", logging.Err(err))
	}
}

func (s *ReportService) acquire(key string) bool {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()
	if s.running[key] {
		return false
	}
	s.running[key] = true
	return true
}

func (s *ReportService) release(key string) {
	s.runningMu.Lock()
	delete(s.running, key)
	s.runningMu.Unlock()
}
