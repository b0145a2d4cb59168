package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/biz/usecase"
	"github.com/pogostats/feishu-stats-reporter/internal/conf"
	"github.com/pogostats/feishu-stats-reporter/internal/i18n"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// Mock implementations

type mockChatRepo struct {
	mu        sync.Mutex
	guilds    map[string]bool
	channels  map[string]*domain.Channel
	sent      []string
	sentTo    []string
	sendErrAt map[int]bool
	attempts  int
	recent    [][]domain.MessageHandle
	deleted   []string
	onSend    func(attempt int) // Runs after a successful send
}

func newMockChatRepo() *mockChatRepo {
	return &mockChatRepo{
		guilds:    map[string]bool{},
		channels:  map[string]*domain.Channel{},
		sendErrAt: map[int]bool{},
	}
}

func (m *mockChatRepo) addChannel(guildID, channelID string) {
	m.guilds[guildID] = true
	m.channels[channelID] = &domain.Channel{ID: channelID, GuildID: guildID, Name: channelID}
}

func (m *mockChatRepo) IsClientInGuild(ctx context.Context, guildID string) bool {
	return m.guilds[guildID]
}

func (m *mockChatRepo) GetChannel(ctx context.Context, channelID string) (*domain.Channel, error) {
	ch, ok := m.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("chat %s not found", channelID)
	}
	return ch, nil
}

func (m *mockChatRepo) SendMessage(ctx context.Context, channelID, text string) (domain.MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.sendErrAt[m.attempts] {
		return domain.MessageHandle{}, errors.New("rate limited")
	}
	m.sent = append(m.sent, text)
	m.sentTo = append(m.sentTo, channelID)
	if m.onSend != nil {
		m.onSend(m.attempts)
	}
	return domain.MessageHandle{ID: fmt.Sprintf("om_%d", m.attempts), ChannelID: channelID}, nil
}

func (m *mockChatRepo) DeleteMessage(ctx context.Context, msg domain.MessageHandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, msg.ID)
	return nil
}

func (m *mockChatRepo) GetRecentMessages(ctx context.Context, channelID string) ([]domain.MessageHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.recent) == 0 {
		return nil, nil
	}
	b := m.recent[0]
	m.recent = m.recent[1:]
	return b, nil
}

type mockObservationRepo struct {
	rows []domain.RawObservation
	err  error
}

func (m *mockObservationRepo) ListObservations(ctx context.Context, from, to time.Time) ([]domain.RawObservation, error) {
	return m.rows, m.err
}

func (m *mockObservationRepo) CountByEntity(ctx context.Context, ids []uint32, from, to time.Time) (map[uint32]uint64, error) {
	return nil, m.err
}

func (m *mockObservationRepo) Save(ctx context.Context, obs ...domain.RawObservation) error {
	return nil
}

func (m *mockObservationRepo) Close() error { return nil }

type mockAuditRepo struct {
	mu        sync.Mutex
	summaries []domain.RunSummary
}

func (m *mockAuditRepo) Publish(ctx context.Context, s domain.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *mockAuditRepo) Close() error { return nil }

// Fixtures

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

func iv(v uint16) *uint16 { return &v }

func sighting(id uint32, shiny bool, age time.Duration, atk, def, sta *uint16) domain.RawObservation {
	return domain.RawObservation{
		EntityID:        id,
		Shiny:           shiny,
		Attack:          atk,
		Defense:         def,
		Stamina:         sta,
		ExpireTimestamp: testNow.Add(-age).Unix(),
	}
}

type fixture struct {
	cfg   *conf.Config
	chat  *mockChatRepo
	obs   *mockObservationRepo
	audit *mockAuditRepo
	svc   *ReportService
}

func newFixture(t *testing.T, guilds ...conf.GuildConfig) *fixture {
	t.Helper()
	cfg := conf.New()
	cfg.Schedule.Timezone = "UTC"
	cfg.Guilds = guilds

	f := &fixture{
		cfg:   cfg,
		chat:  newMockChatRepo(),
		obs:   &mockObservationRepo{},
		audit: &mockAuditRepo{},
	}

	translator, err := i18n.NewTranslator("", "en", logging.Nop())
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	statsUC := usecase.NewStatsUsecase(f.obs, cfg.StatWindow(), logging.Nop(),
		usecase.WithStatsClock(func() time.Time { return testNow }))
	reporter := usecase.NewChannelReporter(f.chat, usecase.ReporterConfig{}, nil, logging.Nop())

	f.svc = NewReportService(cfg, statsUC, reporter, f.chat, f.audit, translator, nil, logging.Nop())
	return f
}

func shinyGuild(id, channel string) conf.GuildConfig {
	g := conf.GuildConfig{ID: id}
	g.DailyStats.Shiny = conf.CategoryConfig{Enabled: true, ChannelID: channel}
	return g
}

func shinyRows() []domain.RawObservation {
	return []domain.RawObservation{
		sighting(1, true, time.Hour, nil, nil, nil),
		sighting(1, false, 2*time.Hour, nil, nil, nil),
		sighting(2, true, 3*time.Hour, nil, nil, nil),
	}
}

// Tests

func TestRunCategory_PostsShinyReport(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.obs.rows = shinyRows()

	summary, err := f.svc.RunCategory(context.Background(), RunRequest{
		GuildID:  "tenant_g",
		Category: domain.CategoryShiny,
		Trigger:  domain.TriggerOnDemand,
	})
	if err != nil {
		t.Fatalf("RunCategory: %v", err)
	}

	want := []string{
		"Shiny stats for 2026/10/18 (last 24 hours)\n------------------------------",
		"poke_1 (#1) 1 shiny of 2 seen, 1/2",
		"poke_2 (#2) 1 shiny of 1 seen, 1/1",
		"Total: 2 shiny of 3 seen, 1/1",
	}
	if len(f.chat.sent) != len(want) {
		t.Fatalf("sent %d messages, want %d: %q", len(f.chat.sent), len(want), f.chat.sent)
	}
	for i := range want {
		if f.chat.sent[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, f.chat.sent[i], want[i])
		}
	}

	if summary.Status != domain.RunStatusOK {
		t.Errorf("status = %s", summary.Status)
	}
	if summary.MessagesSent != 4 || summary.Entities != 2 || summary.ChannelID != "oc_111" {
		t.Errorf("summary = %+v", summary)
	}
	if summary.RunID == "" {
		t.Error("run id not set")
	}
	if len(f.audit.summaries) != 1 || f.audit.summaries[0].RunID != summary.RunID {
		t.Errorf("audit = %+v", f.audit.summaries)
	}
}

func TestRunCategory_TitleUsesAggregatedWindow(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.obs.rows = shinyRows()

	// The clock crosses midnight between the read and anything after it
	beforeMidnight := time.Date(2026, 10, 19, 23, 59, 59, 0, time.UTC)
	reads := 0
	clock := func() time.Time {
		reads++
		if reads == 1 {
			return beforeMidnight
		}
		return beforeMidnight.Add(31 * time.Second)
	}
	f.svc.statsUC = usecase.NewStatsUsecase(f.obs, f.cfg.StatWindow(), logging.Nop(), usecase.WithStatsClock(clock))

	if _, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny}); err != nil {
		t.Fatalf("RunCategory: %v", err)
	}
	if len(f.chat.sent) == 0 || !strings.HasPrefix(f.chat.sent[0], "Shiny stats for 2026/10/18 ") {
		t.Errorf("title = %q, want the window that was aggregated", f.chat.sent)
	}
}

func TestRunCategory_InterruptedPublish(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.obs.rows = shinyRows()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.chat.onSend = func(attempt int) {
		if attempt == 2 {
			cancel()
		}
	}

	summary, err := f.svc.RunCategory(ctx, RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got err %v, want context.Canceled", err)
	}
	if summary.Status != domain.RunStatusFailed {
		t.Errorf("status = %s", summary.Status)
	}
	if summary.MessagesSent != 2 || summary.SendFailures != 0 || summary.Unsent != 2 {
		t.Errorf("sent %d, failures %d, unsent %d; want 2, 0, 2",
			summary.MessagesSent, summary.SendFailures, summary.Unsent)
	}
}

func TestRunCategory_DataFailurePostsNothing(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.obs.err = errors.New("query timeout")

	summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny})
	if !errors.Is(err, ErrNoStats) {
		t.Fatalf("err = %v, want ErrNoStats", err)
	}
	if summary.Status != domain.RunStatusFailed {
		t.Errorf("status = %s", summary.Status)
	}
	if len(f.chat.sent) != 0 {
		t.Errorf("sent %q", f.chat.sent)
	}
}

func TestRunCategory_EmptyWindowAborts(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.obs.rows = []domain.RawObservation{sighting(1, false, time.Hour, nil, nil, nil)}

	summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny})
	if !errors.Is(err, ErrNoStats) {
		t.Fatalf("err = %v", err)
	}
	if summary.Status != domain.RunStatusAborted || len(f.chat.sent) != 0 {
		t.Errorf("status = %s sent = %d", summary.Status, len(f.chat.sent))
	}
}

func TestRunCategory_Preconditions(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		guild      string
		category   domain.Category
		wantErr    error
		wantStatus domain.RunStatus
		wantAudit  int
	}{
		{
			name:       "unknown guild",
			guild:      "tenant_x",
			category:   domain.CategoryShiny,
			wantErr:    ErrGuildNotConfigured,
			wantStatus: domain.RunStatusSkipped,
		},
		{
			name:       "disabled category",
			guild:      "tenant_g",
			category:   domain.CategoryHundo,
			wantErr:    ErrCategoryDisabled,
			wantStatus: domain.RunStatusSkipped,
		},
		{
			name:       "bot not in guild",
			guild:      "tenant_g",
			category:   domain.CategoryShiny,
			wantErr:    ErrClientNotInGuild,
			wantStatus: domain.RunStatusAborted,
			wantAudit:  1,
		},
		{
			name:       "channel missing",
			setup:      func(f *fixture) { f.chat.guilds["tenant_g"] = true },
			guild:      "tenant_g",
			category:   domain.CategoryShiny,
			wantErr:    ErrChannelUnavailable,
			wantStatus: domain.RunStatusAborted,
			wantAudit:  1,
		},
		{
			name: "channel in another guild",
			setup: func(f *fixture) {
				f.chat.guilds["tenant_g"] = true
				f.chat.addChannel("tenant_other", "oc_111")
			},
			guild:      "tenant_g",
			category:   domain.CategoryShiny,
			wantErr:    ErrChannelUnavailable,
			wantStatus: domain.RunStatusAborted,
			wantAudit:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
			f.obs.rows = shinyRows()
			if tt.setup != nil {
				tt.setup(f)
			}

			summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: tt.guild, Category: tt.category})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if summary.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", summary.Status, tt.wantStatus)
			}
			if len(f.chat.sent) != 0 {
				t.Errorf("sent %q", f.chat.sent)
			}
			if len(f.audit.summaries) != tt.wantAudit {
				t.Errorf("audit records = %d, want %d", len(f.audit.summaries), tt.wantAudit)
			}
		})
	}
}

func TestRunCategory_ClearsFirst(t *testing.T) {
	g := shinyGuild("tenant_g", "oc_111")
	g.DailyStats.Shiny.ClearMessages = true
	f := newFixture(t, g)
	f.chat.addChannel("tenant_g", "oc_111")
	f.chat.recent = [][]domain.MessageHandle{
		{{ID: "om_old1"}, {ID: "om_old2"}},
	}
	f.obs.rows = shinyRows()

	summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny})
	if err != nil {
		t.Fatalf("RunCategory: %v", err)
	}
	if summary.MessagesDeleted != 2 || len(f.chat.deleted) != 2 {
		t.Errorf("deleted = %d %v", summary.MessagesDeleted, f.chat.deleted)
	}
	if len(f.chat.sent) != 4 {
		t.Errorf("sent %d messages", len(f.chat.sent))
	}
}

func TestRunCategory_PartialSend(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.chat.sendErrAt[2] = true
	f.obs.rows = shinyRows()

	summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny})
	if err != nil {
		t.Fatalf("RunCategory: %v", err)
	}
	if summary.Status != domain.RunStatusPartial {
		t.Errorf("status = %s", summary.Status)
	}
	if summary.MessagesSent != 3 || summary.SendFailures != 1 {
		t.Errorf("sent = %d failures = %d", summary.MessagesSent, summary.SendFailures)
	}
}

func TestRunCategory_IVThreshold(t *testing.T) {
	minimum := 90.0
	g := conf.GuildConfig{ID: "tenant_g"}
	g.DailyStats.IV = conf.CategoryConfig{Enabled: true, ChannelID: "oc_iv", MinimumIV: &minimum}

	rows := []domain.RawObservation{
		sighting(10, false, time.Hour, iv(15), iv(15), iv(14)), // 97.8
		sighting(11, false, time.Hour, iv(14), iv(14), iv(13)), // 91.1
		sighting(11, false, time.Hour, iv(1), iv(2), iv(3)),
		sighting(12, false, time.Hour, iv(15), nil, iv(15)),
	}

	t.Run("falls back to minimum_iv", func(t *testing.T) {
		f := newFixture(t, g)
		f.chat.addChannel("tenant_g", "oc_iv")
		f.obs.rows = rows

		summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryIV})
		if err != nil {
			t.Fatalf("RunCategory: %v", err)
		}
		if summary.Threshold != 90 || summary.Entities != 2 {
			t.Errorf("threshold = %v entities = %d", summary.Threshold, summary.Entities)
		}
		if !strings.HasPrefix(f.chat.sent[0], "90% IV stats for 2026/10/18") {
			t.Errorf("title = %q", f.chat.sent[0])
		}
		if got := f.chat.sent[len(f.chat.sent)-1]; got != "Total: 2 at 90%+ of 3 seen, 1/1" {
			t.Errorf("total = %q", got)
		}
	})

	t.Run("override", func(t *testing.T) {
		f := newFixture(t, g)
		f.chat.addChannel("tenant_g", "oc_iv")
		f.obs.rows = rows

		threshold := 100.0
		summary, err := f.svc.RunCategory(context.Background(), RunRequest{
			GuildID:   "tenant_g",
			Category:  domain.CategoryIV,
			Threshold: &threshold,
		})
		if !errors.Is(err, ErrNoStats) {
			t.Fatalf("err = %v", err)
		}
		if summary.Threshold != 100 {
			t.Errorf("threshold = %v", summary.Threshold)
		}
	})

	t.Run("negative override is ignored", func(t *testing.T) {
		f := newFixture(t, g)
		f.chat.addChannel("tenant_g", "oc_iv")
		f.obs.rows = rows

		threshold := -1.0
		summary, _ := f.svc.RunCategory(context.Background(), RunRequest{
			GuildID:   "tenant_g",
			Category:  domain.CategoryIV,
			Threshold: &threshold,
		})
		if summary.Threshold != 90 {
			t.Errorf("threshold = %v", summary.Threshold)
		}
	})
}

func TestRunCategory_RejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, shinyGuild("tenant_g", "oc_111"))
	f.chat.addChannel("tenant_g", "oc_111")
	f.obs.rows = shinyRows()

	if !f.svc.acquire("tenant_g/shiny") {
		t.Fatal("acquire failed")
	}
	summary, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny})
	if !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("err = %v", err)
	}
	if summary.Status != domain.RunStatusAborted || len(f.chat.sent) != 0 {
		t.Errorf("status = %s sent = %d", summary.Status, len(f.chat.sent))
	}

	f.svc.release("tenant_g/shiny")
	if _, err := f.svc.RunCategory(context.Background(), RunRequest{GuildID: "tenant_g", Category: domain.CategoryShiny}); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestOnScheduleFired_RunsGuildsOfTimezoneInOrder(t *testing.T) {
	a := shinyGuild("tenant_a", "oc_a_shiny")
	a.DailyStats.Hundo = conf.CategoryConfig{Enabled: true, ChannelID: "oc_a_hundo"}
	b := shinyGuild("tenant_b", "oc_b_shiny")
	b.Timezone = "Asia/Shanghai"
	c := shinyGuild("tenant_c", "oc_c_shiny")

	f := newFixture(t, a, b, c)
	for _, ch := range []struct{ guild, channel string }{
		{"tenant_a", "oc_a_shiny"},
		{"tenant_a", "oc_a_hundo"},
		{"tenant_b", "oc_b_shiny"},
		{"tenant_c", "oc_c_shiny"},
	} {
		f.chat.addChannel(ch.guild, ch.channel)
	}
	f.obs.rows = append(shinyRows(), sighting(3, false, time.Hour, iv(15), iv(15), iv(15)))

	f.svc.OnScheduleFired(context.Background(), testNow, "UTC")

	var order []string
	for _, ch := range f.chat.sentTo {
		if len(order) == 0 || order[len(order)-1] != ch {
			order = append(order, ch)
		}
	}
	want := []string{"oc_a_shiny", "oc_a_hundo", "oc_c_shiny"}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("channel order = %v, want %v", order, want)
	}

	if len(f.audit.summaries) != 3 {
		t.Fatalf("audit records = %d", len(f.audit.summaries))
	}
	for _, s := range f.audit.summaries {
		if s.Trigger != domain.TriggerScheduled {
			t.Errorf("trigger = %s", s.Trigger)
		}
	}
}

func TestNotice(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "report posted"},
		{ErrGuildNotConfigured, "not configured"},
		{ErrCategoryDisabled, "disabled"},
		{ErrClientNotInGuild, "channel unavailable"},
		{fmt.Errorf("%w: oc_1", ErrChannelUnavailable), "channel unavailable"},
		{ErrNoStats, "no stats"},
		{ErrRunInProgress, "busy"},
		{errors.New("boom"), "report failed"},
	}
	for _, tt := range tests {
		if got := Notice(tt.err); got != tt.want {
			t.Errorf("Notice(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestReportScheduler(t *testing.T) {
	noop := func(context.Context, time.Time, string) {}

	s, err := NewReportScheduler([]string{"UTC", "Asia/Shanghai", "UTC"}, 5, noop, logging.Nop())
	if err != nil {
		t.Fatalf("NewReportScheduler: %v", err)
	}
	entries := s.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Timezone != "UTC" || entries[1].Timezone != "Asia/Shanghai" || entries[0].OffsetMinutes != 5 {
		t.Errorf("entries = %+v", entries)
	}

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	for _, e := range s.Entries() {
		if e.State != "idle" {
			t.Errorf("%s state = %s after Stop", e.Timezone, e.State)
		}
	}

	if _, err := NewReportScheduler([]string{"Nowhere/City"}, 0, noop, logging.Nop()); err == nil {
		t.Error("expected error for bad timezone")
	}
}
