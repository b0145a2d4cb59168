package domain

import "time"

// ScheduleEntry describes one armed daily timer
type ScheduleEntry struct {
	Timezone      string    `json:"timezone"`
	OffsetMinutes int       `json:"offset_minutes"`
	State         string    `json:"state"`
	NextFire      time.Time `json:"next_fire"`
	LastFired     time.Time `json:"last_fired"`
}

// RunStatus is the outcome of one guild/category report run
type RunStatus string

const (
	RunStatusOK      RunStatus = "ok"
	RunStatusPartial RunStatus = "partial" // Some messages failed to send
	RunStatusSkipped RunStatus = "skipped" // Not configured or disabled
	RunStatusAborted RunStatus = "aborted" // Platform unavailable, busy or nothing to post
	RunStatusFailed  RunStatus = "failed"  // Data source failure or cancelled mid-publish
)

// RunTrigger tells what started a run
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerOnDemand  RunTrigger = "on_demand"
)

// RunSummary is the audit record of one report run
type RunSummary struct {
	RunID           string        `json:"run_id"`
	GuildID         string        `json:"guild_id"`
	Category        Category      `json:"category"`
	Trigger         RunTrigger    `json:"trigger"`
	Status          RunStatus     `json:"status"`
	Reason          string        `json:"reason,omitempty"`
	ChannelID       string        `json:"channel_id,omitempty"`
	Threshold       float64       `json:"threshold,omitempty"`
	Entities        int           `json:"entities"`
	MessagesSent    int           `json:"messages_sent"`
	SendFailures    int           `json:"send_failures"`
	Unsent          int           `json:"unsent,omitempty"` // Chunks never attempted after an interruption
	MessagesDeleted int64         `json:"messages_deleted"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration"`
}
