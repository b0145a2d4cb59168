package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
	"github.com/pogostats/feishu-stats-reporter/internal/logging"
)

// EntityNamer resolves entity display names
type EntityNamer interface {
	EntityName(id uint32) string
}

// Handler implements the MCP tools on top of the daemon's HTTP API
type Handler struct {
	client *Client
	names  EntityNamer
	log    logging.Logger
}

// NewHandler creates a new MCP handler. names may be nil.
func NewHandler(client *Client, names EntityNamer, log logging.Logger) *Handler {
	return &Handler{client: client, names: names, log: log.Named("MCP")}
}

// PostStats runs one report. Precondition failures are reported in the notice.
func (h *Handler) PostStats(ctx context.Context, in PostStatsInput) (PostStatsOutput, error) {
	if in.GuildID == "" {
		return PostStatsOutput{}, fmt.Errorf("guild_id is required")
	}
	category, err := domain.ParseCategory(in.Category)
	if err != nil {
		return PostStatsOutput{}, err
	}

	res, err := h.client.RunReport(ctx, in.GuildID, category, in.Threshold)
	if err != nil {
		h.log.Warn(ctx, "report request failed",
			logging.String("guild_id", in.GuildID),
			logging.String("category", category.String()),
			logging.Err(err))
		return PostStatsOutput{}, err
	}

	out := PostStatsOutput{Notice: res.Notice}
	if s := res.Summary; s != nil {
		out.Status = string(s.Status)
		out.RunID = s.RunID
		out.MessagesSent = s.MessagesSent
		out.MessagesDeleted = s.MessagesDeleted
		out.Entities = s.Entities
	}
	return out, nil
}

// ListSchedules returns the daily timers
func (h *Handler) ListSchedules(ctx context.Context) (ListSchedulesOutput, error) {
	entries, err := h.client.ListSchedules(ctx)
	if err != nil {
		return ListSchedulesOutput{}, err
	}

	out := ListSchedulesOutput{Schedules: make([]Schedule, 0, len(entries))}
	for _, e := range entries {
		out.Schedules = append(out.Schedules, Schedule{
			Timezone:      e.Timezone,
			OffsetMinutes: e.OffsetMinutes,
			State:         e.State,
			NextFire:      formatTime(e.NextFire),
			LastFired:     formatTime(e.LastFired),
		})
	}
	return out, nil
}

// CountSightings returns per-entity counts in ascending id order
func (h *Handler) CountSightings(ctx context.Context, in CountSightingsInput) (CountSightingsOutput, error) {
	if in.Hours < 0 {
		return CountSightingsOutput{}, fmt.Errorf("hours must not be negative")
	}
	counts, err := h.client.CountSightings(ctx, in.IDs, in.Hours)
	if err != nil {
		return CountSightingsOutput{}, err
	}

	ids := make([]uint32, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := CountSightingsOutput{Sightings: make([]Sighting, 0, len(ids))}
	for _, id := range ids {
		s := Sighting{ID: id, Count: counts[id]}
		if h.names != nil {
			s.Name = h.names.EntityName(id)
		}
		out.Sightings = append(out.Sightings, s)
		out.Total += s.Count
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
