package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients
const Version = "v1.0.0"

// PostStatsInput is the input for post_stats
type PostStatsInput struct {
	GuildID   string   `json:"guild_id" jsonschema:"The guild (Feishu tenant key) to report for"`
	Category  string   `json:"category" jsonschema:"One of shiny, hundo or iv"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Minimum IV percentage for iv reports; omit to use the guild default"`
}

// PostStatsOutput is the output for post_stats
type PostStatsOutput struct {
	Notice          string `json:"notice"`
	Status          string `json:"status,omitempty"`
	RunID           string `json:"run_id,omitempty"`
	MessagesSent    int    `json:"messages_sent"`
	MessagesDeleted int64  `json:"messages_deleted"`
	Entities        int    `json:"entities"`
}

// ListSchedulesInput is empty - no input needed
type ListSchedulesInput struct{}

// Schedule is one daily timer
type Schedule struct {
	Timezone      string `json:"timezone"`
	OffsetMinutes int    `json:"offset_minutes"`
	State         string `json:"state"`
	NextFire      string `json:"next_fire,omitempty"`
	LastFired     string `json:"last_fired,omitempty"`
}

// ListSchedulesOutput contains the daemon's timers
type ListSchedulesOutput struct {
	Schedules []Schedule `json:"schedules"`
}

// CountSightingsInput is the input for count_sightings
type CountSightingsInput struct {
	IDs   []uint32 `json:"ids,omitempty" jsonschema:"Entity ids to count; omit for all entities"`
	Hours int      `json:"hours,omitempty" jsonschema:"Trailing window in hours; omit for the configured window"`
}

// Sighting is the count for one entity
type Sighting struct {
	ID    uint32 `json:"id"`
	Name  string `json:"name,omitempty"`
	Count uint64 `json:"count"`
}

// CountSightingsOutput contains counts in ascending id order
type CountSightingsOutput struct {
	Sightings []Sighting `json:"sightings"`
	Total     uint64     `json:"total"`
}

// NewServer creates an MCP server exposing the reporting tools
func NewServer(h *Handler) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{
		Name:    "stats-reporter",
		Version: Version,
	}, nil)
	RegisterTools(server, h)
	return server
}

// RegisterTools registers every reporting tool on server
func RegisterTools(server *sdkmcp.Server, h *Handler) {
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "post_stats",
		Description: "Post a daily stats report (shiny, hundo or iv) to the guild's configured channel now.",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in PostStatsInput) (*sdkmcp.CallToolResult, PostStatsOutput, error) {
		out, err := h.PostStats(ctx, in)
		return nil, out, err
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_schedules",
		Description: "List the daily report timers with their timezone, next fire time and last fire time.",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in ListSchedulesInput) (*sdkmcp.CallToolResult, ListSchedulesOutput, error) {
		out, err := h.ListSchedules(ctx)
		return nil, out, err
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "count_sightings",
		Description: "Count raw sightings per entity over a trailing window.",
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in CountSightingsInput) (*sdkmcp.CallToolResult, CountSightingsOutput, error) {
		out, err := h.CountSightings(ctx, in)
		return nil, out, err
	})
}
