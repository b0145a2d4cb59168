package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
)

// Client is the HTTP client for the reporter daemon's API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. Report runs pace their messages, so the timeout is generous.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// RunReportResult is the daemon's answer to an on-demand report
type RunReportResult struct {
	Notice  string             `json:"notice"`
	Summary *domain.RunSummary `json:"summary,omitempty"`
}

// ============ Reports ============

// RunReport asks the daemon to post one category report now.
// Precondition failures come back as a notice, not an error.
func (c *Client) RunReport(ctx context.Context, guildID string, category domain.Category, threshold *float64) (*RunReportResult, error) {
	path := fmt.Sprintf("/api/reports/%s/%s", url.PathEscape(guildID), url.PathEscape(category.String()))
	if threshold != nil {
		path += "?threshold=" + strconv.FormatFloat(*threshold, 'f', -1, 64)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var result RunReportResult
	if err := json.Unmarshal(body, &result); err != nil || result.Notice == "" {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return &result, nil
}

// ============ Schedules ============

// ListSchedules returns the daemon's daily timers
func (c *Client) ListSchedules(ctx context.Context) ([]domain.ScheduleEntry, error) {
	var result struct {
		Schedules []domain.ScheduleEntry `json:"schedules"`
	}
	if err := c.get(ctx, "/api/schedules", &result); err != nil {
		return nil, err
	}
	return result.Schedules, nil
}

// ============ Sightings ============

// CountSightings counts sightings per entity over the last hours (0 uses the daemon's window)
func (c *Client) CountSightings(ctx context.Context, ids []uint32, hours int) (map[uint32]uint64, error) {
	q := url.Values{}
	if len(ids) > 0 {
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatUint(uint64(id), 10)
		}
		q.Set("ids", strings.Join(parts, ","))
	}
	if hours > 0 {
		q.Set("hours", strconv.Itoa(hours))
	}

	path := "/api/sightings"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var result struct {
		Counts map[uint32]uint64 `json:"counts"`
	}
	if err := c.get(ctx, path, &result); err != nil {
		return nil, err
	}
	return result.Counts, nil
}

// ============ HTTP Helpers ============

func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
