package service

import "errors"

var (
	ErrGuildNotConfigured = errors.New("guild not configured")
	ErrCategoryDisabled   = errors.New("category disabled")
	ErrClientNotInGuild   = errors.New("bot is not a member of the guild")
	ErrChannelUnavailable = errors.New("channel unavailable")
	ErrNoStats            = errors.New("no stats available")
	ErrRunInProgress      = errors.New("report already running")
)

// Notice returns the short inline message shown to whoever asked for an on-demand report
func Notice(err error) string {
	switch {
	case err == nil:
		return "report posted"
	case errors.Is(err, ErrGuildNotConfigured):
		return "not configured"
	case errors.Is(err, ErrCategoryDisabled):
		return "disabled"
	case errors.Is(err, ErrClientNotInGuild), errors.Is(err, ErrChannelUnavailable):
		return "channel unavailable"
	case errors.Is(err, ErrNoStats):
		return "no stats"
	case errors.Is(err, ErrRunInProgress):
		return "busy"
	default:
		return "report failed"
	}
}
