package i18n

import (
	"strconv"
	"strings"

	"github.com/pogostats/feishu-stats-reporter/internal/biz/domain"
)

// Message is one kind of report line. Each kind carries exactly the fields its template needs.
type Message interface {
	key() string
	args(t *Translator) map[string]string
}

// TitleMessage heads a report
type TitleMessage struct {
	Category  domain.Category
	Date      string  // Start of the reporting window, already formatted
	Hours     int     // Window length
	Threshold float64 // Only rendered for threshold-filtered reports
}

// SeparatorMessage follows the title
type SeparatorMessage struct {
	Category domain.Category
}

// EntityLineMessage reports one entity
type EntityLineMessage struct {
	Category  domain.Category
	Stat      domain.CategoryStat
	Threshold float64
}

// TotalLineMessage reports the grand total (entity id 0)
type TotalLineMessage struct {
	Category  domain.Category
	Stat      domain.CategoryStat
	Threshold float64
}

func prefix(c domain.Category) string {
	return strings.ToUpper(c.String()) + "_STATS_"
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (m TitleMessage) key() string { return prefix(m.Category) + "TITLE" }

func (m TitleMessage) args(t *Translator) map[string]string {
	return map[string]string{
		"date":  m.Date,
		"hours": strconv.Itoa(m.Hours),
		"iv":    formatThreshold(m.Threshold),
	}
}

func (m SeparatorMessage) key() string { return prefix(m.Category) + "NEWLINE" }

func (m SeparatorMessage) args(t *Translator) map[string]string { return nil }

// key picks the ratio variant only when the ratio is meaningful
func (m EntityLineMessage) key() string {
	if m.Stat.Ratio() == 0 {
		return prefix(m.Category) + "MESSAGE"
	}
	return prefix(m.Category) + "MESSAGE_WITH_RATIO"
}

func (m EntityLineMessage) args(t *Translator) map[string]string {
	a := statArgs(t, m.Stat, m.Threshold)
	a["pokemon"] = t.EntityName(m.Stat.EntityID)
	a["id"] = strconv.FormatUint(uint64(m.Stat.EntityID), 10)
	return a
}

func (m TotalLineMessage) key() string {
	if m.Stat.Ratio() == 0 {
		return prefix(m.Category) + "TOTAL_MESSAGE"
	}
	return prefix(m.Category) + "TOTAL_MESSAGE_WITH_RATIO"
}

func (m TotalLineMessage) args(t *Translator) map[string]string {
	return statArgs(t, m.Stat, m.Threshold)
}

// statArgs exposes the primary metric as both {{count}} and {{shiny}}, matching the locale files
func statArgs(t *Translator, s domain.CategoryStat, threshold float64) map[string]string {
	primary := t.Number(s.Primary)
	return map[string]string{
		"count":  primary,
		"shiny":  primary,
		"total":  t.Number(s.Secondary),
		"chance": t.Number(s.Ratio()),
		"iv":     formatThreshold(threshold),
	}
}

const separator = "------------------------------"

var defaultStrings = map[string]string{
	"SHINY_STATS_TITLE":                    "Shiny stats for {{date}} (last {{hours}} hours)",
	"SHINY_STATS_NEWLINE":                  separator,
	"SHINY_STATS_MESSAGE":                  "{{pokemon}} (#{{id}}) {{shiny}} shiny of {{total}} seen",
	"SHINY_STATS_MESSAGE_WITH_RATIO":       "{{pokemon}} (#{{id}}) {{shiny}} shiny of {{total}} seen, 1/{{chance}}",
	"SHINY_STATS_TOTAL_MESSAGE":            "Total: {{shiny}} shiny of {{total}} seen",
	"SHINY_STATS_TOTAL_MESSAGE_WITH_RATIO": "Total: {{shiny}} shiny of {{total}} seen, 1/{{chance}}",

	"HUNDO_STATS_TITLE":                    "Hundo stats for {{date}} (last {{hours}} hours)",
	"HUNDO_STATS_NEWLINE":                  separator,
	"HUNDO_STATS_MESSAGE":                  "{{pokemon}} (#{{id}}) {{count}} hundos of {{total}} seen",
	"HUNDO_STATS_MESSAGE_WITH_RATIO":       "{{pokemon}} (#{{id}}) {{count}} hundos of {{total}} seen, 1/{{chance}}",
	"HUNDO_STATS_TOTAL_MESSAGE":            "Total: {{count}} hundos of {{total}} seen",
	"HUNDO_STATS_TOTAL_MESSAGE_WITH_RATIO": "Total: {{count}} hundos of {{total}} seen, 1/{{chance}}",

	"IV_STATS_TITLE":                    "{{iv}}% IV stats for {{date}} (last {{hours}} hours)",
	"IV_STATS_NEWLINE":                  separator,
	"IV_STATS_MESSAGE":                  "{{pokemon}} (#{{id}}) {{count}} at {{iv}}%+ of {{total}} seen",
	"IV_STATS_MESSAGE_WITH_RATIO":       "{{pokemon}} (#{{id}}) {{count}} at {{iv}}%+ of {{total}} seen, 1/{{chance}}",
	"IV_STATS_TOTAL_MESSAGE":            "Total: {{count}} at {{iv}}%+ of {{total}} seen",
	"IV_STATS_TOTAL_MESSAGE_WITH_RATIO": "Total: {{count}} at {{iv}}%+ of {{total}} seen, 1/{{chance}}",
}
