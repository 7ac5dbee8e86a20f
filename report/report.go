// Package report turns aggregated audit data into a presentable compliance
// report and renders it for terminals and browsers.
package report

import (
	"time"

	"scanaudit/aggregate"
	"scanaudit/auditlog"
	"scanaudit/source"
	"scanaudit/systeminfo"

	"github.com/google/uuid"
)

const SchemaVersion = "1.0"

const (
	KindBot   = "BOT"
	KindHuman = "HUMAN"
)

const (
	EmptyActivityMessage = "No security activities recorded yet."
	EmptyUsersMessage    = "No user activity recorded yet"
)

type Options struct {
	// Classifier defaults to the "bot"/"automated" markers.
	Classifier      *aggregate.Classifier
	IncludeActivity bool
	Host            *systeminfo.HostInfo
	Sources         []source.Info
	Now             func() time.Time
}

// UserSummary is a user card.
type UserSummary struct {
	Username        string   `json:"username"`
	Kind            string   `json:"kind"`
	ScanCount       int      `json:"scan_count"`
	Tools           []string `json:"tools"`
	LastActive      string   `json:"last_active"`
	LastActiveClock string   `json:"last_active_clock"`
	FindingsTotal   int      `json:"findings_total"`
	IsBot           bool     `json:"is_bot"`
}

// ActivityEntry is one row of the activity table with display defaults applied.
type ActivityEntry struct {
	Timestamp     string `json:"timestamp"`
	User          string `json:"user"`
	Script        string `json:"script"`
	Tool          string `json:"tool"`
	Target        string `json:"target"`
	Duration      string `json:"duration"`
	Findings      string `json:"findings"`
	Status        string `json:"status"`
	FindingsCount int    `json:"findings_count"`
	HasFindings   bool   `json:"has_findings"`
	StatusClass   string `json:"status_class"`
}

type Report struct {
	ID               string                    `json:"id"`
	SchemaVersion    string                    `json:"schema_version"`
	GeneratedAt      time.Time                 `json:"generated_at"`
	Host             *systeminfo.HostInfo      `json:"host,omitempty"`
	Sources          []source.Info             `json:"sources"`
	Overview         aggregate.Overview        `json:"overview"`
	Statuses         aggregate.StatusBreakdown `json:"statuses"`
	Users            []UserSummary             `json:"users"`
	ActivityIncluded bool                      `json:"activity_included"`
	Activity         []ActivityEntry           `json:"activity,omitempty"`
	Empty            bool                      `json:"empty"`
}

// Build aggregates rows (header first) into a report.
func Build(rows []auditlog.Row, opts Options) *Report {
	classifier := opts.Classifier
	if classifier == nil {
		classifier = aggregate.NewClassifier(aggregate.DefaultBotMarkers)
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	overview := aggregate.ComputeOverview(rows)
	rep := &Report{
		ID:               uuid.NewString(),
		SchemaVersion:    SchemaVersion,
		GeneratedAt:      now().UTC(),
		Host:             opts.Host,
		Sources:          opts.Sources,
		Overview:         overview,
		Statuses:         aggregate.ComputeStatusBreakdown(rows),
		Users:            summarizeUsers(classifier.ComputeUserStats(rows)),
		ActivityIncluded: opts.IncludeActivity,
		Empty:            overview.TotalScans == 0,
	}
	if rep.Sources == nil {
		rep.Sources = []source.Info{}
	}
	if opts.IncludeActivity && len(rows) > 1 {
		rep.Activity = make([]ActivityEntry, 0, len(rows)-1)
		for _, row := range rows[1:] {
			rep.Activity = append(rep.Activity, NewActivityEntry(row))
		}
	}
	return rep
}

func summarizeUsers(stats *aggregate.UserStats) []UserSummary {
	users := make([]UserSummary, 0, stats.Len())
	for _, stat := range stats.List() {
		kind := KindHuman
		if stat.IsBot {
			kind = KindBot
		}
		users = append(users, UserSummary{
			Username:        stat.Username,
			Kind:            kind,
			ScanCount:       stat.ScanCount,
			Tools:           append([]string(nil), stat.Tools...),
			LastActive:      stat.LastActive,
			LastActiveClock: auditlog.Clock(stat.LastActive),
			FindingsTotal:   stat.FindingsTotal,
			IsBot:           stat.IsBot,
		})
	}
	return users
}

// NewActivityEntry applies the table's display defaults to row.
func NewActivityEntry(row auditlog.Row) ActivityEntry {
	findings := row.Findings
	if findings == "" {
		findings = "0"
	}
	count := row.FindingsCount()
	return ActivityEntry{
		Timestamp:     row.Timestamp,
		User:          row.RawUser,
		Script:        row.Script,
		Tool:          row.Tool,
		Target:        row.Target,
		Duration:      row.Duration,
		Findings:      findings,
		Status:        row.StatusLabel(),
		FindingsCount: count,
		HasFindings:   count > 0,
		StatusClass:   string(row.StatusCategory()),
	}
}
