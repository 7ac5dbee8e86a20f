// Package aggregate folds audit log rows into overview metrics and per-user
// activity statistics.
//
// Every function takes the full row sequence as read from the log: element 0
// is the header row and is never counted. All functions are pure.
package aggregate

import (
	"math"
	"strings"

	"scanaudit/auditlog"
)

// Overview holds the headline compliance metrics.
type Overview struct {
	TotalScans    int `json:"total_scans"`
	UniqueUsers   int `json:"unique_users"`
	TotalFindings int `json:"total_findings"`
	// ComplianceScore is a percentage in [0,100] without the unit.
	ComplianceScore int `json:"compliance_score"`
}

// StatusBreakdown counts data rows per status category.
type StatusBreakdown struct {
	Success int `json:"success"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Unknown int `json:"unknown"`
}

// dataRows drops the header row.
func dataRows(rows []auditlog.Row) []auditlog.Row {
	if len(rows) <= 1 {
		return nil
	}
	return rows[1:]
}

// ComputeOverview derives the overview metrics from rows.
func ComputeOverview(rows []auditlog.Row) Overview {
	data := dataRows(rows)

	users := make(map[string]struct{}, len(data))
	var findings, successful int
	for _, row := range data {
		if name := row.Username(); name != "" {
			users[name] = struct{}{}
		}
		findings = AddFindings(findings, row.FindingsCount())
		if row.IsSuccess() {
			successful++
		}
	}

	return Overview{
		TotalScans:      len(data),
		UniqueUsers:     len(users),
		TotalFindings:   findings,
		ComplianceScore: ComplianceScore(successful, len(data)),
	}
}

// AddFindings adds two non-negative findings counts, saturating at math.MaxInt.
func AddFindings(total, n int) int {
	if n > math.MaxInt-total {
		return math.MaxInt
	}
	return total + n
}

// ComplianceScore returns successful/total as a percentage rounded half up,
// or 0 when total is not positive.
func ComplianceScore(successful, total int) int {
	if total <= 0 {
		return 0
	}
	if successful < 0 {
		successful = 0
	}
	if successful > total {
		successful = total
	}
	return (successful*200 + total) / (2 * total)
}

// ComputeStatusBreakdown counts data rows per status category.
func ComputeStatusBreakdown(rows []auditlog.Row) StatusBreakdown {
	var b StatusBreakdown
	for _, row := range dataRows(rows) {
		switch row.StatusCategory() {
		case auditlog.CategorySuccess:
			b.Success++
		case auditlog.CategoryWarning:
			b.Warning++
		case auditlog.CategoryError:
			b.Error++
		default:
			b.Unknown++
		}
	}
	return b
}

// ComputeUserStats groups rows by username using the default bot classifier.
func ComputeUserStats(rows []auditlog.Row) *UserStats {
	return defaultClassifier.ComputeUserStats(rows)
}

// ComputeUserStats groups rows by username. Rows without a username, or with a
// whitespace-only one, are skipped.
func (c *Classifier) ComputeUserStats(rows []auditlog.Row) *UserStats {
	stats := newUserStats()
	for _, row := range dataRows(rows) {
		name := row.Username()
		if strings.TrimSpace(name) == "" {
			continue
		}
		stat, ok := stats.byName[name]
		if !ok {
			stat = &UserStat{
				Username:   name,
				Tools:      []string{},
				LastActive: row.Timestamp,
				IsBot:      c.IsBot(name),
				toolSet:    make(map[string]struct{}),
			}
			stats.add(stat)
		}
		stat.record(row)
	}
	return stats
}
