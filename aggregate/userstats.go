package aggregate

import (
	"iter"

	"scanaudit/auditlog"
)

// UserStat is the activity summary for one username.
type UserStat struct {
	Username  string `json:"username"`
	ScanCount int    `json:"scan_count"`
	// Tools lists each tool once, in the order it was first seen.
	Tools []string `json:"tools"`
	// LastActive is the lexically greatest timestamp seen for the user.
	LastActive    string `json:"last_active"`
	FindingsTotal int    `json:"findings_total"`
	IsBot         bool   `json:"is_bot"`

	toolSet map[string]struct{}
}

func (s *UserStat) record(row auditlog.Row) {
	s.ScanCount++
	tool := row.ToolOrUnknown()
	if _, seen := s.toolSet[tool]; !seen {
		s.toolSet[tool] = struct{}{}
		s.Tools = append(s.Tools, tool)
	}
	s.FindingsTotal = AddFindings(s.FindingsTotal, row.FindingsCount())
	if row.Timestamp > s.LastActive {
		s.LastActive = row.Timestamp
	}
}

// UserStats maps usernames to their stats, preserving first-appearance order.
type UserStats struct {
	order  []string
	byName map[string]*UserStat
}

func newUserStats() *UserStats {
	return &UserStats{byName: make(map[string]*UserStat)}
}

func (u *UserStats) add(stat *UserStat) {
	u.order = append(u.order, stat.Username)
	u.byName[stat.Username] = stat
}

// Len returns the number of users.
func (u *UserStats) Len() int {
	if u == nil {
		return 0
	}
	return len(u.order)
}

// Empty reports whether no user activity was recorded. Callers render an
// explicit "no data" state in that case.
func (u *UserStats) Empty() bool {
	return u.Len() == 0
}

// Get returns the stats for username.
func (u *UserStats) Get(username string) (*UserStat, bool) {
	if u == nil {
		return nil, false
	}
	stat, ok := u.byName[username]
	return stat, ok
}

// Names returns the usernames in first-appearance order.
func (u *UserStats) Names() []string {
	if u == nil {
		return nil
	}
	return append([]string(nil), u.order...)
}

// All iterates users in first-appearance order.
func (u *UserStats) All() iter.Seq2[string, *UserStat] {
	return func(yield func(string, *UserStat) bool) {
		if u == nil {
			return
		}
		for _, name := range u.order {
			if !yield(name, u.byName[name]) {
				return
			}
		}
	}
}

// List returns the stats in first-appearance order.
func (u *UserStats) List() []*UserStat {
	out := make([]*UserStat, 0, u.Len())
	for _, stat := range u.All() {
		out = append(out, stat)
	}
	return out
}

// FindingsTotal sums findings across all users.
func (u *UserStats) FindingsTotal() int {
	total := 0
	for _, stat := range u.All() {
		total = AddFindings(total, stat.FindingsTotal)
	}
	return total
}
