package auditlog

import (
	"strconv"
	"strings"
)

// FieldCount is the number of fields in an audit log row.
const FieldCount = 8

const (
	StatusSuccess = "SUCCESS"
	StatusWarning = "WARNING"
	StatusError   = "ERROR"
)

// StatusCategory groups raw status values for display.
type StatusCategory string

const (
	CategorySuccess StatusCategory = "success"
	CategoryWarning StatusCategory = "warning"
	CategoryError   StatusCategory = "error"
	CategoryUnknown StatusCategory = "unknown"
)

const (
	unknownTool   = "unknown"
	unknownStatus = "UNKNOWN"
	unknownClock  = "Unknown"
	userIDMarker  = " ("
)

// DefaultHeader is the header row written by the audited scan wrappers.
var DefaultHeader = []string{"Timestamp", "User", "Script", "Tool", "Target", "Duration", "Findings", "Status"}

// Row is one audit log entry.
type Row struct {
	Timestamp string `json:"timestamp"`
	RawUser   string `json:"user"`
	Script    string `json:"script"`
	Tool      string `json:"tool"`
	Target    string `json:"target"`
	Duration  string `json:"duration"`
	Findings  string `json:"findings"`
	Status    string `json:"status"`
}

// FromRecord maps a raw record onto a Row. Missing trailing fields stay empty
// and fields past the eighth are ignored.
func FromRecord(record []string) Row {
	field := func(i int) string {
		if i < len(record) {
			return record[i]
		}
		return ""
	}
	return Row{
		Timestamp: field(0),
		RawUser:   field(1),
		Script:    field(2),
		Tool:      field(3),
		Target:    field(4),
		Duration:  field(5),
		Findings:  field(6),
		Status:    field(7),
	}
}

// FromRecords converts every record, header included.
func FromRecords(records [][]string) []Row {
	rows := make([]Row, len(records))
	for i, record := range records {
		rows[i] = FromRecord(record)
	}
	return rows
}

// Record returns the row as a raw record in column order.
func (r Row) Record() []string {
	return []string{r.Timestamp, r.RawUser, r.Script, r.Tool, r.Target, r.Duration, r.Findings, r.Status}
}

// Username is the raw user with the " (<id>)" trailer removed.
func (r Row) Username() string {
	return Username(r.RawUser)
}

// Username returns the part of raw before the first " (".
func Username(raw string) string {
	if i := strings.Index(raw, userIDMarker); i >= 0 {
		return raw[:i]
	}
	return raw
}

// FindingsCount parses the findings column. It never returns a negative value.
func (r Row) FindingsCount() int {
	return ParseFindings(r.Findings)
}

// ParseFindings reads the leading decimal digits of s. Empty, non-numeric,
// negative and overflowing values yield 0.
func ParseFindings(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ToolOrUnknown returns the tool name, or "unknown" when the column is empty.
func (r Row) ToolOrUnknown() string {
	if r.Tool == "" {
		return unknownTool
	}
	return r.Tool
}

// IsSuccess reports whether the row recorded a successful scan.
func (r Row) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// StatusCategory classifies the raw status. Matching is exact.
func (r Row) StatusCategory() StatusCategory {
	switch r.Status {
	case StatusSuccess:
		return CategorySuccess
	case StatusWarning:
		return CategoryWarning
	case StatusError:
		return CategoryError
	default:
		return CategoryUnknown
	}
}

// StatusLabel is the status as displayed, "UNKNOWN" when empty.
func (r Row) StatusLabel() string {
	if r.Status == "" {
		return unknownStatus
	}
	return r.Status
}

// Clock returns the time-of-day part of the timestamp.
func (r Row) Clock() string {
	return Clock(r.Timestamp)
}

// Clock returns the second space-separated token of ts, or "Unknown".
func Clock(ts string) string {
	_, rest, ok := strings.Cut(ts, " ")
	if !ok {
		return unknownClock
	}
	clock, _, _ := strings.Cut(rest, " ")
	if clock == "" {
		return unknownClock
	}
	return clock
}
