package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"scanaudit/auditlog"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	colorBlue   = lipgloss.Color("#3498db")
	colorPurple = lipgloss.Color("#9b59b6")
	colorGreen  = lipgloss.Color("#27ae60")
	colorOrange = lipgloss.Color("#f39c12")
	colorRed    = lipgloss.Color("#e74c3c")
	colorGrey   = lipgloss.Color("#7f8c8d")
)

var activityHeaders = []string{"Timestamp", "User", "Script", "Tool", "Target", "Duration", "Findings", "Status"}

// RenderText writes a terminal summary of rep. Colors are only emitted when w
// is a terminal that supports them.
func RenderText(w io.Writer, rep *Report) error {
	r := lipgloss.NewRenderer(w)
	title := r.NewStyle().Bold(true).Foreground(colorBlue)
	section := r.NewStyle().Bold(true).MarginTop(1)
	muted := r.NewStyle().Foreground(colorGrey)

	var b strings.Builder
	b.WriteString(title.Render("Security Scan Compliance Report"))
	b.WriteString("\n")
	b.WriteString(muted.Render(fmt.Sprintf("Generated %s  report %s", rep.GeneratedAt.Format("2006-01-02 15:04:05 MST"), rep.ID)))
	b.WriteString("\n")
	if rep.Host != nil {
		b.WriteString(muted.Render(fmt.Sprintf("Host %s (%s %s %s)", rep.Host.Hostname, rep.Host.Platform, rep.Host.PlatformVersion, rep.Host.KernelArch)))
		b.WriteString("\n")
	}
	for _, src := range rep.Sources {
		b.WriteString(muted.Render(fmt.Sprintf("Source %s %s (%d rows)", src.Kind, src.Location, src.Rows)))
		b.WriteString("\n")
	}

	b.WriteString(section.Render("Overview"))
	b.WriteString("\n")
	b.WriteString(overviewTable(r, rep).String())
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Status: %d success, %d warning, %d error, %d unknown\n",
		rep.Statuses.Success, rep.Statuses.Warning, rep.Statuses.Error, rep.Statuses.Unknown))

	if rep.ActivityIncluded || rep.Empty {
		b.WriteString(section.Render("Recent Activity"))
		b.WriteString("\n")
		if len(rep.Activity) == 0 {
			b.WriteString(muted.Render(EmptyActivityMessage))
		} else {
			b.WriteString(activityTable(r, rep.Activity).String())
		}
		b.WriteString("\n")
	}

	b.WriteString(section.Render("User Summary"))
	b.WriteString("\n")
	if len(rep.Users) == 0 {
		b.WriteString(muted.Render(EmptyUsersMessage))
		b.WriteString("\n")
	}
	for _, u := range rep.Users {
		badge := r.NewStyle().Bold(true).Foreground(colorGreen)
		if u.IsBot {
			badge = badge.Foreground(colorPurple)
		}
		b.WriteString(fmt.Sprintf("%s %s\n", r.NewStyle().Bold(true).Render(u.Username), badge.Render("["+u.Kind+"]")))
		b.WriteString(fmt.Sprintf("  %d scans, last %s, tools %s, %d findings\n",
			u.ScanCount, u.LastActiveClock, strings.Join(u.Tools, ", "), u.FindingsTotal))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func overviewTable(r *lipgloss.Renderer, rep *Report) *table.Table {
	score := r.NewStyle().Foreground(scoreColor(rep.Overview.ComplianceScore))
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(colorGrey)).
		Headers("Total Scans", "Active Users", "Findings", "Compliance").
		Row(
			strconv.Itoa(rep.Overview.TotalScans),
			strconv.Itoa(rep.Overview.UniqueUsers),
			strconv.Itoa(rep.Overview.TotalFindings),
			score.Render(fmt.Sprintf("%d%%", rep.Overview.ComplianceScore)),
		).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := r.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		})
}

func activityTable(r *lipgloss.Renderer, entries []ActivityEntry) *table.Table {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Timestamp, e.User, e.Script, e.Tool, e.Target, e.Duration, e.Findings, e.Status})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(r.NewStyle().Foreground(colorGrey)).
		Headers(activityHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := r.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			if row < 0 || row >= len(entries) {
				return s
			}
			e := entries[row]
			switch col {
			case 3:
				return s.Foreground(colorBlue)
			case 6:
				if e.HasFindings {
					return s.Foreground(colorOrange)
				}
				return s.Foreground(colorGreen)
			case 7:
				return s.Foreground(statusColor(e.StatusClass))
			}
			return s
		})
}

func statusColor(class string) lipgloss.Color {
	switch auditlog.StatusCategory(class) {
	case auditlog.CategorySuccess:
		return colorGreen
	case auditlog.CategoryWarning:
		return colorOrange
	case auditlog.CategoryError:
		return colorRed
	default:
		return colorGrey
	}
}

func scoreColor(score int) lipgloss.Color {
	switch {
	case score >= 90:
		return colorGreen
	case score >= 70:
		return colorOrange
	default:
		return colorRed
	}
}
