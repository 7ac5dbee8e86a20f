package output

import (
	"fmt"

	"scanaudit/report"

	"github.com/prometheus/client_golang/prometheus"
)

// WriteMetricsFile writes rep as Prometheus gauges in the node_exporter
// textfile format. The file is replaced atomically.
func WriteMetricsFile(path string, rep *report.Report) error {
	reg := prometheus.NewRegistry()

	scans := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanaudit_scans_total",
		Help: "Audited security scans in the report.",
	})
	users := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanaudit_unique_users",
		Help: "Distinct users that ran audited scans.",
	})
	findings := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanaudit_findings_total",
		Help: "Findings reported across all scans.",
	})
	score := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanaudit_compliance_score",
		Help: "Percentage of scans that completed successfully.",
	})
	statuses := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scanaudit_scans_by_status",
		Help: "Audited scans per status category.",
	}, []string{"status"})
	userScans := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scanaudit_user_scans",
		Help: "Audited scans per user.",
	}, []string{"user", "kind"})
	userFindings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scanaudit_user_findings",
		Help: "Findings per user.",
	}, []string{"user", "kind"})
	generated := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanaudit_report_generated_timestamp_seconds",
		Help: "Unix time the report was generated.",
	})

	for _, c := range []prometheus.Collector{scans, users, findings, score, statuses, userScans, userFindings, generated} {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("register metric: %w", err)
		}
	}

	scans.Set(float64(rep.Overview.TotalScans))
	users.Set(float64(rep.Overview.UniqueUsers))
	findings.Set(float64(rep.Overview.TotalFindings))
	score.Set(float64(rep.Overview.ComplianceScore))
	statuses.WithLabelValues("success").Set(float64(rep.Statuses.Success))
	statuses.WithLabelValues("warning").Set(float64(rep.Statuses.Warning))
	statuses.WithLabelValues("error").Set(float64(rep.Statuses.Error))
	statuses.WithLabelValues("unknown").Set(float64(rep.Statuses.Unknown))
	for _, u := range rep.Users {
		userScans.WithLabelValues(u.Username, u.Kind).Set(float64(u.ScanCount))
		userFindings.WithLabelValues(u.Username, u.Kind).Set(float64(u.FindingsTotal))
	}
	generated.Set(float64(rep.GeneratedAt.Unix()))

	return prometheus.WriteToTextfile(path, reg)
}
