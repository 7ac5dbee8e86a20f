package output

import (
	"encoding/json"
	"fmt"
	"time"

	"scanaudit/aggregate"
	"scanaudit/config"
	"scanaudit/logger"
	"scanaudit/report"

	"github.com/nats-io/nats.go"
)

const defaultNatsTimeout = 10 * time.Second

// Summary is the message published to NATS after each run.
type Summary struct {
	ReportID    string                    `json:"report_id"`
	GeneratedAt string                    `json:"generated_at"`
	Hostname    string                    `json:"hostname,omitempty"`
	Overview    aggregate.Overview        `json:"overview"`
	Statuses    aggregate.StatusBreakdown `json:"statuses"`
	Users       []report.UserSummary      `json:"users"`
}

func NewSummary(rep *report.Report) Summary {
	s := Summary{
		ReportID:    rep.ID,
		GeneratedAt: rep.GeneratedAt.Format(time.RFC3339),
		Overview:    rep.Overview,
		Statuses:    rep.Statuses,
		Users:       rep.Users,
	}
	if rep.Host != nil {
		s.Hostname = rep.Host.Hostname
	}
	if s.Users == nil {
		s.Users = []report.UserSummary{}
	}
	return s
}

// PublishSummary sends the report summary to cfg.NatsSubject. It is a no-op
// when no NATS URL is configured.
func PublishSummary(cfg *config.Config, rep *report.Report) error {
	if cfg.NatsURL == "" {
		return nil
	}
	timeout := cfg.NatsTimeout
	if timeout <= 0 {
		timeout = defaultNatsTimeout
	}
	data, err := json.Marshal(NewSummary(rep))
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	nc, err := nats.Connect(cfg.NatsURL, nats.Name("scanaudit"), nats.Timeout(timeout))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NatsURL, err)
	}
	defer nc.Close()

	if err := nc.Publish(cfg.NatsSubject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", cfg.NatsSubject, err)
	}
	if err := nc.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flush to %s: %w", cfg.NatsSubject, err)
	}
	logger.Infof("Published report summary to NATS subject %s", cfg.NatsSubject)
	return nil
}
