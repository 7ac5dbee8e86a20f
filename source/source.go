// Package source loads audit log records from local files, S3 buckets and
// Postgres tables and merges them into a single header-first record set.
package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"scanaudit/auditlog"
	"scanaudit/config"
	"scanaudit/logger"
	"scanaudit/tracing"

	"github.com/schollz/progressbar/v3"
)

type Kind string

const (
	KindFile     Kind = "file"
	KindS3       Kind = "s3"
	KindPostgres Kind = "postgres"
)

// Info describes one loaded audit log.
type Info struct {
	Kind         Kind              `json:"kind"`
	Location     string            `json:"location"`
	Rows         int               `json:"rows"`
	Bytes        int64             `json:"bytes,omitempty"`
	ModTime      string            `json:"mod_time,omitempty"`
	CreationTime string            `json:"creation_time,omitempty"`
	Hashes       map[string]string `json:"hashes,omitempty"`
}

// Batch is the merged result of Load. Records[0] is always a header row.
type Batch struct {
	Records [][]string
	Sources []Info
}

// Rows converts the merged records into audit rows, header included.
func (b *Batch) Rows() []auditlog.Row {
	return auditlog.FromRecords(b.Records)
}

// part is the content of a single log before merging.
type part struct {
	info    Info
	records [][]string
}

type loader func(ctx context.Context, cfg *config.Config, input string) ([]part, error)

// KindOf classifies an input by its scheme.
func KindOf(input string) Kind {
	lower := strings.ToLower(input)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return KindS3
	case strings.HasPrefix(lower, "postgres:"), strings.HasPrefix(lower, "postgresql:"):
		return KindPostgres
	default:
		return KindFile
	}
}

func loaderFor(kind Kind) loader {
	switch kind {
	case KindS3:
		return loadS3
	case KindPostgres:
		return loadPostgres
	default:
		return loadLocal
	}
}

// Load reads every configured input. An input that fails is logged and
// skipped; Load only fails when none of the requested inputs could be read.
func Load(ctx context.Context, cfg *config.Config) (*Batch, error) {
	bar := progressbar.NewOptions(len(cfg.Inputs),
		progressbar.OptionSetDescription("Loading audit logs"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetVisibility(progressVisible()),
		progressbar.OptionFullWidth(),
	)
	defer bar.Finish()

	var parts []part
	var failures []string
	// Overlapping inputs (a directory and a file inside it) load a log once.
	seen := make(map[string]struct{})
	for _, input := range cfg.Inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		kind := KindOf(input)
		endRegion := tracing.Region(ctx, "load."+string(kind))
		loaded, err := loaderFor(kind)(ctx, cfg, input)
		endRegion()
		_ = bar.Add(1)
		if err != nil {
			logger.WithFields(map[string]interface{}{
				"source": redact(input),
				"kind":   kind,
			}).Warnf("Skipping audit log source: %v", err)
			failures = append(failures, redact(input))
			continue
		}
		if len(loaded) == 0 {
			logger.Warnf("No audit logs found in %s", redact(input))
		}
		for _, p := range loaded {
			if _, dup := seen[p.info.Location]; dup {
				logger.Debugf("Skipping %s: already loaded by an earlier input", p.info.Location)
				continue
			}
			seen[p.info.Location] = struct{}{}
			parts = append(parts, p)
		}
	}

	if len(cfg.Inputs) > 0 && len(failures) == len(cfg.Inputs) {
		return nil, fmt.Errorf("no audit log source could be read: %s", strings.Join(failures, ", "))
	}

	batch := merge(parts)
	logger.Infof("Loaded %d audit rows from %d logs", len(batch.Records)-1, len(batch.Sources))
	return batch, nil
}

// merge keeps the first non-empty log's header and drops the header row of
// every later log.
func merge(parts []part) *Batch {
	batch := &Batch{Sources: make([]Info, 0, len(parts))}
	for _, p := range parts {
		if len(p.records) == 0 {
			p.info.Rows = 0
			batch.Sources = append(batch.Sources, p.info)
			continue
		}
		if len(batch.Records) == 0 {
			batch.Records = append(batch.Records, p.records...)
		} else {
			batch.Records = append(batch.Records, p.records[1:]...)
		}
		p.info.Rows = len(p.records) - 1
		batch.Sources = append(batch.Sources, p.info)
	}
	if len(batch.Records) == 0 {
		batch.Records = [][]string{append([]string(nil), auditlog.DefaultHeader...)}
	}
	return batch
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("SCANAUDIT_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}

// redact hides credentials embedded in connection URLs.
func redact(input string) string {
	scheme, rest, ok := strings.Cut(input, "://")
	if !ok {
		return input
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok || strings.Contains(creds, "/") {
		return input
	}
	return scheme + "://***@" + host
}
