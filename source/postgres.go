package source

import (
	"context"
	"fmt"
	"strings"

	"scanaudit/auditlog"
	"scanaudit/config"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// auditColumns are the table columns read for each audit row, in record order.
var auditColumns = []string{"timestamp", "username", "script", "tool", "target", "duration", "findings", "status"}

// resolveDatabaseURL maps a bare postgres:// input to cfg.DatabaseURL so
// credentials can stay in SCANAUDIT_DATABASE_URL.
func resolveDatabaseURL(cfg *config.Config, input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "postgres:", "postgres://", "postgresql:", "postgresql://":
		if cfg.DatabaseURL == "" {
			return "", fmt.Errorf("database url not configured (set SCANAUDIT_DATABASE_URL)")
		}
		return cfg.DatabaseURL, nil
	}
	return input, nil
}

func loadPostgres(ctx context.Context, cfg *config.Config, input string) ([]part, error) {
	input, err := resolveDatabaseURL(cfg, input)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer pool.Close()

	query := selectQuery(cfg.DatabaseTable)
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", cfg.DatabaseTable, err)
	}
	records, err := collectRecords(rows)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cfg.DatabaseTable, err)
	}

	info := Info{
		Kind:     KindPostgres,
		Location: redact(input) + "#" + cfg.DatabaseTable,
	}
	return []part{{info: info, records: records}}, nil
}

// selectQuery reads every column as text so the rows look exactly like CSV
// records. NULLs become empty fields.
func selectQuery(table string) string {
	cols := make([]string, len(auditColumns))
	for i, col := range auditColumns {
		ident := pgx.Identifier{col}.Sanitize()
		cols[i] = fmt.Sprintf("COALESCE(%s::text, '')", ident)
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "),
		pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		pgx.Identifier{auditColumns[0]}.Sanitize(),
	)
}

func collectRecords(rows pgx.Rows) ([][]string, error) {
	defer rows.Close()
	records := [][]string{append([]string(nil), auditlog.DefaultHeader...)}
	for rows.Next() {
		record := make([]string, auditlog.FieldCount)
		dest := make([]any, auditlog.FieldCount)
		for i := range record {
			dest[i] = &record[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
