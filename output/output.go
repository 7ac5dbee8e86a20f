package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"scanaudit/config"
	"scanaudit/logger"
	"scanaudit/report"
	"scanaudit/source"
	"scanaudit/systeminfo"
)

const SchemaVersion = "1.0"

// StdoutName selects standard output instead of a file.
const StdoutName = "-"

// Metrics describes one reporting run.
type Metrics struct {
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	SourcesRequested int    `json:"sources_requested"`
	SourcesLoaded    int    `json:"sources_loaded"`
	RowsRead         int    `json:"rows_read"`
	UsersReported    int    `json:"users_reported"`
	RecordsWritten   int    `json:"records_written"`
}

// ReportHeader is the payload of the leading "report" record.
type ReportHeader struct {
	ID            string               `json:"id"`
	SchemaVersion string               `json:"report_schema_version"`
	GeneratedAt   string               `json:"generated_at"`
	Host          *systeminfo.HostInfo `json:"host,omitempty"`
	Sources       []source.Info        `json:"sources"`
	Empty         bool                 `json:"empty"`
}

type envelope struct {
	RecordType    string      `json:"record_type"`
	SchemaVersion string      `json:"schema_version"`
	Payload       interface{} `json:"payload"`
}

// Writer streams a report as typed records (json, csv) or renders it as a
// document (html, text). Every record is also mirrored to OTEL when enabled.
type Writer struct {
	out      io.Writer
	file     *os.File
	buf      *bufio.Writer
	csvw     *csv.Writer
	mu       sync.Mutex
	metrics  *Metrics
	otel     *otelLogger
	format   string
	name     string
	reportID string
	closed   bool
}

func New(cfg *config.Config, m *Metrics) (*Writer, error) {
	format := strings.ToLower(cfg.OutputFormat)
	if format == "" {
		format = "json"
	}
	w := &Writer{
		metrics: m,
		format:  format,
		name:    cfg.OutputFileName,
	}
	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}
	if err := w.open(); err != nil {
		w.otel.Shutdown()
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	if w.name == StdoutName || w.name == "" {
		w.out = os.Stdout
	} else {
		f, err := os.OpenFile(w.name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return err
		}
		w.file = f
		w.out = f
	}
	w.buf = bufio.NewWriterSize(w.out, 256*1024)
	if w.format == "csv" {
		w.csvw = csv.NewWriter(w.buf)
		if err := w.csvw.Write(csvHeader); err != nil {
			return err
		}
	}
	return nil
}

// Name is the output path, or "-" for stdout.
func (w *Writer) Name() string {
	return w.name
}

// WriteReport writes every record of rep.
func (w *Writer) WriteReport(rep *report.Report) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("output writer is closed")
	}
	w.reportID = rep.ID

	header := ReportHeader{
		ID:            rep.ID,
		SchemaVersion: rep.SchemaVersion,
		GeneratedAt:   rep.GeneratedAt.Format(time.RFC3339),
		Host:          rep.Host,
		Sources:       rep.Sources,
		Empty:         rep.Empty,
	}
	if err := w.recordLocked("report", header); err != nil {
		return err
	}
	if err := w.recordLocked("overview", rep.Overview); err != nil {
		return err
	}
	if err := w.recordLocked("status_breakdown", rep.Statuses); err != nil {
		return err
	}
	for i := range rep.Users {
		if err := w.recordLocked("user", rep.Users[i]); err != nil {
			return err
		}
	}
	for i := range rep.Activity {
		if err := w.recordLocked("activity", rep.Activity[i]); err != nil {
			return err
		}
	}
	if w.metrics != nil {
		w.metrics.UsersReported = len(rep.Users)
	}

	switch w.format {
	case "html":
		if err := report.RenderHTML(w.buf, rep); err != nil {
			return fmt.Errorf("render html: %w", err)
		}
	case "text":
		if err := report.RenderText(w.buf, rep); err != nil {
			return fmt.Errorf("render text: %w", err)
		}
	}
	return w.flush()
}

// SetMetrics replaces the run metrics written on Close. Counters maintained
// by the writer itself are carried over.
func (w *Writer) SetMetrics(m Metrics) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metrics != nil {
		m.RecordsWritten = w.metrics.RecordsWritten
		if m.UsersReported == 0 {
			m.UsersReported = w.metrics.UsersReported
		}
	}
	w.metrics = &m
}

// Close writes the metrics record, flushes and releases the output.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	var err error
	if w.metrics != nil {
		if w.metrics.EndTime == "" {
			w.metrics.EndTime = time.Now().UTC().Format(time.RFC3339)
		}
		err = w.recordLocked("metrics", w.metrics)
	}
	if ferr := w.flush(); err == nil {
		err = ferr
	}
	if w.file != nil {
		_ = w.file.Sync()
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	w.otel.Shutdown()
	return err
}

// recordLocked mirrors the record to OTEL and, for the streaming formats,
// writes it to the output.
func (w *Writer) recordLocked(recordType string, payload interface{}) error {
	w.otel.Emit(recordType, payload)
	switch w.format {
	case "csv":
		if err := w.csvw.Write(w.csvRow(recordType, payload)); err != nil {
			return err
		}
	case "json":
		if err := encodeRecord(w.buf, envelope{RecordType: recordType, SchemaVersion: SchemaVersion, Payload: payload}); err != nil {
			return err
		}
	default:
		return nil
	}
	if w.metrics != nil && recordType != "metrics" {
		w.metrics.RecordsWritten++
	}
	return nil
}

func (w *Writer) flush() error {
	if w.csvw != nil {
		w.csvw.Flush()
		if err := w.csvw.Error(); err != nil {
			return err
		}
	}
	if w.buf != nil {
		return w.buf.Flush()
	}
	return nil
}

var csvHeader = []string{
	"record_type",
	"schema_version",
	"report_id",
	"timestamp",
	"username",
	"tool",
	"status",
	"findings",
	"payload",
}

func (w *Writer) csvRow(recordType string, payload interface{}) []string {
	row := []string{recordType, SchemaVersion, w.reportID, "", "", "", "", "", jsonString(payload)}
	switch v := payload.(type) {
	case report.UserSummary:
		row[3] = v.LastActive
		row[4] = v.Username
		row[5] = strings.Join(v.Tools, ";")
		row[7] = strconv.Itoa(v.FindingsTotal)
	case report.ActivityEntry:
		row[3] = v.Timestamp
		row[4] = v.User
		row[5] = v.Tool
		row[6] = v.Status
		row[7] = strconv.Itoa(v.FindingsCount)
	case ReportHeader:
		row[3] = v.GeneratedAt
	}
	return row
}

func jsonString(value interface{}) string {
	if value == nil {
		return ""
	}
	bytes, err := jsonMarshal(value)
	if err != nil {
		return ""
	}
	return string(bytes)
}
