package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scanaudit/version"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Inputs              []string          `json:"inputs" yaml:"inputs"`
	IncludePatterns     []string          `json:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns     []string          `json:"exclude_patterns" yaml:"exclude_patterns"`
	OutputFormat        string            `json:"output_format" yaml:"output_format"`
	OutputFileName      string            `json:"output_file_name" yaml:"output_file_name"`
	LogLevel            string            `json:"log_level" yaml:"log_level"`
	ConfigFile          string            `json:"config_file" yaml:"config_file"`
	BotMarkers          []string          `json:"bot_markers" yaml:"bot_markers"`
	IncludeActivity     bool              `json:"include_activity" yaml:"include_activity"`
	CollectSystemInfo   bool              `json:"collect_system_info" yaml:"collect_system_info"`
	HashAlgorithms      []string          `json:"hash_algorithms" yaml:"hash_algorithms"`
	S3Endpoint          string            `json:"s3_endpoint" yaml:"s3_endpoint"`
	S3AccessKey         string            `json:"-" yaml:"-"`
	S3SecretKey         string            `json:"-" yaml:"-"`
	S3UseSSL            bool              `json:"s3_use_ssl" yaml:"s3_use_ssl"`
	S3Region            string            `json:"s3_region" yaml:"s3_region"`
	S3RequestsPerSecond int               `json:"s3_requests_per_second" yaml:"s3_requests_per_second"`
	DatabaseURL         string            `json:"-" yaml:"-"`
	DatabaseTable       string            `json:"database_table" yaml:"database_table"`
	MetricsFile         string            `json:"metrics_file" yaml:"metrics_file"`
	NatsURL             string            `json:"nats_url" yaml:"nats_url"`
	NatsSubject         string            `json:"nats_subject" yaml:"nats_subject"`
	NatsTimeout         time.Duration     `json:"nats_timeout" yaml:"nats_timeout"`
	OtelEndpoint        string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelFromEnv         bool              `json:"otel_from_env" yaml:"otel_from_env"`
	OtelHeaders         map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName     string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout         time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
	OtelExportTargets   bool              `json:"otel_export_targets" yaml:"otel_export_targets"`
	OtelExportUserIDs   bool              `json:"otel_export_user_ids" yaml:"otel_export_user_ids"`
}

const (
	envPrefix         = "SCANAUDIT_"
	defaultNatsSubj   = "scanaudit.reports"
	defaultDBTable    = "audit_log"
	defaultOtelName   = "scanaudit"
	defaultS3Requests = 50
)

var supportedFormats = []string{"json", "csv", "html", "text"}
var supportedHashes = []string{"md5", "sha1", "sha256", "blake3", "xxh64"}

// Default returns the configuration used before any file or flag is applied.
func Default() *Config {
	now := time.Now().UTC()
	timestamp := now.Format("20060102-150405")
	return &Config{
		Inputs:              []string{"."},
		IncludePatterns:     []string{"*.csv", "*.csv.gz"},
		ExcludePatterns:     []string{},
		OutputFormat:        "json",
		OutputFileName:      fmt.Sprintf("scanaudit-%s-%d.ndjson", timestamp, now.Unix()),
		LogLevel:            "info",
		BotMarkers:          []string{"bot", "automated"},
		IncludeActivity:     true,
		CollectSystemInfo:   true,
		HashAlgorithms:      []string{"sha256"},
		S3Endpoint:          getenv("S3_ENDPOINT", ""),
		S3AccessKey:         getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:         getenv("S3_SECRET_KEY", ""),
		S3UseSSL:            getenvBool("S3_USE_SSL", true),
		S3Region:            getenv("S3_REGION", ""),
		S3RequestsPerSecond: defaultS3Requests,
		DatabaseURL:         getenv("DATABASE_URL", ""),
		DatabaseTable:       defaultDBTable,
		NatsSubject:         defaultNatsSubj,
		NatsTimeout:         10 * time.Second,
		OtelHeaders:         map[string]string{},
		OtelServiceName:     defaultOtelName,
		OtelTimeout:         5 * time.Second,
	}
}

func LoadConfig() (*Config, error) {
	// Secrets usually live in a local .env next to the audit logs.
	_ = godotenv.Load(".env")

	cfg := Default()

	inputs := flag.String("input", strings.Join(cfg.Inputs, ","), fmt.Sprintf("Comma-separated audit log inputs: files, directories, s3://bucket/prefix or postgres:// URLs; a bare postgres:// uses $SCANAUDIT_DATABASE_URL (default: %s).", strings.Join(cfg.Inputs, ",")))
	includes := flag.String("include", strings.Join(cfg.IncludePatterns, ","), fmt.Sprintf("Comma-separated include patterns for directory inputs (default: %s).", strings.Join(cfg.IncludePatterns, ",")))
	excludes := flag.String("exclude", "", "Comma-separated exclude patterns for directory inputs (default: none).")
	format := flag.String("format", cfg.OutputFormat, fmt.Sprintf("Output format: %s (default: %s).", strings.Join(supportedFormats, ", "), cfg.OutputFormat))
	output := flag.String("output", cfg.OutputFileName, "Output file name, or - for stdout (default: scanaudit-<timestamp>-<unix>.ndjson).")
	logLevel := flag.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	configFile := flag.String("config", "", "Path to JSON or YAML configuration file (default: none).")
	botMarkers := flag.String("bot-markers", strings.Join(cfg.BotMarkers, ","), fmt.Sprintf("Comma-separated username substrings that mark automation accounts (default: %s).", strings.Join(cfg.BotMarkers, ",")))
	includeActivity := flag.Bool("include-activity", cfg.IncludeActivity, fmt.Sprintf("Include the per-row activity table in the report (default: %t).", cfg.IncludeActivity))
	collectSystemInfo := flag.Bool("collect-system-info", cfg.CollectSystemInfo, fmt.Sprintf("Record host information in the report (default: %t).", cfg.CollectSystemInfo))
	hashes := flag.String("hashes", strings.Join(cfg.HashAlgorithms, ","), fmt.Sprintf("Comma-separated hash algorithms for source fingerprints: %s (default: %s).", strings.Join(supportedHashes, ", "), strings.Join(cfg.HashAlgorithms, ",")))
	s3Endpoint := flag.String("s3-endpoint", cfg.S3Endpoint, "S3 endpoint (host:port) for s3:// inputs (default: $SCANAUDIT_S3_ENDPOINT).")
	s3UseSSL := flag.Bool("s3-use-ssl", cfg.S3UseSSL, fmt.Sprintf("Use TLS for the S3 endpoint (default: %t).", cfg.S3UseSSL))
	s3Region := flag.String("s3-region", cfg.S3Region, "S3 region (default: none).")
	s3RPS := flag.Int("s3-requests-per-second", cfg.S3RequestsPerSecond, fmt.Sprintf("Maximum S3 object requests per second, 0 for unlimited (default: %d).", cfg.S3RequestsPerSecond))
	dbTable := flag.String("db-table", cfg.DatabaseTable, fmt.Sprintf("Table holding audit rows for postgres:// inputs (default: %s).", cfg.DatabaseTable))
	metricsFile := flag.String("metrics-file", cfg.MetricsFile, "Write Prometheus textfile metrics to this path (default: none).")
	natsURL := flag.String("nats-url", cfg.NatsURL, "Publish the summary to this NATS server (default: none).")
	natsSubject := flag.String("nats-subject", cfg.NatsSubject, fmt.Sprintf("NATS subject for the summary (default: %s).", cfg.NatsSubject))
	natsTimeout := flag.Duration("nats-timeout", cfg.NatsTimeout, "NATS connect and flush timeout (default: 10s).")
	otelEndpoint := flag.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint (default: none).")
	otelFromEnv := flag.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := flag.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := flag.String("otel-service-name", cfg.OtelServiceName, fmt.Sprintf("OTEL service name for export (default: %s).", cfg.OtelServiceName))
	otelTimeout := flag.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	otelExportTargets := flag.Bool("otel-export-targets", cfg.OtelExportTargets, "Include scan targets in OTEL payloads (default: false).")
	otelExportUserIDs := flag.Bool("otel-export-user-ids", cfg.OtelExportUserIDs, "Include raw user ids in OTEL payloads (default: false).")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = displayHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("scanaudit version %s\n", version.Version)
		os.Exit(0)
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Inputs = parseCommaSeparated(*inputs)
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "format":
			cfg.OutputFormat = *format
		case "output":
			cfg.OutputFileName = *output
		case "log-level":
			cfg.LogLevel = *logLevel
		case "bot-markers":
			cfg.BotMarkers = parseCommaSeparated(*botMarkers)
		case "include-activity":
			cfg.IncludeActivity = *includeActivity
		case "collect-system-info":
			cfg.CollectSystemInfo = *collectSystemInfo
		case "hashes":
			cfg.HashAlgorithms = parseCommaSeparated(*hashes)
		case "s3-endpoint":
			cfg.S3Endpoint = strings.TrimSpace(*s3Endpoint)
		case "s3-use-ssl":
			cfg.S3UseSSL = *s3UseSSL
		case "s3-region":
			cfg.S3Region = strings.TrimSpace(*s3Region)
		case "s3-requests-per-second":
			cfg.S3RequestsPerSecond = *s3RPS
		case "db-table":
			cfg.DatabaseTable = strings.TrimSpace(*dbTable)
		case "metrics-file":
			cfg.MetricsFile = strings.TrimSpace(*metricsFile)
		case "nats-url":
			cfg.NatsURL = strings.TrimSpace(*natsURL)
		case "nats-subject":
			cfg.NatsSubject = strings.TrimSpace(*natsSubject)
		case "nats-timeout":
			cfg.NatsTimeout = *natsTimeout
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "otel-export-targets":
			cfg.OtelExportTargets = *otelExportTargets
		case "otel-export-user-ids":
			cfg.OtelExportUserIDs = *otelExportUserIDs
		}
	})

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func displayHelp() {
	fmt.Println("scanaudit - Security scan audit log reporter")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  scanaudit [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  scanaudit --input audit-logs/ --format html --output compliance.html")
	fmt.Println("  scanaudit --input audit.csv --format text --output -")
	fmt.Println("  scanaudit --input s3://audit-bucket/scans/ --metrics-file /var/lib/node_exporter/scanaudit.prom")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %v", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %v", err)
		}
	}
	return nil
}

func (cfg *Config) normalize() {
	cfg.OutputFormat = strings.ToLower(strings.TrimSpace(cfg.OutputFormat))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.HashAlgorithms = normalizeAlgorithms(cfg.HashAlgorithms)
	cfg.Inputs = dropEmpty(cfg.Inputs)
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "json"
	}
	if cfg.NatsSubject == "" {
		cfg.NatsSubject = defaultNatsSubj
	}
	if cfg.DatabaseTable == "" {
		cfg.DatabaseTable = defaultDBTable
	}
	if cfg.OtelServiceName == "" {
		cfg.OtelServiceName = defaultOtelName
	}
	if cfg.OtelHeaders == nil {
		cfg.OtelHeaders = map[string]string{}
	}
	if len(cfg.Inputs) == 0 {
		cfg.Inputs = []string{"."}
	}
	// Keep the default file name's extension in line with the chosen format.
	if strings.HasPrefix(filepath.Base(cfg.OutputFileName), "scanaudit-") && strings.HasSuffix(cfg.OutputFileName, ".ndjson") {
		if ext := FormatExtension(cfg.OutputFormat); ext != ".ndjson" {
			cfg.OutputFileName = strings.TrimSuffix(cfg.OutputFileName, ".ndjson") + ext
		}
	}
}

// FormatExtension returns the file extension conventionally used for format.
func FormatExtension(format string) string {
	switch format {
	case "csv":
		return ".csv"
	case "html":
		return ".html"
	case "text":
		return ".txt"
	default:
		return ".ndjson"
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Inputs) == 0 {
		return fmt.Errorf("at least one --input must be specified")
	}
	if !containsString(supportedFormats, cfg.OutputFormat) {
		return fmt.Errorf("invalid output format: %s (supported: %s)", cfg.OutputFormat, strings.Join(supportedFormats, ", "))
	}
	if strings.TrimSpace(cfg.OutputFileName) == "" {
		return fmt.Errorf("output file name must not be empty")
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	for _, algo := range cfg.HashAlgorithms {
		if !containsString(supportedHashes, algo) {
			return fmt.Errorf("unsupported hash algorithm: %s", algo)
		}
	}
	if cfg.S3RequestsPerSecond < 0 {
		return fmt.Errorf("s3-requests-per-second must be zero or positive")
	}
	if cfg.NatsTimeout < 0 {
		return fmt.Errorf("nats-timeout must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if cfg.NatsURL != "" && !strings.Contains(cfg.NatsURL, "://") {
		return fmt.Errorf("nats-url must include scheme (nats, tls or ws)")
	}
	if !validIdentifier(cfg.DatabaseTable) {
		return fmt.Errorf("invalid db-table value: %s", cfg.DatabaseTable)
	}
	return nil
}

// validIdentifier accepts plain or schema-qualified SQL identifiers.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for _, part := range strings.Split(name, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	switch strings.ToLower(getenv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return items
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}

func normalizeAlgorithms(items []string) []string {
	normalized := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" || containsString(normalized, item) {
			continue
		}
		normalized = append(normalized, item)
	}
	return normalized
}

func dropEmpty(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func containsString(items []string, value string) bool {
	for _, item := range items {
		if item == value {
			return true
		}
	}
	return false
}
