package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetFlags(t *testing.T, args ...string) {
	t.Helper()
	oldArgs := os.Args
	oldFlag := flag.CommandLine
	t.Cleanup(func() {
		os.Args = oldArgs
		flag.CommandLine = oldFlag
	})
	flag.CommandLine = flag.NewFlagSet("cmd", flag.ExitOnError)
	os.Args = append([]string{"cmd"}, args...)
}

func validConfig() *Config {
	cfg := Default()
	cfg.normalize()
	return cfg
}

func TestParseCommaSeparated(t *testing.T) {
	res := parseCommaSeparated("a,b , c")
	if len(res) != 3 || res[1] != "b" {
		t.Fatalf("unexpected result: %v", res)
	}
	if res := parseCommaSeparated(""); len(res) != 0 {
		t.Fatalf("expected empty slice")
	}
}

func TestParseHeaders(t *testing.T) {
	res := parseHeaders("Authorization=Bearer a=b, Env = prod,broken,=x")
	if len(res) != 2 || res["Authorization"] != "Bearer a=b" || res["Env"] != "prod" {
		t.Fatalf("unexpected headers: %v", res)
	}
	if res := parseHeaders(""); len(res) != 0 {
		t.Fatalf("expected empty map")
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.json")
	content := `{"inputs":["/var/log/scan-audit"],"include_activity":false,"bot_markers":["svc-"],"nats_timeout":2000000000}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := Default()
	if err := cfg.loadFromFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Inputs[0] != "/var/log/scan-audit" || cfg.IncludeActivity {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if len(cfg.BotMarkers) != 1 || cfg.BotMarkers[0] != "svc-" {
		t.Fatalf("unexpected bot markers: %v", cfg.BotMarkers)
	}
	if cfg.NatsTimeout != 2*time.Second {
		t.Fatalf("unexpected nats timeout: %v", cfg.NatsTimeout)
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	content := "inputs:\n  - s3://audit/scans/\noutput_format: html\ndatabase_table: audit.scan_log\nhash_algorithms: [sha1, xxh64]\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg := Default()
	if err := cfg.loadFromFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Inputs[0] != "s3://audit/scans/" || cfg.OutputFormat != "html" || cfg.DatabaseTable != "audit.scan_log" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if strings.Join(cfg.HashAlgorithms, ",") != "sha1,xxh64" {
		t.Fatalf("unexpected hashes: %v", cfg.HashAlgorithms)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := Default()
	if err := cfg.loadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := cfg.loadFromFile(path); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"no inputs":      func(c *Config) { c.Inputs = nil },
		"format":         func(c *Config) { c.OutputFormat = "xml" },
		"output name":    func(c *Config) { c.OutputFileName = " " },
		"log level":      func(c *Config) { c.LogLevel = "bad" },
		"hash":           func(c *Config) { c.HashAlgorithms = []string{"crc32"} },
		"s3 rate":        func(c *Config) { c.S3RequestsPerSecond = -1 },
		"nats timeout":   func(c *Config) { c.NatsTimeout = -time.Second },
		"otel timeout":   func(c *Config) { c.OtelTimeout = -time.Second },
		"otel endpoint":  func(c *Config) { c.OtelEndpoint = "localhost:4318" },
		"nats url":       func(c *Config) { c.NatsURL = "localhost:4222" },
		"table":          func(c *Config) { c.DatabaseTable = "audit; drop table x" },
		"empty schema":   func(c *Config) { c.DatabaseTable = ".audit" },
		"leading number": func(c *Config) { c.DatabaseTable = "1audit" },
	}
	for name, mutate := range cases {
		cfg := validConfig()
		mutate(cfg)
		if err := cfg.validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestNormalize(t *testing.T) {
	cfg := &Config{
		Inputs:         []string{" ", ""},
		OutputFormat:   " TEXT ",
		OutputFileName: "scanaudit-20251113-190000-1763060400.ndjson",
		LogLevel:       "DEBUG",
		HashAlgorithms: []string{"SHA256", "sha256", " blake3 "},
	}
	cfg.normalize()
	if cfg.OutputFormat != "text" || cfg.LogLevel != "debug" {
		t.Fatalf("expected lowercased format and level: %+v", cfg)
	}
	if cfg.OutputFileName != "scanaudit-20251113-190000-1763060400.txt" {
		t.Fatalf("unexpected output name: %s", cfg.OutputFileName)
	}
	if strings.Join(cfg.HashAlgorithms, ",") != "sha256,blake3" {
		t.Fatalf("unexpected hashes: %v", cfg.HashAlgorithms)
	}
	if len(cfg.Inputs) != 1 || cfg.Inputs[0] != "." {
		t.Fatalf("expected default input, got %v", cfg.Inputs)
	}
	if cfg.NatsSubject != defaultNatsSubj || cfg.DatabaseTable != defaultDBTable || cfg.OtelServiceName != defaultOtelName {
		t.Fatalf("expected defaults to be filled: %+v", cfg)
	}

	cfg = &Config{OutputFormat: "html", OutputFileName: "compliance.ndjson"}
	cfg.normalize()
	if cfg.OutputFileName != "compliance.ndjson" {
		t.Fatalf("explicit output name should be kept, got %s", cfg.OutputFileName)
	}
}

func TestFormatExtension(t *testing.T) {
	want := map[string]string{"json": ".ndjson", "csv": ".csv", "html": ".html", "text": ".txt"}
	for format, ext := range want {
		if got := FormatExtension(format); got != ext {
			t.Errorf("FormatExtension(%q) = %q, want %q", format, got, ext)
		}
	}
}

func TestDefaultsFromFlags(t *testing.T) {
	resetFlags(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OutputFormat != "json" || !strings.HasSuffix(cfg.OutputFileName, ".ndjson") {
		t.Fatalf("unexpected output defaults: %s %s", cfg.OutputFormat, cfg.OutputFileName)
	}
	if !cfg.IncludeActivity || !cfg.CollectSystemInfo {
		t.Fatal("expected activity and system info enabled by default")
	}
	if strings.Join(cfg.BotMarkers, ",") != "bot,automated" {
		t.Fatalf("unexpected bot markers: %v", cfg.BotMarkers)
	}
}

func TestFormatFlagAdjustsDefaultOutput(t *testing.T) {
	resetFlags(t, "--format", "html", "--bot-markers", "svc-, ci-runner")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.HasPrefix(cfg.OutputFileName, "scanaudit-") || !strings.HasSuffix(cfg.OutputFileName, ".html") {
		t.Fatalf("unexpected output file name: %s", cfg.OutputFileName)
	}
	if len(cfg.BotMarkers) != 2 || cfg.BotMarkers[1] != "ci-runner" {
		t.Fatalf("unexpected bot markers: %v", cfg.BotMarkers)
	}
}

func TestSourceFlags(t *testing.T) {
	resetFlags(t,
		"--input", "audit.csv, s3://audit/scans/",
		"--include", "*.log",
		"--exclude", "old-*",
		"--include-activity=false",
		"--collect-system-info=false",
		"--s3-endpoint", "minio.internal:9000",
		"--s3-use-ssl=false",
		"--s3-requests-per-second", "5",
		"--db-table", "audit.scan_log",
		"--hashes", "md5,blake3",
	)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Inputs) != 2 || cfg.Inputs[1] != "s3://audit/scans/" {
		t.Fatalf("unexpected inputs: %v", cfg.Inputs)
	}
	if cfg.IncludePatterns[0] != "*.log" || cfg.ExcludePatterns[0] != "old-*" {
		t.Fatalf("unexpected patterns: %v %v", cfg.IncludePatterns, cfg.ExcludePatterns)
	}
	if cfg.IncludeActivity || cfg.CollectSystemInfo {
		t.Fatal("expected activity and system info disabled")
	}
	if cfg.S3Endpoint != "minio.internal:9000" || cfg.S3UseSSL || cfg.S3RequestsPerSecond != 5 {
		t.Fatalf("unexpected s3 settings: %+v", cfg)
	}
	if cfg.DatabaseTable != "audit.scan_log" || strings.Join(cfg.HashAlgorithms, ",") != "md5,blake3" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestPublishingFlags(t *testing.T) {
	resetFlags(t,
		"--metrics-file", "/tmp/scanaudit.prom",
		"--nats-url", "nats://127.0.0.1:4222",
		"--nats-subject", "audit.summary",
		"--nats-timeout", "3s",
		"--otel-endpoint", "https://otel.example.com/v1/logs",
		"--otel-export-targets",
		"--otel-export-user-ids",
		"--otel-headers", "Authorization=Bearer test,Env=prod",
		"--otel-service-name", "scanaudit-ci",
		"--otel-timeout", "10s",
	)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MetricsFile != "/tmp/scanaudit.prom" || cfg.NatsURL != "nats://127.0.0.1:4222" || cfg.NatsSubject != "audit.summary" || cfg.NatsTimeout != 3*time.Second {
		t.Fatalf("unexpected publishing settings: %+v", cfg)
	}
	if cfg.OtelEndpoint != "https://otel.example.com/v1/logs" || cfg.OtelServiceName != "scanaudit-ci" || cfg.OtelTimeout != 10*time.Second {
		t.Fatalf("unexpected otel settings: %+v", cfg)
	}
	if !cfg.OtelExportTargets || !cfg.OtelExportUserIDs {
		t.Fatal("expected otel export flags to be enabled")
	}
	if cfg.OtelHeaders["Authorization"] != "Bearer test" || cfg.OtelHeaders["Env"] != "prod" {
		t.Fatalf("unexpected otel headers: %v", cfg.OtelHeaders)
	}
}

func TestConfigFileThenFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scanaudit.yml")
	if err := os.WriteFile(path, []byte("output_format: csv\nlog_level: warn\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	resetFlags(t, "--config", path, "--log-level", "debug")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OutputFormat != "csv" || cfg.LogLevel != "debug" || cfg.ConfigFile != path {
		t.Fatalf("expected file values overridden by flags: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.OutputFileName, ".csv") {
		t.Fatalf("unexpected output file name: %s", cfg.OutputFileName)
	}
}

func TestInvalidFlagValue(t *testing.T) {
	resetFlags(t, "--format", "xml")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestSecretsFromEnvironment(t *testing.T) {
	t.Setenv("SCANAUDIT_S3_ACCESS_KEY", "AKIAEXAMPLE")
	t.Setenv("SCANAUDIT_S3_SECRET_KEY", "secret")
	t.Setenv("SCANAUDIT_S3_USE_SSL", "false")
	t.Setenv("SCANAUDIT_DATABASE_URL", "postgres://audit@db/audit")

	cfg := Default()
	if cfg.S3AccessKey != "AKIAEXAMPLE" || cfg.S3SecretKey != "secret" || cfg.S3UseSSL {
		t.Fatalf("unexpected s3 secrets: %+v", cfg)
	}
	if cfg.DatabaseURL != "postgres://audit@db/audit" {
		t.Fatalf("unexpected database url: %s", cfg.DatabaseURL)
	}
}
