package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"scanaudit/auditlog"
	"scanaudit/config"
	"scanaudit/logger"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

type otelLogger struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	policy   otelPolicy
}

type otelPolicy struct {
	includeTargets bool
	includeUserIDs bool
}

func newOtelLogger(cfg *config.Config) (*otelLogger, error) {
	if cfg == nil {
		return nil, nil
	}
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.OtelServiceName),
	)
	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(res),
	)

	return &otelLogger{
		provider: provider,
		logger:   provider.Logger("scanaudit"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		policy: otelPolicy{
			includeTargets: cfg.OtelExportTargets,
			includeUserIDs: cfg.OtelExportUserIDs,
		},
	}, nil
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (o *otelLogger) Endpoint() string {
	if o == nil {
		return ""
	}
	return o.endpoint
}

func (o *otelLogger) Emit(recordType string, payload interface{}) {
	if o == nil || o.logger == nil {
		return
	}
	safePayload := sanitizePayload(recordType, payload, o.policy)

	var record otelLog.Record
	record.SetTimestamp(time.Now())
	record.SetObservedTimestamp(time.Now())
	record.SetEventName("scanaudit.record")
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("schema_version", SchemaVersion),
	)
	if attrs := semanticAttributes(recordType, safePayload, o.policy); len(attrs) > 0 {
		record.AddAttributes(attrs...)
	}

	value := toLogValue(safePayload)
	if value.Kind() == otelLog.KindEmpty {
		if data, err := json.Marshal(safePayload); err == nil {
			var decoded interface{}
			if err := json.Unmarshal(data, &decoded); err == nil {
				decodedValue := toLogValue(decoded)
				if decodedValue.Kind() != otelLog.KindEmpty {
					record.SetBody(decodedValue)
				} else {
					record.SetBody(otelLog.StringValue(string(data)))
				}
			} else {
				record.SetBody(otelLog.StringValue(string(data)))
			}
		}
	} else {
		record.SetBody(value)
	}

	o.logger.Emit(context.Background(), record)
}

func (o *otelLogger) Shutdown() {
	if o == nil || o.provider == nil {
		return
	}
	timeout := o.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := o.provider.Shutdown(ctx); err != nil {
		logger.Debugf("OTEL shutdown failed: %v", err)
	}
}

func sanitizePayload(recordType string, payload interface{}, policy otelPolicy) interface{} {
	data := payloadToMap(payload)
	if len(data) == 0 {
		return payload
	}

	switch recordType {
	case "activity":
		sanitized := cloneMap(data)
		if !policy.includeTargets {
			delete(sanitized, "target")
		}
		if !policy.includeUserIDs {
			sanitized["user"] = auditlog.Username(getStringField(data, "user"))
		}
		return sanitized
	case "report":
		if policy.includeTargets {
			return data
		}
		sanitized := cloneMap(data)
		delete(sanitized, "sources")
		addSliceCount(sanitized, "sources_count", getFieldValue(data, "sources"))
		if host, ok := getFieldValue(data, "host").(map[string]interface{}); ok {
			host = cloneMap(host)
			delete(host, "addresses")
			sanitized["host"] = host
		}
		return sanitized
	default:
		return payload
	}
}

func addSliceCount(dst map[string]interface{}, key string, value interface{}) {
	if count, ok := valueCount(value); ok {
		dst[key] = count
	}
}

func valueCount(value interface{}) (int, bool) {
	switch v := value.(type) {
	case []interface{}:
		return len(v), true
	case []string:
		return len(v), true
	case []map[string]interface{}:
		return len(v), true
	default:
		return 0, false
	}
}

func cloneMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case []byte:
		return otelLog.BytesValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		return otelLog.Float64Value(v)
	case float32:
		return otelLog.Float64Value(float64(v))
	case map[string]interface{}:
		return otelLog.MapValue(toLogKeyValues(v)...)
	case map[string]string:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for k, val := range v {
			kvs = append(kvs, otelLog.String(k, val))
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []int:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.IntValue(item))
		}
		return otelLog.SliceValue(values...)
	case []int64:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.Int64Value(item))
		}
		return otelLog.SliceValue(values...)
	case []float64:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.Float64Value(item))
		}
		return otelLog.SliceValue(values...)
	case []bool:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.BoolValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		_ = v
		return otelLog.Value{}
	}
}

func toLogKeyValues(values map[string]interface{}) []otelLog.KeyValue {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	kvs := make([]otelLog.KeyValue, 0, len(values))
	for _, key := range keys {
		kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(values[key])})
	}
	return kvs
}

func semanticAttributes(recordType string, payload interface{}, policy otelPolicy) []otelLog.KeyValue {
	data := payloadToMap(payload)
	if len(data) == 0 {
		return nil
	}

	switch recordType {
	case "report":
		return reportSemanticAttributes(data)
	case "overview":
		return countAttributes(data, "scanaudit.overview.", "total_scans", "unique_users", "total_findings", "compliance_score")
	case "status_breakdown":
		return countAttributes(data, "scanaudit.status.", "success", "warning", "error", "unknown")
	case "user":
		return userSemanticAttributes(data)
	case "activity":
		return activitySemanticAttributes(data, policy)
	case "metrics":
		return metricsSemanticAttributes(data)
	default:
		return nil
	}
}

func reportSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, "scanaudit.report.id", getStringField(data, "id"))
	kvs = appendStringAttr(kvs, "scanaudit.report.generated_at", getStringField(data, "generated_at"))
	if empty, ok := data["empty"].(bool); ok {
		kvs = append(kvs, otelLog.Bool("scanaudit.report.empty", empty))
	}

	if host, ok := getFieldValue(data, "host").(map[string]interface{}); ok {
		kvs = appendStringAttr(kvs, string(semconv.HostNameKey), getStringField(host, "hostname"))
		kvs = appendStringAttr(kvs, string(semconv.HostArchKey), getStringField(host, "kernel_arch"))
		kvs = appendStringAttr(kvs, string(semconv.OSTypeKey), getStringField(host, "os"))
		kvs = appendStringAttr(kvs, string(semconv.OSNameKey), getStringField(host, "platform"))
		kvs = appendStringAttr(kvs, string(semconv.OSVersionKey), getStringField(host, "platform_version"))
		kvs = appendStringAttr(kvs, "scanaudit.host.run_as", getStringField(host, "run_as"))
	}
	if count, ok := getInt64Field(data, "sources_count"); ok {
		kvs = append(kvs, otelLog.Int64("scanaudit.report.sources_count", count))
	} else if sources, ok := getFieldValue(data, "sources").([]interface{}); ok {
		kvs = append(kvs, otelLog.Int64("scanaudit.report.sources_count", int64(len(sources))))
	}

	return kvs
}

func countAttributes(data map[string]interface{}, prefix string, keys ...string) []otelLog.KeyValue {
	kvs := make([]otelLog.KeyValue, 0, len(keys))
	for _, key := range keys {
		value, ok := getInt64Field(data, key)
		kvs = appendInt64Attr(kvs, prefix+key, value, ok)
	}
	return kvs
}

func userSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, "scanaudit.user.name", getStringField(data, "username"))
	kvs = appendStringAttr(kvs, "scanaudit.user.kind", getStringField(data, "kind"))
	kvs = appendStringAttr(kvs, "scanaudit.user.last_active", getStringField(data, "last_active"))
	if count, ok := getInt64Field(data, "scan_count"); ok {
		kvs = append(kvs, otelLog.Int64("scanaudit.user.scan_count", count))
	}
	if findings, ok := getInt64Field(data, "findings_total"); ok {
		kvs = append(kvs, otelLog.Int64("scanaudit.user.findings_total", findings))
	}
	if tools := getStringSliceField(data, "tools"); len(tools) > 0 {
		kvs = append(kvs, otelLog.KeyValue{Key: "scanaudit.user.tools", Value: toLogValue(tools)})
	}

	return kvs
}

func activitySemanticAttributes(data map[string]interface{}, policy otelPolicy) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, "scanaudit.activity.timestamp", getStringField(data, "timestamp"))
	kvs = appendStringAttr(kvs, "scanaudit.activity.user", getStringField(data, "user"))
	kvs = appendStringAttr(kvs, "scanaudit.activity.script", getStringField(data, "script"))
	kvs = appendStringAttr(kvs, "scanaudit.activity.tool", getStringField(data, "tool"))
	kvs = appendStringAttr(kvs, "scanaudit.activity.duration", getStringField(data, "duration"))
	kvs = appendStringAttr(kvs, "scanaudit.activity.status", getStringField(data, "status"))
	kvs = appendStringAttr(kvs, "scanaudit.activity.status_class", getStringField(data, "status_class"))
	if policy.includeTargets {
		kvs = appendStringAttr(kvs, "scanaudit.activity.target", getStringField(data, "target"))
	}
	if findings, ok := getInt64Field(data, "findings_count"); ok {
		kvs = append(kvs, otelLog.Int64("scanaudit.activity.findings", findings))
	}

	return kvs
}

func metricsSemanticAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue

	kvs = appendStringAttr(kvs, "scanaudit.metrics.start_time", getStringField(data, "start_time"))
	kvs = appendStringAttr(kvs, "scanaudit.metrics.end_time", getStringField(data, "end_time"))
	kvs = append(kvs, countAttributes(data, "scanaudit.metrics.", "sources_requested", "sources_loaded", "rows_read", "users_reported", "records_written")...)

	return kvs
}

func payloadToMap(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			out[key] = value
		}
		return out
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

func getFieldValue(values map[string]interface{}, key string) interface{} {
	if values == nil {
		return nil
	}
	return values[key]
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case float32:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func getStringSliceField(values map[string]interface{}, key string) []string {
	value, ok := values[key]
	if !ok || value == nil {
		return nil
	}
	switch v := value.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}

func appendInt64Attr(kvs []otelLog.KeyValue, key string, value int64, ok bool) []otelLog.KeyValue {
	if !ok {
		return kvs
	}
	return append(kvs, otelLog.Int64(key, value))
}

