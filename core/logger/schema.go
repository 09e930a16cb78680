package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
	// LevelFatal represents the fatal severity level name.
	LevelFatal = "FATAL"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

type enumSpec struct {
	values map[string]struct{}
	// closed sets drop unknown values instead of passing them through.
	closed bool
}

func enum(closed bool, values ...string) enumSpec {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return enumSpec{values: m, closed: closed}
}

var enumFields = map[string]enumSpec{
	"status":      enum(false, "ok", "fail", "skip", "retry", "rate_limited", "cancelled"),
	"outcome":     enum(true, "ok", "fail", "cancelled", "rate_limited"),
	"from_status": enum(false, "pending", "confirmed", "rejected", "cancelled", "reminded", "feedback_pending"),
	"to_status":   enum(false, "pending", "confirmed", "rejected", "cancelled", "reminded", "feedback_pending"),
	"actor":       enum(true, "client", "admin", "scheduler"),
	"moderation":  enum(true, "pending_review", "approved", "auto_approved"),
}

// personalFields maps keys holding user-typed text to the number of runes
// kept in logs; 0 masks the value entirely.
var personalFields = map[string]int{
	"display_name": 24,
	"comment":      48,
	"text":         48,
	"token":        0,
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeEnum(value string, allowed map[string]struct{}) (string, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	_, ok := allowed[value]
	return value, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"job",
	"run_id",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"operation",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"count",
	"payload",
	"username",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"db",
	"host",
	"port",
	"booking_id",
	"provider_id",
	"lesson_date",
	"lesson_hour",
	"from_status",
	"to_status",
	"actor",
	"moderation",
	"kind",
	"recipient",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"rate_limited",
	"collapsed",
	"repeats",
	"pending_count",
	"reminded",
	"prompted",
	"purged",
	"failed",
}
