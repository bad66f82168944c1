package report

import (
	"fmt"
	"log/slog"
	"strings"
)

// Kind selects a Sink implementation.
type Kind string

const (
	KindNull    Kind = "null"
	KindLog     Kind = "log"
	KindMetrics Kind = "metrics"
)

// EnvReportType is the environment variable naming the sink kind.
const EnvReportType = "WFD_REPORT_TYPE"

// ParseKind maps a name to a Kind. The empty string selects KindNull.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindNull, nil
	case KindNull, KindLog, KindMetrics:
		return k, nil
	}
	return "", fmt.Errorf("report: unknown type %q", s)
}

// New creates the sink for kind.
func New(kind Kind, log *slog.Logger) (Sink, error) {
	switch kind {
	case KindNull, "":
		return Null{}, nil
	case KindLog:
		return NewLog(log), nil
	case KindMetrics:
		return NewMetrics(), nil
	}
	return nil, fmt.Errorf("report: unknown type %q", kind)
}
