package capacity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EventKind classifies a degradation event.
type EventKind string

const (
	// EventInvalidCatalogReference is raised when a factor id is not in the catalog.
	EventInvalidCatalogReference EventKind = "invalid_catalog_reference"
	// EventDegenerateInput is raised when inputs cannot produce figures
	// (zero average segment time, zero trip length).
	EventDegenerateInput EventKind = "degenerate_input"
	// EventArithmeticAnomaly is raised when a figure overflows or a
	// computation panics.
	EventArithmeticAnomaly EventKind = "arithmetic_anomaly"
)

// Stages that can raise events.
const (
	StageCFN           = "cfn"
	StageM             = "m"
	StageFixedTime     = "fixed_time"
	StageUnlimitedTime = "unlimited_time"
)

// Event describes a degraded computation. Events are informational; the
// computation has already substituted its fallback when one is reported.
type Event struct {
	Kind       EventKind
	Stage      string
	Message    string
	FactorKind FactorKind
	FactorID   int
	Err        error
}

// Reporter receives degradation events. Implementations must not block.
type Reporter interface {
	Report(Event)
}

// NopReporter discards events.
type NopReporter struct{}

// Report implements Reporter.
func (NopReporter) Report(Event) {}

// MultiReporter fans events out to several reporters.
type MultiReporter []Reporter

// Report implements Reporter.
func (m MultiReporter) Report(e Event) {
	for _, r := range m {
		if r != nil {
			r.Report(e)
		}
	}
}

// LogReporter writes events as structured warnings.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a reporter backed by logger.
func NewLogReporter(logger zerolog.Logger) *LogReporter {
	return &LogReporter{logger: logger.With().Str("component", "capacity").Logger()}
}

// Report implements Reporter.
func (r *LogReporter) Report(e Event) {
	ev := r.logger.Warn().
		Str("event_kind", string(e.Kind)).
		Str("stage", e.Stage)
	if e.FactorKind != "" {
		ev = ev.Str("factor_kind", string(e.FactorKind)).Int("factor_id", e.FactorID)
	}
	if e.Err != nil {
		ev = ev.Err(e.Err)
	}
	ev.Msg(e.Message)
}

const meterName = "github.com/recreationcalc/recreationcalc/internal/capacity"

// MetricsReporter counts events with the global OpenTelemetry meter.
type MetricsReporter struct {
	events metric.Int64Counter
}

// NewMetricsReporter registers the degradation counter.
func NewMetricsReporter() (*MetricsReporter, error) {
	meter := otel.Meter(meterName)

	events, err := meter.Int64Counter(
		"capacity.degradation.events",
		metric.WithDescription("Capacity computations that fell back to a default"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating degradation counter: %w", err)
	}

	return &MetricsReporter{events: events}, nil
}

// Report implements Reporter.
func (r *MetricsReporter) Report(e Event) {
	r.events.Add(context.TODO(), 1,
		metric.WithAttributes(
			attribute.String("event.kind", string(e.Kind)),
			attribute.String("event.stage", e.Stage),
		),
	)
}

var (
	_ Reporter = NopReporter{}
	_ Reporter = MultiReporter(nil)
	_ Reporter = (*LogReporter)(nil)
	_ Reporter = (*MetricsReporter)(nil)
)
