package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	showRoute       = "/api/periods/:id"
	showSpanName    = "api.periods.show"
	showEventName   = "cadence.periods.show"
	showEventDomain = "cadence"
	attrPrefix      = "cadence.periods."
)

// showRequestMetrics captures per-stage timings for the period detail
// request, the heaviest read path. Log emits one structured logrus entry
// and finishes the span started in newShowRequestMetrics.
type showRequestMetrics struct {
	logger        *log.Logger
	span          trace.Span
	start         time.Time
	authDuration  time.Duration
	fetchDuration time.Duration
	buildDuration time.Duration
	tasksInPeriod int
	errorStage    string
}

func newShowRequestMetrics(ctx context.Context, logger *log.Logger) (*showRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer("cadence-api").Start(ctx, showSpanName)
	return &showRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *showRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.authDuration = duration
}

func (m *showRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.fetchDuration = duration
}

func (m *showRequestMetrics) ObserveBuild(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.buildDuration = duration
}

func (m *showRequestMetrics) SetTasksInPeriod(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksInPeriod = count
}

func (m *showRequestMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
}

func (m *showRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("http.route", showRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64(attrPrefix+"total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int(attrPrefix+"tasks_in_period", m.tasksInPeriod),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.buildDuration > 0 {
		attrs = append(attrs, attribute.Float64(attrPrefix+"build_ms", durationToMillis(m.buildDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String(attrPrefix+"error_stage", m.errorStage))
	}

	severityText, severityNumber := severityForStatus(status, err)
	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", showEventName),
		attribute.String("event.domain", showEventDomain),
		attribute.String("severity_text", severityText),
		attribute.Int("severity_number", severityNumber),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= http.StatusInternalServerError {
			description := http.StatusText(status)
			if err != nil {
				description = err.Error()
			}
			m.span.SetStatus(codes.Error, description)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	fields := log.Fields{
		"event.name":      showEventName,
		"event.domain":    showEventDomain,
		"severity_text":   severityText,
		"severity_number": severityNumber,
		"attributes":      attributesToFields(attrs),
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("observability.event")
}

// severityForStatus maps an HTTP status to OTel log severity. Any error
// forces ERROR regardless of status.
func severityForStatus(status int, err error) (string, int) {
	if err != nil || status >= http.StatusInternalServerError {
		return "ERROR", 17
	}
	if status >= http.StatusBadRequest {
		return "WARN", 13
	}
	return "INFO", 9
}

func attributesToFields(attrs []attribute.KeyValue) map[string]any {
	out := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsInterface()
	}
	return out
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
