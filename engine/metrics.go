package engine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voicenote-api/domain"
)

// runMetrics accumulates the counters of one processing run and emits them
// as a structured log line plus a span on completion.
type runMetrics struct {
	logger *log.Logger
	start  time.Time
	span   trace.Span

	dueSelected      int
	followupSelected int
	sent             int
	failed           int
}

func newRunMetrics(ctx context.Context, logger *log.Logger) (*runMetrics, context.Context) {
	tracer := otel.GetTracerProvider().Tracer("voicenote-api/engine")
	ctx, span := tracer.Start(ctx, "reminders.process")
	return &runMetrics{logger: logger, start: time.Now(), span: span}, ctx
}

func (m *runMetrics) SetDueSelected(count int) {
	if count < 0 {
		count = 0
	}
	m.dueSelected = count
}

func (m *runMetrics) SetFollowupSelected(count int) {
	if count < 0 {
		count = 0
	}
	m.followupSelected = count
}

func (m *runMetrics) Observe(report domain.RunReport) {
	for _, res := range report.Results {
		switch res.Status {
		case domain.ResultSent:
			m.sent++
		case domain.ResultFailed:
			m.failed++
		}
	}
}

func (m *runMetrics) Log(err error) {
	if m == nil || m.logger == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	m.span.SetAttributes(
		attribute.Int("reminders.due_selected", m.dueSelected),
		attribute.Int("reminders.followup_selected", m.followupSelected),
		attribute.Int("reminders.sent", m.sent),
		attribute.Int("reminders.failed", m.failed),
		attribute.Float64("reminders.total_ms", totalMs),
	)
	if err != nil {
		m.span.SetStatus(codes.Error, err.Error())
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	m.span.End()

	fields := log.Fields{
		"due_selected":      m.dueSelected,
		"followup_selected": m.followupSelected,
		"sent":              m.sent,
		"failed":            m.failed,
		"total_ms":          totalMs,
	}
	if err != nil {
		fields["error"] = err.Error()
		m.logger.WithFields(fields).Error("reminders.run.metrics")
		return
	}
	m.logger.WithFields(fields).Info("reminders.run.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
