// Package telemetry emits OpenTelemetry counters and log events for
// device lifecycle and I/O activity.
//
// Each Record function increments a metric counter and emits a log
// record through the global providers.  Until [Init] installs real
// exporters, those providers are the OTel no-op defaults.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName  = "chrdev"
	loggerName = "chrdev"
)

// instruments holds the lazily registered OTel metric instruments.
type instruments struct {
	sessionsOpened metric.Int64Counter
	sessionsClosed metric.Int64Counter
	bytesRead      metric.Int64Counter
	bytesWritten   metric.Int64Counter
	registrations  metric.Int64Counter
	rollbacks      metric.Int64Counter
}

var (
	instOnce sync.Once
	inst     instruments
)

// initInstruments registers every instrument against the current global
// MeterProvider.  Init calls it after installing a provider; Record
// functions call it lazily.
func initInstruments() {
	instOnce.Do(func() {
		m := otel.GetMeterProvider().Meter(meterName)

		inst.sessionsOpened, _ = m.Int64Counter("chrdev.sessions.opened.total",
			metric.WithDescription("Total session open attempts"),
		)
		inst.sessionsClosed, _ = m.Int64Counter("chrdev.sessions.closed.total",
			metric.WithDescription("Total sessions ended"),
		)
		inst.bytesRead, _ = m.Int64Counter("chrdev.bytes.read.total",
			metric.WithDescription("Bytes copied out of session buffers"),
			metric.WithUnit("By"),
		)
		inst.bytesWritten, _ = m.Int64Counter("chrdev.bytes.written.total",
			metric.WithDescription("Bytes stored into session buffers"),
			metric.WithUnit("By"),
		)
		inst.registrations, _ = m.Int64Counter("chrdev.registration.total",
			metric.WithDescription("Registration stage outcomes"),
		)
		inst.rollbacks, _ = m.Int64Counter("chrdev.rollback.total",
			metric.WithDescription("Registration stages undone"),
		)
	})
}

// statusStr returns "ok" or "error" depending on whether err is nil.
func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// emit sends an OTel log event with the given body and attributes.
func emit(ctx context.Context, body string, sev otellog.Severity, attrs ...otellog.KeyValue) {
	logger := global.GetLoggerProvider().Logger(loggerName)
	var r otellog.Record
	r.SetBody(otellog.StringValue(body))
	r.SetSeverity(sev)
	r.AddAttributes(attrs...)
	logger.Emit(ctx, r)
}

// errKV returns a log KeyValue with the error message, or empty string if nil.
func errKV(err error) otellog.KeyValue {
	if err != nil {
		return otellog.String("error", err.Error())
	}
	return otellog.String("error", "")
}

// severity returns SeverityInfo on success, SeverityError on failure.
func severity(err error) otellog.Severity {
	if err != nil {
		return otellog.SeverityError
	}
	return otellog.SeverityInfo
}

// RecordOpen records a session open attempt.  id is zero on failure.
func RecordOpen(ctx context.Context, device string, id int64, err error) {
	initInstruments()
	status := statusStr(err)
	inst.sessionsOpened.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device", device),
			attribute.String("status", status),
		),
	)
	emit(ctx, "session.open", severity(err),
		otellog.String("device", device),
		otellog.Int64("session", id),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordClose records a session end with its final byte counts.
func RecordClose(ctx context.Context, device string, id int64, bytesRead, bytesWritten uint64) {
	initInstruments()
	inst.sessionsClosed.Add(ctx, 1,
		metric.WithAttributes(attribute.String("device", device)),
	)
	emit(ctx, "session.close", otellog.SeverityInfo,
		otellog.String("device", device),
		otellog.Int64("session", id),
		otellog.Int64("bytes_read", int64(bytesRead)),
		otellog.Int64("bytes_written", int64(bytesWritten)),
	)
}

// RecordWrite records a write call.  n is the number of bytes stored.
func RecordWrite(ctx context.Context, device string, requested, n int, err error) {
	initInstruments()
	inst.bytesWritten.Add(ctx, int64(n),
		metric.WithAttributes(
			attribute.String("device", device),
			attribute.Bool("short", n < requested),
			attribute.String("status", statusStr(err)),
		),
	)
	if err != nil {
		emit(ctx, "session.write", otellog.SeverityError,
			otellog.String("device", device),
			otellog.Int("requested", requested),
			errKV(err),
		)
	}
}

// RecordRead records a read call.  n is the number of bytes returned.
func RecordRead(ctx context.Context, device string, requested, n int, err error) {
	initInstruments()
	inst.bytesRead.Add(ctx, int64(n),
		metric.WithAttributes(
			attribute.String("device", device),
			attribute.Bool("truncated", n < requested),
			attribute.String("status", statusStr(err)),
		),
	)
	if err != nil {
		emit(ctx, "session.read", otellog.SeverityError,
			otellog.String("device", device),
			otellog.Int("requested", requested),
			errKV(err),
		)
	}
}

// RecordStage records the outcome of one registration stage.
func RecordStage(ctx context.Context, device, stage string, err error) {
	initInstruments()
	status := statusStr(err)
	inst.registrations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device", device),
			attribute.String("stage", stage),
			attribute.String("status", status),
		),
	)
	emit(ctx, "register.stage", severity(err),
		otellog.String("device", device),
		otellog.String("stage", stage),
		otellog.String("status", status),
		errKV(err),
	)
}

// RecordRollback records one registration stage being undone.
func RecordRollback(ctx context.Context, device, stage string, err error) {
	initInstruments()
	inst.rollbacks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("device", device),
			attribute.String("stage", stage),
			attribute.String("status", statusStr(err)),
		),
	)
	emit(ctx, "register.rollback", otellog.SeverityWarn,
		otellog.String("device", device),
		otellog.String("stage", stage),
		errKV(err),
	)
}
