package progress

import (
	"context"
	"errors"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/yoanbernabeu/provisioner/internal/sequencer"
)

const tracerName = "github.com/yoanbernabeu/provisioner"

// Tracer turns run progress into OpenTelemetry spans: one span per run and
// a child span per attempted step.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	closer   io.Closer

	runCtx   context.Context
	runSpan  trace.Span
	stepSpan trace.Span
}

// OpenTracer writes spans as JSON to the file at path.
func OpenTracer(path, version string) (*Tracer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, err
	}
	t, err := NewTracer(exporter, version)
	if err != nil {
		f.Close()
		return nil, err
	}
	t.closer = f
	return t, nil
}

// NewTracer creates a Tracer exporting to exporter.
func NewTracer(exporter sdktrace.SpanExporter, version string) (*Tracer, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "provisioner"),
			attribute.String("service.version", version),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(tracerName),
		runCtx:   context.Background(),
	}, nil
}

// Notify implements sequencer.Observer.
func (t *Tracer) Notify(e sequencer.Event) {
	switch e.Kind {
	case sequencer.RunStarted:
		t.runCtx, t.runSpan = t.tracer.Start(context.Background(), "provision.run",
			trace.WithAttributes(
				attribute.String("run.id", e.RunID),
				attribute.Int("run.steps", e.Total),
			),
		)

	case sequencer.StepStarted:
		_, t.stepSpan = t.tracer.Start(t.runCtx, "provision.step",
			trace.WithAttributes(
				attribute.Int("step.index", e.Index+1),
				attribute.String("step.name", e.Name),
				attribute.String("step.command", e.Command),
			),
		)

	case sequencer.StepFinished:
		if t.stepSpan == nil {
			return
		}
		r := e.Result
		t.stepSpan.SetAttributes(
			attribute.Int("step.exit_code", r.ExitCode),
			attribute.Bool("step.timed_out", r.TimedOut),
			attribute.String("step.strategy", r.Strategy),
			attribute.Int64("step.elapsed_ms", r.Elapsed.Milliseconds()),
		)
		setStatus(t.stepSpan, sequencer.StepResult{Result: r}.Failure())
		t.stepSpan.End()
		t.stepSpan = nil

	case sequencer.StepSkipped:
		if t.runSpan != nil {
			t.runSpan.AddEvent("step.skipped", trace.WithAttributes(
				attribute.Int("step.index", e.Index+1),
				attribute.String("step.command", e.Command),
			))
		}

	case sequencer.RunFinished:
		if t.runSpan == nil {
			return
		}
		o := e.Outcome
		t.runSpan.SetAttributes(
			attribute.Bool("run.success", o.Success),
			attribute.Int("run.attempted", len(o.Results)),
		)
		var err error
		if failed := o.FailedStep(); failed != nil {
			err = failed.Failure()
		}
		setStatus(t.runSpan, err)
		t.runSpan.End()
		t.runSpan = nil
	}
}

// Shutdown flushes spans and closes the output file, if any.
func (t *Tracer) Shutdown(ctx context.Context) error {
	err := t.provider.Shutdown(ctx)
	if t.closer != nil {
		err = errors.Join(err, t.closer.Close())
	}
	return err
}

func setStatus(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
