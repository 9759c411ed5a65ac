package progress

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/yoanbernabeu/provisioner/internal/sequencer"
	"github.com/yoanbernabeu/provisioner/internal/transport"
)

var target = transport.Target{Host: "203.0.113.10", User: "root", Credential: "hunter2"}

// runScenario runs ["echo A", "false", "echo C"] through a sequencer with obs.
func runScenario(t *testing.T, obs sequencer.Observer) *sequencer.RunOutcome {
	t.Helper()
	exec := &sequencer.MockExecutor{
		ExecuteFunc: func(_ context.Context, _ transport.Target, command string, _ time.Duration) (*transport.Result, error) {
			if command == "false" {
				return &transport.Result{ExitCode: 1, Stderr: "nope\n", Strategy: "direct"}, nil
			}
			return &transport.Result{Stdout: strings.TrimPrefix(command, "echo ") + "\n", Strategy: "direct"}, nil
		},
	}
	outcome, err := sequencer.New(exec, sequencer.WithObserver(obs)).Run(context.Background(), target, []sequencer.Step{
		{Command: "echo A"},
		{Name: "always fails", Command: "false"},
		{Command: "echo C"},
	})
	require.NoError(t, err)
	return outcome
}

func TestConsole_FailedRun(t *testing.T) {
	var out, errOut bytes.Buffer
	runScenario(t, NewConsoleWriter(&out, &errOut, false))

	stdout := out.String()
	assert.Contains(t, stdout, "🚀 Running 3 step(s)")
	assert.Contains(t, stdout, "▶️  Step 1/3: echo A")
	assert.Contains(t, stdout, "✅ Step 1 completed")
	assert.Contains(t, stdout, "   A\n")
	assert.Contains(t, stdout, "▶️  Step 2/3: always fails")
	assert.Contains(t, stdout, "⏭️  Step 3/3 not attempted: echo C")
	assert.Contains(t, stdout, "1 step(s) not attempted")
	assert.NotContains(t, stdout, "Run ID", "run ID is verbose only")

	stderr := errOut.String()
	assert.Contains(t, stderr, "❌ Step 2 failed (exit 1): false")
	assert.Contains(t, stderr, "   nope")
	assert.Contains(t, stderr, "Provisioning halted at step 2 of 3")
}

func TestConsole_VerboseSuccess(t *testing.T) {
	var out, errOut bytes.Buffer
	console := NewConsoleWriter(&out, &errOut, true)

	exec := &sequencer.MockExecutor{}
	_, err := sequencer.New(exec, sequencer.WithObserver(console)).Run(context.Background(), target, []sequencer.Step{
		{Name: "update", Command: "apt-get update -y"},
	})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Run ID: ")
	assert.Contains(t, out.String(), "Running: apt-get update -y")
	assert.Contains(t, out.String(), "via mock")
	assert.Contains(t, out.String(), "✅ All 1 step(s) completed")
	assert.Empty(t, errOut.String())
}

func TestConsole_TimedOut(t *testing.T) {
	var out, errOut bytes.Buffer
	console := NewConsoleWriter(&out, &errOut, false)
	console.Notify(sequencer.Event{
		Kind:    sequencer.StepFinished,
		Index:   0,
		Total:   1,
		Command: "sleep 600",
		Result:  &transport.Result{TimedOut: true, ExitCode: -1},
	})

	assert.Contains(t, errOut.String(), "❌ Step 1 failed (timed out): sleep 600")
}

func TestNewLogger_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, FormatJSON, false)
	require.NoError(t, err)
	logger.WithField("k", "v").Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "v", entry["k"])

	logger, err = NewLogger(&buf, "", true)
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = NewLogger(&buf, "xml", false)
	assert.Error(t, err)
}

func TestLog_Fields(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	outcome := runScenario(t, NewLog(logger))

	entries := hook.AllEntries()
	require.Len(t, entries, 7)

	for _, e := range entries {
		assert.Equal(t, outcome.RunID, e.Data["run_id"])
		assert.Equal(t, 3, e.Data["total"])
	}

	failed := entries[4]
	assert.Equal(t, "step failed", failed.Message)
	assert.Equal(t, logrus.ErrorLevel, failed.Level)
	assert.Equal(t, 2, failed.Data["step"])
	assert.Equal(t, 1, failed.Data["exit_code"])
	assert.Equal(t, false, failed.Data["timed_out"])
	assert.Equal(t, false, failed.Data["success"])
	assert.Equal(t, "direct", failed.Data["strategy"])
	assert.Equal(t, "nope\n", failed.Data["stderr"])

	skipped := entries[5]
	assert.Equal(t, logrus.WarnLevel, skipped.Level)
	assert.Equal(t, "echo C", skipped.Data["command"])

	last := hook.LastEntry()
	assert.Equal(t, "run finished", last.Message)
	assert.Equal(t, false, last.Data["success"])
	assert.Equal(t, 1, last.Data["not_attempted"])
}

func TestLog_NeverContainsCredential(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, FormatJSON, true)
	require.NoError(t, err)

	exec := &sequencer.MockExecutor{
		ExecuteFunc: func(_ context.Context, _ transport.Target, command string, _ time.Duration) (*transport.Result, error) {
			return &transport.Result{Stdout: command, Stderr: command, ExitCode: 1}, nil
		},
	}
	_, err = sequencer.New(exec, sequencer.WithObserver(NewLog(logger))).Run(context.Background(), target, []sequencer.Step{
		{Command: "echo root:hunter2 | chpasswd"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, buf.String())
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestTracer_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tracer, err := NewTracer(exporter, "test")
	require.NoError(t, err)

	outcome := runScenario(t, tracer)

	// Shutdown resets the in-memory exporter.
	spans := exporter.GetSpans()
	require.NoError(t, tracer.Shutdown(context.Background()))
	require.Len(t, spans, 3, "two step spans and one run span")

	run := spans[2]
	assert.Equal(t, "provision.run", run.Name)
	assert.Equal(t, codes.Error, run.Status.Code)
	assert.Contains(t, run.Attributes, attribute.String("run.id", outcome.RunID))
	require.NotEmpty(t, run.Events)
	assert.Equal(t, "step.skipped", run.Events[0].Name)

	first, second := spans[0], spans[1]
	assert.Equal(t, "provision.step", first.Name)
	assert.Equal(t, codes.Ok, first.Status.Code)
	assert.Equal(t, run.SpanContext.SpanID(), first.Parent.SpanID())
	assert.Equal(t, codes.Error, second.Status.Code)
	assert.Contains(t, second.Attributes, attribute.Int("step.exit_code", 1))
}
