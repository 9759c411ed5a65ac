package progress

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/yoanbernabeu/provisioner/internal/sequencer"
)

// Log formats supported by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// NewLogger creates a logrus logger writing to w in the given format.
func NewLogger(w io.Writer, format string, verbose bool) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	switch format {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unsupported log format %q (use %s or %s)", format, FormatText, FormatJSON)
	}

	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	return logger, nil
}

// Log records run progress as structured log entries.
type Log struct {
	logger logrus.FieldLogger
}

// NewLog creates a Log observer.
func NewLog(logger logrus.FieldLogger) *Log {
	return &Log{logger: logger}
}

// Notify implements sequencer.Observer.
func (l *Log) Notify(e sequencer.Event) {
	entry := l.logger.WithFields(logrus.Fields{
		"run_id": e.RunID,
		"event":  e.Kind.String(),
		"total":  e.Total,
	})

	switch e.Kind {
	case sequencer.RunStarted:
		entry.Info("run started")

	case sequencer.StepStarted:
		entry.WithFields(stepFields(e)).Info("step started")

	case sequencer.StepFinished:
		r := e.Result
		fields := stepFields(e)
		fields["success"] = r.Success()
		fields["exit_code"] = r.ExitCode
		fields["timed_out"] = r.TimedOut
		fields["elapsed"] = r.Elapsed.String()
		fields["strategy"] = r.Strategy
		entry = entry.WithFields(fields)
		if r.Err != nil {
			entry = entry.WithError(r.Err)
		}
		if r.Success() {
			entry.Info("step finished")
		} else {
			entry.WithField("stderr", r.Stderr).Error("step failed")
		}

	case sequencer.StepSkipped:
		entry.WithFields(stepFields(e)).Warn("step not attempted")

	case sequencer.RunFinished:
		o := e.Outcome
		entry = entry.WithFields(logrus.Fields{
			"success":       o.Success,
			"state":         o.State.String(),
			"attempted":     len(o.Results),
			"not_attempted": len(o.NotAttempted),
			"elapsed":       o.Duration().String(),
		})
		if o.Success {
			entry.Info("run finished")
		} else {
			entry.Error("run finished")
		}
	}
}

func stepFields(e sequencer.Event) logrus.Fields {
	return logrus.Fields{
		"step":    e.Index + 1,
		"name":    e.Name,
		"command": e.Command,
	}
}
