package emit

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// LogEmitter implements Emitter by writing one structured log line per event.
//
// Supports two output modes:
//   - Text mode (default): zerolog console format, no colors
//   - JSON mode: one JSON object per line
//
// Example JSON output:
//
//	{"level":"info","process_instance_id":"pi-1","execution_id":"e-2","activity_id":"task","activity_instance_id":"task:e-2:2","step":2,"message":"activity_instance_start"}
//
// Usage:
//
//	emitter := emit.NewLogEmitter(os.Stdout, true)
type LogEmitter struct {
	logger zerolog.Logger
}

// NewLogEmitter creates a LogEmitter writing to writer.
//
// A nil writer defaults to os.Stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	var out io.Writer = writer
	if !jsonMode {
		out = zerolog.ConsoleWriter{Out: writer, NoColor: true, TimeFormat: time.RFC3339}
	}
	return &LogEmitter{logger: zerolog.New(out).With().Timestamp().Logger()}
}

// NewLogEmitterWithLogger creates a LogEmitter on top of an existing logger,
// so events share the application's log configuration.
func NewLogEmitterWithLogger(logger zerolog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

// Emit writes the event. Events carrying an "error" meta entry are logged at
// error level, everything else at info.
func (l *LogEmitter) Emit(event Event) {
	entry := l.logger.Info()
	if _, failed := event.Meta["error"]; failed {
		entry = l.logger.Error()
	}

	entry = entry.
		Str("process_instance_id", event.ProcessInstanceID).
		Str("execution_id", event.ExecutionID).
		Int64("step", event.Step)
	if event.ActivityID != "" {
		entry = entry.Str("activity_id", event.ActivityID)
	}
	if event.ActivityInstanceID != "" {
		entry = entry.Str("activity_instance_id", event.ActivityInstanceID)
	}
	if len(event.Meta) > 0 {
		entry = entry.Fields(event.Meta)
	}
	entry.Msg(event.Msg)
}
