package logging

import "github.com/rs/zerolog"

// DispatcherLogger exposes a zerolog.Logger through the leveled key-value
// interface the dispatcher expects.
type DispatcherLogger struct {
	log zerolog.Logger
}

func NewDispatcherLogger(log zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{log: log}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	withPairs(l.log.Debug(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	withPairs(l.log.Info(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	withPairs(l.log.Error(), keysAndValues).Msg(msg)
}

// withPairs attaches alternating key-value pairs to the event. Non-string
// keys and a trailing odd value are dropped.
func withPairs(ev *zerolog.Event, kvs []any) *zerolog.Event {
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		ev = ev.Interface(key, kvs[i+1])
	}
	return ev
}
