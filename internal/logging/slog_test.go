package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// grabStdout swaps the console sink for a pipe; the returned func restores
// it and yields whatever was written.
func grabStdout(t *testing.T) func() string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	saved := osStdout
	osStdout = w
	return func() string {
		w.Close()
		osStdout = saved
		var out bytes.Buffer
		out.ReadFrom(r)
		r.Close()
		return out.String()
	}
}

func TestSetupRoutesToFile(t *testing.T) {
	readStdout := grabStdout(t)

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "info", nil)
	m.Logger().Info("recorded pose batch")

	assert.Contains(t, file.String(), "recorded pose batch")
	assert.Contains(t, readStdout(), "recorded pose batch", "console sink is always active")
}

func TestSetupConsoleOnly(t *testing.T) {
	readStdout := grabStdout(t)

	m := NewSlogManager()
	m.Setup(nil, "info", nil)
	m.Logger().Info("no file yet")

	assert.Contains(t, readStdout(), "no file yet")
}

func TestLevelFiltering(t *testing.T) {
	cases := []struct {
		setup     string
		wantDebug bool
	}{
		{"debug", true},
		{"info", false},
		{"WARN", false},
	}
	for _, tc := range cases {
		t.Run(tc.setup, func(t *testing.T) {
			readStdout := grabStdout(t)
			var file bytes.Buffer
			m := NewSlogManager()
			m.Setup(&file, tc.setup, nil)
			m.Logger().Debug("surface hit at frame")
			readStdout()

			if tc.wantDebug {
				assert.Contains(t, file.String(), "surface hit at frame")
			} else {
				assert.NotContains(t, file.String(), "surface hit at frame")
			}
		})
	}
}

func TestSetupAgainDropsOldSink(t *testing.T) {
	readStdout := grabStdout(t)
	defer readStdout()

	var initLog, sessionLog bytes.Buffer
	m := NewSlogManager()
	m.Setup(&initLog, "info", nil)
	m.Logger().Info("startup")

	m.Setup(&sessionLog, "info", nil)
	m.Logger().Info("session open")

	assert.Contains(t, initLog.String(), "startup")
	assert.NotContains(t, initLog.String(), "session open")
	assert.Contains(t, sessionLog.String(), "session open")
}

func TestLoggerBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Equal(t, slog.Default(), m.Logger())
	m.WriteLog("fn", "ignored before setup", "info") // must not panic
}

func TestWriteLogLevels(t *testing.T) {
	readStdout := grabStdout(t)
	defer readStdout()

	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(&file, "debug", nil)

	m.WriteLog("recorder.HandleTap", "tap routed", "DEBUG")
	m.WriteLog("runtime.New", "config loaded", "INFO")
	m.WriteLog("storage.Connect", "db down", "ERROR")
	m.WriteLog("x", "bogus level goes to info", "loud")

	out := file.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "function=recorder.HandleTap")
	assert.Contains(t, out, "db down")
	assert.Contains(t, out, "bogus level goes to info")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN"))
	assert.Equal(t, slog.LevelError, parseLevel("Error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestFlush(t *testing.T) {
	m := NewSlogManager()
	assert.NoError(t, m.Flush(context.Background()), "nil provider flush is a no-op")

	readStdout := grabStdout(t)
	defer readStdout()
	var file bytes.Buffer
	m.Setup(&file, "info", sdklog.NewLoggerProvider())
	assert.NoError(t, m.Flush(context.Background()))
}

func TestSessionAttrsOnEveryRecord(t *testing.T) {
	readStdout := grabStdout(t)
	defer readStdout()

	var file bytes.Buffer
	m := NewSlogManager()
	m.SetContextProvider(func() []slog.Attr {
		return []slog.Attr{slog.String("sessionKey", "2026-08-23_Depot7")}
	})
	m.Setup(&file, "info", nil)
	m.Logger().Info("pose recorded")

	assert.Contains(t, file.String(), "sessionKey=2026-08-23_Depot7")
}

func textSink(buf *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	var a, b bytes.Buffer
	log := slog.New(newFanout(textSink(&a, slog.LevelInfo), textSink(&b, slog.LevelInfo)))
	log.Info("both sinks")

	assert.Contains(t, a.String(), "both sinks")
	assert.Contains(t, b.String(), "both sinks")
}

func TestFanoutSkipsNilSinks(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(nil, textSink(&buf, slog.LevelInfo), nil)
	require.Len(t, f, 1)

	slog.New(f).Info("still works")
	assert.Contains(t, buf.String(), "still works")
}

func TestFanoutEnabledIfAnySinkIs(t *testing.T) {
	ctx := context.Background()
	info := textSink(&bytes.Buffer{}, slog.LevelInfo)
	debug := textSink(&bytes.Buffer{}, slog.LevelDebug)

	assert.False(t, newFanout(info).Enabled(ctx, slog.LevelDebug))
	assert.True(t, newFanout(info, debug).Enabled(ctx, slog.LevelDebug))
	assert.False(t, newFanout().Enabled(ctx, slog.LevelInfo))
}

type failingSink struct{ slog.Handler }

func (failingSink) Enabled(context.Context, slog.Level) bool { return true }
func (failingSink) Handle(context.Context, slog.Record) error {
	return errors.New("sink down")
}

func TestFanoutSurvivesFailingSink(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(failingSink{}, textSink(&buf, slog.LevelInfo))

	err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "keeps going", 0))
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "keeps going")
}

func TestFanoutWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(textSink(&buf, slog.LevelInfo))

	withAttrs := f.WithAttrs([]slog.Attr{slog.String("component", "tracker")})
	slog.New(withAttrs).Info("attr carried")
	assert.Contains(t, buf.String(), "component=tracker")

	buf.Reset()
	slog.New(f.WithGroup("frame")).Info("grouped", "index", 3)
	assert.Contains(t, buf.String(), "frame.index=3")

	assert.Equal(t, slog.Handler(f), f.WithGroup(""))
}

func TestStampedAddsProviderAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := stampWith(textSink(&buf, slog.LevelInfo), func() []slog.Attr {
		return []slog.Attr{slog.String("site", "Depot 7")}
	})
	slog.New(h).Info("annotated")

	assert.Contains(t, buf.String(), "annotated")
	assert.Contains(t, buf.String(), `site="Depot 7"`)
}

func TestStampedNilProvider(t *testing.T) {
	var buf bytes.Buffer
	h := stampWith(textSink(&buf, slog.LevelInfo), nil)
	slog.New(h).Info("plain")
	assert.Contains(t, buf.String(), "plain")
}
