package obslog

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	return buf, func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		reconfigure()
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Run("InfoLevelFiltersDebug", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})

	t.Run("SetLevelIsCaseInsensitive", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("debug")
		Debug("test message")
		assert.Contains(t, buf.String(), "test message")
	})

	t.Run("SetLevelIgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		buf.Reset()
		SetLevel("BOGUS")
		Debug("debug message")
		Info("info message")

		out := buf.String()
		assert.NotContains(t, out, "debug message")
		assert.Contains(t, out, "info message")
	})
}

func TestMessageFormatting(t *testing.T) {
	t.Run("FormatsMessagesWithStructuredFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("register read", "register_path", "ADC0", "num_elements", 4)

		out := buf.String()
		assert.Contains(t, out, "register read")
		assert.Contains(t, out, "register_path=ADC0")
		assert.Contains(t, out, "num_elements=4")
	})
}

func TestJSONFormat(t *testing.T) {
	t.Run("JSONFormatProducesValidJSON", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")
		Info("register read", "register_path", "ADC0")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "INFO", entry["level"])
		assert.Equal(t, "register read", entry["msg"])
		assert.Equal(t, "ADC0", entry["register_path"])
	})
}

func TestContextLogging(t *testing.T) {
	t.Run("LogContextInjectsFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetFormat("json")

		lc := &LogContext{
			TraceID:           "abc123",
			Backend:           "dummy",
			RegisterPath:      "ADC0",
			TransferElementID: "te-1",
		}
		ctx := WithContext(context.Background(), lc)

		InfoCtx(ctx, "read complete", "extra", "value")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
		assert.Equal(t, "abc123", entry["trace_id"])
		assert.Equal(t, "dummy", entry["backend"])
		assert.Equal(t, "ADC0", entry["register_path"])
		assert.Equal(t, "te-1", entry["transfer_element_id"])
		assert.Equal(t, "value", entry["extra"])
	})

	t.Run("NilContextHandled", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		require.NotPanics(t, func() { InfoCtx(nil, "test message") })
		assert.Contains(t, buf.String(), "test message")
	})
}

func TestLogContext(t *testing.T) {
	t.Run("CloneIsIndependent", func(t *testing.T) {
		lc := &LogContext{Backend: "dummy", RegisterPath: "ADC0"}
		clone := lc.Clone()
		clone.RegisterPath = "ADC1"
		assert.Equal(t, "ADC0", lc.RegisterPath)
	})

	t.Run("CloneNil", func(t *testing.T) {
		var lc *LogContext
		assert.Nil(t, lc.Clone())
	})

	t.Run("WithRegisterPathReturnsCopy", func(t *testing.T) {
		lc := &LogContext{Backend: "dummy"}
		lc2 := lc.WithRegisterPath("ADC0")
		assert.Equal(t, "ADC0", lc2.RegisterPath)
		assert.Equal(t, "", lc.RegisterPath)
	})
}

func TestFieldHelpers(t *testing.T) {
	t.Run("ErrHandlesNil", func(t *testing.T) {
		assert.Equal(t, "", Err(nil).Key)
	})

	t.Run("ErrFormatsError", func(t *testing.T) {
		attr := Err(assert.AnError)
		assert.Equal(t, KeyError, attr.Key)
		assert.Contains(t, attr.Value.String(), "assert.AnError")
	})
}

func TestConcurrentLogging(t *testing.T) {
	t.Run("ConcurrentLogsDoNotRace", func(t *testing.T) {
		InitWithWriter(io.Discard, "DEBUG", "text", false)
		defer func() {
			mu.Lock()
			output = os.Stdout
			mu.Unlock()
			reconfigure()
		}()

		var wg sync.WaitGroup
		wg.Add(10)
		for i := 0; i < 10; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					Info("transfer", "backend", id, "iteration", j)
				}
			}(i)
		}
		require.NotPanics(t, wg.Wait)
	})
}

func TestInit(t *testing.T) {
	t.Run("InitWithEmptyConfig", func(t *testing.T) {
		require.NoError(t, Init(Config{}))
	})

	t.Run("InitWithConfig", func(t *testing.T) {
		require.NoError(t, Init(Config{Level: "DEBUG", Format: "text", Output: "stdout"}))
		mu.Lock()
		output = os.Stdout
		mu.Unlock()
		reconfigure()
	})
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "UNKNOWN", Level(99).String())
}

func TestDuration(t *testing.T) {
	assert.GreaterOrEqual(t, Duration(time.Now()), 0.0)
}

func TestFormatSwitching(t *testing.T) {
	t.Run("InvalidFormatIgnored", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetFormat("text")
		SetFormat("xml")
		Info("still text")
		assert.Contains(t, buf.String(), "[INFO]")
	})
}
