package log

import (
	"bytes"
	"context"
	"flag"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFlag(t *testing.T) {
	testCases := []struct {
		testName      string
		targetLevel   string
		expectedLevel string
		expectErr     bool
	}{
		{"Debug", "debug", "debug", false},
		{"UpperCase", "WARN", "warn", false},
		{"Invalid", "invalid", "info", true},
		{"Empty", "", "info", true},
	}

	for _, testCase := range testCases {
		t.Run(testCase.testName, func(t *testing.T) {
			var cfg Config
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			cfg.RegisterFlags(fs)

			err := fs.Parse([]string{"-log.level=" + testCase.targetLevel})
			if testCase.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, testCase.expectedLevel, cfg.Level.String())
		})
	}
}

func TestNewLoggerFiltersBelowLevel(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.Level.Set("warn"))

	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)

	level.Info(logger).Log("msg", "dropped")
	level.Warn(logger).Log("msg", "kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestWithContext(t *testing.T) {
	var cfg Config
	var buf bytes.Buffer
	logger := NewLogger(cfg, &buf)

	ctx := InjectQueryID(context.Background(), "q-1")
	level.Info(WithContext(ctx, logger)).Log("msg", "hello")

	assert.Contains(t, buf.String(), "query_id=q-1")
}
