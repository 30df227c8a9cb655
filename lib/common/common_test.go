package common

import (
	"bytes"
	"log"
	"testing"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		" error ": logger.ERROR,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &lockLogger{name: "entitylock", level: logger.WARNING, logger: log.New(&buf, "", 0)}

	l.Debugf("hidden %d", 1)
	l.Infof("hidden %d", 2)
	l.Warningf("shown %d", 3)
	l.Errorf("shown %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "WARN  | entitylock   | shown 3")
	assert.Contains(t, out, "ERROR | entitylock   | shown 4")

	l.SetLevel(logger.DEBUG)
	l.Debugf("now shown")
	assert.Contains(t, buf.String(), "DEBUG | entitylock   | now shown")
}

func TestBenchConfig(t *testing.T) {
	conf := BenchConfig{
		Policy:     "reclaim",
		Threads:    4,
		Iterations: 10,
		Accounts:   2,
		Timeout:    time.Millisecond,
		LogLevel:   "info",
	}
	require.NoError(t, conf.Validate())
	assert.Contains(t, conf.String(), "Metrics Endpoint      : disabled")
	assert.Contains(t, conf.String(), "Handle Policy         : reclaim")

	conf.Threads = 0
	assert.Error(t, conf.Validate())

	conf.Threads = 1
	conf.LogLevel = "loud"
	assert.Error(t, conf.Validate())
}
