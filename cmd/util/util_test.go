package util

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetBenchConfigFromFlagsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("ENTITYLOCKER_THREADS", "7")

	InitConfig()

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().Int("threads", 1, "")
	cmd.Flags().Int("iterations", 1, "")
	cmd.Flags().String("policy", "reclaim", "")
	cmd.Flags().Duration("lock-timeout", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--iterations=3", "--policy=retain", "--lock-timeout=15ms"}))
	require.NoError(t, BindCommandFlags(cmd))

	conf := GetBenchConfig()
	assert.Equal(t, 7, conf.Threads, "environment overrides unchanged flag defaults")
	assert.Equal(t, 3, conf.Iterations)
	assert.Equal(t, "retain", conf.Policy)
	assert.Equal(t, "15ms", conf.Timeout.String())
}
