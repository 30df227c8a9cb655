package common

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Bench configuration struct
// --------------------------------------------------------------------------

// BenchConfig holds all configuration parameters of the bench scenarios.
type BenchConfig struct {
	// Locker settings
	Policy string

	// Workload
	Threads    int
	Iterations int
	Accounts   int

	// Bounded wait of the timeout scenario
	Timeout time.Duration

	// Metrics endpoint (empty = disabled)
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Validate checks the configuration for values no scenario can run with
func (c *BenchConfig) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("threads must be at least 1 (got %d)", c.Threads)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("iterations must be at least 1 (got %d)", c.Iterations)
	}
	if c.Accounts < 2 {
		return fmt.Errorf("accounts must be at least 2 (got %d)", c.Accounts)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("lock timeout must be positive (got %s)", c.Timeout)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *BenchConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Locker")
	addField("Handle Policy", c.Policy)

	addSection("Workload")
	addField("Threads", strconv.Itoa(c.Threads))
	addField("Iterations", strconv.Itoa(c.Iterations))
	addField("Accounts", strconv.Itoa(c.Accounts))
	addField("Timeout", c.Timeout.String())

	addSection("Observability")
	endpoint := c.MetricsEndpoint
	if endpoint == "" {
		endpoint = "disabled"
	}
	addField("Metrics Endpoint", endpoint)
	addField("Log Level", c.LogLevel)

	return sb.String()
}
