package bench

import (
	"context"
	"errors"
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/stden/EntityLocker/cmd/util"
	"github.com/stden/EntityLocker/lib/common"
	"github.com/stden/EntityLocker/lib/entitylock"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"
)

var (
	plog = logger.GetLogger("bench")

	benchConfig *common.BenchConfig

	// BenchCommands represents the bench command group
	BenchCommands = &cobra.Command{
		Use:   "bench",
		Short: "Run locking scenarios and verify their invariants",
		Long: `Runs a locking scenario against an in-process locker, prints latency
statistics and checks the invariants of the scenario. The command fails if
one of the checks does not hold.`,
		PersistentPreRunE: processBenchConfig,
	}

	counterCmd = &cobra.Command{
		Use:   "counter",
		Short: "Increment one shared counter from many goroutines",
		RunE:  scenarioCommand("counter", runCounter),
	}
	reentrantCmd = &cobra.Command{
		Use:   "reentrant",
		Short: "Increment a counter under an outer and a nested lock of the same entity",
		RunE:  scenarioCommand("reentrant", runReentrant),
	}
	deadlockCmd = &cobra.Command{
		Use:   "deadlock",
		Short: "Lock two entities in opposite orders and count the prevented deadlocks",
		RunE:  scenarioCommand("deadlock", runDeadlock),
	}
	timeoutCmd = &cobra.Command{
		Use:   "timeout",
		Short: "Try to lock a held entity with a bounded wait",
		RunE:  scenarioCommand("timeout", runTimeout),
	}
	transferCmd = &cobra.Command{
		Use:   "transfer",
		Short: "Transfer amounts between accounts of an entity cache",
		RunE:  scenarioCommand("transfer", runTransfer),
	}
)

func init() {
	// add flags
	key := "threads"
	BenchCommands.PersistentFlags().Int(key, 1000, util.WrapString("Number of goroutines to start"))
	key = "iterations"
	BenchCommands.PersistentFlags().Int(key, 1000, util.WrapString("Number of operations per goroutine"))
	key = "accounts"
	BenchCommands.PersistentFlags().Int(key, 10, util.WrapString("Number of accounts for the transfer scenario"))
	key = "lock-timeout"
	BenchCommands.PersistentFlags().Duration(key, 50*time.Millisecond, util.WrapString("How long the timeout scenario waits for a lock (e.g. 50ms, 1s)"))

	// add subcommands
	BenchCommands.AddCommand(counterCmd)
	BenchCommands.AddCommand(reentrantCmd)
	BenchCommands.AddCommand(deadlockCmd)
	BenchCommands.AddCommand(timeoutCmd)
	BenchCommands.AddCommand(transferCmd)
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	benchConfig = util.GetBenchConfig()
	if err := benchConfig.Validate(); err != nil {
		return err
	}
	if _, err := entitylock.ParsePolicy(benchConfig.Policy); err != nil {
		return err
	}
	return common.InitLoggers(benchConfig.LogLevel)
}

// scenarioCommand turns a scenario into the RunE function of a command
func scenarioCommand(name string, run scenario) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runScenario(ctx, cmd.OutOrStdout(), name, run, benchConfig)
	}
}

// runScenario creates a locker, runs the scenario against it and reports the
// result. It returns an error if the scenario failed or one of its checks did
// not hold.
func runScenario(ctx context.Context, out io.Writer, name string, run scenario, conf *common.BenchConfig) error {
	policy, err := entitylock.ParsePolicy(conf.Policy)
	if err != nil {
		return err
	}
	locker := entitylock.New[int](&entitylock.Options{Name: name, Policy: policy})

	if conf.MetricsEndpoint != "" {
		shutdown, err := serveMetrics(conf.MetricsEndpoint, locker)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	fmt.Fprintf(out, "Running scenario %q\n", name)
	fmt.Fprintln(out, conf.String())

	plog.Infof("starting scenario %s with %d goroutines", name, conf.Threads)
	res, err := run(ctx, locker, conf)
	if err != nil {
		plog.Errorf("scenario %s aborted: %v", name, err)
		return err
	}
	plog.Infof("scenario %s finished after %s (locker %s: %s)", name, res.Duration, locker.Name(), locker.Stats())

	res.Print(out)
	return res.Err()
}

// serveMetrics exposes the metrics of locker and of the process on /metrics
// until the returned function is called.
func serveMetrics(addr string, locker *entitylock.EntityLocker[int]) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not listen on metrics endpoint %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		locker.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			plog.Errorf("metrics endpoint stopped: %v", err)
		}
	}()
	plog.Infof("serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			plog.Warningf("could not shut down metrics endpoint: %v", err)
		}
	}, nil
}
