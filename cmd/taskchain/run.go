package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rendis/taskchain/internal/design"
	"github.com/rendis/taskchain/internal/engine"
	"github.com/rendis/taskchain/internal/events"
	"github.com/rendis/taskchain/internal/program"
	"github.com/rendis/taskchain/internal/scheduler"
	"github.com/rendis/taskchain/pkg/schema"
)

var runCmd = &cobra.Command{
	Use:   "run <file>...",
	Short: "Run program documents",
	Long: `Compiles every program document, runs each one n times concurrently and waits
for all of them. Programs in the same invocation share event tags.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := runSettings(cmd)
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("iterations")

		docs := make([]*schema.ProgramDocument, 0, len(args))
		for _, path := range args {
			doc, err := design.Load(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			docs = append(docs, doc)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runDocuments(ctx, cmd.OutOrStdout(), s, app.logger, nil, docs, n)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd, 1)
}

func addRunFlags(cmd *cobra.Command, iterations int) {
	cmd.Flags().IntP("iterations", "n", iterations, "iterations per program")
	cmd.Flags().String("ipc", "", "provider for ipc tags: local, stub or redis")
	cmd.Flags().String("redis-addr", "", "redis address for --ipc redis")
	cmd.Flags().String("metrics-addr", "", "serve /metrics and /healthz on this address")
	cmd.Flags().Duration("timeout", 0, "give up waiting for programs after this long")
}

// runSettings overlays the run flags that were set on the loaded settings.
func runSettings(cmd *cobra.Command) (Settings, error) {
	s := app.settings
	if cmd.Flags().Changed("ipc") {
		s.IPC, _ = cmd.Flags().GetString("ipc")
	}
	if cmd.Flags().Changed("redis-addr") {
		s.RedisAddr, _ = cmd.Flags().GetString("redis-addr")
	}
	if cmd.Flags().Changed("metrics-addr") {
		s.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
	}
	if cmd.Flags().Changed("timeout") {
		s.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	return s, s.Validate()
}

func ipcProvider(s Settings, local *events.LocalProvider, logger *slog.Logger) (events.Provider, func()) {
	switch s.IPC {
	case "redis":
		p := events.NewRedisProvider(s.RedisAddr, s.RedisPassword, s.RedisDB,
			events.WithRedisPrefix(s.RedisPrefix),
			events.WithRedisLogger(logger))
		return p, func() { _ = p.Close() }
	case "stub":
		return events.NewStubProvider(logger), func() {}
	default:
		return local, func() {}
	}
}

// runDocuments compiles docs against catalog (builtins when nil) and runs
// them together on one executor.
func runDocuments(ctx context.Context, out io.Writer, s Settings, logger *slog.Logger, catalog *design.Catalog, docs []*schema.ProgramDocument, n int) error {
	if logger == nil {
		logger = slog.Default()
	}
	if catalog == nil {
		catalog = design.NewCatalog()
		if err := design.RegisterBuiltins(catalog, logger); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	metrics, err := engine.NewMetrics(reg)
	if err != nil {
		return err
	}
	ex := scheduler.NewExecutor(logger)
	defer func() { _ = ex.Shutdown(context.WithoutCancel(ctx)) }()
	if err := engine.RegisterExecutor(reg, ex); err != nil {
		return err
	}
	if s.MetricsAddr != "" {
		stopMetrics := serveMetrics(s.MetricsAddr, reg, logger)
		defer stopMetrics()
	}

	local := events.NewLocalProvider()
	ipc, closeIPC := ipcProvider(s, local, logger)
	defer closeIPC()

	compiler := design.NewCompiler(catalog,
		design.WithLocalProvider(local),
		design.WithIPCProvider(ipc),
		design.WithScheduler(ex),
		design.WithObserver(metrics),
		design.WithLogger(logger),
		design.WithBaseConfig(s.DesignConfig()))

	programs := make([]*program.Program, 0, len(docs))
	for _, doc := range docs {
		p, err := compiler.Compile(doc)
		if err != nil {
			return fmt.Errorf("compile %q: %w", doc.Name, err)
		}
		programs = append(programs, p)
	}

	eng := engine.New(ex, engine.WithLogger(logger), engine.WithMetrics(metrics))
	runs, err := eng.RunAll(ctx, programs, n, s.Timeout)
	if err != nil {
		local.CloseAll()
		return err
	}
	return printRuns(out, runs)
}

func printRuns(out io.Writer, runs []*engine.Run) error {
	failed := 0
	for _, run := range runs {
		report, err := run.Result()
		if err != nil {
			failed++
			fmt.Fprintf(out, "%-16s aborted: %v\n", run.Program, err)
			continue
		}
		shutdown := "ok"
		if report.Shutdown != nil {
			shutdown = report.Shutdown.Error()
		}
		fmt.Fprintf(out, "%-16s run=%s iterations=%d succeeded=%d shutdown=%s\n",
			run.Program, report.RunID, len(report.Iterations), report.Succeeded(), shutdown)
		for _, it := range report.Failed() {
			fmt.Fprintf(out, "%-16s   iteration %d: %v\n", "", it.Index, it.Err)
		}
		if report.Err() != nil {
			failed++
		}
	}
	if failed > 0 {
		return schema.NewErrorf(schema.ErrCodeUser, "%d of %d programs failed", failed, len(runs))
	}
	return nil
}
