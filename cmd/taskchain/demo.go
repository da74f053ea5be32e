package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/taskchain/internal/design"
	"github.com/rendis/taskchain/internal/logging"
	"github.com/rendis/taskchain/pkg/schema"
)

const basicDemo = `
name: basic
body:
  sequence:
    - invoke: "log:iteration started"
    - concurrency:
        - invoke: "sleep:20ms"
        - invoke: "sleep:10ms"
        - invoke: "sleep:15ms"
    - if: "iteration % 2 == 0"
      then: { invoke: "log:even iteration" }
      else: { invoke: "log:odd iteration" }
    - catch: { invoke: "fail:recoverable" }
      filter: [user]
`

// The clock wakes the camera on every tick and each camera frame wakes the
// detector. Every program handles one frame per iteration.
var pipelineDemo = []string{`
name: clock
events:
  - { tag: tick, source: "timer:100ms" }
body:
  sequence:
    - sync: { listen: tick }
    - sync: { notify: frame }
`, `
name: camera
body:
  sequence:
    - sync: { listen: frame }
    - invoke: read_input
    - invoke: process
    - invoke: write_output
    - sync: { notify: obj_det }
`, `
name: detection
body:
  trigger: { invoke: detect }
  on: obj_det
`}

var demoCmd = &cobra.Command{
	Use:       "demo [basic|pipeline]",
	Short:     "Run a built-in demo",
	Long:      `Runs one of the embedded demo programs. "pipeline" wires a timer, a camera and a detector through local events.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"basic", "pipeline"},
	RunE: func(cmd *cobra.Command, args []string) error {
		name := "basic"
		if len(args) == 1 {
			name = args[0]
		}
		s, err := runSettings(cmd)
		if err != nil {
			return err
		}
		n, _ := cmd.Flags().GetInt("iterations")

		var sources []string
		switch name {
		case "basic":
			sources = []string{basicDemo}
		case "pipeline":
			sources = pipelineDemo
		default:
			return schema.NewErrorf(schema.ErrCodeNotFound, "unknown demo %q", name)
		}

		docs := make([]*schema.ProgramDocument, 0, len(sources))
		for _, src := range sources {
			doc, err := design.Parse([]byte(src))
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}

		catalog, err := demoCatalog(app.logger)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runDocuments(ctx, cmd.OutOrStdout(), s, app.logger, catalog, docs, n)
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	addRunFlags(demoCmd, 3)
}

// demoCatalog is the builtin catalog plus the pipeline stages.
func demoCatalog(logger *slog.Logger) (*design.Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := design.NewCatalog()
	if err := design.RegisterBuiltins(c, logger); err != nil {
		return nil, err
	}

	var frames atomic.Int64
	stage := func(name string, work time.Duration, count bool) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			time.Sleep(work)
			attrs := []any{}
			if count {
				attrs = append(attrs, slog.Int64("frame", frames.Add(1)))
			}
			logging.LogWith(ctx, logger).Info(name, attrs...)
			return nil
		}
	}

	for name, fn := range map[string]func(ctx context.Context) error{
		"read_input":   stage("read_input", 5*time.Millisecond, true),
		"process":      stage("process", 10*time.Millisecond, false),
		"write_output": stage("write_output", 2*time.Millisecond, false),
		"detect":       stage("detect", 15*time.Millisecond, false),
	} {
		if err := c.Register(name, fn); err != nil {
			return nil, err
		}
	}
	return c, nil
}
