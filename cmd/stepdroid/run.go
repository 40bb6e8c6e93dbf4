package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/v0xg/stepdroid/internal/ai"
	"github.com/v0xg/stepdroid/internal/browser"
	"github.com/v0xg/stepdroid/internal/device"
	"github.com/v0xg/stepdroid/internal/executor"
	"github.com/v0xg/stepdroid/internal/interpreter"
	"github.com/v0xg/stepdroid/internal/recording"
	"github.com/v0xg/stepdroid/internal/verify"
	"github.com/v0xg/stepdroid/internal/workflow"
)

var (
	textFormat  bool
	recordPath  string
	withMetrics bool
	headful     bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow.yaml|template-id>...",
		Short: "Run workflows one after another on one device session",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflows := make([]*workflow.Workflow, 0, len(args))
			for _, arg := range args {
				wf, err := resolveWorkflow(arg)
				if err != nil {
					return err
				}
				workflows = append(workflows, wf)
			}
			return runWorkflows(cmd, workflows)
		},
	}
	addEngineFlags(cmd)
	cmd.Flags().BoolVar(&textFormat, "text", false, "Treat files as one instruction per line")
	return cmd
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <instruction>",
		Short: "Run a single instruction as a one-step workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.FromText("exec", "exec", args[0])
			if err != nil {
				return err
			}
			return runWorkflows(cmd, []*workflow.Workflow{wf})
		},
	}
	addEngineFlags(cmd)
	return cmd
}

func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&recordPath, "record", "o", "", "Write a GIF of the run to this file")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Serve Prometheus metrics while running")
	cmd.Flags().BoolVar(&headful, "headful", false, "Show the browser window")
}

// resolveWorkflow loads arg as a file when it exists, otherwise as a
// built-in template id.
func resolveWorkflow(arg string) (*workflow.Workflow, error) {
	if _, err := os.Stat(arg); err == nil {
		if textFormat {
			data, err := os.ReadFile(arg)
			if err != nil {
				return nil, err
			}
			return workflow.FromText(arg, arg, string(data))
		}
		return workflow.Load(arg)
	}
	wf, err := workflow.Instantiate(arg)
	if err != nil {
		return nil, fmt.Errorf("%s is neither a workflow file nor a template: %w", arg, err)
	}
	return wf, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runWorkflows(cmd *cobra.Command, workflows []*workflow.Workflow) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	if recordPath != "" {
		cfg.Recording.Enabled = true
		cfg.Recording.Path = recordPath
	}
	if withMetrics {
		cfg.Metrics.Enabled = true
	}
	if headful {
		cfg.Device.Headless = false
	}

	fmt.Fprintf(os.Stderr, "→ Launching browser surface... ")
	surface, err := browser.Launch(ctx, browser.Options{
		Width:         cfg.Device.Width,
		Height:        cfg.Device.Height,
		Headless:      cfg.Device.Headless,
		ProfileDir:    cfg.Device.ProfileDir,
		ControlURL:    cfg.Device.ControlURL,
		HomeURL:       cfg.Device.HomeURL,
		Apps:          cfg.Device.AppURLs(),
		LoadTimeout:   cfg.Device.LoadTimeout,
		LongPressHold: cfg.Device.LongPressHold,
		Logger:        logger.Named("browser"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed")
		return err
	}
	defer surface.Close()
	fmt.Fprintln(os.Stderr, "done")

	var recorder *recording.Recorder
	if cfg.Recording.Enabled {
		recorder = recording.New(recording.Options{
			FPS:       cfg.Recording.FPS,
			MaxWidth:  cfg.Recording.MaxWidth,
			MaxFrames: cfg.Recording.MaxFrames,
			Logger:    logger.Named("recording"),
		})
	}

	interp, err := newInterpreter(surface, recorder)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	if cfg.Metrics.Enabled {
		serveMetrics(g, gctx, cfg.Metrics.Addr)
	}

	var failed int
	g.Go(func() error {
		defer cancel()
		queue := interpreter.NewQueue(gctx, interp, max(cfg.Engine.QueueSize, len(workflows)))
		defer queue.Drain()

		results := make([]<-chan interpreter.Result, 0, len(workflows))
		for _, wf := range workflows {
			_, res, ok := queue.Submit(wf)
			if !ok {
				return fmt.Errorf("queue rejected workflow %s", wf.ID)
			}
			results = append(results, res)
		}
		for i, res := range results {
			var r interpreter.Result
			select {
			case r = <-res:
			case <-gctx.Done():
				// The worker stops with the context; queued runs never start.
				failed += len(results) - i
				return nil
			}
			if r.Err != nil {
				logger.Error("workflow rejected", zap.String("workflow", workflows[i].ID), zap.Error(r.Err))
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", workflows[i].ID, r.Err)
				failed++
				continue
			}
			if r.Report.State != interpreter.StateCompleted {
				failed++
			}
			if err := printJSON(cmd.OutOrStdout(), r.Report); err != nil {
				return err
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if recorder != nil && recorder.Len() > 0 {
		fmt.Fprintf(os.Stderr, "→ Writing %s... ", cfg.Recording.Path)
		size, err := recorder.Save(cfg.Recording.Path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed")
			return fmt.Errorf("recording failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "done (%.1f KB)\n", float64(size)/1024)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d workflows did not complete", failed, len(workflows))
	}
	return nil
}

// newInterpreter wires the dispatcher, recorder and planner for surface.
// Configured app ids and raw URLs resolve on top of the built-in aliases.
func newInterpreter(surface device.Surface, recorder *recording.Recorder) (*interpreter.Interpreter, error) {
	apps := browser.NewAppResolver(executor.DefaultApps, cfg.Device.AppURLs())

	eo := executor.DefaultOptions()
	eo.Apps = apps
	eo.LaunchSettle = cfg.Engine.LaunchSettle
	eo.Settle = cfg.Engine.Settle
	eo.LongPressSettle = cfg.Engine.LongPressSettle
	eo.DoubleTapGap = cfg.Engine.DoubleTapGap
	eo.VerifyDelay = cfg.Engine.VerifyDelay
	eo.Verifier = verify.New(cfg.Engine.SimilarityThreshold)
	eo.Logger = logger.Named("executor")
	if recorder != nil {
		eo.Observer = recorder
	}

	opts := interpreter.Options{
		MaxSteps:   cfg.Engine.MaxSteps,
		Dispatcher: executor.New(surface, eo),
		Apps:       apps,
		Logger:     logger.Named("interpreter"),
	}
	if cfg.AI.Provider != "" {
		provider, err := ai.NewProvider(ai.Config{
			Provider:  cfg.AI.Provider,
			Model:     cfg.AI.Model,
			APIKey:    cfg.AI.APIKey,
			BaseURL:   cfg.AI.BaseURL,
			MaxTokens: cfg.AI.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("AI provider init failed: %w", err)
		}
		opts.Planner = ai.NewPlanner(provider, surface, ai.PlannerOptions{
			RequestsPerSecond: cfg.AI.RequestsPerSecond,
			Burst:             cfg.AI.Burst,
			Logger:            logger.Named("planner"),
		})
	}
	return interpreter.New(surface, opts), nil
}

// serveMetrics runs a /metrics endpoint until ctx ends.
func serveMetrics(g *errgroup.Group, ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
