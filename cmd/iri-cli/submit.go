package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iriclient/internal/executor"
	"iriclient/internal/job"
	"iriclient/internal/notify"
	"iriclient/internal/observability"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type submitOptions struct {
	specFile          string
	resourceID        string
	pollInterval      time.Duration
	maxPolls          int
	cancelOnInterrupt bool
	metricsAddr       string
	callbackURL       string
}

func (a *app) submitCmd() *cobra.Command {
	var opts submitOptions
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Launch a compute job and poll it until it finishes",
		Long: `submit launches the job described by --spec-file and polls its status
until it completes, fails, is canceled, or the poll budget runs out.

Exit status: 0 completed, 2 failed or canceled, 1 timed out or error,
130 interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSubmit(cmd, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.specFile, "spec-file", "", "job spec (.json, .yaml or .yml)")
	f.StringVar(&opts.resourceID, "resource-id", "", "compute resource id (env IRI_RESOURCE_ID)")
	f.DurationVar(&opts.pollInterval, "poll-interval", job.DefaultPollInterval, "delay between status polls")
	f.IntVar(&opts.maxPolls, "max-polls", job.DefaultMaxAttempts, "maximum number of status polls")
	f.BoolVar(&opts.cancelOnInterrupt, "cancel-on-interrupt", false, "cancel the job when interrupted")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.StringVar(&opts.callbackURL, "callback-url", "", "POST lifecycle CloudEvents to this URL (env IRI_JOB_CALLBACK_URL)")
	_ = cmd.MarkFlagRequired("spec-file")
	return cmd
}

// jobConfig layers submit flags over the environment.
func (a *app) jobConfig(cmd *cobra.Command, opts submitOptions) job.Config {
	cfg := job.LoadConfigFromEnv()
	f := cmd.Flags()
	if f.Changed("resource-id") {
		cfg.ResourceID = opts.resourceID
	}
	if f.Changed("poll-interval") {
		cfg.PollInterval = opts.pollInterval
	}
	if f.Changed("max-polls") {
		cfg.MaxAttempts = opts.maxPolls
	}
	if f.Changed("cancel-on-interrupt") {
		cfg.CancelOnInterrupt = opts.cancelOnInterrupt
	}
	if f.Changed("callback-url") {
		cfg.CallbackURL = opts.callbackURL
	}
	return cfg.WithDefaults()
}

func (a *app) runSubmit(cmd *cobra.Command, opts submitOptions) error {
	spec, err := job.LoadSpecFile(opts.specFile)
	if err != nil {
		return err
	}
	cfg := a.jobConfig(cmd, opts)
	compact := a.v.GetBool("compact")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	var metricsServer *http.Server
	if opts.metricsAddr != "" {
		m, handler, err := observability.NewMetrics(ctx)
		if err != nil {
			return fmt.Errorf("failed to set up metrics: %w", err)
		}
		metrics = m
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", handler)
		metricsServer = &http.Server{
			Addr:         opts.metricsAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
	}

	var execMetrics executor.MetricsRecorder
	var driverOpts []job.DriverOption
	if metrics != nil {
		execMetrics = metrics
		driverOpts = append(driverOpts, job.WithMetrics(metrics))
	}

	d, err := a.newDispatcher(ctx, execMetrics)
	if err != nil {
		return err
	}

	reporters := job.Reporters{job.NewLogReporter(nil), &printReporter{w: a.stdout, compact: compact}}
	if cfg.CallbackURL != "" {
		ncfg := notify.LoadConfigFromEnv()
		ncfg.URL = cfg.CallbackURL
		ncfg.SigningKey = cfg.CallbackKey
		var nm notify.MetricsRecorder
		if metrics != nil {
			nm = metrics
		}
		n, err := notify.New(ncfg, nm)
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := n.Close(closeCtx); err != nil {
				slog.Warn("Notifier shutdown error", "error", err)
			}
		}()
		reporters = append(reporters, n)
	}
	driverOpts = append(driverOpts, job.WithReporter(reporters))

	driver := job.NewDriver(d, cfg, driverOpts...)

	var res *job.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if metricsServer != nil {
			defer shutdownServer(metricsServer)
		}
		// Aborted runs carry their error in res.Err.
		res, _ = driver.Run(gctx, spec)
		return nil
	})
	if metricsServer != nil {
		g.Go(func() error {
			slog.Info("Serving metrics", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := writeJSON(a.stdout, summarize(res), compact); err != nil {
		return err
	}
	if !res.Succeeded() {
		return &exitError{code: res.ExitCode(), err: res.Err}
	}
	return nil
}

func shutdownServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server shutdown error", "error", err)
	}
}

// summarize is the final line printed by submit.
func summarize(res *job.Result) map[string]any {
	out := map[string]any{
		"job_id":      res.JobID,
		"resource_id": res.ResourceID,
		"outcome":     res.Phase.String(),
		"state":       res.Status,
		"attempts":    res.Attempts,
		"exit_code":   res.ExitCode(),
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	if res.CancelSent {
		out["cancel_sent"] = true
	}
	return out
}

// printReporter writes the launch response and every status payload to
// stdout as JSON.
type printReporter struct {
	w       io.Writer
	compact bool
}

func (p *printReporter) JobSubmitted(_ context.Context, ev job.SubmittedEvent) {
	_ = writeJSON(p.w, ev.Payload, p.compact)
}

func (p *printReporter) PollCompleted(_ context.Context, ev job.PollEvent) {
	if ev.Err == nil {
		_ = writeJSON(p.w, ev.Payload, p.compact)
	}
}

func (p *printReporter) JobFinished(context.Context, *job.Result) {}
