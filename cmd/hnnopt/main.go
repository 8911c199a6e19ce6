package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yarikoptic/hnn/internal/metrics"
	"github.com/yarikoptic/hnn/internal/optd"
	"github.com/yarikoptic/hnn/internal/optimization"
	"github.com/yarikoptic/hnn/internal/results"
	"github.com/yarikoptic/hnn/internal/runner"
	"github.com/yarikoptic/hnn/internal/sim"
	"github.com/yarikoptic/hnn/internal/storage"
	"github.com/yarikoptic/hnn/internal/supervisor"
	"github.com/yarikoptic/hnn/pkg/config"
	"github.com/yarikoptic/hnn/pkg/logger"
	"github.com/yarikoptic/hnn/pkg/models"
	"github.com/yarikoptic/hnn/pkg/utils"
)

// paramFileSink keeps an on-disk YAML snapshot of the current working
// parameter set, rewritten on every driver push.
type paramFileSink struct {
	path string
}

func (s *paramFileSink) PushParams(params models.ParameterSet) {
	data, err := config.MarshalParamsYAML(params)
	if err != nil {
		logger.Warn("failed to marshal parameter snapshot", "error", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Warn("failed to write parameter snapshot", "path", s.path, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logger.Warn("failed to replace parameter snapshot", "path", s.path, "error", err)
	}
}

func main() {
	var configPath string
	var httpAddr string
	var logLevel string
	var logJSON bool
	var workers int
	var paramsOut string

	flag.StringVar(&configPath, "config", "", "path to the optimization config YAML (required)")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error; overrides config)")
	flag.BoolVar(&logJSON, "log-json", false, "emit JSON logs instead of text")
	flag.IntVar(&workers, "workers", 0, "initial worker count (overrides config)")
	flag.StringVar(&paramsOut, "params-out", "", "path for the live parameter snapshot YAML")
	flag.Parse()

	if configPath == "" {
		logger.Error("missing required -config flag")
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	if logJSON {
		logger.SetDefault(logger.New(level, os.Stdout))
	} else {
		logger.SetDefault(logger.NewText(level, os.Stdout))
	}

	reference, err := models.LoadDipole(cfg.Reference.Path)
	if err != nil {
		logger.Error("failed to load reference waveform", "path", cfg.Reference.Path, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := utils.GenerateRunID()
	logger.Info("starting optimization run", "run_id", runID, "config", configPath)

	progress := optd.NewProgressLog(0)

	collector, err := metrics.NewCollector(nil)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	simulator := &sim.MPISimulator{
		MPICmd:  cfg.Simulation.MPICmd,
		Command: cfg.Simulation.Command,
		Args:    cfg.Simulation.Args,
		WorkDir: cfg.Simulation.WorkDir,
		Output:  progress,
	}
	sup := supervisor.New(cfg.Simulation.Command)

	emit := &optimization.Emitter{}
	emit.AddProgress(progress)
	emit.AddBest(collector)
	emit.AddStep(collector)
	if paramsOut != "" {
		emit.AddParams(&paramFileSink{path: paramsOut})
	}

	run := runner.New(collector.InstrumentSimulator(simulator), sup, emit)
	run.OnRetry = collector.OnRetry

	storeKind := ""
	storePath := ""
	if cfg.Storage != nil && cfg.Storage.Path != "" {
		storeKind = "sqlite"
		storePath = cfg.Storage.Path
	}
	trialStore, err := storage.NewStore(storeKind, storePath)
	if err != nil {
		logger.Error("failed to create trial store", "error", err)
		os.Exit(1)
	}
	if err := trialStore.Init(ctx); err != nil {
		logger.Error("failed to initialize trial store", "path", storePath, "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.CloseIfSupported(trialStore); err != nil {
			logger.Warn("failed to close trial store", "error", err)
		}
	}()

	effectiveWorkers := cfg.Simulation.Workers
	if workers > 0 {
		effectiveWorkers = workers
	}
	opts := optimization.Options{
		Workers: effectiveWorkers,
		Trials:  cfg.Simulation.Trials,
		TStop:   cfg.Simulation.TStop,
		Seed:    cfg.Simulation.Seed,
	}

	driver := optimization.NewDriver(
		run,
		results.NewStore(reference),
		sup,
		optimization.StepsFromConfig(cfg),
		models.ParameterSet(cfg.Parameters),
		opts,
		emit,
		trialStore,
		runID,
	)

	// A signal cancels the run: in-flight simulations die with ctx, the
	// driver sweeps stragglers and stops issuing new evaluations.
	go func() {
		<-ctx.Done()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		driver.Cancel(cleanupCtx)
	}()

	addr := httpAddr
	if addr == "" && cfg.Server != nil {
		addr = cfg.Server.HTTPAddr
	}
	var httpSrv *http.Server
	if addr != "" {
		api := optd.NewHTTPServer(driver, trialStore, progress, collector.Handler(), func() {
			cancelCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			driver.Cancel(cancelCtx)
		})
		httpSrv = &http.Server{
			Addr:              addr,
			Handler:           api.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	runErr := driver.Run(ctx)

	if cfg.Server != nil && cfg.Server.CallbackURL != "" {
		optd.NewNotifier().Notify(cfg.Server.CallbackURL, cfg.Server.CallbackSecret, driver.State().Snapshot(), driver.Params())
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error", "error", err)
		}
		cancel()
	}

	switch {
	case runErr == nil:
		logger.Info("optimization run complete", "run_id", runID)
	case errors.Is(runErr, runner.ErrCancelled):
		logger.Info("optimization run cancelled", "run_id", runID)
	default:
		logger.Error("optimization run failed", "run_id", runID, "error", runErr)
		os.Exit(1)
	}
}
