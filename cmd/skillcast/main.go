package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/talentops/skillcast/internal/adapters/repository"
	app "github.com/talentops/skillcast/internal/app"
	"github.com/talentops/skillcast/internal/config"
	"github.com/talentops/skillcast/internal/datagen"
	"github.com/talentops/skillcast/internal/dataset"
	"github.com/talentops/skillcast/internal/domain/model"
	"github.com/talentops/skillcast/internal/domain/rules"
	"github.com/talentops/skillcast/internal/features"
	"github.com/talentops/skillcast/internal/ml/pipeline"
	"github.com/talentops/skillcast/internal/ml/predictor"
	"github.com/talentops/skillcast/internal/monitor"
	"github.com/talentops/skillcast/internal/registry"
	"github.com/talentops/skillcast/internal/training"
	"github.com/talentops/skillcast/pkg/logger"
	"github.com/talentops/skillcast/pkg/metrics"
)

const (
	readHeaderTimeout = 5 * time.Second
	defaultHorizon    = 12
)

func main() {
	// Custom registry carries only our domain metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var cmdErr error
	switch os.Args[1] {
	case "train":
		cmdErr = runTrain(ctx, cfg, os.Args[2:])
	case "predict":
		cmdErr = runPredict(ctx, cfg, os.Args[2:])
	case "recalc":
		cmdErr = runRecalc(ctx, cfg, os.Args[2:])
	case "runs":
		cmdErr = runRuns(ctx, cfg, os.Args[2:])
	case "compare":
		cmdErr = runCompare(ctx, cfg, os.Args[2:])
	case "gen-dataset":
		cmdErr = runGenDataset(ctx, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		os.Stderr.WriteString("unknown command: " + os.Args[1] + "\n\n")
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		logger.Get().Error(ctx, "command failed", logger.Error(cmdErr))
		os.Exit(1)
	}
}

func usage() {
	os.Stdout.WriteString(`skillcast - skill demand forecasting

Usage:
  skillcast <command> [flags]

Commands:
  train        Train a model, evaluate it and run the promotion gate
  predict      Predict demand for one (job role, skill) pair
  recalc       Re-predict every known pair and record an audit
  runs         List training runs (all or failed only)
  compare      Contrast rule and model predictions on a labeled dataset
  gen-dataset  Generate a synthetic labeled dataset

Configuration is read from defaults, the YAML file named by
SKILLCAST_CONFIG, then SKILLCAST_* environment variables.
`)
}

func openStore(cfg *config.Config) (*repository.Store, error) {
	return repository.Open(cfg.RegistryPath)
}

func ruleEngine(cfg *config.Config) *rules.Engine {
	return rules.New(
		rules.WithWeights(cfg.RuleTrendWeight, cfg.RuleUsageWeight, cfg.RuleTrainingWeight),
		rules.WithThresholds(cfg.RuleMediumThreshold, cfg.RuleHighThreshold),
		rules.WithMaxTrainingRequests(cfg.RuleMaxTrainingRequests),
	)
}

func runTrain(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	datasetPath := fs.String("dataset", "data/training.csv", "labeled dataset to train on")
	split := fs.Float64("split", cfg.TestSplit, "held-out test fraction")
	trees := fs.Int("trees", model.DefaultHyperparameters().NumTrees, "number of trees")
	depth := fs.Int("depth", model.DefaultHyperparameters().MaxDepth, "maximum tree depth")
	seed := fs.Int64("seed", model.DefaultHyperparameters().Seed, "training seed")
	version := fs.String("version", "", "version label (generated when empty)")
	notes := fs.String("notes", "", "free-form run notes")
	modelDir := fs.String("model-dir", "data/models", "directory for trained artifacts")
	timeout := fs.Duration("timeout", 0, "training timeout (0 for none)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	hp := model.DefaultHyperparameters()
	hp.NumTrees = *trees
	hp.MaxDepth = *depth
	hp.Seed = *seed

	svc := training.NewService(
		dataset.NewLoader(logger.Named("dataset")),
		store,
		registry.New(store),
		training.WithModelDir(*modelDir),
	)
	result, err := svc.Train(ctx, training.Invocation{
		DatasetPath:     *datasetPath,
		TestSplit:       *split,
		Hyperparameters: hp,
		VersionLabel:    *version,
		Notes:           *notes,
	})
	if err != nil {
		return err
	}

	fmt.Printf("version:     %s\n", result.Version.VersionID)
	fmt.Printf("artifact:    %s\n", result.Version.ArtifactLocation)
	fmt.Printf("accuracy:    %.4f\n", result.Run.Metrics.Accuracy)
	fmt.Printf("f1_macro:    %.4f\n", result.Run.Metrics.F1Macro)
	fmt.Printf("f1_weighted: %.4f\n", result.Run.Metrics.F1Weighted)
	fmt.Printf("promoted:    %t\n", result.Promoted)
	for _, fw := range result.Run.FeatureImportance {
		fmt.Printf("  %-20s %.4f\n", fw.Feature, fw.Weight)
	}
	return nil
}

func buildOrchestrator(ctx context.Context, cfg *config.Config, snapshotPath string) (*app.Service, func(), error) {
	provider, err := loadSnapshot(snapshotPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	var sink monitor.Sink = monitor.NopSink{}
	if cfg.MonitoringEnabled {
		fileSink, serr := monitor.NewFileSink(cfg.MonitoringPath)
		if serr != nil {
			_ = store.Close()
			return nil, nil, serr
		}
		sink = fileSink
	}

	// The registry's production pointer wins; the configured path is the
	// fallback for registry-less deployments.
	reg := registry.New(store)
	var source predictor.ArtifactSource = reg
	if _, perr := reg.Production(ctx); errors.Is(perr, repository.ErrNotFound) && cfg.ModelPath != "" {
		source = predictor.FixedSource{Path: cfg.ModelPath}
	}

	svc := app.New(
		config.Static(cfg),
		provider,
		features.NewBuilder(provider, logger.Named("features")),
		ruleEngine(cfg),
		predictor.New(source),
		store,
		app.WithMonitorSink(sink),
		app.WithWorkerCount(cfg.BatchWorkerCount),
		app.WithQueueSize(cfg.JobQueueSize),
	)
	cleanup := func() {
		_ = sink.Close()
		_ = store.Close()
	}
	return svc, cleanup, nil
}

func runPredict(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	roleID := fs.String("role", "", "job role id")
	skillID := fs.String("skill", "", "skill id")
	horizon := fs.Int("horizon", defaultHorizon, "forecast horizon in months")
	explainFlag := fs.Bool("explain", false, "include an explanation")
	snapshot := fs.String("snapshot", "data/snapshot.json", "domain data snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *roleID == "" || *skillID == "" {
		return errors.New("both -role and -skill are required")
	}

	svc, cleanup, err := buildOrchestrator(ctx, cfg, *snapshot)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := svc.Predict(ctx, *roleID, *skillID, *horizon, *explainFlag)
	if err != nil {
		return err
	}

	fmt.Printf("level:  %s\n", result.Level)
	fmt.Printf("score:  %.1f\n", result.Score)
	fmt.Printf("engine: %s\n", result.Engine)
	fmt.Printf("why:    %s\n", result.Rationale)
	if result.Explanation != nil {
		fmt.Printf("text:   %s\n", result.Explanation.Text)
		for _, factor := range result.Explanation.TopFactors {
			fmt.Printf("  %-24s %-8s %.4f\n", factor.ReadableName, factor.Impact, factor.Strength)
		}
	}
	return nil
}

func runRecalc(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("recalc", flag.ExitOnError)
	horizon := fs.Int("horizon", defaultHorizon, "forecast horizon in months")
	trigger := fs.String("trigger", model.TriggerManual, "audit trigger source")
	snapshot := fs.String("snapshot", "data/snapshot.json", "domain data snapshot")
	if err := fs.Parse(args); err != nil {
		return err
	}

	svc, cleanup, err := buildOrchestrator(ctx, cfg, *snapshot)
	if err != nil {
		return err
	}
	defer cleanup()

	stopMetrics := serveMetrics(ctx, cfg.MetricsAddr)
	defer stopMetrics()

	audit, err := svc.RecalculateAll(ctx, *trigger, *horizon, map[string]string{"snapshot": *snapshot})
	if err != nil {
		return err
	}

	fmt.Printf("audit:    %s\n", audit.ID)
	fmt.Printf("engine:   %s\n", audit.Engine)
	fmt.Printf("pairs:    %d\n", audit.PairCount)
	fmt.Printf("failures: %d\n", audit.FailureCount)
	fmt.Printf("duration: %s\n", audit.Duration)
	return nil
}

func runRuns(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	failedOnly := fs.Bool("failed", false, "show failed runs only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	status := model.RunStatus("")
	if *failedOnly {
		status = model.RunFailed
	}
	runs, err := store.ListTrainingRuns(ctx, status)
	if err != nil {
		return err
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-9s  %s  %s", run.StartedAt.Format(time.RFC3339), run.Status, run.Version, run.Dataset)
		if run.Status == model.RunFailed {
			line += "  " + run.ErrorMessage
		} else if run.Metrics != nil {
			line += fmt.Sprintf("  f1_weighted=%.4f", run.Metrics.F1Weighted)
		}
		fmt.Println(line)
	}
	return nil
}

func runCompare(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	datasetPath := fs.String("dataset", "data/training.csv", "labeled dataset to compare on")
	artifact := fs.String("model", cfg.ModelPath, "model artifact to compare")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ds, err := dataset.NewLoader(logger.Named("dataset")).LoadFile(ctx, *datasetPath)
	if err != nil {
		return err
	}
	pipe, err := pipeline.Load(*artifact)
	if err != nil {
		return err
	}

	report := training.CompareWithRules(pipe, ruleEngine(cfg), ds)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runGenDataset(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gen-dataset", flag.ExitOnError)
	out := fs.String("out", "data/training.csv", "output CSV path")
	rows := fs.Int("rows", datagen.DefaultConfig().Rows, "number of rows")
	seed := fs.Int64("seed", datagen.DefaultConfig().Seed, "generation seed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	genCfg := datagen.DefaultConfig()
	genCfg.Rows = *rows
	genCfg.Seed = *seed
	if err := datagen.New(genCfg, nil).WriteCSV(ctx, *out); err != nil {
		return err
	}
	fmt.Printf("wrote %d rows to %s\n", *rows, *out)
	return nil
}

// snapshotFile is the on-disk domain data format the CLI serves predictions
// from in place of a live HR system.
type snapshotFile struct {
	Roles  []features.JobRole     `json:"job_roles"`
	Skills []features.Skill       `json:"skills"`
	Trends []features.MarketTrend `json:"market_trends"`
	Usage  []struct {
		JobRoleID        string  `json:"job_role_id"`
		SkillID          string  `json:"skill_id"`
		InternalUsage    float64 `json:"internal_usage"`
		TrainingRequests int     `json:"training_requests"`
		Availability     float64 `json:"availability"`
	} `json:"usage_signals"`
}

func loadSnapshot(path string) (*features.MemoryProvider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}
	var snap snapshotFile
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}

	provider := features.NewMemoryProvider()
	for _, role := range snap.Roles {
		provider.AddJobRole(role)
	}
	for _, skill := range snap.Skills {
		provider.AddSkill(skill)
	}
	for _, trend := range snap.Trends {
		provider.AddMarketTrend(trend)
	}
	for _, u := range snap.Usage {
		provider.SetUsageSignal(u.JobRoleID, u.SkillID, features.UsageSignal{
			InternalUsage:    u.InternalUsage,
			TrainingRequests: u.TrainingRequests,
			Availability:     u.Availability,
		})
	}
	return provider, nil
}

// serveMetrics exposes the Prometheus endpoint for the duration of a long
// running command.
func serveMetrics(ctx context.Context, addr string) func() {
	if addr == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Get().Warn(ctx, "metrics endpoint failed", logger.Error(err))
		}
	}()
	return func() { _ = srv.Close() }
}
