package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"turbodecode/internal/decode"
	"turbodecode/internal/harness"
	"turbodecode/internal/obs"
	"turbodecode/internal/ops"
	"turbodecode/internal/report"
	"turbodecode/internal/turbo"
	"turbodecode/pkg/conn"
)

type options struct {
	configPath string
	input      string
	outputDir  string
	strategies string
	noise      float64
	maxIter    int
	threshold  float64
	sentinel   string
	parallel   bool
	progress   bool
	pgDSN      string
	pyroscope  string
}

func main() {
	if err := run(); err != nil {
		logs.Errorf("decode: %v", err)
		os.Exit(1)
	}
}

func run() error {
	var opt options
	flag.StringVar(&opt.configPath, "config", "", "Path to JSON config")
	flag.StringVar(&opt.input, "input", ops.DefaultInput, "Input CSV of key,symbol lines")
	flag.StringVar(&opt.outputDir, "output-dir", ops.DefaultOutputDir, "Directory for <STRATEGY>_Output.csv files")
	flag.StringVar(&opt.strategies, "strategies", strings.Join(turbo.Names(), ","), "Comma separated strategy names")
	flag.Float64Var(&opt.noise, "noise", decode.DefaultNoiseVariance, "Channel noise variance")
	flag.IntVar(&opt.maxIter, "max-iterations", decode.DefaultMaxIterations, "Maximum decoding iterations")
	flag.Float64Var(&opt.threshold, "threshold", decode.DefaultConvergenceThreshold, "Convergence threshold")
	flag.StringVar(&opt.sentinel, "sentinel", "", "Value written when a strategy cannot decode a record")
	flag.BoolVar(&opt.parallel, "parallel", false, "Decode the strategies of a record concurrently")
	flag.BoolVar(&opt.progress, "progress", true, "Print one line per accepted record")
	flag.StringVar(&opt.pgDSN, "pg-dsn", "", "PostgreSQL DSN for run reports (optional)")
	flag.StringVar(&opt.pyroscope, "pyroscope", "", "Pyroscope server address (optional)")
	flag.Parse()

	loaded, err := loadConfig(opt)
	if err != nil {
		return err
	}

	if opt.pyroscope != "" {
		profiler, err := startProfiler(opt.pyroscope)
		if err != nil {
			return fmt.Errorf("pyroscope start failed: %w", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-sys.Shutdown():
			logs.Info("shutdown signal received, aborting run")
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := decode.NewRegistry()
	if err := turbo.Register(reg); err != nil {
		return err
	}

	metrics := obs.NewMetrics()
	h := harness.New(loaded.Harness, reg, harness.WithMetrics(metrics))
	rep, runErr := h.Run(ctx)
	logMetrics(metrics.Snapshot())

	if loaded.ReportDSN != "" {
		if err := saveReport(ctx, loaded.ReportDSN, rep); err != nil {
			logs.Errorf("save run report failed: %v", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", rep.State, runErr)
	}
	fmt.Println("Data decoded successfully !!!")
	return nil
}

// loadConfig starts from the config file, if any, and applies the flags
// that were set explicitly.
func loadConfig(opt options) (ops.Loaded, error) {
	loaded := ops.Default()
	if opt.configPath != "" {
		var err error
		loaded, err = ops.Load(opt.configPath)
		if err != nil {
			return ops.Loaded{}, fmt.Errorf("config load failed: %w", err)
		}
	}

	cfg := &loaded.Harness
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = opt.input
		case "output-dir":
			cfg.Sink.Dir = opt.outputDir
		case "strategies":
			cfg.Strategies = splitNames(opt.strategies)
		case "noise":
			cfg.Channel.NoiseVariance = opt.noise
		case "max-iterations":
			cfg.Channel.MaxIterations = opt.maxIter
		case "threshold":
			cfg.Channel.ConvergenceThreshold = opt.threshold
		case "sentinel":
			cfg.Sentinel = opt.sentinel
		case "parallel":
			cfg.Parallel = opt.parallel
		case "pg-dsn":
			loaded.ReportDSN = opt.pgDSN
		}
	})
	if opt.progress {
		cfg.Progress = os.Stdout
	} else {
		cfg.Progress = io.Discard
	}
	return loaded, nil
}

func splitNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func saveReport(ctx context.Context, dsn string, rep harness.Report) error {
	client, err := conn.New(conn.FromDSN(dsn))
	if err != nil {
		return err
	}
	defer client.Close()

	// the run context may already be canceled; the report is still worth keeping.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	store, err := report.NewStore(client.DB())
	if err != nil {
		return err
	}
	if err := store.Migrate(saveCtx); err != nil {
		return err
	}
	id, err := store.Save(saveCtx, rep)
	if err != nil {
		return err
	}
	logs.Infof("run report saved, id: %d", id)
	return nil
}

func logMetrics(s obs.Snapshot) {
	logs.Infof("metrics: lines=%d accepted=%d rejected=%d", s.Lines, s.Accepted, s.Rejected)
	for name, st := range s.Strategies {
		logs.Infof("metrics: strategy=%s failures=%d decode_latency=%+v", name, st.Failures, st.Latency)
	}
}

func startProfiler(addr string) (*pyroscope.Profiler, error) {
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: "turbodecode",
		ServerAddress:   addr,
		Logger:          profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
		},
	})
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  { logs.Infof(format, args...) }
func (profilerLogger) Debugf(_ string, _ ...interface{})         {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
