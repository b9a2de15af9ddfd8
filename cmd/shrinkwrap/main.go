package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"

	"shrinkwrap/pkg/config"
	"shrinkwrap/pkg/pointcloud"
	"shrinkwrap/pkg/reconstruction"
	"shrinkwrap/pkg/stl"
	"shrinkwrap/pkg/visualization"
)

// The shrinkwrap version number. Set at build.
var version = "v0.1.0"

var _ = reflect.TypeOf(options{})

type options struct {
	Input       string `cli:""        env:"SHRINKWRAP_INPUT"        help:"Oriented point cloud (x y z nx ny nz per line)."`
	Config      string `cli:""        env:"SHRINKWRAP_CONFIG"       help:"YAML configuration file."`
	Output      string `cli:""        env:"SHRINKWRAP_OUTPUT"       help:"Output STL file, overrides the configuration."`
	Report      string `cli:""        env:"SHRINKWRAP_REPORT"       help:"JSON report file, overrides the configuration."`
	SlicesDir   string `cli:""        env:"SHRINKWRAP_SLICES_DIR"   help:"Directory receiving slices of the final field, overrides the configuration."`
	Metrics     string `cli:""        env:"SHRINKWRAP_METRICS"      help:"Prometheus text file receiving the run metrics, overrides the configuration."`
	Iterations  int    `cli:""        env:"SHRINKWRAP_ITERATIONS"   help:"Maximum number of evolution steps, overrides the configuration."`
	Resolution  int    `cli:""        env:"SHRINKWRAP_RESOLUTION"   help:"Cells along the longest side of the cloud, overrides the configuration."`
	Workers     int    `cli:",hidden" env:"SHRINKWRAP_WORKERS"      help:"Goroutines sharing a step, overrides the configuration."`
	WriteConfig string `cli:""        env:"-"                       help:"Write the effective configuration to this file and exit."`
	LogLevel    string `cli:""        env:"SHRINKWRAP_LOG_LEVEL"    help:"Log level (debug|info|warning|error), overrides the configuration."`
	LogIndent   bool   `cli:""        env:"SHRINKWRAP_LOG_INDENT"   help:"Indent logs."`
	Version     bool   `cli:""        env:"-"                       help:"Show version."`
	Help        bool   `cli:""        env:"-"                       help:"Show help."`
}

// report is the JSON summary of a run.
type report struct {
	Version    string                 `json:"version"`
	SessionID  string                 `json:"session_id"`
	Input      string                 `json:"input"`
	Points     int                    `json:"points"`
	Grid       [3]int                 `json:"grid"`
	Delta      float64                `json:"delta"`
	Iterations int                    `json:"iterations"`
	Seconds    float64                `json:"seconds"`
	Vertices   int                    `json:"vertices"`
	Faces      int                    `json:"faces"`
	Steps      []reconstruction.Stats `json:"steps"`
}

func main() {
	opts := options{}

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Shrink-wraps a surface around an oriented point cloud.").
		Options(&opts)
	cli.Load()

	if opts.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.InfoLevel)
	logs.Encoder = json.Marshal
	if opts.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	cfg, err := loadConfig(opts)
	if err != nil {
		logs.Fatal(err)
	}
	logs.SetLevel(logs.ParseLevel(cfg.Output.LogLevel))

	if opts.WriteConfig != "" {
		if err := config.SaveConfig(cfg, opts.WriteConfig); err != nil {
			logs.Fatal(err)
		}
		logs.WithTag("path", opts.WriteConfig).Info("configuration written")
		return
	}

	if opts.Input == "" {
		logs.Fatal(errors.New("missing input point cloud, see -help"))
	}
	if err := run(ctx, opts.Input, cfg); err != nil {
		logs.Fatal(err)
	}
}

// loadConfig reads the configuration file and applies the command line
// overrides.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.Config != "" {
		c, err := config.LoadConfig(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	if opts.Output != "" {
		cfg.Output.STLPath = opts.Output
	}
	if opts.Report != "" {
		cfg.Output.ReportPath = opts.Report
	}
	if opts.SlicesDir != "" {
		cfg.Output.SlicesDir = opts.SlicesDir
	}
	if opts.Metrics != "" {
		cfg.Output.MetricsPath = opts.Metrics
	}
	if opts.Iterations > 0 {
		cfg.Evolution.Iterations = opts.Iterations
	}
	if opts.Resolution > 0 {
		cfg.Grid.Resolution = opts.Resolution
	}
	if opts.Workers > 0 {
		cfg.Evolution.NumWorkers = opts.Workers
	}
	if opts.LogLevel != "" {
		cfg.Output.LogLevel = opts.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, input string, cfg *config.Config) error {
	cloud, err := pointcloud.Load(input)
	if err != nil {
		return err
	}

	params, err := cfg.EvolutionParams()
	if err != nil {
		return err
	}

	evolver := reconstruction.NewEvolver(params)
	if err := evolver.Init(cfg.Grid.Resolution, cfg.Grid.Padding, cloud); err != nil {
		return err
	}

	start := time.Now()
	n, err := evolver.Run(ctx, cfg.Evolution.Iterations)
	if err != nil && ctx.Err() == nil {
		return err
	}
	if ctx.Err() != nil {
		logs.WithTag("session_id", evolver.SessionID()).
			WithTag("iterations", n).
			Info("interrupted, saving the current surface")
	}
	elapsed := time.Since(start)

	surface := evolver.Surface()
	if err := stl.SaveToSTL(cfg.Output.STLPath, stl.FromMesh(surface)); err != nil {
		return err
	}

	vol := evolver.Volume()
	if cfg.Output.ReportPath != "" {
		r := report{
			Version:    version,
			SessionID:  evolver.SessionID(),
			Input:      input,
			Points:     cloud.Len(),
			Grid:       [3]int{vol.Size(0), vol.Size(1), vol.Size(2)},
			Delta:      vol.Delta(),
			Iterations: evolver.Iterations(),
			Seconds:    elapsed.Seconds(),
			Vertices:   len(surface.Vertices),
			Faces:      len(surface.Faces),
			Steps:      evolver.History(),
		}
		if err := writeReport(cfg.Output.ReportPath, r); err != nil {
			return err
		}
	}

	if cfg.Output.MetricsPath != "" {
		if err := reconstruction.WriteMetrics(cfg.Output.MetricsPath); err != nil {
			return err
		}
	}

	if cfg.Output.SlicesDir != "" {
		viewer := visualization.FromVolume(vol, float64(cfg.Grid.Padding))
		for _, axis := range []string{"x", "y", "z"} {
			axisDir := filepath.Join(cfg.Output.SlicesDir, axis)
			if err := viewer.SaveSliceSequence(axis, axisDir); err != nil {
				logs.Warn(errors.New("saving slices failed").
					WithTag("axis", axis).
					Wrap(err))
			}
		}
	}

	stats := evolver.LastStats()
	logs.WithTag("session_id", evolver.SessionID()).
		WithTag("iterations", evolver.Iterations()).
		WithTag("seconds", elapsed.Seconds()).
		WithTag("vertices", len(surface.Vertices)).
		WithTag("faces", len(surface.Faces)).
		WithTag("residual_mean", stats.Residual.Mean).
		WithTag("residual_max", stats.Residual.Max).
		WithTag("stl", cfg.Output.STLPath).
		Info("reconstruction done")
	return nil
}

func writeReport(path string, r report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.New("encoding report failed").Wrap(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("writing report failed").
			WithTag("path", path).
			Wrap(err)
	}
	return nil
}
