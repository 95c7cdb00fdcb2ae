// Command gravsim is the entry point for the N-body engine described by
// spec §6: a parameter file plus a start-flag select initial conditions,
// restart, or snapshot-continuation, and the engine runs to the end of
// its integer timeline, periodically writing snapshots.
//
// Usage:
//
//	gravsim <parfile> [start-flag [snap-number]]
//
// start-flag:
//
//	0   read initial conditions from Input_File (default)
//	1   resume from the restart file next to Output_File_Base
//	2   continue from snapshot number snap-number
//	10  write a canonical parameter file to stdout and exit
//
// Flags:
//
//	--metrics.addr  Prometheus exporter listening address (default: disabled)
//	--verbosity     Log level 0-4: error, warn, info, debug (default: 2)
//	--version       Print version and exit
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/gravsim/gravsim/log"
	"github.com/gravsim/gravsim/metrics"
	"github.com/gravsim/gravsim/paramfile"
	"github.com/gravsim/gravsim/particle"
	"github.com/gravsim/gravsim/simcontext"
	"github.com/gravsim/gravsim/simloop"
	"github.com/gravsim/gravsim/snapshot"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the actual entry point, returning an exit code so it can be
// tested in isolation without calling os.Exit.
func run(args []string) int {
	fs := flag.NewFlagSet("gravsim", flag.ContinueOnError)
	metricsAddr := fs.String("metrics.addr", "", "Prometheus exporter listening address (empty disables it)")
	verbosity := fs.Int("verbosity", 2, "Log level 0-4 (0=error, 1=warn, 2=info, 3=debug)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: gravsim <parfile> [start-flag [snap-number]]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("gravsim %s (commit %s)\n", version, commit)
		return 0
	}

	log.SetDefault(log.New(verbosityToLevel(*verbosity)))
	logger := log.Default()

	rest := fs.Args()
	if len(rest) < 1 {
		fs.Usage()
		return 2
	}
	parfile := rest[0]
	startFlag := 0
	snapNumber := 0
	if len(rest) >= 2 {
		n, err := parseInt(rest[1])
		if err != nil {
			logger.Error("invalid start-flag", "value", rest[1], "err", err)
			return 2
		}
		startFlag = n
	}
	if len(rest) >= 3 {
		n, err := parseInt(rest[2])
		if err != nil {
			logger.Error("invalid snap-number", "value", rest[2], "err", err)
			return 2
		}
		snapNumber = n
	}

	f, err := os.Open(parfile)
	if err != nil {
		logger.Error("failed to open parameter file", "path", parfile, "err", err)
		return 1
	}
	cfg, err := paramfile.Parse(f, logger.Module("paramfile").Warn)
	f.Close()
	if err != nil {
		logger.Error("failed to parse parameter file", "path", parfile, "err", err)
		return 1
	}

	if startFlag == 10 {
		if err := paramfile.WriteCanonical(os.Stdout, cfg); err != nil {
			logger.Error("failed to write canonical parameter file", "err", err)
			return 1
		}
		return 0
	}

	if msg := cfg.BufferWarning(); msg != "" {
		logger.Warn(msg, "buffer_size_mib", cfg.BufferSize, "workers", cfg.Workers)
	}

	store, err := loadStore(cfg, startFlag, snapNumber)
	if err != nil {
		logger.Error("failed to load particle store", "err", err)
		return 1
	}
	logger.Info("loaded particle store", "n", store.N, "total_mass", store.TotalMass())

	eng := simloop.New(cfg, store, 1)

	if *metricsAddr != "" {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		mux.HandleFunc("/status", statusHandler(eng.Sys))
		srv := &http.Server{Addr: *metricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "err", err)
			}
		}()
		logger.Info("metrics exporter listening", "addr", *metricsAddr)
	}

	if err := eng.Run(snapshotHook(cfg)); err != nil {
		logger.Error("run aborted", "err", err)
		return 1
	}
	logger.Info("run complete", "iterations", eng.Ctx.Iteration)
	return 0
}

// loadStore resolves start-flag to the snapshot file it names and reads
// it into a fresh particle.Store: Input_File for a cold start (0),
// Output_File_Base's restart file for a resume (1), or the numbered
// snapshot for a continuation (2).
func loadStore(cfg simcontext.Config, startFlag, snapNumber int) (*particle.Store, error) {
	path, err := snapshotPath(cfg, startFlag, snapNumber)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	store, _, err := snapshot.ReadSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return store, nil
}

// snapshotPath maps a start-flag/snap-number pair onto the file spec §6
// says it names: Input_File for a cold start, Output_File_Base's
// ".restart" file for a resume, or a zero-padded numbered snapshot for a
// continuation.
func snapshotPath(cfg simcontext.Config, startFlag, snapNumber int) (string, error) {
	switch startFlag {
	case 0:
		return cfg.InputFile, nil
	case 1:
		return cfg.OutputFileBase + ".restart", nil
	case 2:
		return fmt.Sprintf("%s_%03d", cfg.OutputFileBase, snapNumber), nil
	default:
		return "", fmt.Errorf("unrecognized start-flag %d", startFlag)
	}
}

// snapshotHook returns the per-iteration callback simloop.Engine.Run
// invokes at every sync point and after the final iteration: a restart
// file is rewritten every time (cheap overwrite, resumable from the latest
// state) and a numbered, non-restart snapshot is written on every call for
// downstream analysis.
func snapshotHook(cfg simcontext.Config) func(*simloop.Engine) error {
	n := 0
	return func(e *simloop.Engine) error {
		meta := snapshot.Header{
			Time:        e.Clock.PhysicalTime(e.Clock.Current),
			BoxSize:     cfg.PeriodicBoxSize,
			NumFiles:    int32(cfg.NumOutputFiles),
			MassPerType: [particle.NumTypes]float64{},
		}

		restartPath := cfg.OutputFileBase + ".restart"
		if err := writeSnapshotFile(restartPath, e.Store, meta, true); err != nil {
			return fmt.Errorf("writing restart file: %w", err)
		}

		path := fmt.Sprintf("%s_%03d", cfg.OutputFileBase, n)
		n++
		if err := writeSnapshotFile(path, e.Store, meta, false); err != nil {
			return fmt.Errorf("writing snapshot %s: %w", path, err)
		}
		return nil
	}
}

func writeSnapshotFile(path string, store *particle.Store, meta snapshot.Header, restart bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return snapshot.WriteSnapshot(f, store, meta, restart)
}

// statusHandler serves sys's last-collected goroutine/memory/uptime and
// active-worker/sync-iteration/timeline-progress snapshot as JSON,
// alongside the Prometheus exporter's counters and histograms.
func statusHandler(sys *metrics.SystemMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := sys.ExportJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func verbosityToLevel(v int) slog.Level {
	switch {
	case v <= 0:
		return slog.LevelError
	case v == 1:
		return slog.LevelWarn
	case v == 2:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}
