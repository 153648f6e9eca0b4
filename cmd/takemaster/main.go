package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/cli"
	"github.com/linuxmatters/takemaster/internal/config"
	"github.com/linuxmatters/takemaster/internal/logging"
	"github.com/linuxmatters/takemaster/internal/pipeline"
	"github.com/linuxmatters/takemaster/internal/preset"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/storage"
	"github.com/linuxmatters/takemaster/internal/timing"
	"github.com/linuxmatters/takemaster/internal/ui"
)

var (
	version = "0.0.1"
)

// CLI defines the command-line interface
type CLI struct {
	Version bool `short:"v" help:"Show version information"`

	Preset  string `short:"p" default:"podcast" group:"processing" help:"Built-in preset name or path to a preset YAML file"`
	Workers int    `short:"w" group:"processing" help:"Takes cleaned in parallel (default: TAKEMASTER_WORKERS or one per CPU)"`
	Analyse bool   `short:"a" group:"processing" help:"Analyse the takes and print a report without processing"`

	Output string `short:"o" type:"path" group:"output" help:"Output directory (default: directory of the first take)"`
	Name   string `short:"n" default:"master" group:"output" help:"Base name of the mastered programme and its timing files"`
	Logs   bool   `group:"output" help:"Save detailed analysis logs"`

	VideoTiming  string  `type:"existingfile" group:"video" help:"Timing map JSON of the paired video"`
	FrameRate    float64 `group:"video" help:"Video frame rate, overrides the preset"`
	SyncStrategy string  `group:"video" help:"Force a sync strategy: none, volume_automation, visual_transition or trim_video"`

	NoTUI   bool `name:"no-tui" group:"display" help:"Print plain progress lines instead of the interactive display"`
	Verbose bool `group:"display" help:"Print every processing stage when --no-tui is set"`

	Takes []string `arg:"" name:"takes" help:"Recorded takes in scene order" type:"existingfile" optional:""`
}

func main() {
	cliArgs := &CLI{}
	kctx := kong.Parse(cliArgs,
		kong.Name("takemaster"),
		kong.Description("Voice take cleanup, assembly and mastering"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.ExplicitGroups([]kong.Group{
			{Key: "processing", Title: "Processing"},
			{Key: "output", Title: "Output"},
			{Key: "video", Title: "Video sync"},
			{Key: "display", Title: "Display"},
		}),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true}, preset.Names()...)),
	)

	// Handle version flag
	if cliArgs.Version {
		cli.PrintVersion(version)
		os.Exit(0)
	}

	// Validate input
	if len(cliArgs.Takes) == 0 {
		cli.PrintError("No takes specified")
		kctx.PrintUsage(false)
		os.Exit(1)
	}

	if cliArgs.VideoTiming == "" && (cliArgs.FrameRate > 0 || cliArgs.SyncStrategy != "") {
		cli.PrintWarning("--frame-rate and --sync-strategy have no effect without --video-timing")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}

	// The TUI owns the terminal, so logs go to a file unless it is off.
	logOut := io.Writer(os.Stderr)
	if !cliArgs.NoTUI {
		debugLog, err := os.Create("takemaster-debug.log")
		if err == nil {
			defer debugLog.Close()
			logOut = debugLog
		} else {
			logOut = io.Discard
		}
	}
	log := cfg.NewLogger(logOut)
	log.Debug("configuration loaded", slog.String("config", cfg.String()))

	if cliArgs.Analyse {
		if err := runAnalysis(cliArgs); err != nil {
			cli.PrintError(err.Error())
			os.Exit(1)
		}
		return
	}

	if err := runExport(ctx, cliArgs, cfg, log); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// buildJob resolves the preset and video timing into a pipeline job.
func buildJob(args *CLI) (pipeline.Job, error) {
	p, err := preset.Resolve(args.Preset)
	if err != nil {
		return pipeline.Job{}, err
	}
	if args.FrameRate > 0 {
		p.Video.FrameRate = args.FrameRate
	}

	job := pipeline.Job{
		Preset:       p,
		OutputDir:    args.Output,
		Name:         args.Name,
		SyncStrategy: avsync.Strategy(args.SyncStrategy),
	}
	for _, path := range args.Takes {
		job.Takes = append(job.Takes, pipeline.TakeInput{Path: path})
	}
	if args.VideoTiming != "" {
		if job.VideoTiming, err = loadVideoTiming(args.VideoTiming); err != nil {
			return pipeline.Job{}, err
		}
	}
	return job, nil
}

// loadVideoTiming reads a timing map, either bare or as the "programme" of a
// timing file written by a previous export.
func loadVideoTiming(path string) (*timing.Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("video timing: %w", err)
	}
	var doc struct {
		Programme *timing.Map `json:"programme"`
	}
	if err := json.Unmarshal(data, &doc); err == nil && doc.Programme != nil {
		return doc.Programme, nil
	}
	m := &timing.Map{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("video timing %s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// newPipeline wires runtime configuration into a pipeline.
func newPipeline(ctx context.Context, args *CLI, cfg *config.Config, log *slog.Logger) (*pipeline.Pipeline, error) {
	workers := cfg.WorkerCount()
	if args.Workers > 0 {
		workers = args.Workers
	}
	opts := []pipeline.Option{
		pipeline.WithLogger(log),
		pipeline.WithWorkers(workers),
		pipeline.WithCache(pipeline.NewCache(cfg.CacheEntries)),
	}
	if cfg.TempDir != "" {
		opts = append(opts, pipeline.WithWorkDir(cfg.TempDir))
	}
	if cfg.S3Enabled() {
		pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithPublisher(pub, cfg.S3Prefix))
	}
	return pipeline.New(opts...), nil
}

func runExport(ctx context.Context, args *CLI, cfg *config.Config, log *slog.Logger) error {
	job, err := buildJob(args)
	if err != nil {
		return err
	}
	pl, err := newPipeline(ctx, args, cfg, log)
	if err != nil {
		return err
	}

	start := time.Now()
	var res *pipeline.Result
	if args.NoTUI {
		res, err = pl.Run(ctx, job, cli.EventPrinter(os.Stdout, args.Verbose))
	} else {
		res, err = runWithTUI(ctx, pl, job)
	}
	if err != nil {
		return err
	}

	if args.Logs {
		writeReports(res, start, log)
	}
	cli.PrintSummary(os.Stdout, res)
	return nil
}

// runWithTUI runs the export in the background while the progress display
// owns the terminal.
func runWithTUI(ctx context.Context, pl *pipeline.Pipeline, job pipeline.Job) (*pipeline.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(ui.NewModel(job.Takes, cancel), tea.WithAltScreen())

	var (
		res    *pipeline.Result
		runErr error
		done   = make(chan struct{})
	)
	go func() {
		defer close(done)
		res, runErr = pl.Run(ctx, job, ui.Forward(p))
		p.Send(ui.ExportDoneMsg{Result: res, Err: runErr})
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, fmt.Errorf("UI error: %w", err)
	}
	// Quitting early cancels the export; wait for it to clean up.
	<-done
	return res, runErr
}

func writeReports(res *pipeline.Result, start time.Time, log *slog.Logger) {
	dir := filepath.Dir(res.MasterPath)
	end := start.Add(res.Duration)
	for _, tr := range res.Takes {
		path, err := logging.GenerateReport(dir, logging.ReportData{
			JobID:     res.JobID,
			Preset:    res.Preset,
			Take:      tr,
			StartTime: start,
			EndTime:   end,
		})
		if err != nil {
			log.Error("failed to write take report", slog.String("take", tr.ID), slog.Any("error", err))
			continue
		}
		log.Info("take report written", slog.String("take", tr.ID), slog.String("path", path))
	}

	name := filepath.Base(res.MasterPath)
	name = name[:len(name)-len(filepath.Ext(name))]
	if path, err := logging.GenerateProjectReport(dir, name, res, start); err != nil {
		log.Error("failed to write export report", slog.Any("error", err))
	} else {
		log.Info("export report written", slog.String("path", path))
	}
}

// analyseTake measures one take and renders the analysis report into w.
func analyseTake(codec audio.Decoder, path string, w io.Writer) error {
	buf, meta, err := codec.Decode(path)
	if err != nil {
		return err
	}
	pc, err := processor.NewContext(buf)
	if err != nil {
		return err
	}
	logging.DisplayAnalysisResults(w, path, meta, pc)
	return nil
}

// runAnalysis prints a report per take without writing any audio.
func runAnalysis(args *CLI) error {
	codec := audio.NewWAVCodec()

	if args.NoTUI {
		var failed error
		for _, path := range args.Takes {
			if err := analyseTake(codec, path, os.Stdout); err != nil {
				cli.PrintError(fmt.Sprintf("%s: %v", filepath.Base(path), err))
				failed = errors.Join(failed, err)
			}
		}
		return failed
	}

	// Reports are collected and printed after the spinner exits.
	reports := make([]string, len(args.Takes))
	errs := make([]error, len(args.Takes))
	p := tea.NewProgram(ui.NewAnalysisModel(args.Takes))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i, path := range args.Takes {
			p.Send(ui.AnalysisStartMsg{Index: i})
			var b strings.Builder
			errs[i] = analyseTake(codec, path, &b)
			reports[i] = b.String()
			p.Send(ui.AnalysisCompleteMsg{Index: i, Error: errs[i]})
		}
		p.Send(ui.AnalysisDoneMsg{})
	}()
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	if m, ok := final.(ui.AnalysisModel); !ok || !m.Done {
		return errors.New("analysis cancelled")
	}
	<-done

	var failed error
	for i, path := range args.Takes {
		if errs[i] != nil {
			cli.PrintError(fmt.Sprintf("%s: %v", filepath.Base(path), errs[i]))
			failed = errors.Join(failed, errs[i])
			continue
		}
		fmt.Print(reports[i])
	}
	return failed
}
