package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/linuxmatters/takemaster/internal/assembly"
	"github.com/linuxmatters/takemaster/internal/audio"
	"github.com/linuxmatters/takemaster/internal/avsync"
	"github.com/linuxmatters/takemaster/internal/observe"
	"github.com/linuxmatters/takemaster/internal/processor"
	"github.com/linuxmatters/takemaster/internal/storage"
	"github.com/linuxmatters/takemaster/internal/timing"
)

// Pipeline runs exports. One Pipeline may run several jobs, one at a time or
// concurrently; each run owns its buffers and processing contexts.
type Pipeline struct {
	registry      *processor.Registry
	codec         Codec
	cache         *Cache
	metrics       *observe.Metrics
	log           *slog.Logger
	workers       int
	workDir       string
	publisher     storage.Publisher
	publishPrefix string
}

// New creates a Pipeline. Apply [Option] values to override the defaults.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, o := range opts {
		o(p)
	}
	p.applyDefaults()
	return p
}

// plan is everything resolved before processing starts.
type plan struct {
	job         Job
	workDir     string
	fingerprint string
	pass1       *processor.Chain
	pass2       *processor.Chain
	assembler   *assembly.Assembler
	mastering   assembly.MasteringConfig
	log         *slog.Logger
	progress    ProgressFunc
	written     *written
}

// Run processes job. Configuration and input problems are reported before
// any audio is processed. On failure or cancellation every file the run
// wrote is removed again.
func (p *Pipeline) Run(ctx context.Context, job Job, progress ProgressFunc) (res *Result, err error) {
	start := time.Now()
	if progress == nil {
		progress = func(Event) {}
	}

	pl, err := p.prepare(job, progress)
	if err != nil {
		return nil, err
	}
	log := pl.log
	log.Info("export started",
		slog.Int("takes", len(pl.job.Takes)),
		slog.String("preset", pl.job.Preset.Name),
		slog.Int("workers", p.workers),
	)
	defer func() {
		p.metrics.ExportDuration.Record(ctx, time.Since(start).Seconds())
		if err != nil {
			pl.written.remove()
			log.Error("export failed", slog.Any("error", err))
		}
	}()

	takes, bufs, err := p.runTakes(ctx, pl)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(Event{Kind: PhaseStarted, Phase: PhaseAssembly})
	atakes := make([]assembly.Take, len(takes))
	for i := range takes {
		atakes[i] = assembly.Take{ID: takes[i].ID, Buffer: bufs[i], Timing: takes[i].Timing}
	}
	joined, err := pl.assembler.Assemble(ctx, atakes)
	if err != nil {
		return nil, fmt.Errorf("assembly: %w", err)
	}
	log.Debug("takes assembled",
		slog.Int("transitions", len(joined.Transitions)),
		slog.Duration("duration", joined.Buffer.Duration()),
	)

	before, err := measure(joined.Buffer)
	if err != nil {
		return nil, fmt.Errorf("measure programme: %w", err)
	}

	progress(Event{Kind: PhaseStarted, Phase: PhaseMastering})
	mastered, err := assembly.Master(ctx, p.registry, joined.Buffer, pl.mastering)
	if err != nil {
		return nil, fmt.Errorf("mastering: %w", err)
	}
	programme, programmeMap := mastered.Buffer, joined.Timing

	var comp *avsync.Compensation
	if pl.job.VideoTiming != nil {
		progress(Event{Kind: PhaseStarted, Phase: PhaseSync})
		comp, programme, programmeMap, err = p.sync(ctx, pl, programme, programmeMap)
		if err != nil {
			return nil, err
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	progress(Event{Kind: PhaseStarted, Phase: PhaseWrite})
	after, err := measure(programme)
	if err != nil {
		return nil, fmt.Errorf("measure master: %w", err)
	}
	quality := newQualityReport(before, after, programme, pl.mastering.TargetLUFS)
	p.metrics.RecordClipping(ctx, quality.ClippingEvents)

	res = &Result{
		JobID:       pl.job.ID,
		Preset:      pl.job.Preset.Name,
		Fingerprint: pl.fingerprint,
		Takes:       takes,
		Transitions: joined.Transitions,
		Mastering:   mastered,
		Timing:      programmeMap,
		Sync:        comp,
		Quality:     quality,
		MasterPath:  filepath.Join(pl.job.OutputDir, pl.job.Name+"-mastered.wav"),
		TimingPath:  filepath.Join(pl.job.OutputDir, pl.job.Name+"-timing.json"),
		ReportPath:  filepath.Join(pl.job.OutputDir, pl.job.Name+"-report.json"),
	}
	if err := p.writeArtifacts(pl, res, programme); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)

	res.Published = p.publish(ctx, pl, res)

	log.Info("export complete",
		slog.String("output", res.MasterPath),
		slog.Duration("programme", programme.Duration()),
		slog.Float64("lufs", quality.ProcessedLUFS),
		slog.Bool("compliant", quality.LUFSCompliant),
		slog.Duration("elapsed", res.Duration),
	)
	progress(Event{Kind: ExportDone, Fraction: 1})
	return res, nil
}

// prepare runs the pre-flight checks and resolves every chain.
func (p *Pipeline) prepare(job Job, progress ProgressFunc) (*plan, error) {
	if len(job.Takes) == 0 {
		return nil, ErrNoTakes
	}
	if job.Preset == nil {
		return nil, fmt.Errorf("%w: no preset", ErrInvalidJob)
	}
	job.Takes = append([]TakeInput(nil), job.Takes...)
	job.normalise()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	seen := make(map[string]int, len(job.Takes))
	for i, t := range job.Takes {
		if strings.ContainsAny(t.ID, `/\`) || t.ID == "." || t.ID == ".." {
			return nil, fmt.Errorf("%w: take %d has an unusable ID %q", ErrInvalidJob, i+1, t.ID)
		}
		if j, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: takes %d and %d share the ID %q", ErrInvalidJob, j+1, i+1, t.ID)
		}
		seen[t.ID] = i
		if _, err := os.Stat(t.Path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: %s", audio.ErrNotFound, t.Path)
			}
			return nil, &TakeError{Index: i, TakeID: t.ID, Stage: "pre-flight", Err: err}
		}
	}
	workDir := job.OutputDir
	if p.workDir != "" {
		workDir = p.workDir
		if err := os.MkdirAll(workDir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: work directory: %w", ErrInvalidJob, err)
		}
	}
	if job.VideoTiming != nil {
		if err := job.VideoTiming.Validate(); err != nil {
			return nil, fmt.Errorf("%w: video timing: %w", ErrInvalidJob, err)
		}
	}

	pre := job.Preset
	fp, err := pre.Fingerprint()
	if err != nil {
		return nil, err
	}
	pass1, err := pre.Pass1Chain(p.registry)
	if err != nil {
		return nil, fmt.Errorf("pass 1: %w", err)
	}
	var pass2 *processor.Chain
	st, err := pre.Pass2Stage()
	if err != nil {
		return nil, fmt.Errorf("pass 2: %w", err)
	}
	if st != nil {
		if pass2, err = p.registry.Build([]processor.Stage{*st}); err != nil {
			return nil, fmt.Errorf("pass 2: %w", err)
		}
	}
	asm, err := assembly.NewAssembler(pre.AssemblyConfig())
	if err != nil {
		return nil, err
	}

	return &plan{
		job:         job,
		workDir:     workDir,
		fingerprint: fp,
		pass1:       pass1,
		pass2:       pass2,
		assembler:   asm,
		mastering:   pre.MasteringConfig(),
		log:         p.log.With(slog.String("job", job.ID)),
		progress:    progress,
		written:     &written{},
	}, nil
}

// runTakes runs Pass 1 and Pass 2 for every take, at most p.workers at once.
// Results keep scene order.
func (p *Pipeline) runTakes(ctx context.Context, pl *plan) ([]TakeResult, []*audio.Buffer, error) {
	takes := make([]TakeResult, len(pl.job.Takes))
	bufs := make([]*audio.Buffer, len(pl.job.Takes))

	pl.progress(Event{Kind: PhaseStarted, Phase: PhasePass1})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, in := range pl.job.Takes {
		g.Go(func() error {
			tr, buf, err := p.processTake(gctx, pl, i, in)
			if err != nil {
				status := observe.StatusFailed
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					status = observe.StatusCancelled
				}
				p.metrics.RecordTake(ctx, status)
				pl.progress(Event{Kind: TakeDone, Take: i, TakeID: in.ID, Err: err})
				return err
			}
			p.metrics.RecordTake(ctx, observe.StatusOK)
			takes[i], bufs[i] = *tr, buf
			pl.progress(Event{Kind: TakeDone, Take: i, TakeID: in.ID, Fraction: 1, Result: tr})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return takes, bufs, nil
}

// processTake runs both passes for one take and writes its Pass-1 file.
func (p *Pipeline) processTake(ctx context.Context, pl *plan, idx int, in TakeInput) (*TakeResult, *audio.Buffer, error) {
	log := pl.log.With(slog.String("take", in.ID))
	fail := func(stage string, err error) (*TakeResult, *audio.Buffer, error) {
		return nil, nil, &TakeError{Index: idx, TakeID: in.ID, Stage: stage, Err: err}
	}
	pl.progress(Event{Kind: TakeStarted, Phase: PhasePass1, Take: idx, TakeID: in.ID})
	p.metrics.ActiveTakes.Add(ctx, 1)
	defer p.metrics.ActiveTakes.Add(ctx, -1)

	stamp, err := fileStamp(in.Path)
	if err != nil {
		return fail("pre-flight", err)
	}

	t0 := time.Now()
	key := CacheKey{TakeID: in.ID, Fingerprint: pl.fingerprint}
	p1, hit, err := p.cache.Do(ctx, key, stamp, func(ctx context.Context) (*Pass1Output, error) {
		return p.pass1(ctx, pl, idx, in, log)
	})
	if err != nil {
		return fail("pass 1", err)
	}
	p.metrics.RecordCache(ctx, hit)
	pass1Time := time.Since(t0)

	pass1Path := filepath.Join(pl.workDir, in.ID+"-processed.wav")
	if err := audio.WriteAtomic(p.codec, pass1Path, p1.Buffer); err != nil {
		return fail("write", err)
	}
	pl.written.add(pass1Path)

	t1 := time.Now()
	buf, tm := p1.Buffer, p1.Timing
	analyses := p1.Analyses
	if pl.pass2 != nil {
		if err := ctx.Err(); err != nil {
			return fail("pass 2", err)
		}
		pc, err := processor.NewContext(buf)
		if err != nil {
			return fail("pass 2", err)
		}
		res, err := pl.pass2.Run(ctx, buf, pc, p.stageProgress(ctx, pl, PhasePass2, idx, in.ID, log))
		if err != nil {
			return fail("pass 2", err)
		}
		if tm, err = timing.Compose(tm, res.Timing); err != nil {
			return fail("pass 2", err)
		}
		buf = res.Buffer
		analyses = append(analyses, res.Analyses...)
	}

	after, err := measure(buf)
	if err != nil {
		return fail("measure", err)
	}
	quality := newQualityReport(p1.Input, after, buf, pl.mastering.TargetLUFS)
	p.metrics.RecordClipping(ctx, quality.ClippingEvents)

	tr := &TakeResult{
		Index:      idx,
		ID:         in.ID,
		InputPath:  in.Path,
		Pass1Path:  pass1Path,
		Cached:     hit,
		SampleRate: buf.SampleRate,
		Channels:   buf.Channels(),
		Input:      tm.OriginalDuration(),
		Output:     buf.Duration(),
		Timing:     tm,
		Measured:   p1.Input,
		Analyses:   analyses,
		Quality:    quality,
		Pass1Time:  pass1Time,
		Pass2Time:  time.Since(t1),
	}
	log.Info("take processed",
		slog.Bool("cached", hit),
		slog.Duration("input", tr.Input),
		slog.Duration("output", tr.Output),
		slog.Duration("trimmed", tm.RemovedDuration()),
		slog.Float64("input_lufs", quality.OriginalLUFS),
		slog.Float64("output_lufs", quality.ProcessedLUFS),
	)
	return tr, buf, nil
}

// pass1 decodes a take, measures it and runs the Pass-1 chain.
func (p *Pipeline) pass1(ctx context.Context, pl *plan, idx int, in TakeInput, log *slog.Logger) (*Pass1Output, error) {
	buf, meta, err := p.codec.Decode(in.Path)
	if err != nil {
		return nil, err
	}
	log.Debug("take decoded",
		slog.Int("sample_rate", buf.SampleRate),
		slog.Int("channels", buf.Channels()),
		slog.Duration("duration", buf.Duration()),
	)

	pc, err := processor.NewContext(buf)
	if err != nil {
		return nil, err
	}
	input := *pc.Measurements
	log.Debug("take measured",
		slog.Float64("lufs", input.InputI),
		slog.Float64("noise_floor_db", input.NoiseFloor),
		slog.Float64("lra", input.InputLRA),
	)

	res, err := pl.pass1.Run(ctx, buf, pc, p.stageProgress(ctx, pl, PhasePass1, idx, in.ID, log))
	if err != nil {
		return nil, err
	}
	return &Pass1Output{
		Buffer:   res.Buffer,
		Timing:   res.Timing,
		Analyses: res.Analyses,
		Input:    &input,
		Metadata: meta,
	}, nil
}

// stageProgress times each stage and forwards it as an event.
func (p *Pipeline) stageProgress(ctx context.Context, pl *plan, phase Phase, idx int, id string, log *slog.Logger) processor.ProgressFunc {
	last := time.Now()
	return func(stage, total int, pid processor.FilterID, fraction float64) {
		now := time.Now()
		elapsed := now.Sub(last)
		last = now
		p.metrics.RecordStage(ctx, string(pid), elapsed.Seconds())
		log.Debug("stage complete",
			slog.String("phase", string(phase)),
			slog.String("processor", string(pid)),
			slog.Int("stage", stage),
			slog.Int("total", total),
			slog.Duration("elapsed", elapsed),
		)
		pl.progress(Event{
			Kind:      StageDone,
			Phase:     phase,
			Take:      idx,
			TakeID:    id,
			Stage:     stage,
			Total:     total,
			Processor: pid,
			Fraction:  fraction,
		})
	}
}

// sync compensates the programme against the video timing. A shorter video
// cannot be trimmed, so that case falls back to a visual transition unless
// the job forces a strategy.
func (p *Pipeline) sync(ctx context.Context, pl *plan, buf *audio.Buffer, m *timing.Map) (*avsync.Compensation, *audio.Buffer, *timing.Map, error) {
	opts := pl.job.Preset.SyncOptions()
	opts.Force = pl.job.SyncStrategy

	comp, err := avsync.Compensate(m, pl.job.VideoTiming, opts)
	if errors.Is(err, avsync.ErrUncompensable) && opts.Force == "" {
		pl.log.Warn("video is shorter than the programme, using a visual transition instead",
			slog.Duration("audio", m.ProcessedDuration()),
			slog.Duration("video", pl.job.VideoTiming.ProcessedDuration()),
		)
		opts.Force = avsync.VisualTransition
		comp, err = avsync.Compensate(m, pl.job.VideoTiming, opts)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sync: %w", err)
	}
	p.metrics.RecordDrift(ctx, string(comp.Strategy), comp.Offset.Seconds())

	out, err := avsync.ApplyVolumeAutomation(buf, comp)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sync: %w", err)
	}
	if cut := buf.Frames() - out.Frames(); cut > 0 {
		tail := timing.NewBuilder(buf.SampleRate).Keep(out.Frames()).Remove(cut, timing.Manual).Build()
		if m, err = timing.Compose(m, tail); err != nil {
			return nil, nil, nil, fmt.Errorf("sync: %w", err)
		}
	}
	pl.log.Info("sync compensated",
		slog.String("strategy", string(comp.Strategy)),
		slog.Duration("offset", comp.Offset),
		slog.Duration("residual", comp.Residual),
	)
	return comp, out, m, nil
}

// timingDocument is the JSON timing file consumed by the video layer.
type timingDocument struct {
	JobID     string               `json:"job_id"`
	Programme *timing.Map          `json:"programme"`
	Takes     []takeTiming         `json:"takes"`
	Sync      *avsync.Compensation `json:"sync,omitempty"`
}

type takeTiming struct {
	ID     string      `json:"id"`
	Timing *timing.Map `json:"timing"`
}

// writeArtifacts writes the mastered programme, timing file and report.
func (p *Pipeline) writeArtifacts(pl *plan, res *Result, programme *audio.Buffer) error {
	if err := audio.WriteAtomic(p.codec, res.MasterPath, programme); err != nil {
		return fmt.Errorf("write master: %w", err)
	}
	pl.written.add(res.MasterPath)

	doc := timingDocument{JobID: res.JobID, Programme: res.Timing, Sync: res.Sync}
	for _, t := range res.Takes {
		doc.Takes = append(doc.Takes, takeTiming{ID: t.ID, Timing: t.Timing})
	}
	if err := writeJSON(res.TimingPath, doc); err != nil {
		return fmt.Errorf("write timing: %w", err)
	}
	pl.written.add(res.TimingPath)

	if err := writeJSON(res.ReportPath, newReport(res)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	pl.written.add(res.ReportPath)
	return nil
}

// publish uploads the programme artifacts. Failures are logged; the local
// export stands either way.
func (p *Pipeline) publish(ctx context.Context, pl *plan, res *Result) map[string]string {
	if _, off := p.publisher.(storage.Noop); off {
		return nil
	}
	prefix := storage.Key(p.publishPrefix, res.JobID)
	urls := make(map[string]string, 3)
	for _, path := range []string{res.MasterPath, res.TimingPath, res.ReportPath} {
		url, err := storage.PublishFile(ctx, p.publisher, prefix, path)
		if err != nil {
			pl.log.Error("publish failed", slog.String("path", path), slog.Any("error", err))
			continue
		}
		urls[path] = url
		pl.log.Info("published", slog.String("path", path), slog.String("url", url))
	}
	return urls
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return audio.WriteFileAtomic(path, append(data, '\n'))
}

// fileStamp identifies the current state of a source file.
func fileStamp(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", audio.ErrNotFound, path)
		}
		return "", err
	}
	return fmt.Sprintf("%d-%d", fi.Size(), fi.ModTime().UnixNano()), nil
}

// written tracks the files a run has put in place.
type written struct {
	mu    sync.Mutex
	paths []string
}

func (w *written) add(path string) {
	w.mu.Lock()
	w.paths = append(w.paths, path)
	w.mu.Unlock()
}

func (w *written) remove() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, path := range w.paths {
		_ = os.Remove(path)
	}
	w.paths = nil
}
