// Package orchestrator drives a render job through its lifecycle: it
// admits requests against the single current-job slot, enforces the
// binary integrity gate, builds the render plan, supervises one encoder
// process per track, finalizes outputs through ordered checkpoints, and
// records everything in the crash-safe ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"albumvideo/internal/config"
	"albumvideo/internal/engine"
	"albumvideo/internal/integrity"
	"albumvideo/internal/ledger"
	"albumvideo/internal/logging"
	"albumvideo/internal/plan"
	"albumvideo/internal/preset"
	"albumvideo/internal/report"
	"albumvideo/internal/services"
	"albumvideo/internal/services/ffmpeg"
)

// Request is a render submission from the UI layer.
type Request struct {
	// ExportFolder is the destination base. Empty means reuse the
	// remembered last-used folder.
	ExportFolder      string
	AlbumName         string
	AudioPaths        []string
	ImagePath         string
	CreateAlbumFolder bool
	Preset            string
}

// Result is the structured success outcome of a render.
type Result struct {
	JobID       string
	ReportPath  string
	OutputPaths []string
}

// Event is a pushed progress/status update for the UI layer.
type Event struct {
	JobID      string
	Phase      engine.State
	TrackIndex int
	TrackCount int
	Percent    float64
	Message    string
}

// EventSink receives pushed events. Delivery guarding against torn-down
// receivers is the api layer's concern.
type EventSink func(Event)

// Orchestrator owns the current-job slot and all render machinery.
type Orchestrator struct {
	cfg      *config.Config
	store    *ledger.Store
	gate     *integrity.Gate
	registry *preset.Registry
	builder  *plan.Builder
	encoder  ffmpeg.Client
	logger   *slog.Logger

	lock *flock.Flock

	mu        sync.Mutex
	current   *Job
	recovered bool
	events    EventSink
}

// New wires an orchestrator. The encoder client is injectable for tests.
func New(cfg *config.Config, store *ledger.Store, gate *integrity.Gate, registry *preset.Registry, builder *plan.Builder, encoder ffmpeg.Client, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		gate:     gate,
		registry: registry,
		builder:  builder,
		encoder:  encoder,
		logger:   logger.With(logging.String(logging.FieldComponent, "orchestrator")),
	}
}

// SetEventSink installs the pushed-event receiver.
func (o *Orchestrator) SetEventSink(sink EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = sink
}

// Startup acquires the single-instance lock and runs ledger recovery.
// No render is admitted until it completes.
func (o *Orchestrator) Startup(ctx context.Context) (ledger.RecoveryReport, error) {
	var zero ledger.RecoveryReport

	lockPath := filepath.Join(o.cfg.Paths.LogDir, "albumvideo.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return zero, services.Wrap(nil, "orchestrator", "acquire instance lock", "", err)
	}
	if !locked {
		return zero, services.Wrap(services.ErrValidation, "orchestrator", "acquire instance lock",
			"another albumvideo instance is running", errors.New("lock held"))
	}
	o.lock = lock

	recovery, err := ledger.Recover(ctx, o.store, o.logger)
	if err != nil {
		return zero, err
	}

	o.mu.Lock()
	o.recovered = true
	o.mu.Unlock()
	return recovery, nil
}

// Close releases the single-instance lock.
func (o *Orchestrator) Close() error {
	if o.lock != nil {
		return o.lock.Unlock()
	}
	return nil
}

// CurrentJob returns the active job, nil when the slot is free.
func (o *Orchestrator) CurrentJob() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Cancel registers a cancellation against the current job. Returns false
// when no job is active.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	job := o.current
	o.mu.Unlock()
	if job == nil {
		return false
	}
	immediate := job.RequestCancel()
	if immediate {
		o.logger.Info("cancellation applied", logging.String(logging.FieldJobID, job.ID))
	} else {
		o.logger.Info("cancellation deferred until finalize completes",
			logging.String(logging.FieldJobID, job.ID))
	}
	return true
}

// Render drives one request to a terminal state and returns a structured
// result or failure. It runs synchronously; the UI layer calls it from
// its own goroutine and consumes pushed events meanwhile.
func (o *Orchestrator) Render(ctx context.Context, req Request) (*Result, error) {
	job, err := o.admit()
	if err != nil {
		return nil, err
	}
	defer o.releaseSlot(job)

	ctx = services.WithJobID(ctx, job.ID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("render accepted",
		logging.String(logging.FieldJobID, job.ID),
		logging.Int(logging.FieldTrackCount, len(req.AudioPaths)))

	result, err := o.run(ctx, job, req, logger)
	if err != nil {
		reason := services.ReasonCode(err)
		logger.Error("render failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.String(logging.FieldReasonCode, reason),
			logging.Error(err))
		return nil, err
	}
	return result, nil
}

// admit enforces admission control: recovery must have completed and the
// current-job slot must be free.
func (o *Orchestrator) admit() (*Job, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.recovered {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "admit render",
			"startup recovery has not completed", errors.New("not ready"))
	}
	if o.current != nil {
		return nil, services.Wrap(services.ErrValidation, "orchestrator", "admit render",
			"a render is already in progress", errors.New("current job slot occupied"))
	}
	job := newJob()
	o.current = job
	return job, nil
}

func (o *Orchestrator) releaseSlot(job *Job) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == job {
		o.current = nil
	}
}

// run executes the lifecycle for an admitted job. Any returned error has
// already been converted into a committed terminal state.
func (o *Orchestrator) run(ctx context.Context, job *Job, req Request, logger *slog.Logger) (*Result, error) {
	startedAt := time.Now().UTC()

	// Integrity gate. Verification completes fully before any side effect.
	gateResult, err := o.gate.Recheck(ctx)
	if err != nil {
		return nil, o.failBeforeLedger(job, err)
	}
	if !gateResult.RenderingAllowed() {
		return nil, o.failBeforeLedger(job, services.Wrap(services.ErrIntegrity, "orchestrator", "admit render",
			"integrity bypass active, rendering is disabled", errors.New("diagnostics-only mode")))
	}

	selected, err := o.registry.Lookup(req.Preset)
	if err != nil {
		return nil, o.failBeforeLedger(job, err)
	}

	// Planning. The cancel check lets a cancellation land before any
	// encoder spawns.
	if err := job.fsm.Transition(engine.StateWarmingUp); err != nil {
		return nil, o.failBeforeLedger(job, err)
	}
	o.emit(job, Event{Phase: engine.StateWarmingUp, Message: "validating request"})

	exportFolder, err := o.resolveExportFolder(ctx, req.ExportFolder)
	if err != nil {
		return nil, o.failBeforeLedger(job, err)
	}

	renderPlan, err := o.builder.Build(ctx, plan.Request{
		ExportFolder:      exportFolder,
		AlbumName:         req.AlbumName,
		AudioPaths:        req.AudioPaths,
		ImagePath:         req.ImagePath,
		CreateAlbumFolder: req.CreateAlbumFolder,
	}, func() error {
		if job.CancelRequested() {
			return services.Wrap(context.Canceled, "orchestrator", "build plan", "cancelled during planning", nil)
		}
		return nil
	})
	if err != nil {
		return nil, o.failBeforeLedger(job, err)
	}

	tempPaths := o.tempOutputPaths(job, renderPlan)

	// First ledger write: the job has committed past planning.
	if _, err := o.store.Create(ctx, job.ID, string(engine.StateWarmingUp), tempPaths); err != nil {
		return nil, o.failBeforeLedger(job, err)
	}
	if err := o.store.SetLastExportDir(ctx, renderPlan.ExportFolder); err != nil {
		logger.Warn("failed to remember export folder", logging.Error(err))
	}

	result, err := o.encodeAndFinalize(ctx, job, renderPlan, selected, tempPaths, startedAt, logger)
	if err != nil {
		o.failWithLedger(ctx, job, tempPaths, err, logger)
		return nil, err
	}
	return result, nil
}

// resolveExportFolder picks the requested folder or falls back to the
// remembered one, hardening either the same way.
func (o *Orchestrator) resolveExportFolder(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	remembered, err := o.store.LastExportDir(ctx)
	if err != nil {
		return "", err
	}
	if remembered == "" {
		return "", services.Wrap(services.ErrValidation, "orchestrator", "resolve export folder",
			"choose a destination folder", errors.New("no export folder requested or remembered"))
	}
	return plan.ResolveExistingDir("remembered export folder", remembered)
}

// tempOutputPaths maps each plan output into the job's staging directory.
// Encoders only ever write here; finalize moves the files out.
func (o *Orchestrator) tempOutputPaths(job *Job, renderPlan *plan.Plan) []string {
	stagingDir := filepath.Join(o.cfg.Paths.StagingDir, job.ID)
	paths := make([]string, len(renderPlan.Tracks))
	for i, track := range renderPlan.Tracks {
		paths[i] = filepath.Join(stagingDir, filepath.Base(track.OutputPath))
	}
	return paths
}

func (o *Orchestrator) encodeAndFinalize(ctx context.Context, job *Job, renderPlan *plan.Plan, selected preset.Preset, tempPaths []string, startedAt time.Time, logger *slog.Logger) (*Result, error) {
	stagingDir := filepath.Join(o.cfg.Paths.StagingDir, job.ID)
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, services.Wrap(nil, "orchestrator", "create staging directory", "", err)
	}

	if err := o.transitionAndRecord(ctx, job, engine.StateStarting); err != nil {
		return nil, err
	}
	o.emit(job, Event{Phase: engine.StateStarting, TrackCount: len(renderPlan.Tracks), Message: "starting encoder"})

	if err := o.transitionAndRecord(ctx, job, engine.StateEncoding); err != nil {
		return nil, err
	}
	encodeCtx := services.WithPhase(ctx, string(engine.StateEncoding))

	watchdog := time.Duration(o.cfg.Workflow.WatchdogTimeout) * time.Second
	videoArgs := preset.VideoArgs(selected)
	trackResults := make([]report.TrackResult, 0, len(renderPlan.Tracks))

	for i, track := range renderPlan.Tracks {
		if job.CancelRequested() {
			return nil, services.Wrap(context.Canceled, "orchestrator", "encode", "cancelled between tracks", nil)
		}
		trackLogger := logging.WithContext(encodeCtx, logger).With(logging.Int(logging.FieldTrackIndex, i))
		trackLogger.Info("encoding track",
			logging.String("audio", track.AudioPath),
			logging.Bool("stream_copy", track.AudioCopyCompatible))

		trackResult, err := o.encodeTrack(encodeCtx, job, track, videoArgs, tempPaths[i], watchdog, i, len(renderPlan.Tracks))
		if err != nil {
			return nil, err
		}
		trackResults = append(trackResults, trackResult)
	}

	outputs, err := o.finalize(ctx, job, renderPlan, tempPaths, logger)
	if err != nil {
		return nil, err
	}
	for i := range trackResults {
		trackResults[i].OutputPath = outputs[i]
		if info, statErr := os.Stat(outputs[i]); statErr == nil {
			trackResults[i].OutputSizeBytes = info.Size()
		}
	}

	// Checkpoint three: immediately before reporting success.
	if err := o.checkpoint(ctx, job, "pre-report"); err != nil {
		return nil, err
	}

	if err := o.transitionAndRecord(ctx, job, engine.StateDone); err != nil {
		return nil, err
	}

	renderReport := &report.RenderReport{
		JobID:        job.ID,
		Preset:       selected.Name(),
		ExportFolder: renderPlan.ExportFolder,
		StartedAt:    startedAt,
		FinishedAt:   time.Now().UTC(),
		Tracks:       trackResults,
	}
	reportPath, err := report.WriteRenderReport(o.cfg.Paths.LogDir, renderReport)
	if err != nil {
		// DONE has committed and the outputs are in place; a report write
		// failure is logged, not fatal.
		logger.Warn("failed to write render report", logging.Error(err))
	}

	if err := o.store.MarkCompleted(ctx, job.ID); err != nil {
		logger.Warn("failed to mark ledger entry complete", logging.Error(err))
	}
	_ = os.RemoveAll(stagingDir)

	if job.CancelRequested() {
		logger.Info("deferred cancellation arrived after finalize, outputs kept",
			logging.String(logging.FieldJobID, job.ID))
	}

	o.emit(job, Event{Phase: engine.StateDone, TrackCount: len(renderPlan.Tracks), Percent: 100, Message: "render complete"})
	logger.Info("render complete",
		logging.String(logging.FieldJobID, job.ID),
		logging.String("report", reportPath))

	return &Result{JobID: job.ID, ReportPath: reportPath, OutputPaths: outputs}, nil
}

// encodeTrack spawns and supervises one encoder process.
func (o *Orchestrator) encodeTrack(ctx context.Context, job *Job, track plan.Track, videoArgs []string, tempPath string, watchdog time.Duration, index, total int) (report.TrackResult, error) {
	var zero report.TrackResult

	spawnStart := time.Now()
	handle, err := o.encoder.Start(ctx, ffmpeg.EncodeSpec{
		AudioPath:  track.AudioPath,
		ImagePath:  track.ImagePath,
		OutputPath: tempPath,
		VideoArgs:  videoArgs,
		CopyAudio:  track.AudioCopyCompatible,
	})
	if err != nil {
		return zero, services.Wrap(services.ErrExternalTool, "orchestrator", "spawn encoder", "", err)
	}
	spawnLatency := time.Since(spawnStart)
	_ = job.recordMetric(metricSpawnLatency, float64(spawnLatency.Milliseconds()))

	encodeStart := time.Now()
	var firstProgress, firstOutputByte time.Duration
	onProgress := func(update ffmpeg.ProgressUpdate) {
		if job.fsm.AssertCanEmitProgress() != nil {
			return
		}
		if firstProgress == 0 {
			firstProgress = time.Since(encodeStart)
			_ = job.recordMetric(metricFirstProgress, float64(firstProgress.Milliseconds()))
		}
		if firstOutputByte == 0 && update.TotalSizeBytes > 0 {
			firstOutputByte = time.Since(encodeStart)
			_ = job.recordMetric(metricFirstOutputByte, float64(firstOutputByte.Milliseconds()))
		}
		percent := 0.0
		if track.DurationSeconds > 0 {
			percent = update.OutTime.Seconds() / track.DurationSeconds * 100
			if percent > 100 {
				percent = 100
			}
		}
		o.emit(job, Event{
			Phase:      engine.StateEncoding,
			TrackIndex: index,
			TrackCount: total,
			Percent:    percent,
			Message:    fmt.Sprintf("encoding track %d/%d", index+1, total),
		})
	}

	if err := superviseTrack(ctx, job, handle, watchdog, onProgress); err != nil {
		return zero, err
	}

	return report.TrackResult{
		Index:             index,
		AudioPath:         track.AudioPath,
		AudioCodec:        track.AudioCodec,
		AudioCopied:       track.AudioCopyCompatible,
		DurationSeconds:   track.DurationSeconds,
		EncodeSeconds:     time.Since(encodeStart).Seconds(),
		SpawnLatencyMs:    float64(spawnLatency.Milliseconds()),
		FirstProgressMs:   float64(firstProgress.Milliseconds()),
		FirstOutputByteMs: float64(firstOutputByte.Milliseconds()),
	}, nil
}

// transitionAndRecord commits an FSM transition, then writes it to the
// ledger. The ledger write always follows the commit it records.
func (o *Orchestrator) transitionAndRecord(ctx context.Context, job *Job, target engine.State) error {
	if err := job.fsm.Transition(target); err != nil {
		return err
	}
	if err := o.store.UpdatePhase(ctx, job.ID, string(target)); err != nil {
		return services.Wrap(nil, "orchestrator", "record phase", "", err)
	}
	return nil
}

// checkpoint verifies the job may proceed between finalize stages.
func (o *Orchestrator) checkpoint(ctx context.Context, job *Job, name string) error {
	if err := ctx.Err(); err != nil {
		return services.Wrap(context.Canceled, "orchestrator", "checkpoint "+name, "", nil)
	}
	if job.fsm.IsTerminal() && job.Phase() != engine.StateDone {
		return services.Wrap(nil, "orchestrator", "checkpoint "+name, "", errors.New("job already terminal"))
	}
	return nil
}

// emit pushes an event to the installed sink.
func (o *Orchestrator) emit(job *Job, event Event) {
	o.mu.Lock()
	sink := o.events
	o.mu.Unlock()
	if sink == nil {
		return
	}
	event.JobID = job.ID
	sink(event)
}

// failBeforeLedger commits a terminal state for a failure that occurred
// before the ledger entry was created. No artifacts exist yet.
func (o *Orchestrator) failBeforeLedger(job *Job, cause error) error {
	o.commitTerminal(job, cause)
	return cause
}

// failWithLedger commits a terminal state, kills off partial outputs, and
// removes the ledger entry. ERROR and CANCELLED are handled identically
// for cleanup purposes.
func (o *Orchestrator) failWithLedger(ctx context.Context, job *Job, tempPaths []string, cause error, logger *slog.Logger) {
	o.commitTerminal(job, cause)

	for _, path := range tempPaths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove partial output",
				logging.String("path", path), logging.Error(err))
		}
	}
	_ = os.RemoveAll(filepath.Join(o.cfg.Paths.StagingDir, job.ID))

	if err := o.store.Delete(ctx, job.ID); err != nil {
		logger.Warn("failed to remove ledger entry", logging.Error(err))
	}

	o.emit(job, Event{Phase: job.Phase(), Message: services.ReasonCode(cause)})
}

// commitTerminal moves the job to CANCELLED or ERROR exactly once.
// Near-simultaneous faults still commit only the first: the FSM's
// terminal guard rejects every later attempt.
func (o *Orchestrator) commitTerminal(job *Job, cause error) {
	target := engine.StateError
	if services.ReasonCode(cause) == services.ReasonCancelled {
		target = engine.StateCancelled
	}
	if err := job.fsm.Transition(target); err != nil {
		if !errors.Is(err, engine.ErrTerminalCommitted) && !errors.Is(err, engine.ErrInvalidTransition) {
			o.logger.Warn("terminal commit failed", logging.Error(err))
		}
	}
}
