package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

// Orchestrator runs one download job at a time and is the only engine
// type the shells talk to.
type Orchestrator struct {
	cfg         *Config
	resolver    *Resolver
	downloader  *Downloader
	transcoder  *Transcoder
	thumbnails  *ThumbnailFetcher
	device      *DeviceSync
	broadcaster *Broadcaster
	history     *History

	lockPath string
	lock     *flock.Flock

	mu     sync.Mutex
	active *jobToken
}

// NewOrchestrator wires the pipeline components from cfg. History is
// opened under the data directory when enabled; a history that cannot be
// opened is logged and left off.
func NewOrchestrator(cfg *Config) (*Orchestrator, error) {
	if cfg == nil {
		cfg = GetDefaultConfig()
	}
	cfg.normalize()

	thumbs, err := NewThumbnailFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("thumbnail client: %w", err)
	}

	transcoder := NewTranscoder(cfg)
	dataPath := cfg.DataPath()
	lockPath := filepath.Join(dataPath, "podfetch.lock")

	o := &Orchestrator{
		cfg:         cfg,
		resolver:    NewResolver(cfg),
		downloader:  NewDownloader(cfg, transcoder.EncoderPath),
		transcoder:  transcoder,
		thumbnails:  thumbs,
		device:      NewDeviceSync(cfg, transcoder.EncoderPath),
		broadcaster: NewBroadcaster(128),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
	}

	if cfg.HistoryEnabled {
		h, err := OpenHistory(dataPath)
		if err != nil {
			Logger.Warn("job history disabled", "error", err)
		} else {
			o.history = h
		}
	}

	return o, nil
}

// Config returns the configuration the orchestrator was built with.
func (o *Orchestrator) Config() *Config {
	return o.cfg
}

// History returns the job history store, or nil when disabled.
func (o *Orchestrator) History() *History {
	return o.history
}

// Subscribe registers a progress observer.
func (o *Orchestrator) Subscribe() (<-chan ProgressEvent, func()) {
	return o.broadcaster.Subscribe()
}

// Close stops any active job and releases owned resources.
func (o *Orchestrator) Close() error {
	o.StopActiveJob()
	o.broadcaster.Close()
	return o.history.Close()
}

// GetInfo resolves url in flat mode for preview.
func (o *Orchestrator) GetInfo(ctx context.Context, url string) (*MetadataResult, error) {
	if err := ValidateMediaURL(url); err != nil {
		return nil, newJobError(KindInvalidRequest, "validate", err.Error(), nil)
	}
	ctx, cancel := o.stepContext(ctx)
	defer cancel()
	return o.resolver.Resolve(ctx, url, ModeFlat)
}

// DownloadTrack runs the audio pipeline for url into destinationDir.
func (o *Orchestrator) DownloadTrack(ctx context.Context, url, destinationDir string) JobResult {
	return o.Run(ctx, JobRequest{URL: url, Kind: KindAudio, Variant: VariantNormal, DestinationDir: destinationDir})
}

// DownloadVideo runs the video pipeline for url into destinationDir.
func (o *Orchestrator) DownloadVideo(ctx context.Context, url, destinationDir string, variant Variant) JobResult {
	if variant == "" {
		variant = VariantNormal
	}
	return o.Run(ctx, JobRequest{URL: url, Kind: KindVideo, Variant: variant, DestinationDir: destinationDir})
}

// StopActiveJob cancels the running job, if any. Its subprocess groups are
// killed through the job context. The acknowledgement is unconditional.
func (o *Orchestrator) StopActiveJob() StopAck {
	o.mu.Lock()
	token := o.active
	o.mu.Unlock()

	if token != nil {
		Logger.Info("stopping job", "job", token.id)
		token.Cancel()
	}
	return StopAck{Stopped: true}
}

// Active reports whether a job is running in this process.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// Run validates and executes req, always returning a terminal result.
func (o *Orchestrator) Run(ctx context.Context, req JobRequest) JobResult {
	if err := validateJobRequest(req); err != nil {
		return failedResult(err)
	}

	token, err := o.admit(ctx)
	if err != nil {
		return failedResult(err)
	}
	defer o.finish(token)

	started := time.Now()
	log := Logger.With("job", token.id, "kind", string(req.Kind))
	log.Info("job started", "url", req.URL, "variant", string(req.Variant), "dest", req.DestinationDir)

	var (
		meta TrackMetadata
		out  string
	)
	err = WithWorkspace(o.cfg.TempRoot, req.Kind, func(ws *Workspace) error {
		var runErr error
		meta, out, runErr = o.pipeline(token, req, ws)
		return runErr
	})

	o.record(req, meta, out, started, err)

	if err != nil {
		if errors.Is(err, ErrCancelled) {
			log.Info("job stopped")
		} else {
			log.Error("job failed", "error", err)
		}
		return failedResult(err)
	}

	log.Info("job finished", "file", out, "duration", time.Since(started).Round(time.Millisecond))
	result := JobResult{Success: true, File: out, Title: meta.Title, Artist: meta.Artist}
	if req.Kind == KindAudio {
		result.Album = meta.Album
	}
	return result
}

func (o *Orchestrator) pipeline(token *jobToken, req JobRequest, ws *Workspace) (TrackMetadata, string, error) {
	var meta TrackMetadata

	if token.Cancelled() {
		return meta, "", cancelledError("start")
	}

	resolveCtx, cancel := o.stepContext(token.ctx)
	info, err := o.resolver.Resolve(resolveCtx, req.URL, ModeFull)
	cancel()
	if err != nil {
		if token.Cancelled() {
			return meta, "", cancelledError("resolve metadata")
		}
		return meta, "", err
	}
	meta = NormalizeTrack(info.First())

	thumbPath := ""
	if meta.ThumbnailURL != "" && (req.Kind == KindAudio || req.Variant == VariantDevice) {
		dest := ws.File("thumb.jpg")
		if err := o.thumbnails.Fetch(token.ctx, meta.ThumbnailURL, dest); err != nil {
			Logger.Warn("thumbnail skipped", "job", token.id, "url", meta.ThumbnailURL, "error", err)
		} else {
			thumbPath = dest
		}
	}

	if token.Cancelled() {
		return meta, "", cancelledError("download")
	}

	downloadCtx, cancel := o.stepContext(token.ctx)
	defer cancel()
	handle, err := o.downloader.Start(downloadCtx, req.URL, ws, req.Kind, DownloadOptions{
		Label:      meta.Title,
		OnProgress: o.publisher(token.id),
		Cancelled:  token.Cancelled,
	})
	if err != nil {
		return meta, "", err
	}
	raw, err := handle.Wait()
	if err != nil {
		return meta, "", err
	}
	o.publish(token.id, ProgressEvent{Percent: 100, Label: meta.Title, Status: "Processing..."})

	dest := filepath.Join(req.DestinationDir, DeriveFileName(meta.Title, meta.Artist, req.Kind, req.Variant))
	encodeCtx, cancelEncode := o.stepContext(token.ctx)
	defer cancelEncode()
	out, err := o.transcoder.Finalize(encodeCtx, FinalizeRequest{
		RawMedia:   raw,
		Thumbnail:  thumbPath,
		Meta:       meta,
		Kind:       req.Kind,
		Variant:    req.Variant,
		Dest:       dest,
		OnProgress: o.publisher(token.id),
		Cancelled:  token.Cancelled,
	})
	if err != nil {
		return meta, "", err
	}
	o.publish(token.id, ProgressEvent{Percent: 100, Label: meta.Title, Status: "Done"})
	return meta, out, nil
}

// CheckDevice looks for a connected device.
func (o *Orchestrator) CheckDevice() DeviceStatus {
	return o.device.Status()
}

// CopyToDevice copies a finished file onto the device.
func (o *Orchestrator) CopyToDevice(file, artist string) (DeviceTransfer, error) {
	return o.device.CopyToDevice(file, artist)
}

// VideoToDevice converts a finished video onto the device. It occupies the
// job slot, so StopActiveJob cancels it.
func (o *Orchestrator) VideoToDevice(ctx context.Context, file, artist, title string) (DeviceTransfer, error) {
	token, err := o.admit(ctx)
	if err != nil {
		return DeviceTransfer{}, err
	}
	defer o.finish(token)

	stepCtx, cancel := o.stepContext(token.ctx)
	defer cancel()
	transfer, err := o.device.ConvertVideoForDevice(stepCtx, file, artist, title, o.publisher(token.id))
	if err != nil {
		if token.Cancelled() {
			return DeviceTransfer{}, cancelledError("device convert")
		}
		return DeviceTransfer{}, err
	}
	o.publish(token.id, ProgressEvent{Percent: 100, Label: title, Status: "Done"})
	return transfer, nil
}

// admit claims the single job slot in this process and across processes.
func (o *Orchestrator) admit(parent context.Context) (*jobToken, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		return nil, newJobError(KindBusy, "admit", "a job is already running", nil)
	}

	if err := os.MkdirAll(filepath.Dir(o.lockPath), 0755); err != nil {
		return nil, newJobError(KindIO, "admit", "create data directory", err)
	}
	ok, err := o.lock.TryLock()
	if err != nil {
		return nil, newJobError(KindIO, "admit", "acquire job lock", err)
	}
	if !ok {
		return nil, newJobError(KindBusy, "admit", "another podfetch process is running a job", nil)
	}

	if parent == nil {
		parent = context.Background()
	}
	o.active = newJobToken(parent, uuid.New().String())
	return o.active, nil
}

func (o *Orchestrator) finish(token *jobToken) {
	o.mu.Lock()
	defer o.mu.Unlock()

	token.cancel()
	if o.active == token {
		o.active = nil
	}
	if err := o.lock.Unlock(); err != nil {
		Logger.Warn("failed to release job lock", "path", o.lockPath, "error", err)
	}
}

func (o *Orchestrator) stepContext(parent context.Context) (context.Context, context.CancelFunc) {
	if d := o.cfg.StepTimeoutDuration(); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

func (o *Orchestrator) publish(jobID string, ev ProgressEvent) {
	ev.JobID = jobID
	o.broadcaster.Publish(ev)
}

func (o *Orchestrator) publisher(jobID string) ProgressFunc {
	return func(ev ProgressEvent) {
		o.publish(jobID, ev)
	}
}

func (o *Orchestrator) record(req JobRequest, meta TrackMetadata, out string, started time.Time, jobErr error) {
	if o.history == nil {
		return
	}

	entry := HistoryEntry{
		URL:        req.URL,
		Kind:       req.Kind,
		Variant:    req.Variant,
		Title:      meta.Title,
		Artist:     meta.Artist,
		Album:      meta.Album,
		OutputPath: out,
		DurationMS: time.Since(started).Milliseconds(),
		Status:     HistoryComplete,
	}
	switch {
	case jobErr == nil:
		if info, err := os.Stat(out); err == nil {
			entry.FileSize = info.Size()
		}
	case errors.Is(jobErr, ErrCancelled):
		entry.Status = HistoryCancelled
		entry.ErrorKind = KindCancelled
	default:
		entry.Status = HistoryError
		entry.ErrorKind = ErrorKindOf(jobErr)
		entry.Error = UserMessage(jobErr)
	}

	if _, err := o.history.Add(context.Background(), entry); err != nil {
		Logger.Warn("failed to record history", "error", err)
	}
}
