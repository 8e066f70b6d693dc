package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Recognized extractor output extensions, in lookup order.
var (
	audioOutputExts = []string{"m4a", "mp3", "webm", "opus", "aac"}
	videoOutputExts = []string{"mp4", "mkv", "webm"}
)

// Downloader runs the extractor in fetch mode.
type Downloader struct {
	ExtractorPath string
	// EncoderDir is passed as --ffmpeg-location when set.
	EncoderDir string
	Auth       AuthOptions
}

// NewDownloader builds a downloader from config and the resolved encoder path.
func NewDownloader(cfg *Config, encoderPath string) *Downloader {
	return &Downloader{
		ExtractorPath: cfg.ExtractorPath,
		EncoderDir:    encoderDirFor(encoderPath),
		Auth:          AuthOptions{CookiesBrowser: cfg.CookiesBrowser, Retries: cfg.ExtractorRetries},
	}
}

// DownloadOptions carries per-job hooks.
type DownloadOptions struct {
	Label      string
	OnProgress ProgressFunc
	// Cancelled is consulted when the extractor exits.
	Cancelled func() bool
}

// DownloadHandle owns one running fetch.
type DownloadHandle struct {
	proc      *Process
	ctx       context.Context
	workspace *Workspace
	kind      MediaKind
	cancelled func() bool

	mu     sync.Mutex
	latest float64
}

// Start spawns the extractor writing into ws. Progress is parsed from both
// output streams; the latest match wins.
func (d *Downloader) Start(ctx context.Context, url string, ws *Workspace, kind MediaKind, opts DownloadOptions) (*DownloadHandle, error) {
	h := &DownloadHandle{
		ctx:       ctx,
		workspace: ws,
		kind:      kind,
		cancelled: opts.Cancelled,
	}

	proc, err := StartProcess(ctx, ProcessSpec{
		Name: "yt-dlp",
		Path: d.ExtractorPath,
		Args: fetchArgs(kind, ws.Path, url, d.EncoderDir, d.Auth),
		OnChunk: func(_, chunk string) {
			pct, ok := ParsePercent(chunk)
			if !ok {
				return
			}
			h.mu.Lock()
			h.latest = pct
			h.mu.Unlock()
			if opts.OnProgress != nil {
				opts.OnProgress(ProgressEvent{Percent: pct, Label: opts.Label})
			}
		},
	})
	if err != nil {
		return nil, newJobError(KindDownloadFailed, "download", "could not start extractor", err)
	}
	h.proc = proc
	return h, nil
}

// Progress returns the most recent percentage seen.
func (h *DownloadHandle) Progress() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Wait blocks until the extractor exits and returns the downloaded file.
// A raised cancellation flag wins over any exit status.
func (h *DownloadHandle) Wait() (string, error) {
	waitErr := h.proc.Wait()

	if isCancelled(h.ctx, h.cancelled) {
		return "", cancelledError("download")
	}
	if waitErr != nil {
		msg := fmt.Sprintf("extractor exited with code %d", h.proc.ExitCode())
		if errors.Is(h.ctx.Err(), context.DeadlineExceeded) {
			msg = "extractor timed out"
		}
		je := newJobError(KindDownloadFailed, "download", msg, nil)
		je.Stderr = h.proc.StderrTail()
		return "", je
	}

	path, ok := locateOutput(h.workspace, h.kind)
	if !ok {
		listing := strings.Join(h.workspace.List(), ", ")
		if listing == "" {
			listing = "empty"
		}
		return "", newJobError(KindOutputNotFound, "download",
			fmt.Sprintf("no %s file in workspace (contents: %s)", h.kind, listing), nil)
	}
	return path, nil
}

func locateOutput(ws *Workspace, kind MediaKind) (string, bool) {
	exts := audioOutputExts
	if kind == KindVideo {
		exts = videoOutputExts
	}
	for _, ext := range exts {
		path := ws.File(string(kind) + "." + ext)
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, true
		}
	}
	return "", false
}
