package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"podfetch/backend"

	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// App struct - main Wails application
type App struct {
	ctx         context.Context
	orch        *backend.Orchestrator
	config      *backend.Config
	unsubscribe func()
}

// NewApp creates a new App around an already constructed engine
func NewApp(orch *backend.Orchestrator) *App {
	return &App{orch: orch, config: orch.Config()}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	// Forward progress to the frontend
	events, unsubscribe := a.orch.Subscribe()
	a.unsubscribe = unsubscribe
	go func() {
		for ev := range events {
			runtime.EventsEmit(ctx, "download-progress", ev)
		}
	}()
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	a.orch.StopActiveJob()
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
}

// =============================================================================
// Downloads
// =============================================================================

// GetInfo resolves a URL in flat mode for preview
func (a *App) GetInfo(url string) (*backend.MetadataResult, error) {
	return a.orch.GetInfo(a.ctx, url)
}

// DownloadTrack downloads url as audio into dir, or the default audio folder
func (a *App) DownloadTrack(url, dir string) backend.JobResult {
	if dir == "" {
		dir = a.config.AudioDirectory()
	}
	return a.orch.DownloadTrack(a.ctx, url, dir)
}

// DownloadVideo downloads url as video into dir, or the default video folder
func (a *App) DownloadVideo(url, dir, variant string) backend.JobResult {
	v, err := backend.ParseVariant(variant)
	if err != nil {
		return backend.JobResult{ErrorKind: backend.KindInvalidRequest, Error: err.Error()}
	}
	if dir == "" {
		dir = a.config.VideoDirectory()
	}
	return a.orch.DownloadVideo(a.ctx, url, dir, v)
}

// StopDownload cancels the running job, if any
func (a *App) StopDownload() backend.StopAck {
	return a.orch.StopActiveJob()
}

// CheckDependencies reports whether yt-dlp and ffmpeg can be found
func (a *App) CheckDependencies() backend.DependencyReport {
	return backend.CheckDependencies(a.ctx, a.config)
}

// =============================================================================
// Device
// =============================================================================

func (a *App) CheckDevice() backend.DeviceStatus {
	return a.orch.CheckDevice()
}

func (a *App) CopyToDevice(file, artist string) (backend.DeviceTransfer, error) {
	return a.orch.CopyToDevice(file, artist)
}

func (a *App) VideoToDevice(file, artist, title string) (backend.DeviceTransfer, error) {
	return a.orch.VideoToDevice(a.ctx, file, artist, title)
}

// =============================================================================
// Settings
// =============================================================================

// GetConfig returns current configuration
func (a *App) GetConfig() *backend.Config {
	return a.config
}

// SaveConfig validates and saves configuration
func (a *App) SaveConfig(config backend.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := backend.SaveConfig(&config); err != nil {
		return err
	}
	a.config = &config
	return nil
}

// GetDownloadPath returns the folder a kind of download lands in by default
func (a *App) GetDownloadPath(kind string) string {
	if backend.MediaKind(kind) == backend.KindVideo {
		return a.config.VideoDirectory()
	}
	return a.config.AudioDirectory()
}

// =============================================================================
// History
// =============================================================================

func (a *App) GetHistory(query string) ([]backend.HistoryEntry, error) {
	h := a.orch.History()
	if h == nil {
		return nil, nil
	}
	if query != "" {
		return h.Search(a.ctx, query)
	}
	return h.GetAll(a.ctx)
}

func (a *App) DeleteHistoryEntry(id string) error {
	if h := a.orch.History(); h != nil {
		return h.Delete(a.ctx, id)
	}
	return nil
}

// =============================================================================
// File Manager
// =============================================================================

// FileInfo represents a downloaded file
type FileInfo struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	Type string `json:"type"` // "audio", "video"
}

var fileTypes = map[string]string{
	".m4a":  "audio",
	".mp3":  "audio",
	".opus": "audio",
	".mp4":  "video",
	".mkv":  "video",
	".webm": "video",
}

// ListFiles lists downloaded media under directory, or the output root.
// fileType filters on "audio" or "video"; empty lists both.
func (a *App) ListFiles(directory, fileType string) ([]FileInfo, error) {
	if directory == "" {
		directory = a.config.OutputRoot()
	}

	var files []FileInfo
	err := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == directory {
				return err
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ft, ok := fileTypes[strings.ToLower(filepath.Ext(path))]
		if !ok || (fileType != "" && ft != fileType) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{Name: d.Name(), Path: path, Size: info.Size(), Type: ft})
		return nil
	})
	if os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

// BrowseDirectory opens a directory picker dialog
func (a *App) BrowseDirectory() (string, error) {
	return runtime.OpenDirectoryDialog(a.ctx, runtime.OpenDialogOptions{
		Title:            "Select Directory",
		DefaultDirectory: a.config.OutputRoot(),
	})
}

// OpenDirectory opens the folder containing path in the file manager
func (a *App) OpenDirectory(path string) {
	runtime.BrowserOpenURL(a.ctx, "file://"+filepath.Dir(path))
}

// =============================================================================
// System
// =============================================================================

// GetAppVersion returns application version
func (a *App) GetAppVersion() string {
	return appVersion
}
