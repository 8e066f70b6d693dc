package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDeviceNotConnected is returned when no mount point holds a device.
var ErrDeviceNotConnected = errors.New("device not connected")

// DeviceStatus is the result of a one-shot device check.
type DeviceStatus struct {
	Connected  bool   `json:"connected"`
	Path       string `json:"path,omitempty"`
	HasRockbox bool   `json:"hasRockbox,omitempty"`
	FreeSpace  uint64 `json:"freeSpace,omitempty"`
}

// DeviceTransfer reports where a file landed on the device.
type DeviceTransfer struct {
	Success     bool   `json:"success"`
	Destination string `json:"destination"`
}

// DetectDevice returns the first mount that looks like a portable player:
// one carrying a .rockbox or iPod_Control directory.
func DetectDevice(mounts []string) DeviceStatus {
	for _, mount := range mounts {
		if !dirExists(mount) {
			continue
		}
		hasRockbox := fileExists(filepath.Join(mount, ".rockbox"))
		hasControl := fileExists(filepath.Join(mount, "iPod_Control"))
		if !hasRockbox && !hasControl {
			continue
		}

		status := DeviceStatus{Connected: true, Path: mount, HasRockbox: hasRockbox}
		free, err := freeSpace(mount)
		if err != nil {
			Logger.Debug("free space unavailable", "mount", mount, "error", err)
		} else {
			status.FreeSpace = free
		}
		return status
	}
	return DeviceStatus{}
}

// DeviceSync copies finished files onto a connected device.
type DeviceSync struct {
	Mounts      []string
	EncoderPath string
	AACEncoder  string
}

// NewDeviceSync builds a DeviceSync from config.
func NewDeviceSync(cfg *Config, encoderPath string) *DeviceSync {
	return &DeviceSync{
		Mounts:      cfg.DeviceMounts,
		EncoderPath: encoderPath,
		AACEncoder:  cfg.AACEncoder,
	}
}

// Status checks the configured mounts.
func (d *DeviceSync) Status() DeviceStatus {
	return DetectDevice(d.Mounts)
}

func (d *DeviceSync) root() (string, error) {
	status := d.Status()
	if !status.Connected {
		return "", ErrDeviceNotConnected
	}
	return status.Path, nil
}

// CopyToDevice copies file into Music/<artist>/ on the device.
func (d *DeviceSync) CopyToDevice(file, artist string) (DeviceTransfer, error) {
	root, err := d.root()
	if err != nil {
		return DeviceTransfer{}, err
	}
	if !nonEmptyFile(file) {
		return DeviceTransfer{}, newJobError(KindIO, "device copy", fmt.Sprintf("source %s is missing or empty", file), nil)
	}

	dir := filepath.Join(root, "Music", SanitizeArtistFolder(artist))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return DeviceTransfer{}, newJobError(KindIO, "device copy", "create music folder", err)
	}
	dest := filepath.Join(dir, filepath.Base(file))
	staging := stagingPath(dest)
	defer removeQuietly(staging)
	if err := copyFile(file, staging); err != nil {
		return DeviceTransfer{}, newJobError(KindIO, "device copy", "copy file", err)
	}
	if _, err := commitStaged("device copy", staging, dest); err != nil {
		return DeviceTransfer{}, err
	}

	Logger.Info("copied to device", "file", file, "dest", dest)
	return DeviceTransfer{Success: true, Destination: dest}, nil
}

// ConvertVideoForDevice encodes file into Videos/<artist>/<name>.mp4 on
// the device. Progress counts encoded seconds, capped at 95.
func (d *DeviceSync) ConvertVideoForDevice(ctx context.Context, file, artist, title string, onProgress ProgressFunc) (DeviceTransfer, error) {
	root, err := d.root()
	if err != nil {
		return DeviceTransfer{}, err
	}
	if !fileExists(file) {
		return DeviceTransfer{}, newJobError(KindIO, "device convert", fmt.Sprintf("source %s not found", file), nil)
	}

	dir := filepath.Join(root, "Videos", SanitizeArtistFolder(artist))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return DeviceTransfer{}, newJobError(KindIO, "device convert", "create videos folder", err)
	}
	base := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	dest := filepath.Join(dir, base+".mp4")
	staging := stagingPath(dest)
	defer removeQuietly(staging)

	var lastSecs int
	proc, err := StartProcess(ctx, ProcessSpec{
		Name: "ffmpeg",
		Path: d.EncoderPath,
		Args: deviceConversionArgs(file, staging, d.AACEncoder),
		OnChunk: func(stream, chunk string) {
			if stream != "stderr" || onProgress == nil {
				return
			}
			elapsed, ok := ParseElapsed(chunk)
			if !ok {
				return
			}
			secs := int(elapsed.Seconds())
			if secs <= lastSecs {
				return
			}
			lastSecs = secs
			onProgress(ProgressEvent{
				Percent: elapsedPercent(elapsed, 95),
				Label:   title,
				Status:  fmt.Sprintf("Converting for device... %ds", secs),
			})
		},
	})
	if err != nil {
		return DeviceTransfer{}, newJobError(KindEncodeFailed, "device convert", "could not start encoder", err)
	}

	if err := proc.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return DeviceTransfer{}, cancelledError("device convert")
		}
		je := newJobError(KindEncodeFailed, "device convert", "video conversion failed", nil)
		je.Stderr = proc.StderrTail()
		return DeviceTransfer{}, je
	}
	if !nonEmptyFile(staging) {
		return DeviceTransfer{}, newJobError(KindEncodeFailed, "device convert", "converted video is missing or empty", nil)
	}
	if _, err := commitStaged("device convert", staging, dest); err != nil {
		return DeviceTransfer{}, err
	}

	Logger.Info("converted for device", "file", file, "dest", dest)
	return DeviceTransfer{Success: true, Destination: dest}, nil
}
