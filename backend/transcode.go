package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Transcoder runs the encoder to produce the final tagged file.
type Transcoder struct {
	EncoderPath string
	AACEncoder  string
}

// NewTranscoder builds a transcoder from config.
func NewTranscoder(cfg *Config) *Transcoder {
	return &Transcoder{
		EncoderPath: ResolveEncoderPath(cfg.EncoderPath),
		AACEncoder:  cfg.AACEncoder,
	}
}

// FinalizeRequest is the input to Finalize.
type FinalizeRequest struct {
	RawMedia  string
	Thumbnail string // optional
	Meta      TrackMetadata
	Kind      MediaKind
	Variant   Variant
	Dest      string

	OnProgress ProgressFunc
	Cancelled  func() bool
}

// Finalize encodes RawMedia into Dest. When the encoder cannot start,
// exits non-zero, or leaves no usable output, the raw media is copied to
// Dest unchanged so the job still produces a playable file. The device
// variant only falls back when the raw container is already mp4.
//
// Output is staged next to Dest and renamed into place, so a file already
// at Dest is only ever replaced by a finished one.
func (t *Transcoder) Finalize(ctx context.Context, req FinalizeRequest) (string, error) {
	dir := filepath.Dir(req.Dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", newJobError(KindIO, "encode", "create destination directory", err)
	}
	staging := stagingPath(req.Dest)
	defer removeQuietly(staging)

	status := "Encoding..."
	if req.Variant == VariantDevice {
		status = "Converting for device..."
	}

	args := BuildEncoderArgs(EncodeSpec{
		Input:      req.RawMedia,
		Thumbnail:  req.Thumbnail,
		Meta:       req.Meta,
		Kind:       req.Kind,
		Variant:    req.Variant,
		Output:     staging,
		AACEncoder: t.AACEncoder,
	})

	proc, err := StartProcess(ctx, ProcessSpec{
		Name: "ffmpeg",
		Path: t.EncoderPath,
		Args: args,
		OnChunk: func(stream, chunk string) {
			if stream != "stderr" || req.OnProgress == nil {
				return
			}
			if elapsed, ok := ParseElapsed(chunk); ok {
				req.OnProgress(ProgressEvent{
					Percent: elapsedPercent(elapsed, 99),
					Label:   req.Meta.Title,
					Status:  fmt.Sprintf("%s %ds", status, int(elapsed.Seconds())),
				})
			}
		},
	})

	var cause *JobError
	if err != nil {
		if isCancelled(ctx, req.Cancelled) {
			return "", cancelledError("encode")
		}
		cause = newJobError(KindEncodeFailed, "encode", "could not start encoder", err)
	} else {
		waitErr := proc.Wait()
		if isCancelled(ctx, req.Cancelled) {
			return "", cancelledError("encode")
		}
		switch {
		case waitErr != nil:
			msg := fmt.Sprintf("encoder exited with code %d", proc.ExitCode())
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				msg = "encoder timed out"
			}
			cause = newJobError(KindEncodeFailed, "encode", msg, nil)
			cause.Stderr = proc.StderrTail()
		case !nonEmptyFile(staging):
			cause = newJobError(KindEncodeFailed, "encode", "encoder produced no output", nil)
			cause.Stderr = proc.StderrTail()
		default:
			return commitStaged("encode", staging, req.Dest)
		}
	}

	return t.fallback(req, staging, cause)
}

func (t *Transcoder) fallback(req FinalizeRequest, staging string, cause *JobError) (string, error) {
	if !nonEmptyFile(req.RawMedia) {
		return "", cause
	}
	if req.Variant == VariantDevice && !deviceReadyContainer(req.RawMedia) {
		Logger.Warn("device encode failed and raw media is not mp4, not copying",
			"error", cause.Error(), "raw", req.RawMedia)
		return "", cause
	}

	Logger.Warn("encoder failed, copying raw media instead",
		"error", cause.Error(), "stderr", lastLine(cause.Stderr), "raw", req.RawMedia, "dest", req.Dest)

	if err := copyFile(req.RawMedia, staging); err != nil {
		return "", newJobError(KindIO, "encode fallback", "copy raw media", err)
	}
	return commitStaged("encode fallback", staging, req.Dest)
}

// stagingPath is a hidden sibling of dest that keeps its extension, so
// the encoder still picks the container from the name.
func stagingPath(dest string) string {
	return filepath.Join(filepath.Dir(dest), ".podfetch-"+uuid.NewString()[:8]+"-"+filepath.Base(dest))
}

func commitStaged(op, staging, dest string) (string, error) {
	if err := os.Rename(staging, dest); err != nil {
		return "", newJobError(KindIO, op, "move output into place", err)
	}
	return dest, nil
}

// deviceReadyContainer reports whether raw media can stand in for a device
// encode without remuxing.
func deviceReadyContainer(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".m4v":
		return true
	}
	return false
}

func isCancelled(ctx context.Context, cancelled func() bool) bool {
	if cancelled != nil {
		return cancelled()
	}
	return errors.Is(ctx.Err(), context.Canceled)
}

// copyFile copies src to dst byte for byte, replacing dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		Logger.Debug("remove failed", "path", path, "error", err)
	}
}
