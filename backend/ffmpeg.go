package backend

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FFmpeg binary lookup and argument sets

// deviceScaleFilter letterboxes into 640x480 with square pixels.
const deviceScaleFilter = "scale=640:480:force_original_aspect_ratio=decrease,pad=640:480:(ow-iw)/2:(oh-ih)/2,setsar=1"

// EncodeSpec describes one encoder invocation.
type EncodeSpec struct {
	Input      string
	Thumbnail  string // optional cover art
	Meta       TrackMetadata
	Kind       MediaKind
	Variant    Variant
	Output     string
	AACEncoder string
}

// BuildEncoderArgs returns the ffmpeg arguments for spec.
func BuildEncoderArgs(spec EncodeSpec) []string {
	aac := spec.AACEncoder
	if aac == "" {
		aac = defaultConfig.AACEncoder
	}
	hasThumb := spec.Thumbnail != "" && fileExists(spec.Thumbnail)

	args := []string{"-i", spec.Input}

	switch {
	case spec.Kind == KindAudio:
		if hasThumb {
			args = append(args, "-i", spec.Thumbnail, "-map", "0:a", "-map", "1:v")
		}
		args = append(args, "-c:a", aac, "-b:a", "256k", "-ar", "44100")
		if hasThumb {
			args = append(args, "-c:v", "mjpeg", "-disposition:v:0", "attached_pic")
		}
		args = append(args,
			"-metadata", "title="+spec.Meta.Title,
			"-metadata", "artist="+spec.Meta.Artist,
			"-metadata", "album="+spec.Meta.Album,
		)

	case spec.Variant == VariantDevice:
		if hasThumb {
			args = append(args, "-i", spec.Thumbnail)
		}
		args = append(args, "-map", "0:v", "-map", "0:a")
		if hasThumb {
			args = append(args, "-map", "1:v", "-disposition:v:1", "attached_pic")
		}
		args = append(args,
			"-filter:v:0", deviceScaleFilter,
			"-c:v:0", "libx264",
			"-profile:v:0", "baseline",
			"-level:v:0", "3.0",
			"-preset", "medium",
			"-crf", "23",
		)
		if hasThumb {
			args = append(args, "-c:v:1", "mjpeg")
		}
		args = append(args,
			"-c:a", aac, "-b:a", "128k", "-ar", "44100", "-ac", "2",
			"-metadata", "title="+spec.Meta.Title,
			"-metadata", "artist="+spec.Meta.Artist,
			"-movflags", "+faststart",
		)

	default:
		args = append(args,
			"-c:v", "copy",
			"-c:a", aac, "-b:a", "256k", "-ar", "44100",
			"-metadata", "title="+spec.Meta.Title,
			"-metadata", "artist="+spec.Meta.Artist,
		)
	}

	return append(args, "-y", spec.Output)
}

// deviceConversionArgs converts an already finished video for a device.
func deviceConversionArgs(input, output, aac string) []string {
	if aac == "" {
		aac = defaultConfig.AACEncoder
	}
	return []string{
		"-i", input,
		"-vf", deviceScaleFilter,
		"-c:v", "libx264",
		"-preset", "medium",
		"-crf", "23",
		"-c:a", aac,
		"-b:a", "128k",
		"-ar", "44100",
		"-movflags", "+faststart",
		"-y", output,
	}
}

// ResolveEncoderPath returns the configured encoder, else a bundled
// binary under the data dir, else whatever PATH finds.
func ResolveEncoderPath(configured string) string {
	if configured != "" {
		if path, err := exec.LookPath(configured); err == nil {
			return path
		}
		return configured
	}

	bundledPaths := []string{
		filepath.Join(GetBinPath(), "ffmpeg"),
		filepath.Join(GetBinPath(), "ffmpeg.exe"),
	}
	for _, p := range bundledPaths {
		if fileExists(p) {
			return p
		}
	}

	if path, err := exec.LookPath("ffmpeg"); err == nil {
		return path
	}
	return "ffmpeg"
}

// encoderDirFor returns the directory for --ffmpeg-location, or "" when
// the encoder is only known by name.
func encoderDirFor(encoderPath string) string {
	if encoderPath == "" || !filepath.IsAbs(encoderPath) {
		return ""
	}
	return filepath.Dir(encoderPath)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// nonEmptyFile reports whether path is a regular file with content.
func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

// FormatFileSize formats bytes into human readable format
func FormatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
