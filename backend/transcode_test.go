package backend

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// encoderStub writes ENCODED to its last argument after one progress marker.
const encoderStub = `
for a in "$@"; do last="$a"; done
echo "size=     256kB time=00:00:05.00 bitrate= 64.0kbits/s" >&2
printf 'ENCODED' > "$last"
`

func TestBuildEncoderArgs(t *testing.T) {
	dir := t.TempDir()
	thumb := filepath.Join(dir, "thumb.jpg")
	writeFile(t, thumb, "JPEG")
	meta := TrackMetadata{Title: "Song", Artist: "Artist", Album: "Album"}

	tests := []struct {
		name string
		spec EncodeSpec
		want []string
	}{
		{
			name: "audio with artwork",
			spec: EncodeSpec{Input: "raw.webm", Thumbnail: thumb, Meta: meta, Kind: KindAudio, Output: "out.m4a", AACEncoder: "aac_at"},
			want: []string{
				"-i", "raw.webm", "-i", thumb, "-map", "0:a", "-map", "1:v",
				"-c:a", "aac_at", "-b:a", "256k", "-ar", "44100",
				"-c:v", "mjpeg", "-disposition:v:0", "attached_pic",
				"-metadata", "title=Song", "-metadata", "artist=Artist", "-metadata", "album=Album",
				"-y", "out.m4a",
			},
		},
		{
			name: "audio without artwork",
			spec: EncodeSpec{Input: "raw.m4a", Thumbnail: filepath.Join(dir, "missing.jpg"), Meta: meta, Kind: KindAudio, Output: "out.m4a"},
			want: []string{
				"-i", "raw.m4a",
				"-c:a", "aac", "-b:a", "256k", "-ar", "44100",
				"-metadata", "title=Song", "-metadata", "artist=Artist", "-metadata", "album=Album",
				"-y", "out.m4a",
			},
		},
		{
			name: "video normal",
			spec: EncodeSpec{Input: "video.mp4", Thumbnail: thumb, Meta: meta, Kind: KindVideo, Variant: VariantNormal, Output: "out.mp4"},
			want: []string{
				"-i", "video.mp4",
				"-c:v", "copy", "-c:a", "aac", "-b:a", "256k", "-ar", "44100",
				"-metadata", "title=Song", "-metadata", "artist=Artist",
				"-y", "out.mp4",
			},
		},
		{
			name: "video device with artwork",
			spec: EncodeSpec{Input: "video.mp4", Thumbnail: thumb, Meta: meta, Kind: KindVideo, Variant: VariantDevice, Output: "out.m4v"},
			want: []string{
				"-i", "video.mp4", "-i", thumb,
				"-map", "0:v", "-map", "0:a", "-map", "1:v", "-disposition:v:1", "attached_pic",
				"-filter:v:0", deviceScaleFilter,
				"-c:v:0", "libx264", "-profile:v:0", "baseline", "-level:v:0", "3.0",
				"-preset", "medium", "-crf", "23",
				"-c:v:1", "mjpeg",
				"-c:a", "aac", "-b:a", "128k", "-ar", "44100", "-ac", "2",
				"-metadata", "title=Song", "-metadata", "artist=Artist",
				"-movflags", "+faststart",
				"-y", "out.m4v",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildEncoderArgs(tt.spec); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildEncoderArgs() =\n%v\nwant\n%v", got, tt.want)
			}
		})
	}
}

func finalizeFixture(t *testing.T, script string) (*Transcoder, FinalizeRequest) {
	t.Helper()
	dir := t.TempDir()
	raw := filepath.Join(dir, "ws", "audio.webm")
	writeFile(t, raw, "RAW-BYTES-0123456789")

	encoder := writeScript(t, dir, "ffmpeg", script)
	return &Transcoder{EncoderPath: encoder, AACEncoder: "aac"}, FinalizeRequest{
		RawMedia: raw,
		Meta:     TrackMetadata{Title: "Song", Artist: "Artist", Album: "Album"},
		Kind:     KindAudio,
		Variant:  VariantNormal,
		Dest:     filepath.Join(dir, "out", "Artist - Song.m4a"),
	}
}

func TestFinalize_Success(t *testing.T) {
	tr, req := finalizeFixture(t, encoderStub)
	rec := &eventRecorder{}
	req.OnProgress = rec.record

	path, err := tr.Finalize(context.Background(), req)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if path != req.Dest {
		t.Errorf("path = %q, want %q", path, req.Dest)
	}
	if data, _ := os.ReadFile(path); string(data) != "ENCODED" {
		t.Errorf("output = %q, want encoder output", data)
	}
	if got := rec.percents(); len(got) != 1 || got[0] != 5 {
		t.Errorf("progress = %v, want [5]", got)
	}
}

func TestFinalize_FallbackCopiesRawMedia(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"non-zero exit", "echo 'Unknown encoder aac_at' >&2\nexit 1\n"},
		{"zero-byte output", "for a in \"$@\"; do last=\"$a\"; done\n: > \"$last\"\nexit 0\n"},
		{"no output", "exit 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, req := finalizeFixture(t, tt.script)

			path, err := tr.Finalize(context.Background(), req)
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read output: %v", err)
			}
			want, _ := os.ReadFile(req.RawMedia)
			if len(got) == 0 || !bytes.Equal(got, want) {
				t.Errorf("output %q is not a byte copy of raw %q", got, want)
			}
		})
	}
}

func TestFinalize_FallbackWhenEncoderMissing(t *testing.T) {
	tr, req := finalizeFixture(t, encoderStub)
	tr.EncoderPath = filepath.Join(t.TempDir(), "no-ffmpeg")

	path, err := tr.Finalize(context.Background(), req)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if data, _ := os.ReadFile(path); string(data) != "RAW-BYTES-0123456789" {
		t.Errorf("output = %q, want raw copy", data)
	}
}

func TestFinalize_NoRawMedia(t *testing.T) {
	tr, req := finalizeFixture(t, "exit 1\n")
	if err := os.Remove(req.RawMedia); err != nil {
		t.Fatalf("remove raw: %v", err)
	}

	_, err := tr.Finalize(context.Background(), req)
	if !errors.Is(err, ErrEncodeFailed) {
		t.Fatalf("Finalize error = %v, want encode failure", err)
	}
	if fileExists(req.Dest) {
		t.Error("destination should not exist")
	}
}

func TestFinalize_CancelledSkipsFallback(t *testing.T) {
	tr, req := finalizeFixture(t, "sleep 30\n")

	token := newJobToken(context.Background(), "test")
	req.Cancelled = token.Cancelled
	go func() {
		time.Sleep(200 * time.Millisecond)
		token.Cancel()
	}()

	_, err := tr.Finalize(token.ctx, req)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Finalize error = %v, want cancelled", err)
	}
	if fileExists(req.Dest) {
		t.Error("no fallback copy expected after cancel")
	}
}

func TestFinalize_ExistingDestinationSurvivesFailure(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		noRaw   bool
		cancel  bool
		wantErr error
	}{
		{"cancelled mid-encode", "for a in \"$@\"; do last=\"$a\"; done\nprintf 'PARTIAL' > \"$last\"\nsleep 30\n", false, true, ErrCancelled},
		{"failed without raw media", "for a in \"$@\"; do last=\"$a\"; done\nprintf 'PARTIAL' > \"$last\"\nexit 1\n", true, false, ErrEncodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, req := finalizeFixture(t, tt.script)
			writeFile(t, req.Dest, "EARLIER-DOWNLOAD")
			if tt.noRaw {
				if err := os.Remove(req.RawMedia); err != nil {
					t.Fatalf("remove raw: %v", err)
				}
			}

			ctx := context.Background()
			if tt.cancel {
				token := newJobToken(ctx, "test")
				req.Cancelled = token.Cancelled
				ctx = token.ctx
				go func() {
					time.Sleep(200 * time.Millisecond)
					token.Cancel()
				}()
			}

			_, err := tr.Finalize(ctx, req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Finalize error = %v, want %v", err, tt.wantErr)
			}
			if data, _ := os.ReadFile(req.Dest); string(data) != "EARLIER-DOWNLOAD" {
				t.Errorf("existing destination = %q, want it untouched", data)
			}
			assertNoStagingFiles(t, filepath.Dir(req.Dest))
		})
	}
}

func TestFinalize_SuccessLeavesNoStagingFiles(t *testing.T) {
	tr, req := finalizeFixture(t, encoderStub)

	if _, err := tr.Finalize(context.Background(), req); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	assertNoStagingFiles(t, filepath.Dir(req.Dest))
}

func TestFinalize_DeviceFallbackNeedsMP4(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantCopy bool
	}{
		{"webm raw fails the job", "video.webm", false},
		{"mkv raw fails the job", "video.mkv", false},
		{"mp4 raw is copied", "video.mp4", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, req := finalizeFixture(t, "exit 1\n")
			raw := filepath.Join(filepath.Dir(req.RawMedia), tt.raw)
			writeFile(t, raw, "RAW-VIDEO")
			req.RawMedia = raw
			req.Kind = KindVideo
			req.Variant = VariantDevice
			req.Dest = filepath.Join(filepath.Dir(req.Dest), "Artist - Clip (iPod).m4v")

			path, err := tr.Finalize(context.Background(), req)
			if !tt.wantCopy {
				if !errors.Is(err, ErrEncodeFailed) {
					t.Fatalf("Finalize error = %v, want encode failure", err)
				}
				if fileExists(req.Dest) {
					t.Error("destination should not exist")
				}
				assertNoStagingFiles(t, filepath.Dir(req.Dest))
				return
			}
			if err != nil {
				t.Fatalf("Finalize: %v", err)
			}
			if data, _ := os.ReadFile(path); string(data) != "RAW-VIDEO" {
				t.Errorf("output = %q, want raw copy", data)
			}
		})
	}
}

func assertNoStagingFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".podfetch-") {
			t.Errorf("leftover staging file %s", e.Name())
		}
	}
}
