package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"podfetch/backend"
)

const stubExtractor = `#!/bin/sh
case "$*" in
--version) echo 2025.01.15; exit 0;;
*--flat-playlist*)
  echo '{"title":"One","uploader":"Chan","duration":61,"playlist_title":"Mix"}'
  echo '{"title":"Two","uploader":"Chan","duration":3725,"playlist_title":"Mix"}'
  exit 0;;
*--dump-json*)
  echo '{"title":"Song","artist":"Artist","album":"Album"}'
  exit 0;;
esac
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
f=$(printf '%s' "$out" | sed "s/%(ext)s/m4a/")
printf 'RAW' > "$f"
`

const stubEncoder = `#!/bin/sh
if [ "$1" = "-version" ]; then echo "ffmpeg version 7.1"; exit 0; fi
for a in "$@"; do last="$a"; done
printf 'ENCODED' > "$last"
`

type cliTestEnv struct {
	cfg        *backend.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, mutate func(*backend.Config)) *cliTestEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs require a POSIX shell")
	}

	bin := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(bin, name)
		if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	cfg := backend.GetDefaultConfig()
	cfg.ExtractorPath = write("yt-dlp", stubExtractor)
	cfg.EncoderPath = write("ffmpeg", stubEncoder)
	cfg.TempRoot = t.TempDir()
	cfg.DataDirectory = t.TempDir()
	cfg.OutputDirectory = t.TempDir()
	cfg.DeviceMounts = nil
	if mutate != nil {
		mutate(cfg)
	}

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := backend.SaveConfigTo(configPath, cfg); err != nil {
		t.Fatalf("SaveConfigTo: %v", err)
	}
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack string, needles ...string) {
	t.Helper()
	for _, needle := range needles {
		if !strings.Contains(haystack, needle) {
			t.Fatalf("expected %q in output:\n%s", needle, haystack)
		}
	}
}

func TestCLITrackAndHistory(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, []string{"track", "https://example.com/watch?v=1"}, env.configPath)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	want := filepath.Join(env.cfg.OutputDirectory, "Audio", "Artist - Song.m4a")
	requireContains(t, out, "Saved "+want, "Album:  Album", "Done")
	if data, _ := os.ReadFile(want); string(data) != "ENCODED" {
		t.Errorf("output = %q", data)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "Song", "Artist", "Complete", "audio")

	out, _, err = runCLI(t, []string{"history", "--search", "nothing-matches"}, env.configPath)
	if err != nil {
		t.Fatalf("history search: %v", err)
	}
	requireContains(t, out, "No history")

	out, _, err = runCLI(t, []string{"history", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "History cleared")
}

func TestCLIVideoRejectsBadURL(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	_, _, err := runCLI(t, []string{"video", "--device", "notaurl"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
	requireContains(t, err.Error(), "Invalid Request")
}

func TestCLIInfoPlaylist(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, []string{"info", "https://example.com/playlist?list=1"}, env.configPath)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	requireContains(t, out, "Playlist Mix (2 entries)", "One", "Two", "Chan", "1:01", "1:02:05")
}

func TestCLIDeps(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	requireContains(t, out, "yt-dlp", "ffmpeg", "available", "2025.01.15")
}

func TestCLIDepsMissing(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *backend.Config) {
		cfg.ExtractorPath = filepath.Join(t.TempDir(), "no-such-yt-dlp")
	})

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err == nil {
		t.Fatal("expected error when yt-dlp is missing")
	}
	requireContains(t, out, "missing")
}

func TestCLIDeviceStatus(t *testing.T) {
	env := setupCLITestEnv(t, nil)

	out, _, err := runCLI(t, []string{"device", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("device status: %v", err)
	}
	requireContains(t, out, "No device connected")

	mount := t.TempDir()
	if err := os.Mkdir(filepath.Join(mount, ".rockbox"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	env = setupCLITestEnv(t, func(cfg *backend.Config) {
		cfg.DeviceMounts = []string{mount}
	})
	out, _, err = runCLI(t, []string{"device", "status"}, env.configPath)
	if err != nil {
		t.Fatalf("device status: %v", err)
	}
	requireContains(t, out, mount, "yes")
}

func TestCLIDeviceCopy(t *testing.T) {
	mount := t.TempDir()
	if err := os.Mkdir(filepath.Join(mount, "iPod_Control"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	env := setupCLITestEnv(t, func(cfg *backend.Config) {
		cfg.DeviceMounts = []string{mount}
	})
	src := filepath.Join(t.TempDir(), "Artist - Song.m4a")
	if err := os.WriteFile(src, []byte("AUDIO"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, _, err := runCLI(t, []string{"device", "copy", "--artist", "Artist", src}, env.configPath)
	if err != nil {
		t.Fatalf("device copy: %v", err)
	}
	dest := filepath.Join(mount, "Music", "Artist", "Artist - Song.m4a")
	requireContains(t, out, "Copied to "+dest)
	if data, _ := os.ReadFile(dest); string(data) != "AUDIO" {
		t.Errorf("copied file = %q", data)
	}
}

func TestCLIHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *backend.Config) {
		cfg.HistoryEnabled = false
	})

	_, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("err = %v, want history disabled", err)
	}
}

func TestCLIMalformedConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("output_directory = ["), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := runCLI(t, []string{"deps"}, path); err == nil {
		t.Fatal("expected config parse error")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", jobFailure(backend.KindInvalidRequest, "bad url"), exitUsage},
		{"download failed", jobFailure(backend.KindDownloadFailed, "403"), exitFailure},
		{"plain error", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestReportResultStopped(t *testing.T) {
	var out bytes.Buffer
	err := reportResult(&out, backend.JobResult{ErrorKind: backend.KindCancelled, Error: "Cancelled by user"})

	var f *failure
	if !errors.As(err, &f) || f.kind != backend.KindCancelled {
		t.Fatalf("err = %v, want cancelled failure", err)
	}
	requireContains(t, out.String(), "Stopped by user")
}
