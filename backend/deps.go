package backend

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	VersionArg  string
}

// DependencyStatus reports the availability of a requirement.
type DependencyStatus struct {
	Name        string    `json:"name"`
	Command     string    `json:"command"`
	Description string    `json:"description"`
	Optional    bool      `json:"optional"`
	Available   bool      `json:"available"`
	Path        string    `json:"path,omitempty"`
	Version     string    `json:"version,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// DependencyReport is the result of CheckDependencies.
type DependencyReport struct {
	Ytdlp   bool               `json:"ytdlp"`
	FFmpeg  bool               `json:"ffmpeg"`
	Details []DependencyStatus `json:"details"`
}

// dependencyCache caches probe results per command so polling shells
// don't spawn a process on every call.
type dependencyCache struct {
	mu      sync.RWMutex
	entries map[string]DependencyStatus
	ttl     time.Duration
}

var globalDependencyCache = &dependencyCache{
	entries: make(map[string]DependencyStatus),
	ttl:     time.Minute,
}

func (c *dependencyCache) get(command string) (DependencyStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.entries[command]
	if !ok || time.Since(st.CheckedAt) >= c.ttl {
		return DependencyStatus{}, false
	}
	return st, true
}

func (c *dependencyCache) put(st DependencyStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[st.Command] = st
}

func (c *dependencyCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]DependencyStatus)
}

// Requirements lists the binaries cfg points at.
func Requirements(cfg *Config) []Requirement {
	return []Requirement{
		{Name: "yt-dlp", Command: cfg.ExtractorPath, Description: "metadata and media download", VersionArg: "--version"},
		{Name: "ffmpeg", Command: ResolveEncoderPath(cfg.EncoderPath), Description: "AAC/H.264 encoding and tagging", VersionArg: "-version"},
	}
}

// CheckBinaries evaluates the requirements concurrently, in input order.
func CheckBinaries(ctx context.Context, requirements []Requirement) []DependencyStatus {
	results := make([]DependencyStatus, len(requirements))

	var wg sync.WaitGroup
	for i, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		if cached, ok := globalDependencyCache.get(cmd); ok && cmd != "" {
			cached.Name, cached.Description, cached.Optional = req.Name, req.Description, req.Optional
			results[i] = cached
			continue
		}

		wg.Add(1)
		go func(i int, req Requirement) {
			defer wg.Done()
			st := checkBinary(ctx, req)
			if st.Command != "" {
				globalDependencyCache.put(st)
			}
			results[i] = st
		}(i, req)
	}
	wg.Wait()
	return results
}

func checkBinary(ctx context.Context, req Requirement) DependencyStatus {
	cmd := strings.TrimSpace(req.Command)
	st := DependencyStatus{
		Name:        req.Name,
		Command:     cmd,
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
		CheckedAt:   time.Now(),
	}
	if cmd == "" {
		st.Detail = "command not configured"
		return st
	}
	path, err := exec.LookPath(cmd)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", cmd)
		return st
	}
	st.Path = path
	st.Available = true

	if req.VersionArg != "" {
		version, err := probeVersion(ctx, path, req.VersionArg)
		if err != nil {
			st.Detail = err.Error()
		} else {
			st.Version = version
		}
	}
	return st
}

// CheckDependencies reports whether the extractor and encoder can be run.
func CheckDependencies(ctx context.Context, cfg *Config) DependencyReport {
	statuses := CheckBinaries(ctx, Requirements(cfg))
	report := DependencyReport{Details: statuses}
	for _, st := range statuses {
		switch st.Name {
		case "yt-dlp":
			report.Ytdlp = st.Available
		case "ffmpeg":
			report.FFmpeg = st.Available
		}
	}
	return report
}

// probeVersion runs "<path> <arg>" and returns the first line of stdout.
func probeVersion(ctx context.Context, path, arg string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	proc, err := StartProcess(ctx, ProcessSpec{
		Name:          path,
		Path:          path,
		Args:          []string{arg},
		CaptureStdout: true,
	})
	if err != nil {
		return "", fmt.Errorf("%s not executable: %w", path, err)
	}
	if err := proc.Wait(); err != nil {
		return "", fmt.Errorf("%s %s exited with code %d", path, arg, proc.ExitCode())
	}
	line, _, _ := strings.Cut(string(bytes.TrimSpace(proc.Stdout())), "\n")
	return strings.TrimSpace(line), nil
}
