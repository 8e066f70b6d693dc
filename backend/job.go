package backend

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
)

// MediaKind selects the audio or video pipeline.
type MediaKind string

const (
	KindAudio MediaKind = "audio"
	KindVideo MediaKind = "video"
)

// Variant is the output profile for video.
type Variant string

const (
	VariantNormal Variant = "normal"
	VariantDevice Variant = "device"
)

// ParseVariant maps user input onto a Variant. "ipod" is accepted as an alias.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return VariantNormal, nil
	case "device", "ipod":
		return VariantDevice, nil
	default:
		return "", fmt.Errorf("unknown variant %q: must be normal or device", s)
	}
}

// JobRequest describes one accepted download.
type JobRequest struct {
	URL            string    `json:"url"`
	Kind           MediaKind `json:"kind"`
	Variant        Variant   `json:"variant"`
	DestinationDir string    `json:"destinationDir"`
}

// JobResult is the terminal outcome reported across the boundary.
type JobResult struct {
	Success   bool      `json:"success"`
	File      string    `json:"file,omitempty"`
	Title     string    `json:"title,omitempty"`
	Artist    string    `json:"artist,omitempty"`
	Album     string    `json:"album,omitempty"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func failedResult(err error) JobResult {
	return JobResult{
		Success:   false,
		ErrorKind: ErrorKindOf(err),
		Error:     UserMessage(err),
	}
}

// StopAck acknowledges a stop request.
type StopAck struct {
	Stopped bool `json:"stopped"`
}

// jobToken is the per-job cancellation token. Cancel sets the flag and
// cancels the context every subprocess of the job was started with.
type jobToken struct {
	id        string
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func newJobToken(parent context.Context, id string) *jobToken {
	ctx, cancel := context.WithCancel(parent)
	return &jobToken{id: id, ctx: ctx, cancel: cancel}
}

func (t *jobToken) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports an explicit stop or a cancelled parent context.
func (t *jobToken) Cancelled() bool {
	return t.cancelled.Load() || t.ctx.Err() != nil
}
