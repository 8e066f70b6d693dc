package backend

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a failed job for callers that render outcomes.
type ErrorKind string

const (
	KindExtraction     ErrorKind = "extraction"
	KindParse          ErrorKind = "parse"
	KindNetwork        ErrorKind = "network"
	KindDownloadFailed ErrorKind = "download_failed"
	KindOutputNotFound ErrorKind = "output_not_found"
	KindCancelled      ErrorKind = "cancelled"
	KindEncodeFailed   ErrorKind = "encode_failed"
	KindIO             ErrorKind = "io"
	KindBusy           ErrorKind = "busy"
	KindInvalidRequest ErrorKind = "invalid_request"
)

// Sentinels for errors.Is matching against a *JobError of the same kind.
var (
	ErrExtraction     = errors.New("extraction failed")
	ErrParse          = errors.New("malformed extractor output")
	ErrNetwork        = errors.New("network error")
	ErrDownloadFailed = errors.New("download failed")
	ErrOutputNotFound = errors.New("downloaded file not found")
	ErrCancelled      = errors.New("stopped by user")
	ErrEncodeFailed   = errors.New("encoding failed")
	ErrIO             = errors.New("filesystem error")
	ErrBusy           = errors.New("another download is already in progress")
	ErrInvalidRequest = errors.New("invalid request")
)

var kindSentinels = map[ErrorKind]error{
	KindExtraction:     ErrExtraction,
	KindParse:          ErrParse,
	KindNetwork:        ErrNetwork,
	KindDownloadFailed: ErrDownloadFailed,
	KindOutputNotFound: ErrOutputNotFound,
	KindCancelled:      ErrCancelled,
	KindEncodeFailed:   ErrEncodeFailed,
	KindIO:             ErrIO,
	KindBusy:           ErrBusy,
	KindInvalidRequest: ErrInvalidRequest,
}

// JobError is the error type returned by every pipeline step.
// Stderr holds the tail of the subprocess diagnostics when one was involved.
type JobError struct {
	Kind    ErrorKind
	Op      string
	Message string
	Stderr  string
	Err     error
}

func (e *JobError) Error() string {
	msg := e.Message
	if msg == "" {
		if e.Err != nil {
			msg = e.Err.Error()
		} else if s, ok := kindSentinels[e.Kind]; ok {
			msg = s.Error()
		}
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	return msg
}

func (e *JobError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this error's kind.
func (e *JobError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

func newJobError(kind ErrorKind, op, message string, err error) *JobError {
	return &JobError{Kind: kind, Op: op, Message: message, Err: err}
}

func cancelledError(op string) *JobError {
	return &JobError{Kind: KindCancelled, Op: op, Message: ErrCancelled.Error()}
}

// ErrorKindOf extracts the kind from err, defaulting to KindIO for foreign errors.
func ErrorKindOf(err error) ErrorKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return KindIO
}

// UserMessage renders err for display, appending the last stderr line if any.
func UserMessage(err error) string {
	var je *JobError
	if !errors.As(err, &je) {
		return err.Error()
	}
	if je.Kind == KindCancelled {
		return ErrCancelled.Error()
	}
	msg := je.Error()
	if line := lastLine(je.Stderr); line != "" && !strings.Contains(msg, line) {
		msg = fmt.Sprintf("%s (%s)", msg, line)
	}
	return msg
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
