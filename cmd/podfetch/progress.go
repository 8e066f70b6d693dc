package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"podfetch/backend"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// kindLabel turns an error kind or history status into a display label,
// "download_failed" becoming "Download Failed".
func kindLabel(s string) string {
	return cases.Title(language.Und).String(strings.ReplaceAll(s, "_", " "))
}

// progressRenderer draws progress events as a bar on terminals and as
// status lines everywhere else.
type progressRenderer struct {
	out        io.Writer
	bar        *progressbar.ProgressBar
	lastStatus string
}

func newProgressRenderer(out io.Writer) *progressRenderer {
	r := &progressRenderer{out: out}
	if isTerminal(out) {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
	}
	return r
}

func (r *progressRenderer) render(ev backend.ProgressEvent) {
	label := ev.Label
	if ev.Status != "" {
		label = ev.Status
	}
	if r.bar != nil {
		r.bar.Describe(label)
		_ = r.bar.Set(int(ev.Percent))
		return
	}
	if ev.Status != "" && ev.Status != r.lastStatus {
		fmt.Fprintf(r.out, "%3.0f%% %s\n", ev.Percent, ev.Status)
		r.lastStatus = ev.Status
	}
}

func (r *progressRenderer) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// runJob runs fn while rendering the engine's progress to out. Ctrl-C
// stops the active job instead of killing the CLI outright.
func runJob[T any](ctx context.Context, orch *backend.Orchestrator, out io.Writer, fn func(context.Context) T) T {
	events, unsubscribe := orch.Subscribe()
	renderer := newProgressRenderer(out)
	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		for ev := range events {
			renderer.render(ev)
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	done := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				orch.StopActiveJob()
			}
		case <-done:
		}
	}()

	result := fn(ctx)
	close(done)

	unsubscribe()
	<-rendered
	renderer.finish()
	return result
}
