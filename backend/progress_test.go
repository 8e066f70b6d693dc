package backend

import (
	"testing"
	"time"
)

func TestParsePercent(t *testing.T) {
	tests := []struct {
		chunk string
		want  float64
		ok    bool
	}{
		{"[download]  42.5% of 3.21MiB at 1.00MiB/s ETA 00:02", 42.5, true},
		{"[download] 100% of 3.21MiB", 100, true},
		{"[download]   3.0% then  7.25%", 7.25, true},
		{"[download] 250%", 250, true},
		{"[youtube] Extracting URL", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.chunk, func(t *testing.T) {
			got, ok := ParsePercent(tt.chunk)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParsePercent(%q) = %v, %v, want %v, %v", tt.chunk, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseElapsed(t *testing.T) {
	chunk := "frame=  120 fps=30 q=-1.0 size=  512kB time=00:01:05.20 bitrate= 64.2kbits/s"
	got, ok := ParseElapsed(chunk)
	if !ok {
		t.Fatalf("ParseElapsed(%q) found no marker", chunk)
	}
	if got != 65*time.Second {
		t.Errorf("ParseElapsed = %v, want 65s", got)
	}

	if _, ok := ParseElapsed("Press [q] to stop"); ok {
		t.Error("expected no marker in unrelated line")
	}
}

func TestElapsedPercent(t *testing.T) {
	if got := elapsedPercent(30*time.Second, 99); got != 30 {
		t.Errorf("elapsedPercent(30s) = %v, want 30", got)
	}
	if got := elapsedPercent(2*time.Hour, 99); got != 99 {
		t.Errorf("elapsedPercent(2h) = %v, want 99", got)
	}
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster(2)

	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(ProgressEvent{Percent: 10, Label: "a"})
	b.Publish(ProgressEvent{Percent: 20, Label: "a"})
	// Buffer of 2 is full; this one is dropped rather than blocking.
	b.Publish(ProgressEvent{Percent: 30, Label: "a"})

	for _, ch := range []<-chan ProgressEvent{ch1, ch2} {
		first := <-ch
		second := <-ch
		if first.Percent != 10 || second.Percent != 20 {
			t.Errorf("got %v then %v, want 10 then 20", first.Percent, second.Percent)
		}
	}

	unsub1()
	unsub1()
	if _, ok := <-ch1; ok {
		t.Error("expected ch1 to be closed after unsubscribe")
	}

	b.Publish(ProgressEvent{Percent: 40})
	if ev := <-ch2; ev.Percent != 40 {
		t.Errorf("ch2 got %v, want 40", ev.Percent)
	}

	b.Close()
	if _, ok := <-ch2; ok {
		t.Error("expected ch2 to be closed after Close")
	}
	unsub2()
}
