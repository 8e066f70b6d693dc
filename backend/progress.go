package backend

import (
	"regexp"
	"strconv"
	"sync"
	"time"
)

// ProgressEvent is the normalized progress update delivered to subscribers.
// Percent is not guaranteed to be monotonic within a job.
type ProgressEvent struct {
	JobID   string  `json:"jobId,omitempty"`
	Percent float64 `json:"percent"`
	Label   string  `json:"label"`
	Status  string  `json:"status,omitempty"`
}

// ProgressFunc receives progress events from a pipeline step.
type ProgressFunc func(ProgressEvent)

var (
	percentPattern = regexp.MustCompile(`(\d+\.?\d*)%`)
	elapsedPattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+)`)
)

// ParsePercent returns the last "<digits>[.<digits>]%" value in chunk.
// Values are not range checked.
func ParsePercent(chunk string) (float64, bool) {
	matches := percentPattern.FindAllStringSubmatch(chunk, -1)
	if len(matches) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(matches[len(matches)-1][1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseElapsed returns the last encoder "time=HH:MM:SS" marker in chunk.
func ParseElapsed(chunk string) (time.Duration, bool) {
	matches := elapsedPattern.FindAllStringSubmatch(chunk, -1)
	if len(matches) == 0 {
		return 0, false
	}
	m := matches[len(matches)-1]
	hours, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	secs, _ := strconv.Atoi(m[3])
	return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second, true
}

// elapsedPercent maps elapsed encoder time onto a percentage capped below
// completion. One second counts as one percent.
func elapsedPercent(elapsed time.Duration, ceiling float64) float64 {
	secs := elapsed.Seconds()
	if secs > ceiling {
		return ceiling
	}
	return secs
}

// Broadcaster fans progress events out to subscribers. Publishing never
// blocks; a subscriber whose buffer is full misses the event.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan ProgressEvent
	next   int
	buffer int
	closed bool
}

// NewBroadcaster returns a broadcaster whose subscriber channels hold buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broadcaster{subs: make(map[int]chan ProgressEvent), buffer: buffer}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; calling it more than once is safe.
func (b *Broadcaster) Subscribe() (<-chan ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan ProgressEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers ev to every subscriber that has room for it.
func (b *Broadcaster) Publish(ev ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
