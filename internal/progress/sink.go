package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codeguard/internal/redact"
)

// Sink receives analysis lifecycle events. Implementations must not block.
type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

type NoopSink struct{}

func (NoopSink) Emit(Event) {}

// ChannelSink forwards events to a buffered channel, dropping them when the
// reader falls behind.
type ChannelSink struct {
	ch      chan<- Event
	dropped atomic.Int64
}

func NewChannelSink(ch chan<- Event) *ChannelSink {
	return &ChannelSink{ch: ch}
}

func (s *ChannelSink) Emit(e Event) {
	if s == nil || s.ch == nil {
		return
	}
	stamp(&e)
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
}

// Dropped reports how many events the reader never saw.
func (s *ChannelSink) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// PlainSink writes one line per event, keyed by the file under analysis.
// Warning text is redacted before it is written.
type PlainSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewPlainSink(w io.Writer) *PlainSink {
	return &PlainSink{w: w}
}

func (s *PlainSink) Emit(e Event) {
	if s == nil || s.w == nil {
		return
	}
	stamp(&e)
	text := describe(e)
	if text == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, "[%s] %s: %s\n", e.At.Format("15:04:05"), subject(e.FileName), text)
}

func stamp(e *Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
}

func subject(fileName string) string {
	if strings.TrimSpace(fileName) == "" {
		return "-"
	}
	return fileName
}

func describe(e Event) string {
	switch e.Type {
	case EventAnalysisStarted:
		return "analyzing"
	case EventRulesMatched:
		return fmt.Sprintf("rules found %s (%s)", plural(e.FindingCount, "finding"), elapsed(e.DurationMS))
	case EventAIStarted:
		return "ai review via " + subject(e.Provider)
	case EventAIFinished:
		return fmt.Sprintf("ai review found %s (%s)", plural(e.FindingCount, "finding"), elapsed(e.DurationMS))
	case EventAnalysisWarning:
		msg := strings.TrimSpace(e.Message)
		if msg == "" {
			msg = strings.TrimSpace(e.Error)
		}
		return "warning: " + redact.Text(msg)
	case EventAnalysisFinished:
		var b strings.Builder
		fmt.Fprintf(&b, "score %d/100 with %s (%s)", e.Score, plural(e.FindingCount, "finding"), elapsed(e.DurationMS))
		if e.AnalysisID != "" {
			b.WriteString(" id=" + e.AnalysisID)
		}
		if msg := strings.TrimSpace(e.Error); msg != "" {
			b.WriteString(" not persisted: " + redact.Text(msg))
		}
		return b.String()
	default:
		return ""
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func elapsed(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).String()
}
