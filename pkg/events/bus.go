package events

import (
	"context"
	"sync"
	"time"
)

// DefaultCapacity bounds the backlog a slow subscriber can accumulate before
// progress coalescing starts.
const DefaultCapacity = 256

// Bus is a per-session ordered event stream with one subscriber. Publish
// never blocks: when the backlog reaches capacity the oldest StepProgress
// event is coalesced away, then a queued SessionStarted (recoverable as a
// synthetic replay on Subscribe). ModelUsage, AnalysisResult, Error, and
// Final are never dropped, even if that temporarily grows the backlog past
// capacity.
type Bus struct {
	mu        sync.Mutex
	sessionID string
	capacity  int
	queue     []Event
	seq       uint64
	started   bool
	startInfo SessionPayload
	terminal  bool
	coalesced int
	totals    UsageTotals
	notify    chan struct{}
	sub       *Subscription
}

// NewBus creates a bus for one session. capacity <= 0 selects
// DefaultCapacity.
func NewBus(sessionID string, capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		sessionID: sessionID,
		capacity:  capacity,
		notify:    make(chan struct{}, 1),
		totals:    UsageTotals{ByModel: make(map[string]int)},
	}
}

// SessionID returns the owning session id.
func (b *Bus) SessionID() string {
	return b.sessionID
}

// Publish appends an event with the next sequence number. Publishing after a
// terminal event is a no-op, which keeps the one-terminal-event guarantee
// even when late goroutines report progress during teardown.
func (b *Bus) Publish(kind Kind, step string, iteration int, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminal {
		return
	}

	b.seq++
	ev := Event{
		Seq:       b.seq,
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		SessionID: b.sessionID,
		Step:      step,
		Iteration: iteration,
		Payload:   payload,
	}

	switch kind {
	case KindSessionStarted:
		b.started = true
		if p, ok := payload.(SessionPayload); ok {
			b.startInfo = p
		}
	case KindModelUsage:
		if rec, ok := payload.(UsageRecord); ok {
			b.totals.InputTokens += rec.InputTokens
			b.totals.OutputTokens += rec.OutputTokens
			b.totals.Calls++
			b.totals.ByModel[rec.Model] += rec.InputTokens + rec.OutputTokens
		}
	}

	if kind.Terminal() {
		b.terminal = true
	}

	if len(b.queue) >= b.capacity {
		if !b.evictOldestProgress() {
			if kind == KindStepProgress {
				// Backlog is all must-keep events; the new progress event
				// is the only droppable one.
				b.coalesced++
				b.wake()
				return
			}
			// A queued SessionStarted may be displaced: Subscribe
			// resynthesizes it from the recorded start info.
			b.evictSessionStarted()
		}
	}

	b.queue = append(b.queue, ev)
	b.wake()
}

// evictOldestProgress removes the oldest StepProgress event from the queue.
func (b *Bus) evictOldestProgress() bool {
	for i, ev := range b.queue {
		if ev.Kind == KindStepProgress {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.coalesced++
			return true
		}
	}
	return false
}

// evictSessionStarted removes a queued SessionStarted event. The loss is
// recoverable because Subscribe synthesizes a replay from startInfo.
func (b *Bus) evictSessionStarted() bool {
	for i, ev := range b.queue {
		if ev.Kind == KindSessionStarted {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (b *Bus) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Coalesced returns how many StepProgress events were folded away.
func (b *Bus) Coalesced() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coalesced
}

// Terminated reports whether a terminal event has been published.
func (b *Bus) Terminated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.terminal
}

// Totals returns the accumulated model usage for this session.
func (b *Bus) Totals() UsageTotals {
	b.mu.Lock()
	defer b.mu.Unlock()
	byModel := make(map[string]int, len(b.totals.ByModel))
	for k, v := range b.totals.ByModel {
		byModel[k] = v
	}
	return UsageTotals{
		InputTokens:  b.totals.InputTokens,
		OutputTokens: b.totals.OutputTokens,
		Calls:        b.totals.Calls,
		ByModel:      byModel,
	}
}

// Subscription is a cursor over a bus, yielding events in order from the
// moment of subscription.
type Subscription struct {
	bus *Bus
}

// Subscribe attaches the single subscriber. A subscriber arriving after the
// session started receives a synthetic SessionStarted replay first so it can
// render state. Events published before subscription (other than the replay)
// are not redelivered.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sub == nil {
		b.sub = &Subscription{bus: b}
		if b.started && !b.queueHasSessionStarted() {
			replay := Event{
				Seq:       0, // synthetic; real events keep their numbering
				Kind:      KindSessionStarted,
				Timestamp: time.Now().UTC(),
				SessionID: b.sessionID,
				Payload: SessionPayload{
					Topic:      b.startInfo.Topic,
					ReportType: b.startInfo.ReportType,
					Replayed:   true,
				},
			}
			b.queue = append([]Event{replay}, b.queue...)
			b.wake()
		}
	}
	return b.sub
}

func (b *Bus) queueHasSessionStarted() bool {
	for _, ev := range b.queue {
		if ev.Kind == KindSessionStarted {
			return true
		}
	}
	return false
}

// Next blocks for the next event. ok is false when the stream has delivered
// its terminal event or ctx is done.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	for {
		s.bus.mu.Lock()
		if len(s.bus.queue) > 0 {
			ev := s.bus.queue[0]
			s.bus.queue = s.bus.queue[1:]
			s.bus.mu.Unlock()
			return ev, true
		}
		done := s.bus.terminal
		s.bus.mu.Unlock()

		if done {
			return Event{}, false
		}

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-s.bus.notify:
		}
	}
}

// Events pumps the subscription into a channel, closing it after the
// terminal event has been delivered or ctx is done.
func (s *Subscription) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			ev, ok := s.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Convenience publishers. Components report through these so event shapes
// stay consistent across the pipeline.

func (b *Bus) SessionStarted(topic, reportType string) {
	b.Publish(KindSessionStarted, "", 0, SessionPayload{Topic: topic, ReportType: reportType})
}

func (b *Bus) StepStarted(step string, iteration int, message string) {
	b.Publish(KindStepStarted, step, iteration, ProgressPayload{Status: "started", Message: message})
}

func (b *Bus) StepProgress(step string, iteration int, status, message string, details map[string]any) {
	b.Publish(KindStepProgress, step, iteration, ProgressPayload{Status: status, Message: message, Details: details})
}

func (b *Bus) StepCompleted(step string, iteration int, message string) {
	b.Publish(KindStepCompleted, step, iteration, ProgressPayload{Status: "completed", Message: message})
}

func (b *Bus) ModelUsage(rec UsageRecord) {
	b.Publish(KindModelUsage, "", 0, rec)
}

func (b *Bus) AnalysisResult(step string, iteration int, payload AnalysisPayload) {
	b.Publish(KindAnalysisResult, step, iteration, payload)
}

func (b *Bus) SectionGenerated(payload SectionPayload) {
	b.Publish(KindSectionGenerated, "write_sections", 0, payload)
}

func (b *Bus) Error(errType, message string) {
	b.Publish(KindError, "", 0, ErrorPayload{Type: errType, Message: message})
}

func (b *Bus) Final(payload FinalPayload) {
	b.Publish(KindFinal, "", 0, payload)
}
