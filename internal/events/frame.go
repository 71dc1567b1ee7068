package events

import (
	"sync"
	"time"

	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/strategy"
	"github.com/vadiminshakov/barreplay/internal/services/trader"
)

// Frame is the state pushed to viewers after every clock change or command.
type Frame struct {
	Seq        uint64                  `json:"seq"`
	SessionID  string                  `json:"session_id"`
	Timestamp  time.Time               `json:"ts"`
	Symbol     string                  `json:"symbol"`
	Timeframe  domain.Timeframe        `json:"timeframe"`
	Transition string                  `json:"transition"`
	Clock      int64                   `json:"clock"`
	Index      int                     `json:"index"`
	Latest     *domain.Candle          `json:"latest,omitempty"`
	Revealed   []domain.Candle         `json:"revealed,omitempty"`
	Indicators map[string]domain.Point `json:"indicators,omitempty"`
	Account    trader.Account          `json:"account"`
	Signal     *strategy.Signal        `json:"signal,omitempty"`
	Playing    bool                    `json:"playing"`
	Speed      float64                 `json:"speed"`
}

// Broadcaster fans out frames to all subscribers via buffered channels.
type Broadcaster struct {
	mu      sync.RWMutex
	subs    map[chan Frame]struct{}
	buffer  int
	dropped uint64
	last    *Frame
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &Broadcaster{
		subs:   make(map[chan Frame]struct{}),
		buffer: buffer,
	}
}

// Publish sends the frame to all subscribers, dropping it for a slow reader.
func (b *Broadcaster) Publish(f Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = &f
	for ch := range b.subs {
		select {
		case ch <- f:
		default:
			b.dropped++
		}
	}
}

// Last returns the most recently published frame.
func (b *Broadcaster) Last() (Frame, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return Frame{}, false
	}
	return *b.last, true
}

// Dropped returns how many deliveries were skipped because a buffer was full.
func (b *Broadcaster) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dropped
}

// Subscribe returns a channel that receives frames until Unsubscribe is called.
func (b *Broadcaster) Subscribe() chan Frame {
	ch := make(chan Frame, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *Broadcaster) Unsubscribe(ch chan Frame) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
