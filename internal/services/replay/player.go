package replay

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	MinSpeed = 0.1
	MaxSpeed = 100.0
)

// Player auto-advances the replay on a ticker. Ticks never overlap: each
// tick runs step to completion before the next one is read.
type Player struct {
	mu     sync.Mutex
	step   func() bool
	base   time.Duration
	speed  float64
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	gen    uint64
}

// NewPlayer creates a paused player. step performs one advance and returns
// false at the end of data. base is the tick interval at speed 1.
func NewPlayer(step func() bool, base time.Duration, logger *zap.Logger) *Player {
	if logger == nil {
		logger = zap.NewNop()
	}
	if base <= 0 {
		base = time.Second
	}
	return &Player{step: step, base: base, speed: 1, logger: logger}
}

func clampSpeed(s float64) float64 {
	if s < MinSpeed {
		return MinSpeed
	}
	if s > MaxSpeed {
		return MaxSpeed
	}
	return s
}

// Play starts (or restarts) playback at speed.
func (p *Player) Play(speed float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = clampSpeed(speed)
	p.stopLocked()
	p.startLocked()
}

// Pause stops playback and waits for an in-flight tick to finish.
// It must not be called from inside step.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// SetSpeed changes the speed, replacing the ticker when playing.
// It returns the clamped speed.
func (p *Player) SetSpeed(speed float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = clampSpeed(speed)
	if p.cancel != nil {
		p.stopLocked()
		p.startLocked()
	}
	return p.speed
}

// Speed returns the current speed.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Playing reports whether the ticker runs.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Player) interval() time.Duration {
	d := time.Duration(float64(p.base) / p.speed)
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

func (p *Player) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.gen++
	p.cancel, p.done = cancel, done

	interval := p.interval()
	p.logger.Debug("playback started", zap.Duration("interval", interval), zap.Float64("speed", p.speed))
	go p.run(ctx, p.gen, interval, done)
}

func (p *Player) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel, p.done = nil, nil
	p.logger.Debug("playback paused")
}

func (p *Player) run(ctx context.Context, gen uint64, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if !p.step() {
				// done must close before finished takes the lock: Pause may hold it
				go p.finished(gen)
				return
			}
		}
	}
}

// finished clears the running state when the loop stops on its own.
// A newer generation means Play or Pause already took over.
func (p *Player) finished(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel, p.done = nil, nil
	p.logger.Info("playback reached end of data")
}
