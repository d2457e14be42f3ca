// Package notice holds the single ephemeral message a widget shows for
// recoverable failures.
package notice

import (
	"sync"
	"time"
)

// DefaultTTL is how long a notice stays visible.
const DefaultTTL = 3 * time.Second

// Board shows at most one notice at a time. A newer notice replaces the
// current one and restarts the display window.
type Board struct {
	mu       sync.Mutex
	ttl      time.Duration
	text     string
	gen      uint64
	timer    *time.Timer
	onChange func(text string)
	stopped  bool
}

// NewBoard returns a Board whose notices clear after ttl. onChange, when set,
// is called with the new text after every show and clear, outside the lock.
func NewBoard(ttl time.Duration, onChange func(text string)) *Board {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Board{ttl: ttl, onChange: onChange}
}

// Show displays text until the window elapses or another notice arrives.
func (b *Board) Show(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.gen++
	gen := b.gen
	b.text = text
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.ttl, func() { b.expire(gen) })
	b.mu.Unlock()

	b.changed(text)
}

// Current returns the visible notice, or "".
func (b *Board) Current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Stop clears the board and cancels the pending expiry.
func (b *Board) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.text = ""
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Board) expire(gen uint64) {
	b.mu.Lock()
	if b.stopped || gen != b.gen {
		b.mu.Unlock()
		return
	}
	b.text = ""
	b.timer = nil
	b.mu.Unlock()

	b.changed("")
}

func (b *Board) changed(text string) {
	if b.onChange != nil {
		b.onChange(text)
	}
}
