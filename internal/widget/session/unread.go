package session

import (
	"strconv"
	"sync/atomic"
)

// UnreadCounter counts bot replies that arrived while the panel was hidden.
type UnreadCounter struct {
	n        atomic.Int64
	onChange func(count int)
}

// NewUnreadCounter returns a counter. onChange, when set, is called with the
// new count after every change.
func NewUnreadCounter(onChange func(count int)) *UnreadCounter {
	return &UnreadCounter{onChange: onChange}
}

// OnBotReplyWhileHidden implements BotReplyHook.
func (u *UnreadCounter) OnBotReplyWhileHidden() {
	n := u.n.Add(1)
	if u.onChange != nil {
		u.onChange(int(n))
	}
}

// Reset clears the count, typically when the panel opens.
func (u *UnreadCounter) Reset() {
	if u.n.Swap(0) != 0 && u.onChange != nil {
		u.onChange(0)
	}
}

// Count returns the number of unread replies.
func (u *UnreadCounter) Count() int {
	return int(u.n.Load())
}

// Badge renders the count the way the launcher button shows it.
func (u *UnreadCounter) Badge() string {
	switch n := u.Count(); {
	case n <= 0:
		return ""
	case n > 9:
		return "9+"
	default:
		return strconv.Itoa(n)
	}
}
