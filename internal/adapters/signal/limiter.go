package signal

import (
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/domain"
	"golang.org/x/time/rate"
)

// ChatLimiter caps chat and hand-raise traffic per user. Every joined
// connection of a user holds a reference; the user's bucket is dropped only
// when the last one leaves, so reconnecting one socket cannot refill it.
type ChatLimiter struct {
	mu      sync.Mutex
	entries map[domain.UserID]*chatEntry
	every   rate.Limit
	burst   int
	now     func() time.Time
}

type chatEntry struct {
	limiter *rate.Limiter
	refs    int
}

// NewChatLimiter allows limit events per window with bursts of up to limit.
// Returns nil, meaning unlimited, when limit or window is not positive.
func NewChatLimiter(limit int, window time.Duration) *ChatLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	return &ChatLimiter{
		entries: make(map[domain.UserID]*chatEntry),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		now:     time.Now,
	}
}

// Acquire takes a reference on uid's bucket, creating it on first use.
func (l *ChatLimiter) Acquire(uid domain.UserID) {
	if l == nil || uid == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[uid]
	if !ok {
		e = &chatEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.entries[uid] = e
	}
	e.refs++
}

// Release drops a reference; the bucket goes away with the last one.
func (l *ChatLimiter) Release(uid domain.UserID) {
	if l == nil || uid == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[uid]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(l.entries, uid)
	}
}

// Allow spends one token from uid's bucket. Users without a reference are
// not joined and are rejected further down.
func (l *ChatLimiter) Allow(uid domain.UserID) bool {
	if l == nil || uid == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[uid]
	if !ok {
		return true
	}
	return e.limiter.AllowN(l.now(), 1)
}

func (l *ChatLimiter) holders(uid domain.UserID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[uid]; ok {
		return e.refs
	}
	return 0
}
