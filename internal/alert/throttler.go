// Package alert collapses bursts of identical failures into one periodic notification.
package alert

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"mattermore-backend/internal/kv"
	"mattermore-backend/internal/notification"
)

// DefaultInterval is the minimum time between two posts of the same alert class.
const DefaultInterval = time.Hour

const keyPrefix = "alert_throttle:"

// Throttler posts at most one message per alert class per interval and counts
// the occurrences it swallowed in between.
type Throttler struct {
	store    kv.Store
	notifier notification.Notifier
	channel  notification.Channel
	interval time.Duration
	now      func() time.Time

	mu sync.Mutex
}

// NewThrottler creates a throttler that posts to the debug channel.
func NewThrottler(store kv.Store, notifier notification.Notifier, interval time.Duration) *Throttler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttler{
		store:    store,
		notifier: notifier,
		channel:  notification.ChannelDebug,
		interval: interval,
		now:      time.Now,
	}
}

// state is the persisted AlertThrottleState of one class.
type state struct {
	lastPosted time.Time
	suppressed int
}

// Notify posts message for class unless one was already posted within the interval,
// in which case the occurrence is only counted. It reports whether a message was posted.
func (t *Throttler) Notify(ctx context.Context, class, message string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := keyPrefix + class
	st := t.load(ctx, key)
	now := t.now()

	if now.Sub(st.lastPosted) <= t.interval {
		st.suppressed++
		log.Printf("Suppressed %q alert (%d since last post): %s", class, st.suppressed, message)
		t.save(ctx, key, st)
		return false
	}

	if st.suppressed > 0 {
		message = fmt.Sprintf("%s\nand %d error(s) not posted to this channel", message, st.suppressed)
	}
	t.notifier.Notify(ctx, t.channel, message)
	t.save(ctx, key, state{lastPosted: now})
	return true
}

func (t *Throttler) load(ctx context.Context, key string) state {
	raw, err := t.store.Get(ctx, key, "")
	if err != nil {
		log.Printf("Error reading alert state %q: %v", key, err)
		return state{}
	}
	stampStr, countStr, found := strings.Cut(raw, ",")
	if !found {
		return state{}
	}
	ms, err := strconv.ParseInt(stampStr, 10, 64)
	if err != nil {
		return state{}
	}
	count, err := strconv.Atoi(countStr)
	if err != nil || count < 0 {
		count = 0
	}
	return state{lastPosted: time.UnixMilli(ms), suppressed: count}
}

func (t *Throttler) save(ctx context.Context, key string, st state) {
	raw := fmt.Sprintf("%d,%d", st.lastPosted.UnixMilli(), st.suppressed)
	if err := t.store.Set(ctx, key, raw); err != nil {
		log.Printf("Error saving alert state %q: %v", key, err)
	}
}
