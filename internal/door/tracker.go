package door

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"mattermore-backend/internal/kv"
)

const (
	// StatusCacheTTL is how long a status observation answers cached queries.
	StatusCacheTTL = 10 * time.Second
	// ElectronicActionPeriod covers the controller's 10 second delayed close plus margin.
	ElectronicActionPeriod = 12 * time.Second

	keyLastElectronic = "doorkeeper_last_electronic"
	keyLastStatus     = "doorkeeper_last_status_update"
)

// Sender delivers one signed command to the lock controller.
type Sender interface {
	Send(ctx context.Context, command, data string) (string, error)
}

// Tracker fronts the lock controller. It caches status reads and remembers when
// the door was last commanded by software. It is the only writer of the cached status.
type Tracker struct {
	lock  Sender
	store kv.Store
	now   func() time.Time

	// mu serializes every exchange with the controller together with the
	// cache and marker writes that accompany it.
	mu sync.Mutex
}

// NewTracker creates a tracker around the lock controller channel.
func NewTracker(lock Sender, store kv.Store) *Tracker {
	return &Tracker{lock: lock, store: store, now: time.Now}
}

// Query sends cmd to the controller and returns the door state it reports.
// A status query with useCache set is answered from an observation younger than
// StatusCacheTTL without contacting the controller. Transport failures yield StateError.
func (t *Tracker) Query(ctx context.Context, cmd Command, useCache bool) (State, error) {
	if _, err := ParseCommand(string(cmd)); err != nil {
		return StateError, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if useCache && cmd == CommandStatus {
		if state, ok := t.cachedStatus(ctx); ok {
			return state, nil
		}
	}

	if cmd != CommandStatus {
		// Marked before sending: a command that errors may still have reached the door.
		t.markElectronicAction(ctx)
	}

	state := StateError
	if reply, err := t.lock.Send(ctx, string(cmd), ""); err == nil {
		state = Decode(reply)
		if state == StateError {
			log.Printf("Lock controller replied %q to %q", reply, cmd)
		}
	}

	// Errors are cached too, so a dead controller is not hammered by status polls.
	observation := fmt.Sprintf("%d,%s", t.now().UnixMilli(), state)
	if err := t.store.Set(ctx, keyLastStatus, observation); err != nil {
		log.Printf("Error caching door status: %v", err)
	}

	return state, nil
}

// InElectronicActionPeriod reports whether the door was commanded by software
// within the last ElectronicActionPeriod. State changes inside this window are expected.
func (t *Tracker) InElectronicActionPeriod(ctx context.Context) bool {
	raw, err := t.store.Get(ctx, keyLastElectronic, "0")
	if err != nil {
		log.Printf("Error reading electronic action marker: %v", err)
		return false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("Ignoring malformed electronic action marker %q", raw)
		return false
	}
	return t.now().Before(time.UnixMilli(ms).Add(ElectronicActionPeriod))
}

func (t *Tracker) markElectronicAction(ctx context.Context) {
	stamp := strconv.FormatInt(t.now().UnixMilli(), 10)
	if err := t.store.Set(ctx, keyLastElectronic, stamp); err != nil {
		log.Printf("Error marking electronic door action: %v", err)
	}
}

func (t *Tracker) cachedStatus(ctx context.Context) (State, bool) {
	raw, err := t.store.Get(ctx, keyLastStatus, "")
	if err != nil {
		log.Printf("Error reading cached door status: %v", err)
		return "", false
	}
	stampStr, stateStr, found := strings.Cut(raw, ",")
	if !found {
		return "", false
	}
	ms, err := strconv.ParseInt(stampStr, 10, 64)
	if err != nil {
		return "", false
	}
	if t.now().Sub(time.UnixMilli(ms)) >= StatusCacheTTL {
		return "", false
	}
	switch state := State(stateStr); state {
	case StateLocked, StateOpen, StateInBetween, StateError:
		return state, true
	default:
		return "", false
	}
}
