package relay

import (
	"errors"
	"fmt"
	"net/url"
)

// Reasons the lock controller gives for reporting to the relay.
const (
	ReasonMattermore  = "mattermore"
	ReasonBoot        = "boot"
	ReasonPanic       = "panic"
	ReasonState       = "state"
	ReasonChallenge   = "chal"
	ReasonDelayButton = "delaybutton"
)

var ErrMalformedEvent = errors.New("malformed doorkeeper event")

// Event is one report pushed by the lock controller, form-encoded as cmd=..&why=..&val=..
// Every field is kept so it can be relayed verbatim.
type Event map[string]string

func (e Event) Cmd() string    { return e["cmd"] }
func (e Event) Reason() string { return e["why"] }
func (e Event) Value() string  { return e["val"] }

// ParseEvent decodes a doorkeeper body. cmd, why and val must all be present.
func ParseEvent(body []byte) (Event, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev := make(Event, len(values))
	for k, v := range values {
		ev[k] = v[0]
	}
	for _, required := range []string{"cmd", "why", "val"} {
		if _, ok := ev[required]; !ok {
			return nil, fmt.Errorf("%w: missing %q", ErrMalformedEvent, required)
		}
	}
	return ev, nil
}
