package door

import (
	"errors"
	"strings"
)

// State is the door state reported by the lock controller.
type State string

const (
	StateLocked    State = "locked"
	StateOpen      State = "open"
	StateInBetween State = "inbetween"
	StateError     State = "error"
)

// Decode maps a raw lock controller reply onto a State.
// Every reply outside the known code table is StateError.
func Decode(reply string) State {
	switch reply {
	case "0":
		return StateLocked
	case "1":
		return StateOpen
	case "2":
		return StateInBetween
	default:
		return StateError
	}
}

// Command is an instruction understood by the lock controller.
type Command string

const (
	CommandOpen   Command = "open"
	CommandLock   Command = "lock"
	CommandStatus Command = "status"
)

// ErrUnknownCommand is returned for anything other than open, lock or status.
var ErrUnknownCommand = errors.New("command not in (open,lock,status)")

// ParseCommand validates a lock command name, case-insensitively.
func ParseCommand(s string) (Command, error) {
	switch c := Command(strings.ToLower(strings.TrimSpace(s))); c {
	case CommandOpen, CommandLock, CommandStatus:
		return c, nil
	default:
		return "", ErrUnknownCommand
	}
}
