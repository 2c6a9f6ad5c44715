package protocol

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// maxReplyBytes caps how much of a peripheral reply is read.
const maxReplyBytes = 4096

// Peripheral describes one signed HTTP endpoint: the lock controller or the fingerprint sensor.
type Peripheral struct {
	Name    string
	URL     string
	Secret  string
	Timeout time.Duration
	// Terminated peripherals expect every frame to end with the separator.
	Terminated bool
}

// TransportError reports that a command could not be exchanged with a peripheral.
// The command may or may not have reached it.
type TransportError struct {
	Peripheral string
	Command    string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Peripheral, e.Command, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Channel sends signed commands to a single peripheral. Each call is one delivery attempt.
type Channel struct {
	peripheral Peripheral
	client     *http.Client
	now        func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

// NewChannel creates a channel for the given peripheral.
func NewChannel(p Peripheral) *Channel {
	if p.Timeout <= 0 || p.Timeout > 5*time.Second {
		p.Timeout = 5 * time.Second
	}
	return &Channel{
		peripheral: p,
		client:     &http.Client{Timeout: p.Timeout},
		now:        time.Now,
	}
}

// Name returns the peripheral name, used in logs.
func (c *Channel) Name() string {
	return c.peripheral.Name
}

// Send signs and posts command (with optional data) and returns the trimmed reply body.
// Failures to reach the peripheral, timeouts and non-200 replies are returned as *TransportError.
// The call is bounded by the peripheral timeout only: cancelling ctx does not abort it.
func (c *Channel) Send(ctx context.Context, command, data string) (string, error) {
	payload := c.frame(command, data)
	signature := Sign(c.peripheral.Secret, []byte(payload))

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.peripheral.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.peripheral.URL, strings.NewReader(payload))
	if err != nil {
		return "", c.transportError(command, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set(HeaderName, signature)
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", c.transportError(command, fmt.Errorf("http request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return "", c.transportError(command, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", c.transportError(command, fmt.Errorf("received non-200 status code: %d", resp.StatusCode))
	}

	return strings.TrimSpace(string(body)), nil
}

// frame builds "ts;command[;data]" plus a trailing separator for terminated peripherals.
func (c *Channel) frame(command, data string) string {
	parts := []string{strconv.FormatInt(c.nextStamp(), 10), command}
	if data != "" {
		parts = append(parts, data)
	}
	payload := strings.Join(parts, ";")
	if c.peripheral.Terminated {
		payload += ";"
	}
	return payload
}

// nextStamp returns the current time in milliseconds, bumped past the previous
// stamp when the clock has not advanced, so peripherals never see a repeat.
func (c *Channel) nextStamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.now().UnixMilli()
	if stamp <= c.lastStamp {
		stamp = c.lastStamp + 1
	}
	c.lastStamp = stamp
	return stamp
}

func (c *Channel) transportError(command string, err error) error {
	log.Printf("Error sending %q to %s: %v", command, c.peripheral.Name, err)
	return &TransportError{Peripheral: c.peripheral.Name, Command: command, Err: err}
}
