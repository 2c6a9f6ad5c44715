package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"mattermore-backend/internal/door"
	"mattermore-backend/internal/notification"
	"mattermore-backend/internal/store"
)

// Event kinds reported by the sensor through its callback.
const (
	EventEnrolled    = "enrolled"
	EventDetected    = "detected"
	EventDeleted     = "deleted"
	EventMissingHMAC = "missing_hmac"
	EventTooLong     = "too_long"
	EventInvalidHMAC = "invalid_hmac"
	EventReplay      = "replay"
)

var securityAlerts = map[string]string{
	EventMissingHMAC: "@sysadmin Fingerprint sensor received message without HMAC signature",
	EventTooLong:     "@sysadmin Fingerprint sensor received message longer than 128 bytes",
	EventInvalidHMAC: "@sysadmin Fingerprint sensor received message with invalid HMAC signature",
	EventReplay:      "@sysadmin Fingerprint sensor received message with incorrect timestamp (possible replay attack)",
}

const invalidCallbackAlert = "@sysadmin Received invalid fingerprint callback message"

// ParseEvent splits a callback body of the form "<kind>\n<value>".
func ParseEvent(body string) (kind, value string, ok bool) {
	lines := strings.Split(strings.TrimRight(body, "\r\n"), "\n")
	if len(lines) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(lines[0]), strings.TrimSpace(lines[1]), true
}

// HandleEvent applies one sensor callback. It never fails towards the sensor:
// anything unexpected is reported to the debug channel and dropped.
// Repeated deliveries are harmless, except that a repeated detection opens the door again.
func (s *Service) HandleEvent(ctx context.Context, kind, value string) {
	if msg, ok := securityAlerts[kind]; ok {
		log.Printf("Fingerprint sensor reported %s", kind)
		s.notifier.Notify(ctx, notification.ChannelDebug, msg)
		return
	}

	switch kind {
	case EventEnrolled, EventDetected, EventDeleted:
	default:
		s.rejectEvent(ctx, kind, value)
		return
	}

	id, err := strconv.Atoi(value)
	if err != nil {
		s.rejectEvent(ctx, kind, value)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case EventEnrolled:
		err = s.onEnrolled(ctx, id)
	case EventDetected:
		err = s.onDetected(ctx, id)
	case EventDeleted:
		err = s.onDeleted(ctx, id)
	}
	if err != nil {
		log.Printf("Error handling %s callback for fingerprint %d: %v", kind, id, err)
	}
}

func (s *Service) rejectEvent(ctx context.Context, kind, value string) {
	log.Printf("Invalid fingerprint callback %q %q", kind, value)
	s.notifier.Notify(ctx, notification.ChannelDebug, invalidCallbackAlert)
}

func (s *Service) onEnrolled(ctx context.Context, id int) error {
	fp, err := s.repo.FindFingerprint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// The pending record was already collected by a later enrollment.
		log.Printf("Ignoring enrollment confirmation for unknown fingerprint %d", id)
		return nil
	}
	if err != nil {
		return err
	}
	if fp.Active {
		return nil
	}
	if err := s.repo.ActivateFingerprint(ctx, id); err != nil {
		return err
	}

	log.Printf("[ACK] activated fingerprint %d for %d", fp.ID, fp.UserID)
	s.notifier.Notify(ctx, notification.ChannelDebug,
		fmt.Sprintf("Activated fingerprint %s for user %s", fp.Note, fp.User.Username))
	return nil
}

func (s *Service) onDetected(ctx context.Context, id int) error {
	fp, err := s.repo.FindActiveFingerprint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("Ignoring detection of fingerprint %d: not active", id)
		return nil
	}
	if err != nil {
		return err
	}

	log.Printf("Detected fingerprint %d", fp.ID)
	before, err := s.door.Query(ctx, door.CommandOpen, false)
	if err != nil {
		return err
	}

	username := fp.User.Username
	s.notifier.Notify(ctx, notification.ChannelDebug,
		fmt.Sprintf("Detected fingerprint #%d (user '%s')", fp.ID, username))
	s.notifier.Notify(ctx, notification.ChannelDoorkeeper,
		fmt.Sprintf("door was %s, %s tried to open the door with the fingerprint sensor", before, username))
	return nil
}

func (s *Service) onDeleted(ctx context.Context, id int) error {
	fp, err := s.repo.FindFingerprint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.DeleteFingerprint(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	log.Printf("[ACK] deleted fingerprint '%s' for '%d'", fp.Note, fp.UserID)
	s.notifier.Notify(ctx, notification.ChannelDebug,
		fmt.Sprintf("Deleted fingerprint '%s' for user '%s'", fp.Note, fp.User.Username))
	return nil
}
