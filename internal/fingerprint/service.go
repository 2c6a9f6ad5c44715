package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"mattermore-backend/internal/door"
	"mattermore-backend/internal/model"
	"mattermore-backend/internal/notification"
	"mattermore-backend/internal/store"
)

var (
	ErrInvalidNote   = errors.New("missing or invalid fingerprint note")
	ErrDuplicateNote = errors.New("fingerprint note already in use")
	// ErrPendingNote is an ErrDuplicateNote whose holder has not been confirmed by the sensor yet.
	ErrPendingNote = fmt.Errorf("%w by a pending enrollment", ErrDuplicateNote)
	ErrNoFreeSlots   = errors.New("no free fingerprint slots left")
	ErrNotFound      = errors.New("fingerprint not found")
)

var notePattern = regexp.MustCompile(`^[\p{L}\p{N}_.\-]{1,32}$`)

// Sender delivers one signed command to the fingerprint sensor.
type Sender interface {
	Send(ctx context.Context, command, data string) (string, error)
}

// DoorOpener commands the lock controller.
type DoorOpener interface {
	Query(ctx context.Context, cmd door.Command, useCache bool) (door.State, error)
}

// Repository is the part of the relational store the state machine needs.
type Repository interface {
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	CreateFingerprint(ctx context.Context, fp *model.Fingerprint) error
	FindFingerprint(ctx context.Context, id int) (*model.Fingerprint, error)
	FindActiveFingerprint(ctx context.Context, id int) (*model.Fingerprint, error)
	FindFingerprintByNote(ctx context.Context, userID int64, note string) (*model.Fingerprint, error)
	ActivateFingerprint(ctx context.Context, id int) error
	DeleteFingerprint(ctx context.Context, id int) error
	ClearInactiveFingerprints(ctx context.Context) ([]int, error)
	ListFingerprints(ctx context.Context) ([]model.Fingerprint, error)
}

// Service keeps the sensor's template slots and the fingerprint records in step.
type Service struct {
	sensor   Sender
	repo     Repository
	door     DoorOpener
	notifier notification.Notifier
	now      func() time.Time

	// mu serializes slot allocation and every record mutation.
	mu sync.Mutex
}

// NewService creates the enrollment state machine.
func NewService(sensor Sender, repo Repository, opener DoorOpener, notifier notification.Notifier) *Service {
	return &Service{
		sensor:   sensor,
		repo:     repo,
		door:     opener,
		notifier: notifier,
		now:      time.Now,
	}
}

// NormalizeNote lower-cases a note and validates it.
func NormalizeNote(note string) (string, error) {
	note = strings.ToLower(strings.TrimSpace(note))
	if !notePattern.MatchString(note) {
		return "", ErrInvalidNote
	}
	return note, nil
}

// ListFreeSlots asks the sensor which slots are free, in ascending order.
func (s *Service) ListFreeSlots(ctx context.Context) ([]int, error) {
	reply, err := s.sensor.Send(ctx, "list", "")
	if err != nil {
		return nil, err
	}
	used, err := parseOccupancy(reply)
	if err != nil {
		return nil, err
	}
	return freeSlots(used), nil
}

// Enroll claims the lowest free slot for owner and starts enrollment on the sensor.
// The returned record stays pending until the sensor confirms through HandleEvent;
// a pending record is dropped by the next Enroll call of any user.
func (s *Service) Enroll(ctx context.Context, owner *model.User, note string) (*model.Fingerprint, error) {
	note, err := NormalizeNote(note)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.repo.FindFingerprintByNote(ctx, owner.ID, note)
	switch {
	case err == nil && !existing.Active:
		return nil, ErrPendingNote
	case err == nil:
		return nil, ErrDuplicateNote
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	s.collectPending(ctx)

	free, err := s.ListFreeSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list free slots: %w", err)
	}
	if len(free) == 0 {
		return nil, ErrNoFreeSlots
	}
	id := free[0]

	if _, err := s.sensor.Send(ctx, "enroll", strconv.Itoa(id)); err != nil {
		return nil, fmt.Errorf("failed to start enrollment of slot %d: %w", id, err)
	}

	fp := &model.Fingerprint{
		ID:         id,
		UserID:     owner.ID,
		Note:       note,
		EnrolledOn: s.now(),
		Active:     false,
		User:       *owner,
	}
	if err := s.repo.CreateFingerprint(ctx, fp); err != nil {
		return nil, err
	}

	log.Printf("Created inactive fingerprint %d for user %s with note %s", id, owner.Username, note)
	return fp, nil
}

// collectPending removes records of enrollments that never completed and frees their slots.
func (s *Service) collectPending(ctx context.Context) {
	ids, err := s.repo.ClearInactiveFingerprints(ctx)
	if err != nil {
		log.Printf("Error clearing pending fingerprints: %v", err)
		return
	}
	for _, id := range ids {
		log.Printf("Dropping pending fingerprint %d", id)
		if _, err := s.sensor.Send(ctx, "delete", strconv.Itoa(id)); err != nil {
			log.Printf("Error deleting pending fingerprint %d from sensor: %v", id, err)
		}
	}
}

// Delete asks the sensor to erase a fingerprint identified by note. Non-admins can
// only target their own fingerprints; admins may name another owner. The record is
// removed once the sensor confirms the deletion.
func (s *Service) Delete(ctx context.Context, requester *model.User, note, targetOwner string) (*model.Fingerprint, error) {
	note, err := NormalizeNote(note)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owner := requester
	targetOwner = strings.TrimPrefix(strings.TrimSpace(targetOwner), "@")
	if requester.Admin && targetOwner != "" && targetOwner != requester.Username {
		owner, err = s.repo.FindUserByUsername(ctx, targetOwner)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
	}

	fp, err := s.repo.FindFingerprintByNote(ctx, owner.ID, note)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if _, err := s.sensor.Send(ctx, "delete", strconv.Itoa(fp.ID)); err != nil {
		return nil, fmt.Errorf("failed to delete slot %d: %w", fp.ID, err)
	}
	log.Printf("Sent delete for fingerprint %d (%s of %s)", fp.ID, note, owner.Username)
	return fp, nil
}

// List returns fingerprint notes per username. Non-admins only see their own.
func (s *Service) List(ctx context.Context, requester *model.User) (map[string][]string, error) {
	fps, err := s.repo.ListFingerprints(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, fp := range fps {
		if !requester.Admin && fp.UserID != requester.ID {
			continue
		}
		out[fp.User.Username] = append(out[fp.User.Username], fp.Note)
	}
	return out, nil
}
