package api

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mattermore-backend/internal/door"
	"mattermore-backend/internal/model"
	"mattermore-backend/internal/notification"
	"mattermore-backend/internal/relay"
	"mattermore-backend/internal/store"
)

// DoorController commands the lock and reports the state it saw.
type DoorController interface {
	Query(ctx context.Context, cmd door.Command, useCache bool) (door.State, error)
}

// FingerprintService is the enrollment state machine behind /fingerprint and /fingerprint_cb.
type FingerprintService interface {
	Enroll(ctx context.Context, owner *model.User, note string) (*model.Fingerprint, error)
	Delete(ctx context.Context, requester *model.User, note, targetOwner string) (*model.Fingerprint, error)
	List(ctx context.Context, requester *model.User) (map[string][]string, error)
	HandleEvent(ctx context.Context, kind, value string)
}

// EventRelay handles doorkeeper events pushed by the lock controller.
type EventRelay interface {
	Handle(ctx context.Context, ev relay.Event)
}

// Deps groups everything the handlers need.
type Deps struct {
	Store        store.Store
	Door         DoorController
	Fingerprints FingerprintService
	Relay        EventRelay
	Notifier     notification.Notifier
	UpKey        string
	PublicURL    string
	Webpush      *webpush.Options
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store        store.Store
	door         DoorController
	fingerprints FingerprintService
	relay        EventRelay
	notifier     notification.Notifier
	upKey        string
	publicURL    string
	webpush      *webpush.Options
	newDoorkey   func() string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		store:        deps.Store,
		door:         deps.Door,
		fingerprints: deps.Fingerprints,
		relay:        deps.Relay,
		notifier:     deps.Notifier,
		upKey:        deps.UpKey,
		publicURL:    deps.PublicURL,
		webpush:      deps.Webpush,
		newDoorkey:   uuid.NewString,
	}
}

// mattermostReply answers a slash command. Ephemeral replies are only shown to the caller.
func mattermostReply(c *gin.Context, text string, ephemeral bool) {
	responseType := "in_channel"
	if ephemeral {
		responseType = "ephemeral"
	}
	c.JSON(http.StatusOK, gin.H{"response_type": responseType, "text": text})
}

// peripheralContext detaches a handler's context from the client connection:
// a command that reached the lock must still be recorded when the caller goes away.
func peripheralContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}
