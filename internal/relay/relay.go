// Package relay handles the reports the lock controller pushes on its own initiative.
package relay

import (
	"context"
	"fmt"
	"log"

	"mattermore-backend/internal/door"
	"mattermore-backend/internal/notification"
)

// KelderFailureClass is the alert class used when kelderapi cannot be reached.
const KelderFailureClass = "kelderapi relay failure"

// ActionTracker tells whether the door was recently commanded by software.
type ActionTracker interface {
	InElectronicActionPeriod(ctx context.Context) bool
}

// Alerter posts rate limited failure alerts.
type Alerter interface {
	Notify(ctx context.Context, class, message string) bool
}

// Relay turns doorkeeper events into chat notifications.
type Relay struct {
	forwarder Forwarder
	tracker   ActionTracker
	alerter   Alerter
	notifier  notification.Notifier
}

// New creates a relay. forwarder may be nil when kelderapi is not configured.
func New(forwarder Forwarder, tracker ActionTracker, alerter Alerter, notifier notification.Notifier) *Relay {
	return &Relay{forwarder: forwarder, tracker: tracker, alerter: alerter, notifier: notifier}
}

// Handle forwards ev and posts whatever it means to the channels.
func (r *Relay) Handle(ctx context.Context, ev Event) {
	if r.forwarder != nil {
		if err := r.forwarder.Forward(ctx, ev); err != nil {
			log.Printf("Error forwarding doorkeeper event to kelderapi: %v", err)
			r.alerter.Notify(ctx, KelderFailureClass,
				fmt.Sprintf("Posting `%v` to kelderapi failed\n```\n%v\n```", map[string]string(ev), err))
		}
	}

	msg, ok := r.describe(ctx, ev)
	if !ok {
		return
	}
	r.notifier.Notify(ctx, notification.ChannelDebug, msg)
}

// describe maps an event onto its debug channel message. ok is false for events
// that are not worth a message.
func (r *Relay) describe(ctx context.Context, ev Event) (msg string, ok bool) {
	switch ev.Reason() {
	case ReasonMattermore:
		if ev.Cmd() == string(door.CommandStatus) {
			return "", false
		}
		return fmt.Sprintf("%q command from Mattermost handled", ev.Cmd()), true
	case ReasonBoot:
		return "lockbot booted", true
	case ReasonPanic:
		return fmt.Sprintf("@sysadmin: the door panicked with reason %s", ev.Cmd()), true
	case ReasonState:
		state := door.Decode(ev.Value())
		if !r.tracker.InElectronicActionPeriod(ctx) {
			log.Printf("Door changed to %s outside the electronic action period", state)
			r.notifier.Notify(ctx, notification.ChannelDoorkeeper,
				fmt.Sprintf("The door is now %s (operated manually)", state))
		}
		return fmt.Sprintf("The door is now %s", state), true
	case ReasonChallenge:
		return "", false
	case ReasonDelayButton:
		return "Delayed door close button was pressed", true
	default:
		return fmt.Sprintf("Unhandled message type: %s,%s,%s", ev.Cmd(), ev.Reason(), ev.Value()), true
	}
}
