package notification

import "context"

// Channel names a Mattermost channel the relay reports to.
type Channel string

const (
	// ChannelDoorkeeper is the public trail of who operated the door.
	ChannelDoorkeeper Channel = "doorkeeper"
	// ChannelDebug receives operational and security alerts for sysadmins.
	ChannelDebug Channel = "debug"
)

// Message is a single notification job.
type Message struct {
	Channel Channel
	Text    string
}

// Notifier accepts notifications. Delivery is best effort: failures are logged, never returned.
type Notifier interface {
	Notify(ctx context.Context, channel Channel, text string)
}
