package api

// Bus channel names. These are fixed strings shared by every component;
// reply channels are derived per request by the bus.
const (
	// EventsChannel carries lifecycle events (Started/Stopped/Deleted).
	EventsChannel = "instance.events"

	// StatusChannel carries InstanceStatusChanged events.
	StatusChannel = "status.events"

	// ConfigurationChannel carries configuration lifecycle events.
	ConfigurationChannel = "configuration.events"

	commandChannelPrefix = "instance.commands."
)

// CommandChannel returns the command ingress channel for a platform kind,
// e.g. "instance.commands.process".
func CommandChannel(platform PlatformKind) string {
	return commandChannelPrefix + string(platform)
}
