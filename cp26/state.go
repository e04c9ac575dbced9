package cp26

import "time"

// ChannelMode is the driver's belief about how the module currently
// interprets the shared byte channel. It is belief, not ground truth: the
// interpreter flag persists on the device across software resets, so a
// prior session can leave the channel in a state this process has never
// observed. The zero value is ModeUnknown and a Probe is required before
// the belief can be trusted.
type ChannelMode int

const (
	ModeUnknown ChannelMode = iota
	// ModePassthrough relays bytes opaquely between the radio link and the
	// serial pins. This is the module's factory default.
	ModePassthrough
	// ModeCommand parses channel bytes as AT commands addressed to the
	// module itself.
	ModeCommand
)

func (m ChannelMode) String() string {
	switch m {
	case ModePassthrough:
		return "passthrough"
	case ModeCommand:
		return "command"
	default:
		return "unknown"
	}
}

// LinkState is the observed state of the radio link, maintained from
// unsolicited notifications and transport lifecycle signals.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkAdvertising
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkAdvertising:
		return "advertising"
	case LinkConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// State is a point-in-time snapshot of the driver's tracked module state.
type State struct {
	Mode     ChannelMode
	Link     LinkState
	PeerAddr string
	// PendingRestart is set when a changed setting only takes effect after
	// a power cycle, and cleared once a reset has been issued.
	PendingRestart bool
	LowPower       bool
}

// Event is one link state change, delivered on the Events feed.
type Event struct {
	Link     LinkState
	PeerAddr string
	Time     time.Time
}
