package connection

import "fmt"

// Status is the state of a channel, and of the bridge as a whole when derived
// from the main channel.
type Status int

const (
	StatusClosed Status = iota
	StatusConnecting
	StatusOpen
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusConnecting:
		return "connecting"
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Channel selects one of the two duplex connections.
type Channel int

const (
	// Main is the connection to the core's message bus.
	Main Channel = iota
	// Presentation is the connection to the port announced by the core.
	Presentation
)

func (c Channel) String() string {
	switch c {
	case Main:
		return "main"
	case Presentation:
		return "presentation"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}
