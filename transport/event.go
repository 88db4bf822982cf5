package transport

import (
	"github.com/chrisnestrud/PlayPalace11/packet"
)

// EventKind identifies what a connection task is reporting.
type EventKind int

const (
	// EventOpened follows a sent authorize packet on a secured socket.
	EventOpened EventKind = iota
	// EventPacket carries one validated incoming packet.
	EventPacket
	// EventActivity carries a human-readable notice, such as a dropped packet.
	EventActivity
	// EventClosed is the last event of every connection, emitted exactly once.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventOpened:
		return "opened"
	case EventPacket:
		return "packet"
	case EventActivity:
		return "activity"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is sent from a connection task to its owner.
type Event struct {
	ConnID  uint64
	Kind    EventKind
	Packet  packet.Packet
	Message string
	// Err is the terminal error on EventClosed; nil for a clean close.
	Err error
	// Requested is true on EventClosed when the close was asked for locally.
	Requested bool
}
