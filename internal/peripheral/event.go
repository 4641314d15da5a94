package peripheral

// EventKind identifies a radio event delivered to the peripheral.
type EventKind int

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventWrite
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Event is one radio event. Data is only set for EventWrite.
type Event struct {
	Kind EventKind
	Data []byte
}
