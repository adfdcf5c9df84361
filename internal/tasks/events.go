package tasks

// EventKind identifies what happened in the engine.
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventPushed        EventKind = "pushed"
	EventCleared       EventKind = "cleared"
	EventUpstreamError EventKind = "upstream_error"
	EventSinkError     EventKind = "sink_error"
	EventStopped       EventKind = "stopped"
)

// Event is an observability record emitted by the [PresenceEngine].
type Event struct {
	Kind    EventKind
	State   LoopState
	TrackID string // Track involved, if any
	Message string // Human-readable description
	Err     error  // Set for error kinds
}

// sendEvent delivers ev without blocking. A full or nil channel drops the event.
func sendEvent(events chan<- Event, ev Event) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}
