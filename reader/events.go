package reader

// EventKind identifies what changed in a Handler.
type EventKind int

const (
	// EventSlots fires when a page turn has filled every slot.
	EventSlots EventKind = iota
	// EventBusy fires when a page turn is still waiting after BusyDelay.
	EventBusy
	// EventIdle follows EventBusy once the slow turn completes.
	EventIdle
	// EventSectionLoaded fires when a section finishes paginating.
	EventSectionLoaded
)

func (k EventKind) String() string {
	switch k {
	case EventSlots:
		return "slots"
	case EventBusy:
		return "busy"
	case EventIdle:
		return "idle"
	case EventSectionLoaded:
		return "section-loaded"
	default:
		return "unknown"
	}
}

// Event describes a state change. Section and Pages are set for
// EventSectionLoaded.
type Event struct {
	Kind    EventKind
	Section int
	Pages   int
}
