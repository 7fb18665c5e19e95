package resource

// Handle is the guest-visible reference to a host object.
// Handle 0 is reserved and always invalid; the guest reads it as nil.
type Handle uint32

// EventType identifies a handle lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventRetained
	EventDropped
)

// Event represents a handle lifecycle event.
type Event struct {
	Value    any
	TypeName string
	Handle   Handle
	Type     EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by host objects that need cleanup
// once the guest can no longer reach them.
type Dropper interface {
	Drop()
}
