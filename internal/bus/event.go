package bus

import "time"

// Event is a domain event published on the bus. Kind is dot-namespaced
// ("engine.", "sync.", "connection.", "activity.") and subscribers filter
// on its prefix. Payload types are documented next to each kind constant.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
