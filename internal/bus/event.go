package bus

import "time"

// Event represents a domain event published on the bus. ChatID is zero for
// events that are not scoped to a single conversation (presence, socket state).
type Event struct {
	Kind      string
	ChatID    int64
	Timestamp time.Time
	Payload   any
}
