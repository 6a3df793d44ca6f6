package realtime

import (
	"time"

	"chat-relay/contract"
)

// Session is one live connection instance for a user. A user may hold
// several concurrently (multi-device); the registry accounts for all of them.
type Session struct {
	UserID       string
	ConnectionID string
	ConnectedAt  time.Time
	DeviceInfo   string
	Sink         contract.EventSink
}

// Closer is implemented by sinks that can be force-terminated, which the
// heartbeat sweep uses to evict dead transports.
type Closer interface {
	Close(code int, reason string)
}
