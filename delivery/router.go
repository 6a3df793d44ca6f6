// Package delivery pushes events to the live sessions of a recipient.
// Durability is not its concern: an offline recipient is a silent no-op and
// the store remains the source of truth for catch-up on reconnect.
package delivery

import (
	"log/slog"

	"chat-relay/contract"
)

// Router fans one logical event out to every live session of a user
// (multi-device), or to everyone for presence broadcasts. It introduces no
// queueing, retries, or reordering of its own.
type Router struct {
	log      *slog.Logger
	registry contract.ISessionRegistry
}

func NewRouter(log *slog.Logger, registry contract.ISessionRegistry) *Router {
	return &Router{log: log, registry: registry}
}

// Deliver pushes payload to all live sessions of userID and returns how many
// sessions accepted it. Zero sessions means the recipient is offline; the
// caller relies on the store for durability, not on this path.
func (r *Router) Deliver(eventName, userID string, payload any) int {
	sinks := r.registry.Sinks(userID)
	if len(sinks) == 0 {
		return 0
	}
	delivered := 0
	for _, sink := range sinks {
		if err := sink.Push(eventName, payload); err != nil {
			r.log.Debug("Push failed", "event", eventName, "user", userID, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}

// Broadcast pushes payload to every live session in the process except those
// of exceptUserID. A failed push to one session never stops the loop.
func (r *Router) Broadcast(eventName string, payload any, exceptUserID string) int {
	delivered := 0
	for _, sink := range r.registry.AllSinks(exceptUserID) {
		if err := sink.Push(eventName, payload); err != nil {
			r.log.Debug("Broadcast push failed", "event", eventName, "err", err)
			continue
		}
		delivered++
	}
	return delivered
}
