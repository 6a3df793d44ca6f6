package workers

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/delivery"
	"chat-relay/domain/event"
	"chat-relay/presence"
	"chat-relay/realtime"
	"chat-relay/repositories"
	"chat-relay/services"
	"chat-relay/typing"
)

// broadcastTransition resolves the user behind a presence transition and
// pushes the status change to everyone else. A vanished user still gets
// broadcast with a bare id so peers drop them from their rosters.
func broadcastTransition(log *slog.Logger, users repositories.IUserRepository, router *delivery.Router, tr presence.Transition) {
	u, err := users.Get(tr.UserID)
	if err != nil {
		log.Debug("User lookup failed for status broadcast", "user", tr.UserID, "err", err)
		u = repositories.User{ID: tr.UserID}
	}
	router.Broadcast(event.UserStatusChanged, services.StatusPayload(u, tr.Status, tr), tr.UserID)
}

// TypingSweepWorker periodically expires stale typing indicators and emits
// the synthetic stop the lost client-side stop event owed the recipient.
type TypingSweepWorker struct {
	log      *slog.Logger
	typing   *typing.Coordinator
	router   *delivery.Router
	interval time.Duration
}

func NewTypingSweepWorker(log *slog.Logger, coordinator *typing.Coordinator, router *delivery.Router, interval time.Duration) *TypingSweepWorker {
	return &TypingSweepWorker{log: log, typing: coordinator, router: router, interval: interval}
}

func (w *TypingSweepWorker) Run(ctx context.Context) error {
	w.log.Info("Starting typing sweep worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, expired := range w.typing.SweepExpired() {
				w.router.Deliver(event.UserStoppedTyping, expired.RecipientID, event.TypingPayload{
					UserID:         expired.UserID,
					ConversationID: expired.ConversationID,
					Timestamp:      time.Now().UnixMilli(),
				})
			}
		}
	}
}

// HeartbeatSweepWorker evicts users whose transport died without a clean
// disconnect: sessions are dropped and closed, presence goes offline, the
// offline stamp is persisted and everyone else is told. One bad user never
// stops the sweep.
type HeartbeatSweepWorker struct {
	log      *slog.Logger
	registry *realtime.Registry
	tracker  *presence.Tracker
	typing   *typing.Coordinator
	users    repositories.IUserRepository
	router   *delivery.Router
	interval time.Duration
}

func NewHeartbeatSweepWorker(
	log *slog.Logger,
	registry *realtime.Registry,
	tracker *presence.Tracker,
	coordinator *typing.Coordinator,
	users repositories.IUserRepository,
	router *delivery.Router,
	interval time.Duration,
) *HeartbeatSweepWorker {
	return &HeartbeatSweepWorker{
		log:      log,
		registry: registry,
		tracker:  tracker,
		typing:   coordinator,
		users:    users,
		router:   router,
		interval: interval,
	}
}

func (w *HeartbeatSweepWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat sweep worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, tr := range w.tracker.SweepHeartbeats(w.registry.LiveUsers()) {
				w.evict(tr)
			}
		}
	}
}

func (w *HeartbeatSweepWorker) evict(tr presence.Transition) {
	dropped := w.registry.DropUser(tr.UserID)
	for _, session := range dropped {
		if closer, ok := session.Sink.(realtime.Closer); ok {
			closer.Close(websocket.CloseGoingAway, "heartbeat timeout")
		}
	}
	w.typing.PurgeUser(tr.UserID)
	if err := w.users.UpdateLastSeen(tr.UserID, tr.LastSeen); err != nil {
		w.log.Warn("Last seen update failed", "user", tr.UserID, "err", err)
	}
	w.log.Info("Evicted stale user", "user", tr.UserID, "sessions", len(dropped))
	broadcastTransition(w.log, w.users, w.router, tr)
}

// IdleSweepWorker degrades connected users through online -> away -> offline
// from activity recency and broadcasts every change it produces.
type IdleSweepWorker struct {
	log      *slog.Logger
	registry *realtime.Registry
	tracker  *presence.Tracker
	users    repositories.IUserRepository
	router   *delivery.Router
	interval time.Duration
}

func NewIdleSweepWorker(
	log *slog.Logger,
	registry *realtime.Registry,
	tracker *presence.Tracker,
	users repositories.IUserRepository,
	router *delivery.Router,
	interval time.Duration,
) *IdleSweepWorker {
	return &IdleSweepWorker{
		log:      log,
		registry: registry,
		tracker:  tracker,
		users:    users,
		router:   router,
		interval: interval,
	}
}

func (w *IdleSweepWorker) Run(ctx context.Context) error {
	w.log.Info("Starting idle sweep worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, tr := range w.tracker.SweepIdle(w.registry.LiveUsers()) {
				broadcastTransition(w.log, w.users, w.router, tr)
			}
		}
	}
}
