// Package socket terminates websocket connections: authentication at
// upgrade, session registration, the inbound read loop, and the disconnect
// teardown. Everything durable happens one layer down in services.
package socket

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-relay/contract"
	"chat-relay/delivery"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/presence"
	"chat-relay/realtime"
	"chat-relay/repositories"
	"chat-relay/services"
	"chat-relay/typing"
)

// Controller wires one websocket endpoint to the rest of the system.
// One instance serves all connections; per-connection state lives in the
// Session and Connection it creates at upgrade time.
type Controller struct {
	log      *slog.Logger
	verifier contract.TokenVerifier
	users    repositories.IUserRepository
	chat     *services.ChatService
	roster   *services.RosterService
	registry *realtime.Registry
	tracker  *presence.Tracker
	typing   *typing.Coordinator
	router   *delivery.Router

	upgrader websocket.Upgrader
	validate *validator.Validate
}

func NewController(
	log *slog.Logger,
	verifier contract.TokenVerifier,
	users repositories.IUserRepository,
	chat *services.ChatService,
	roster *services.RosterService,
	registry *realtime.Registry,
	tracker *presence.Tracker,
	typingCoordinator *typing.Coordinator,
	router *delivery.Router,
) *Controller {
	return &Controller{
		log:      log,
		verifier: verifier,
		users:    users,
		chat:     chat,
		roster:   roster,
		registry: registry,
		tracker:  tracker,
		typing:   typingCoordinator,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		validate: validator.New(),
	}
}

// ServeWS authenticates the upgrade request, promotes it to a websocket and
// runs the session until the transport dies or the client leaves.
func (c *Controller) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := c.verifier.Verify(bearerToken(r))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	// The token may outlive the account; a vanished user cannot connect.
	user, err := c.users.Get(userID)
	if err != nil {
		http.Error(w, errors.ErrUserNotFound.Error(), http.StatusUnauthorized)
		return
	}

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.log.Warn("Websocket upgrade failed", "user", userID, "err", err)
		return
	}

	conn := realtime.NewConnection(uuid.NewString(), ws)
	conn.Start()

	session := &realtime.Session{
		UserID:       user.ID,
		ConnectionID: conn.ID(),
		ConnectedAt:  time.Now(),
		DeviceInfo:   r.UserAgent(),
		Sink:         conn,
	}
	first := c.registry.Add(session)
	transition := c.tracker.Connected(user.ID)
	c.log.Info("Session opened", "user", user.ID, "connection", conn.ID(), "first", first)

	// Only the first device flips the user online for everyone else; every
	// device gets its own roster snapshot regardless.
	if first {
		c.router.Broadcast(event.UserStatusChanged,
			services.StatusPayload(user, domain.StatusOnline, transition), user.ID)
	}
	if roster, err := c.roster.Snapshot(user.ID); err != nil {
		c.log.Error("Roster snapshot failed", "user", user.ID, "err", err)
	} else if err := conn.Push(event.AllUsersStatus, roster); err != nil {
		c.log.Warn("Roster push failed", "user", user.ID, "err", err)
	}

	c.readLoop(session, conn, user)
	c.disconnect(session, conn, user)
}

func (c *Controller) readLoop(session *realtime.Session, conn *realtime.Connection, user repositories.User) {
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if realtime.IsMalformed(err) {
				c.log.Debug("Dropping malformed frame", "user", user.ID, "err", err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("Read failed", "user", user.ID, "connection", session.ConnectionID, "err", err)
			}
			return
		}
		c.dispatch(session, user, env)
	}
}

// disconnect tears one session down. Presence only degrades when the last
// device left; typing indicators are purged without synthetic stops.
func (c *Controller) disconnect(session *realtime.Session, conn *realtime.Connection, user repositories.User) {
	conn.Close(websocket.CloseNormalClosure, "session closed")
	last := c.registry.Remove(user.ID, session.ConnectionID)
	c.log.Info("Session closed", "user", user.ID, "connection", session.ConnectionID, "last", last)
	if !last {
		return
	}

	c.typing.PurgeUser(user.ID)
	transition := c.tracker.Disconnected(user.ID)
	if err := c.users.UpdateLastSeen(user.ID, transition.LastSeen); err != nil {
		c.log.Warn("Last seen update failed", "user", user.ID, "err", err)
	}
	c.router.Broadcast(event.UserStatusChanged,
		services.StatusPayload(user, domain.StatusOffline, transition), user.ID)
}

// bearerToken accepts the credential either as a query parameter (browser
// websocket clients cannot set headers) or as a standard Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ")
}
