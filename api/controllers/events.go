package controllers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tablyhq/tably-backend/api/middleware"
	"github.com/tablyhq/tably-backend/api/responses"
	"github.com/tablyhq/tably-backend/internal/events"
	pkgerrors "github.com/tablyhq/tably-backend/pkg/errors"
	"github.com/tablyhq/tably-backend/pkg/logger"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// Origin policy is enforced by the CORS layer; the credential check happens
// before the upgrade.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SessionEventsWS streams the caller's session events over a websocket.
func SessionEventsWS(broker events.Broker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.SessionClaimsFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session credential required"))
			return
		}
		serveEventStream(w, r, broker, logg, events.SessionTopic(claims.SessionID))
	}
}

// StaffEventsWS streams a store's events for staff dashboards.
func StaffEventsWS(broker events.Broker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := middleware.StaffStoreFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store scope missing"))
			return
		}
		serveEventStream(w, r, broker, logg, events.StoreTopic(storeID))
	}
}

func serveEventStream(w http.ResponseWriter, r *http.Request, broker events.Broker, logg *logger.Logger, topic string) {
	ctx := r.Context()

	sub, err := broker.Subscribe(ctx, topic)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "event stream unavailable"))
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		_ = sub.Close()
		if logg != nil {
			logg.Warn(ctx, "websocket upgrade failed")
		}
		return
	}

	defer func() {
		_ = sub.Close()
		_ = conn.Close()
	}()

	// Reader goroutine drains client frames so close frames and pongs are
	// processed; any read error ends the stream.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				if logg != nil {
					logg.Warn(ctx, "websocket write failed; dropping subscriber")
				}
				return
			}
		}
	}
}
