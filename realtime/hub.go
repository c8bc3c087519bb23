package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

// GrantVerifier checks that a connection holds a valid grant for a channel.
type GrantVerifier interface {
	VerifyGrant(socketID, channelName, auth string) error
}

const writeTimeout = 5 * time.Second

// Hub bridges broker channels onto websocket connections. One connection
// subscribes to exactly one private channel; the broker subscription lives
// no longer than the socket, so closing the desktop view leaves nothing
// orphaned.
type Hub struct {
	broker   Broker
	verifier GrantVerifier
}

// NewHub creates a new Hub.
func NewHub(broker Broker, verifier GrantVerifier) *Hub {
	return &Hub{broker: broker, verifier: verifier}
}

// Serve upgrades the request to a websocket and forwards channel events
// until either side closes. The grant is verified before the upgrade, so an
// unauthorized subscriber never receives a single frame.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, socketID, channelName, auth string) error {
	if err := h.verifier.VerifyGrant(socketID, channelName, auth); err != nil {
		return err
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "hub teardown")

	sub, err := h.broker.Subscribe(r.Context(), channelName)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return err
	}
	defer sub.Close()

	// No client frames are expected on this socket; CloseRead gives us a
	// context that ends when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	log.Ctx(r.Context()).Debug().Str("channel", channelName).Str("socket_id", socketID).
		Msg("channel subscription established")

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return nil
		case event, ok := <-sub.Events():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "channel closed")
				return nil
			}
			if err := h.writeEvent(ctx, conn, event); err != nil {
				return err
			}
		}
	}
}

func (h *Hub) writeEvent(ctx context.Context, conn *websocket.Conn, event Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	return wsjson.Write(writeCtx, conn, event)
}
