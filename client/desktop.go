package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"go.curalink.io/qrlogin/realtime"
)

// defaultRefreshSkew is how long before session expiry the desktop discards
// the displayed code and issues a fresh one, so the QR on screen is never
// moments from death when a user scans it.
const defaultRefreshSkew = 30 * time.Second

// resubscribeDelay spaces out reconnection attempts after a lost channel
// subscription, so a flapping server is not hammered in a tight loop.
const resubscribeDelay = time.Second

// LoginResult is the authenticated identity established by the handshake.
// The credential itself lives in the HTTP client's cookie jar.
type LoginResult struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Desktop drives the waiting side of the handshake: create a session,
// display its code, hold a private channel subscription, and exchange the
// confirmed session for a credential cookie. It refreshes the session and
// resubscribes before every expiry, tearing the previous subscription down
// first so no stale double-subscriptions accumulate.
type Desktop struct {
	baseURL     string
	httpClient  *http.Client
	refreshSkew time.Duration

	// onCode is invoked each time a new code should be rendered.
	onCode func(sessionID string, expiresAt time.Time)
}

// NewDesktop creates a Desktop client against the given base URL. The
// onCode callback receives every session code to display; it may be nil.
func NewDesktop(baseURL string, onCode func(sessionID string, expiresAt time.Time)) (*Desktop, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Desktop{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Jar: jar, Timeout: 15 * time.Second},
		refreshSkew: defaultRefreshSkew,
		onCode:      onCode,
	}, nil
}

// HTTPClient exposes the underlying client, whose jar holds the credential
// cookie after a successful Await.
func (d *Desktop) HTTPClient() *http.Client {
	return d.httpClient
}

// Await blocks until a mobile device completes the handshake, the context
// is canceled, or an unrecoverable error occurs. Session refresh and
// resubscription happen transparently for as long as it runs.
func (d *Desktop) Await(ctx context.Context) (*LoginResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, err := d.createSession(ctx)
		if err != nil {
			return nil, err
		}
		if d.onCode != nil {
			d.onCode(session.SessionID, session.ExpiresAt)
		}

		result, err := d.subscribeAndWait(ctx, session)
		if err == nil {
			return result, nil
		}
		switch {
		case errors.Is(err, errSessionRefresh):
			log.Debug().Str("session_id", session.SessionID).Msg("refreshing login session before expiry")
		case errors.Is(err, errResubscribe):
			select {
			case <-time.After(resubscribeDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		default:
			return nil, err
		}
	}
}

// errSessionRefresh signals that the displayed code approached expiry and a
// fresh session should replace it.
var errSessionRefresh = errors.New("session refresh due")

// errResubscribe signals that the channel subscription died under a live
// session; a fresh session and subscription should replace it after a
// short delay.
var errResubscribe = errors.New("channel subscription lost")

type sessionInfo struct {
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (d *Desktop) createSession(ctx context.Context) (*sessionInfo, error) {
	var session sessionInfo
	if err := d.postJSON(ctx, "/session", map[string]any{}, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

func (d *Desktop) subscribeAndWait(ctx context.Context, session *sessionInfo) (*LoginResult, error) {
	channelName := "private-" + session.SessionID
	socketID := uuid.NewString()

	auth, err := d.authorizeChannel(ctx, socketID, channelName)
	if err != nil {
		return nil, err
	}

	// The subscription never outlives the session it serves: the deadline
	// fires refreshSkew before expiry and the deferred close tears the
	// socket down on every exit path.
	deadline := session.ExpiresAt.Add(-d.refreshSkew)
	subCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, _, err := websocket.Dial(subCtx, d.wsURL(socketID, channelName, auth), nil)
	if err != nil {
		return nil, fmt.Errorf("channel subscribe: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		var event realtime.Event
		if err := wsjson.Read(subCtx, conn, &event); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if subCtx.Err() != nil {
				return nil, errSessionRefresh
			}
			// The socket died under a live session. The session may still be
			// confirmed by a mobile device we will never hear about, so
			// abandon it and resubscribe under a fresh one.
			log.Warn().Err(err).Str("session_id", session.SessionID).
				Msg("channel subscription lost, resubscribing")
			return nil, errResubscribe
		}

		if event.Name != realtime.EventLogin {
			continue
		}

		var data realtime.LoginEventData
		if err := json.Unmarshal(event.Data, &data); err != nil {
			log.Warn().Err(err).Msg("ignoring malformed login event")
			continue
		}

		// Complete exactly once; the broker is at-least-once and may
		// deliver duplicates.
		return d.completeLogin(ctx, session.SessionID, data.UserID)
	}
}

func (d *Desktop) authorizeChannel(ctx context.Context, socketID, channelName string) (string, error) {
	var resp struct {
		Auth string `json:"auth"`
	}
	err := d.postJSON(ctx, "/channel/auth", map[string]string{
		"socket_id":    socketID,
		"channel_name": channelName,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("channel auth: %w", err)
	}
	return resp.Auth, nil
}

func (d *Desktop) completeLogin(ctx context.Context, sessionID, userID string) (*LoginResult, error) {
	var result LoginResult
	err := d.postJSON(ctx, "/token", map[string]string{
		"session_id": sessionID,
		"user_id":    userID,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}
	return &result, nil
}

func (d *Desktop) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (d *Desktop) wsURL(socketID, channelName, auth string) string {
	wsBase := d.baseURL
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}

	query := url.Values{}
	query.Set("socket_id", socketID)
	query.Set("channel", channelName)
	query.Set("auth", auth)

	return wsBase + "/ws?" + query.Encode()
}
