package echo

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/middleware"
	"go.curalink.io/qrlogin/realtime"
	"go.curalink.io/qrlogin/services"
)

// CookieConfig describes the credential cookie the completion handler sets.
type CookieConfig struct {
	Name   string
	Secure bool
}

// HandshakeAPI exposes the QR login handshake over HTTP and websocket.
type HandshakeAPI struct {
	sessions *services.SessionService
	tokens   *services.TokenService
	channels *services.ChannelAuthorizer
	auth     *services.AuthService
	users    domain.UserRepository
	hub      *realtime.Hub
	cookie   CookieConfig
}

// NewHandshakeAPI initializes the handshake API.
func NewHandshakeAPI(
	sessions *services.SessionService,
	tokens *services.TokenService,
	channels *services.ChannelAuthorizer,
	auth *services.AuthService,
	users domain.UserRepository,
	hub *realtime.Hub,
	cookie CookieConfig,
) *HandshakeAPI {
	return &HandshakeAPI{
		sessions: sessions,
		tokens:   tokens,
		channels: channels,
		auth:     auth,
		users:    users,
		hub:      hub,
		cookie:   cookie,
	}
}

// RegisterRoutes registers the handshake routes.
func (a *HandshakeAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/session", a.CreateSessionHandler)
	e.POST("/session/validate", a.ValidateSessionHandler)
	e.POST("/session/confirm", a.ConfirmSessionHandler)
	e.POST("/token", a.IssueTokenHandler)
	e.GET("/token/verify", a.VerifyTokenHandler)
	e.POST("/login", a.LoginHandler)
	e.POST("/channel/auth", a.ChannelAuthHandler)
	e.GET("/ws", a.SubscribeHandler)

	// User records are high-sensitivity: staff roles only, and only with a
	// credential established through the QR step-up, not plain password login.
	authn := middleware.Authenticate(a.tokens, a.cookie.Name)
	staff := middleware.RequireRoles(true, domain.RoleDoctor, domain.RoleSysAdmin)
	e.GET("/users/:id", a.GetUserHandler, authn, staff)
}

// CreateSessionHandler issues a fresh login session; the session id becomes
// the QR payload on the desktop.
func (a *HandshakeAPI) CreateSessionHandler(c echo.Context) error {
	session, err := a.sessions.CreateSession(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to create login session")
		return c.JSON(http.StatusServiceUnavailable, serrors.NewServerError("could not create session, retry"))
	}

	return c.JSON(http.StatusOK, CreateSessionResponse{
		SessionID: session.Code,
		ExpiresAt: session.ExpiresAt,
	})
}

// ValidateSessionHandler lets the mobile app check a scanned code before
// prompting the user for local authentication.
func (a *HandshakeAPI) ValidateSessionHandler(c echo.Context) error {
	var req ValidateSessionRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("session_id is required"))
	}

	session, err := a.sessions.Validate(c.Request().Context(), req.SessionID)
	if err != nil {
		return a.sessionError(c, err)
	}

	return c.JSON(http.StatusOK, ValidateSessionResponse{
		SessionID: session.Code,
		Status:    string(session.Status),
		ExpiresAt: session.ExpiresAt,
	})
}

// ConfirmSessionHandler receives the mobile device's confirmation after its
// local authentication succeeded. Distinct status codes let the device show
// an actionable message.
func (a *HandshakeAPI) ConfirmSessionHandler(c echo.Context) error {
	var req ConfirmSessionRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("session_id and user_id are required"))
	}

	err := a.sessions.Confirm(c.Request().Context(), req.SessionID, req.UserID)
	if err != nil {
		if errors.Is(err, serrors.ErrUserNotFound) {
			return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("unknown user"))
		}
		return a.sessionError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{})
}

// IssueTokenHandler is the desktop completion exchange: the consumed
// session plus the bound user identity become a credential cookie. Minting
// and attachment happen in this single handler invocation; on any failure
// no cookie is set. Safe to replay for duplicate event delivery.
func (a *HandshakeAPI) IssueTokenHandler(c echo.Context) error {
	var req IssueTokenRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("session_id and user_id are required"))
	}

	ctx := c.Request().Context()

	session, err := a.sessions.Consumed(ctx, req.SessionID)
	if err != nil || session.BoundUserID != req.UserID {
		return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("no confirmed session for this user"))
	}

	user, err := a.users.GetUserByID(ctx, req.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("identity lookup failed during completion")
		return c.JSON(http.StatusBadGateway, serrors.NewServerError("failed to establish session"))
	}

	signedToken, _, err := a.tokens.Issue(ctx, user, true)
	if err != nil {
		log.Error().Err(err).Msg("credential issuance failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("failed to establish session"))
	}

	a.setCredentialCookie(c, signedToken)

	return c.JSON(http.StatusOK, IssueTokenResponse{UserID: user.ID, Role: user.Role})
}

// VerifyTokenHandler reports the identity behind the current credential.
// Role-gated pages call it on render.
func (a *HandshakeAPI) VerifyTokenHandler(c echo.Context) error {
	tokenValue := credentialFromRequest(c, a.cookie.Name)
	if tokenValue == "" {
		return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("missing credential"))
	}

	credential, err := a.tokens.Verify(c.Request().Context(), tokenValue)
	if err != nil {
		if errors.Is(err, serrors.ErrTokenExpired) {
			return c.JSON(http.StatusUnauthorized, serrors.NewExpired("credential expired"))
		}
		return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("invalid credential"))
	}

	return c.JSON(http.StatusOK, VerifyTokenResponse{
		UserID:      credential.UserID,
		DisplayName: credential.DisplayName,
		Role:        credential.Role,
		Elevated:    credential.Elevated,
		ExpiresAt:   credential.ExpiresAt,
	})
}

// LoginHandler is the password login used by the mobile device to establish
// its own, non-elevated session.
func (a *HandshakeAPI) LoginHandler(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil || req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("email and password are required"))
	}

	ctx := c.Request().Context()

	user, err := a.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, serrors.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, serrors.NewUnauthenticated("invalid credentials"))
		}
		log.Error().Err(err).Msg("login failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("login failed"))
	}

	signedToken, _, err := a.tokens.Issue(ctx, user, false)
	if err != nil {
		log.Error().Err(err).Msg("credential issuance failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("login failed"))
	}

	a.setCredentialCookie(c, signedToken)

	return c.JSON(http.StatusOK, LoginResponse{UserID: user.ID, Role: user.Role})
}

// ChannelAuthHandler issues a grant for a private channel subscription.
func (a *HandshakeAPI) ChannelAuthHandler(c echo.Context) error {
	var req ChannelAuthRequest
	if err := c.Bind(&req); err != nil || req.SocketID == "" || req.ChannelName == "" {
		return c.JSON(http.StatusBadRequest, serrors.NewInvalidRequest("socket_id and channel_name are required"))
	}

	grant, err := a.channels.Authorize(req.SocketID, req.ChannelName)
	if err != nil {
		return c.JSON(http.StatusForbidden, serrors.NewForbidden("channel subscription rejected"))
	}

	return c.JSON(http.StatusOK, ChannelAuthResponse{Auth: grant.Auth})
}

// SubscribeHandler upgrades to a websocket bound to one private channel.
func (a *HandshakeAPI) SubscribeHandler(c echo.Context) error {
	socketID := c.QueryParam("socket_id")
	channelName := c.QueryParam("channel")
	auth := c.QueryParam("auth")

	err := a.hub.Serve(c.Response(), c.Request(), socketID, channelName, auth)
	if err != nil {
		if errors.Is(err, serrors.ErrChannelUnauthorized) {
			return c.JSON(http.StatusForbidden, serrors.NewForbidden("channel subscription rejected"))
		}
		// The connection is gone or mid-upgrade; nothing useful to write.
		log.Debug().Err(err).Str("channel", channelName).Msg("websocket session ended with error")
	}

	return nil
}

// GetUserHandler is the identity lookup for authenticated staff.
func (a *HandshakeAPI) GetUserHandler(c echo.Context) error {
	user, err := a.users.GetUserByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, serrors.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, serrors.NewNotFound("unknown user"))
		}
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("user lookup failed"))
	}

	return c.JSON(http.StatusOK, UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Role:        user.Role,
	})
}

// sessionError maps handshake errors onto their distinct status codes.
// Unknown and expired-then-deleted sessions both surface as not_found; the
// body never reveals whether a session ever existed.
func (a *HandshakeAPI) sessionError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, serrors.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, serrors.NewNotFound("session not found"))
	case errors.Is(err, serrors.ErrSessionExpired):
		return c.JSON(http.StatusGone, serrors.NewExpired("session expired, request a new code"))
	case errors.Is(err, serrors.ErrSessionReplayed):
		return c.JSON(http.StatusConflict, serrors.NewAlreadyConsumed("session already consumed"))
	default:
		log.Error().Err(err).Msg("session operation failed")
		return c.JSON(http.StatusInternalServerError, serrors.NewServerError("session operation failed"))
	}
}

func (a *HandshakeAPI) setCredentialCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     a.cookie.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func credentialFromRequest(c echo.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return ""
}
