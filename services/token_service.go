package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"

	"go.curalink.io/qrlogin/domain"
	serrors "go.curalink.io/qrlogin/errors"
	"go.curalink.io/qrlogin/internal/metrics"
)

// credentialClaims is the JWT claim set carried by issued credentials.
type credentialClaims struct {
	DisplayName string `json:"name"`
	Role        string `json:"role"`
	Elevated    bool   `json:"elevated,omitempty"`
	jwt.RegisteredClaims
}

// TokenService mints and verifies signed bearer credentials. A credential is
// never renewed in place: a new Issue call produces a new token.
type TokenService struct {
	signer *TokenSigner
	issuer string
	ttl    time.Duration

	// verifyCache skips re-parsing hot tokens. Entries never outlive the
	// claim's own expiry.
	verifyCache *ttlcache.Cache[string, *domain.Credential]

	now func() time.Time
}

// NewTokenService creates a new TokenService instance.
func NewTokenService(signer *TokenSigner, issuer string, ttl time.Duration) *TokenService {
	cache := ttlcache.New[string, *domain.Credential](
		ttlcache.WithTTL[string, *domain.Credential](5*time.Minute),
		ttlcache.WithDisableTouchOnHit[string, *domain.Credential](),
	)
	go cache.Start()

	return &TokenService{
		signer:      signer,
		issuer:      issuer,
		ttl:         ttl,
		verifyCache: cache,
		now:         time.Now,
	}
}

// WithClock overrides the service's clock. Tests use it to cross TTLs
// without sleeping.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Issue mints a signed credential for the user. The elevated flag marks
// credentials established through the QR step-up handshake.
func (s *TokenService) Issue(ctx context.Context, user *domain.User, elevated bool) (string, *domain.Credential, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	tokenID := uuid.NewString()

	claims := credentialClaims{
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Elevated:    elevated,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        tokenID,
		},
	}

	signedToken, err := s.signer.Sign(claims, "")
	if err != nil {
		return "", nil, fmt.Errorf("cannot sign credential: %w", err)
	}

	credential := &domain.Credential{
		TokenID:     tokenID,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Role:        user.Role,
		Elevated:    elevated,
		IssuedAt:    now,
		ExpiresAt:   expiresAt,
	}

	metrics.TokensIssuedTotal.Inc()
	log.Ctx(ctx).Debug().Str("user_id", user.ID).Str("jti", tokenID).Msg("credential issued")

	return signedToken, credential, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
// Expiry, tampering and malformed input map to distinct errors so callers
// can tell a stale client from a hostile one.
func (s *TokenService) Verify(ctx context.Context, tokenValue string) (*domain.Credential, error) {
	if item := s.verifyCache.Get(tokenValue); item != nil {
		credential := item.Value()
		if s.now().Before(credential.ExpiresAt) {
			return credential, nil
		}
		s.verifyCache.Delete(tokenValue)
		metrics.TokenVerifyFailures.WithLabelValues("expired").Inc()
		return nil, serrors.ErrTokenExpired
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)

	var claims credentialClaims
	_, err := parser.ParseWithClaims(tokenValue, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.signer.VerificationKey("")
	})
	if err != nil {
		reason, mapped := mapTokenError(err)
		metrics.TokenVerifyFailures.WithLabelValues(reason).Inc()
		log.Ctx(ctx).Debug().Err(err).Str("reason", reason).Msg("credential rejected")
		return nil, mapped
	}

	credential := &domain.Credential{
		TokenID:     claims.ID,
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		Role:        claims.Role,
		Elevated:    claims.Elevated,
		IssuedAt:    claims.IssuedAt.Time,
		ExpiresAt:   claims.ExpiresAt.Time,
	}

	if ttl := credential.ExpiresAt.Sub(s.now()); ttl > 0 {
		s.verifyCache.Set(tokenValue, credential, ttl)
	}

	return credential, nil
}

// TTL returns the credential lifetime, used to size the cookie max-age.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Stop shuts down the verification cache's janitor goroutine.
func (s *TokenService) Stop() {
	s.verifyCache.Stop()
}

func mapTokenError(err error) (string, error) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired", serrors.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature_invalid", serrors.ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed", serrors.ErrTokenMalformed
	default:
		// Issuer mismatch, missing exp, future nbf: reject outright, the
		// token was not minted by this service in its current shape.
		return "invalid", fmt.Errorf("%w: %v", serrors.ErrTokenMalformed, err)
	}
}
