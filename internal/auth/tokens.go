package auth

import (
	"encoding/json/v2"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/toollender/toollender/internal/domain"
	"github.com/toollender/toollender/internal/id"
)

const (
	tokenIssuer   = "toollender"
	tokenAudience = "toollender-app"
)

// TokenService issues and verifies session tokens.
type TokenService struct {
	key paseto.V4SymmetricKey
	ttl time.Duration
	now func() time.Time
}

// NewTokenService creates a token service. Tokens expire after ttl, which is
// also the session lifetime.
func NewTokenService(key paseto.V4SymmetricKey, ttl time.Duration) *TokenService {
	return &TokenService{key: key, ttl: ttl, now: time.Now}
}

// TTL returns the token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue creates a v4.local token for session.
func (s *TokenService) Issue(account domain.Account, session domain.Session) (string, error) {
	now := s.now()

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetAudience(tokenAudience)
	token.SetSubject(account.ID)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(session.ExpiresAt)

	jti, err := id.Generate("tok")
	if err != nil {
		return "", fmt.Errorf("generate token ID: %w", err)
	}
	token.SetJti(jti)

	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("account_id", account.ID)
	//nolint:errcheck
	_ = token.Set("email", account.Email)
	//nolint:errcheck
	_ = token.Set("sid", session.ID)

	return token.V4Encrypt(s.key, nil), nil
}

// Verify decrypts a token and checks issuer, audience and validity window.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.ValidAt(s.now()))

	token, err := parser.ParseV4Local(s.key, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims Claims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.SessionID == "" || claims.AccountID == "" {
		return nil, fmt.Errorf("invalid token: missing session")
	}
	return &claims, nil
}
