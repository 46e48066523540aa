package auth

import "time"

// Claims are carried inside a session token. The token is encrypted, so
// clients cannot read them.
type Claims struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	SessionID string `json:"sid"`

	Issuer     string    `json:"iss"`
	Audience   string    `json:"aud"`
	Subject    string    `json:"sub"`
	IssuedAt   time.Time `json:"iat"`
	NotBefore  time.Time `json:"nbf"`
	Expiration time.Time `json:"exp"`
	TokenID    string    `json:"jti"`
}
