package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// RegisteredClaims.ID (jti) is what the credential store records for the active session.
type Claims struct {
	jwt.RegisteredClaims

	UserID    int64     `json:"id"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"token_type"`
}
