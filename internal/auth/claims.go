package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/chatterline/realtime-go/internal/model"
)

// Claims are the token claims the client cares about. The subject carries
// the user id; name is the display username.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

// CredentialFromToken builds a Credential from an access token, deriving the
// expiry and user identity from its claims. The signature is not verified:
// the client does not hold the signing secret, and the server re-validates
// every request anyway.
func CredentialFromToken(token string) (*model.Credential, error) {
	claims := &Claims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token claims: %w", err)
	}

	cred := &model.Credential{
		Token:    token,
		UserID:   claims.Subject,
		UserName: claims.Name,
	}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}
