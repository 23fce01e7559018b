package session

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// AccessTokenClaims decodes the claims of the current access token without
// verifying its signature. The result is for display and diagnostics only;
// the identity service remains the authority on token validity. Opaque
// (non-JWT) access tokens return an error.
func (m *Manager) AccessTokenClaims() (jwt.MapClaims, error) {
	_, t, _ := m.state.read()
	if t == nil || t.AccessToken == "" {
		return nil, newError(ErrNoAccessToken, "No access token available")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(t.AccessToken, claims); err != nil {
		return nil, errors.Wrap(err, "[Manager.AccessTokenClaims] access token is not a JWT")
	}
	return claims, nil
}
