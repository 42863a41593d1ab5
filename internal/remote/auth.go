package remote

import "github.com/pkg/errors"

// TokenProvider supplies the bearer token for storage requests.
// Token acquisition (device registration, refresh) happens outside this
// package; implementations only hand back whatever is currently valid.
type TokenProvider interface {
	Token() (string, error)
}

// StaticToken is a TokenProvider backed by a pre-acquired user token.
type StaticToken string

// Token returns the configured token.
func (t StaticToken) Token() (string, error) {
	if t == "" {
		return "", errors.New("no auth token configured")
	}
	return string(t), nil
}
