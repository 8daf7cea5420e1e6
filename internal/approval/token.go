package approval

import (
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

// VersionToken is the opaque optimistic-concurrency stamp of a token-guarded
// request row. It proves the caller last read the current version of the
// record: tokens are compared by equality and regenerated on every successful
// write. Callers must treat the value as a black box.
type VersionToken string

// ErrMalformedToken is returned when a supplied token is not a well-formed
// stamp. It maps to a validation failure with a refresh-and-retry message,
// never to a concurrency conflict.
var ErrMalformedToken = errors.New("malformed version token")

// NewVersionToken mints a fresh stamp.
func NewVersionToken() VersionToken {
	id := uuid.New()
	return VersionToken(base64.StdEncoding.EncodeToString(id[:]))
}

// ParseVersionToken validates the wire form of a token. The empty string is
// malformed; kinds without token support never call this.
func ParseVersionToken(s string) (VersionToken, error) {
	if s == "" {
		return "", ErrMalformedToken
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) == 0 {
		return "", ErrMalformedToken
	}
	return VersionToken(s), nil
}

// IsZero reports whether the token is unset.
func (t VersionToken) IsZero() bool { return t == "" }

// String returns the wire form of the token.
func (t VersionToken) String() string { return string(t) }
