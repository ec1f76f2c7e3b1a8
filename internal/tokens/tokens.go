package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Kind identifies a credential class by its opaque-token prefix.
type Kind string

const (
	KindClientID          Kind = "rd_ci_"
	KindClientSecret      Kind = "rd_cs_"
	KindAccessToken       Kind = "rd_at_"
	KindRefreshToken      Kind = "rd_rt_"
	KindAuthorizationCode Kind = "rd_ac_"
)

const randomBytes = 32

// Generator produces opaque credentials. Implementations must be safe for
// concurrent use.
type Generator interface {
	NewToken(kind Kind) (string, error)
}

type defaultGenerator struct{}

// NewGenerator returns the crypto/rand backed generator.
func NewGenerator() Generator {
	return defaultGenerator{}
}

func (defaultGenerator) NewToken(kind Kind) (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return string(kind) + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the deterministic storage form of a raw credential.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// KindOf reports the credential class encoded in the token prefix.
func KindOf(raw string) (Kind, bool) {
	for _, kind := range []Kind{KindClientID, KindClientSecret, KindAccessToken, KindRefreshToken, KindAuthorizationCode} {
		if strings.HasPrefix(raw, string(kind)) {
			return kind, true
		}
	}
	return "", false
}

// ConstantTimeEquals compares two strings without leaking a timing signal.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
