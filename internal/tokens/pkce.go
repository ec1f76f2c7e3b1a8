package tokens

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// PKCE challenge methods.
const (
	ChallengeMethodS256  = "S256"
	ChallengeMethodPlain = "plain"
)

// S256Challenge computes the S256 code challenge for a verifier.
func S256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyPKCE validates a code verifier against a stored challenge under the
// declared method. Unknown methods never match.
func VerifyPKCE(verifier, challenge, method string) bool {
	verifier = strings.TrimSpace(verifier)
	challenge = strings.TrimSpace(challenge)
	if verifier == "" || challenge == "" {
		return false
	}
	switch strings.TrimSpace(method) {
	case ChallengeMethodS256, "":
		return ConstantTimeEquals(S256Challenge(verifier), challenge)
	case ChallengeMethodPlain:
		return ConstantTimeEquals(verifier, challenge)
	default:
		return false
	}
}
