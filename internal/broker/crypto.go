package broker

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// Every credential kind carries a fixed literal prefix so logs and error
// messages can identify a token's kind without decoding it, and so a token of
// one kind is never accepted by an endpoint expecting another.
const (
	AuthCodePrefix     = "ac_"
	AccessTokenPrefix  = "at_"
	RefreshTokenPrefix = "rt_"
	ClientIDPrefix     = "client_"
	ClientSecretPrefix = "cs_"
)

// randomString returns a base64url-encoded random string.
func randomString(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newToken(prefix string, length int) (string, error) {
	s, err := randomString(length)
	if err != nil {
		return "", err
	}
	return prefix + s, nil
}

// VerifyPKCES256 checks a code_verifier against a stored S256 code_challenge.
// S256 is the only supported challenge method.
func VerifyPKCES256(challenge, verifier string) error {
	if verifier == "" {
		return validationError("code_verifier", "required")
	}
	sum := sha256.Sum256([]byte(verifier))
	derived := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(derived), []byte(challenge)) != 1 {
		return fmt.Errorf("code_verifier does not match challenge: %w", ErrInvalidCredential)
	}
	return nil
}
