package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrBadSignature is deliberately uninformative; callers answer 403 with no
// detail.
var ErrBadSignature = errors.New("webhook verification failed")

// Verify checks an HMAC-SHA256 signature over body. signature may be plain hex
// or carry GitHub's "sha256=" prefix.
func Verify(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return ErrBadSignature
	}
	if subtle.ConstantTimeCompare(mac(body, secret), got) != 1 {
		return ErrBadSignature
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature a sender attaches to body.
func Sign(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(mac(body, secret))
}

func mac(body []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
