package superfeedr

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"strings"
)

const signaturePrefix = "sha1="

// VerifySignature checks an X-Hub-Signature header ("sha1=<hex>") against the
// HMAC-SHA1 of the raw body. It never panics and returns false for malformed
// headers.
func VerifySignature(payload []byte, signatureHeader, secret string) bool {
	sig := strings.TrimSpace(signatureHeader)
	if secret == "" || !strings.HasPrefix(sig, signaturePrefix) {
		return false
	}

	decodedSig, err := hex.DecodeString(strings.ToLower(strings.TrimPrefix(sig, signaturePrefix)))
	if err != nil || len(decodedSig) != sha1.Size {
		return false
	}

	return verifyHMAC(payload, decodedSig, []byte(secret), sha1.New)
}

// Sign returns the X-Hub-Signature header value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(payload, expectedSig, secret []byte, hashFunc func() hash.Hash) bool {
	mac := hmac.New(hashFunc, secret)
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expectedSig)
}

// GenerateSecret returns 16 random bytes hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
