package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprinter derives short keyed digests for values that must not be
// stored or logged raw, such as client IPs. Without the key a digest cannot
// be reversed by hashing the IPv4 space.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter derives a fingerprint key from secret. The derived key
// differs from secret so digests never double as token signatures.
func NewFingerprinter(secret string) Fingerprinter {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("agentdesk/fingerprint/v1"))
	return Fingerprinter{key: mac.Sum(nil)}
}

// Sum returns the first 16 bytes of HMAC-SHA256(key, input), hex encoded.
func (f Fingerprinter) Sum(input string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(input))
	return hex.EncodeToString(mac.Sum(nil)[:16])
}
