package dam

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"archie-core-dam-sync/internal/domain"
)

// HMACVerifier checks HMAC-SHA256 webhook signatures.
// The signature may be hex or base64 and may carry a "sha256=" prefix.
type HMACVerifier struct{}

// NewHMACVerifier creates a new signature verifier
func NewHMACVerifier() *HMACVerifier {
	return &HMACVerifier{}
}

// Verify returns domain.ErrSignatureInvalid unless signature is the HMAC of body under secret
func (v *HMACVerifier) Verify(secret string, body []byte, signature string) error {
	provided, ok := decodeSignature(signature)
	if !ok {
		return domain.ErrSignatureInvalid
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

func decodeSignature(signature string) ([]byte, bool) {
	sig := strings.TrimSpace(signature)
	sig = strings.TrimPrefix(strings.TrimPrefix(sig, "sha256="), "SHA256=")
	if sig == "" {
		return nil, false
	}
	if len(sig) == hex.EncodedLen(sha256.Size) {
		if b, err := hex.DecodeString(sig); err == nil {
			return b, true
		}
	}
	if b, err := base64.StdEncoding.DecodeString(sig); err == nil {
		return b, true
	}
	return nil, false
}

// SignHex computes the hex signature a DAM sender would attach to body
func SignHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
