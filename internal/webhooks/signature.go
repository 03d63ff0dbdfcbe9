package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"
)

// SignatureHeader is the header Bling sends with every webhook delivery.
const SignatureHeader = "X-Bling-Signature-256"

// VerifyHMAC checks the "sha256=<hex>" HMAC-SHA256 signature over the raw
// body using the shared secret. Comparison is constant-time.
func VerifyHMAC(secret string, body []byte, provided string) bool {
	if !strings.HasPrefix(provided, "sha256=") {
		return false
	}
	return hmac.Equal([]byte(SignHMAC(secret, body)), []byte(provided))
}

// SignHMAC returns the signature header value for a body: "sha256=" followed
// by lowercase hex of HMAC-SHA256.
func SignHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("sha256=%x", mac.Sum(nil))
}
