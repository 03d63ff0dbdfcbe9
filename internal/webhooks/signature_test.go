package webhooks

import (
	"strings"
	"testing"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"eventId":"e1","event":"stock.updated"}`)
	sig := SignHMAC("secret", body)
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature missing prefix: %s", sig)
	}
	if !VerifyHMAC("secret", body, sig) {
		t.Fatal("valid signature rejected")
	}
}

func TestVerifyRejects(t *testing.T) {
	body := []byte(`{"eventId":"e1"}`)
	sig := SignHMAC("secret", body)

	if VerifyHMAC("other-secret", body, sig) {
		t.Fatal("signature from different secret accepted")
	}
	if VerifyHMAC("secret", []byte(`{"eventId":"e2"}`), sig) {
		t.Fatal("signature over different body accepted")
	}
	if VerifyHMAC("secret", body, strings.TrimPrefix(sig, "sha256=")) {
		t.Fatal("signature without prefix accepted")
	}
	if VerifyHMAC("secret", body, "") {
		t.Fatal("empty signature accepted")
	}
}
