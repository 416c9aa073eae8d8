package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"case_id":"NET-1","event_type":"updated"}`)

	if !VerifySignature(secret, body, sign(secret, body)) {
		t.Fatal("valid signature rejected")
	}
	if VerifySignature(secret, body, sign("other-secret", body)) {
		t.Fatal("signature from wrong secret accepted")
	}
	if VerifySignature(secret, []byte(`{"case_id":"NET-2"}`), sign(secret, body)) {
		t.Fatal("signature over different body accepted")
	}
	if VerifySignature(secret, body, "") {
		t.Fatal("empty signature accepted")
	}
	if VerifySignature("", body, sign("", body)) {
		t.Fatal("empty secret must reject everything")
	}
}
