package alerts

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http/httptest"
	"strings"
	"testing"
)

func sign(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	_, _ = m.Write(body)
	return hex.EncodeToString(m.Sum(nil))
}

func TestVerifyHMAC(t *testing.T) {
	body := []byte(`{"hostname":"olt-1"}`)
	req := httptest.NewRequest("POST", "/api/webhooks/zabbix", strings.NewReader(""))
	req.Header.Set("X-Fiberops-Signature", sign("secret", body))
	if !VerifyHMAC("secret", req, body) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyHMAC("other-secret", req, body) {
		t.Fatalf("wrong secret accepted")
	}

	// The github-style prefixed header also works.
	req = httptest.NewRequest("POST", "/", strings.NewReader(""))
	req.Header.Set("X-Hub-Signature-256", "sha256="+sign("secret", body))
	if !VerifyHMAC("secret", req, body) {
		t.Fatalf("prefixed signature rejected")
	}

	req = httptest.NewRequest("POST", "/", strings.NewReader(""))
	if VerifyHMAC("secret", req, body) {
		t.Fatalf("missing signature accepted")
	}
	// Empty secret disables verification.
	if !VerifyHMAC("", req, body) {
		t.Fatalf("empty secret must disable verification")
	}
}

func TestClientIPTrustedProxy(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(""))
	req.RemoteAddr = "10.0.0.1:4444"
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	trusted := []string{"10.0.0.0/8"}
	if got := ClientIP(req, trusted); got != "198.51.100.7" {
		t.Fatalf("ClientIP = %q, want forwarded client", got)
	}
	// Without trust, the socket peer wins and XFF is ignored.
	if got := ClientIP(req, nil); got != "10.0.0.1" {
		t.Fatalf("ClientIP = %q, want socket peer", got)
	}
}

func TestAllowedIP(t *testing.T) {
	allowlist := []string{"192.0.2.1", "198.51.100.0/24"}
	if !AllowedIP("192.0.2.1", allowlist) {
		t.Fatalf("exact match rejected")
	}
	if !AllowedIP("198.51.100.77", allowlist) {
		t.Fatalf("cidr match rejected")
	}
	if AllowedIP("203.0.113.5", allowlist) {
		t.Fatalf("unlisted ip accepted")
	}
	if !AllowedIP("203.0.113.5", nil) {
		t.Fatalf("empty allowlist must admit everything")
	}
	if AllowedIP("not-an-ip", allowlist) {
		t.Fatalf("garbage ip accepted")
	}
}
