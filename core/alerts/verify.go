package alerts

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// Header names the supported vendors use for the body signature, checked in
// order.
var signatureHeaders = []string{
	"X-Fiberops-Signature",
	"X-Webhook-Signature",
	"X-Hub-Signature-256",
}

// VerifyHMAC checks the hex-encoded HMAC-SHA256 of the raw body against the
// request's signature header. An empty secret disables verification and
// reports valid.
func VerifyHMAC(secret string, r *http.Request, body []byte) bool {
	if strings.TrimSpace(secret) == "" {
		return true
	}
	var got string
	for _, name := range signatureHeaders {
		if v := strings.TrimSpace(r.Header.Get(name)); v != "" {
			got = v
			break
		}
	}
	if got == "" {
		return false
	}
	got = strings.TrimPrefix(got, "sha256=")
	gotBytes, err := hex.DecodeString(got)
	if err != nil {
		return false
	}
	want := hmacSHA256Bytes([]byte(secret), body)
	return subtle.ConstantTimeCompare(gotBytes, want) == 1
}

func hmacSHA256Bytes(secret, payload []byte) []byte {
	m := hmac.New(sha256.New, secret)
	_, _ = m.Write(payload)
	return m.Sum(nil)
}

// ClientIP resolves the caller's address: the socket peer, or the first
// untrusted hop from X-Forwarded-For when the peer is a trusted proxy.
func ClientIP(r *http.Request, trustedProxies []string) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	ip = strings.TrimSpace(ip)
	if !isTrustedProxy(ip, trustedProxies) {
		return ip
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if candidate := extractClientIPFromXFF(xff, trustedProxies); candidate != "" {
			return candidate
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if parsed := net.ParseIP(realIP); parsed != nil {
			return parsed.String()
		}
	}
	return ip
}

// AllowedIP reports whether ip passes the allowlist. An empty allowlist
// admits everything.
func AllowedIP(ip string, allowlist []string) bool {
	if len(allowlist) == 0 {
		return true
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range allowlist {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}

func extractClientIPFromXFF(xff string, trusted []string) string {
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		candidate := strings.TrimSpace(parts[i])
		parsed := net.ParseIP(candidate)
		if parsed == nil {
			continue
		}
		val := parsed.String()
		if !isTrustedProxy(val, trusted) {
			return val
		}
	}
	return ""
}

func isTrustedProxy(ip string, trusted []string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range trusted {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}
