// Package netutil sanitizes caller metadata before it lands in audit rows.
package netutil

import (
	"net/netip"
	"strings"
	"unicode/utf8"
)

const MaxUserAgentLength = 512

// NormalizeIP accepts a bare IP or a host:port form ("192.0.2.4:1234",
// "[2001:db8::1]:443") and returns the canonical IP with any zone stripped.
// The bool reports whether the input parsed as an IP at all; on failure the
// raw input comes back unchanged.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		if out, ok := canonical(ap.Addr()); ok {
			return out, true
		}
	}
	for _, host := range hostCandidates(raw) {
		if addr, err := netip.ParseAddr(host); err == nil {
			if out, ok := canonical(addr); ok {
				return out, true
			}
		}
	}
	return raw, false
}

// hostCandidates lists the substrings worth parsing as an address: the input
// itself, the bracket contents of a "[v6]:port" form (covers non-numeric
// ports ParseAddrPort rejects), and the input minus its last colon section.
func hostCandidates(raw string) []string {
	out := []string{raw}
	if strings.HasPrefix(raw, "[") {
		if end := strings.LastIndex(raw, "]"); end > 0 {
			out = append(out, raw[1:end])
		}
	}
	if idx := strings.LastIndex(raw, ":"); idx > 0 {
		out = append(out, raw[:idx])
	}
	return out
}

func canonical(addr netip.Addr) (string, bool) {
	addr = addr.WithZone("")
	if !addr.IsValid() {
		return "", false
	}
	return addr.String(), true
}

// TruncateUserAgent caps a user agent at MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	runes := 0
	for i := range ua {
		if runes == MaxUserAgentLength {
			return ua[:i]
		}
		runes++
	}
	return ua
}
