package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|access[_-]?token)\b\s*[:=]\s*[^\s"']+`)

	// Credential-looking query parameters in request URLs.
	queryTokenRe = regexp.MustCompile(`(?i)([?&](?:key|token|sig|signature)=)[^&\s"']+`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryTokenRe.ReplaceAllString(out, "${1}<redacted>")
	return strings.TrimSpace(out)
}

// Snippet returns a redacted single-line prefix of body, at most max bytes long
// before the ellipsis. The cut never splits a UTF-8 sequence.
func Snippet(body []byte, max int) string {
	if len(body) == 0 {
		return ""
	}
	b := body
	if max > 0 && len(b) > max {
		cut := max
		for cut > 0 && !utf8.RuneStart(b[cut]) {
			cut--
		}
		b = b[:cut]
	}
	s := Secrets(string(b))
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if max > 0 && len(body) > max {
		return s + "..."
	}
	return s
}
