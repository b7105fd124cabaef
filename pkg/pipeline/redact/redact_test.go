package redact_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/shpitdev/route-snapper/pkg/pipeline/redact"
)

func TestSecrets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "bearer", in: "auth failed: Bearer abc.def.ghi", want: "auth failed: Bearer <redacted>"},
		{name: "api key kv", in: "api_key=s3cret rejected", want: "<redacted_kv> rejected"},
		{name: "query token", in: "GET https://x.test/api?xcoord=1&token=abc&ycoord=2", want: "GET https://x.test/api?xcoord=1&token=<redacted>&ycoord=2"},
		{name: "plain", in: "  no route found  ", want: "no route found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := redact.Secrets(tt.in); got != tt.want {
				t.Fatalf("Secrets(%q)=%q want=%q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	t.Run("truncates with ellipsis", func(t *testing.T) {
		got := redact.Snippet([]byte(strings.Repeat("a", 10)), 4)
		if got != "aaaa..." {
			t.Fatalf("unexpected snippet: %q", got)
		}
	})

	t.Run("does not split runes", func(t *testing.T) {
		got := redact.Snippet([]byte("abécd"), 3)
		if got != "ab..." || !utf8.ValidString(got) {
			t.Fatalf("unexpected snippet: %q", got)
		}
	})

	t.Run("flattens newlines", func(t *testing.T) {
		got := redact.Snippet([]byte("line one\nline two\r\n"), 256)
		if got != "line one line two" {
			t.Fatalf("unexpected snippet: %q", got)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		if got := redact.Snippet(nil, 10); got != "" {
			t.Fatalf("expected empty snippet, got %q", got)
		}
	})
}
