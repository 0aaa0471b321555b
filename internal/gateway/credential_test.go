package gateway

import (
	"strings"
	"testing"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

const testToken = "abc123DEF456ghi789jkl"

func TestNormalizeCredential_AcceptedForms(t *testing.T) {
	want := SessionCookieName + "=" + testToken

	tests := []struct {
		name  string
		input string
	}{
		{"bare token", testToken},
		{"bare token with whitespace", "  " + testToken + "\n"},
		{"canonical pair", SessionCookieName + "=" + testToken},
		{"cookie header line", "Cookie: " + SessionCookieName + "=" + testToken + "; other=1"},
		{"header without label", SessionCookieName + "=" + testToken + "; theme=dark"},
		{"curl with single quotes", "curl 'https://api.devmeter.ai/api/usage' -b '" + SessionCookieName + "=" + testToken + "'"},
		{"curl with long flag", "curl https://api.devmeter.ai --cookie \"" + SessionCookieName + "=" + testToken + "\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCredential(tt.input)
			if err != nil {
				t.Fatalf("NormalizeCredential(%q) error = %v", tt.input, err)
			}
			if got != want {
				t.Fatalf("NormalizeCredential(%q) = %q, want %q", tt.input, got, want)
			}
		})
	}
}

func TestNormalizeCredential_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"whitespace only", "   \n"},
		{"too short", "short-token"},
		{"placeholder text", "paste-your-cookie-value-here"},
		{"angle bracket placeholder", "<session-token-goes-here>"},
		{"illegal characters", strings.Repeat("a", 10) + "!!" + strings.Repeat("b", 10)},
		{"header without session cookie", "Cookie: theme=dark; lang=en"},
		{"multiple bare words", "not a single token value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeCredential(tt.input)
			if err == nil {
				t.Fatalf("NormalizeCredential(%q) = nil error, want validation failure", tt.input)
			}
			if !core.IsValidation(err) {
				t.Fatalf("error kind = %v, want validation", core.KindOf(err))
			}
		})
	}
}

func TestNormalizeCredential_TokenAlphabet(t *testing.T) {
	// The URL-safe characters tokens legitimately contain must all pass.
	token := "aB3._~%+/=-" + strings.Repeat("x", 10)
	got, err := NormalizeCredential(token)
	if err != nil {
		t.Fatalf("NormalizeCredential(%q) error = %v", token, err)
	}
	if got != SessionCookieName+"="+token {
		t.Fatalf("got %q", got)
	}
}
