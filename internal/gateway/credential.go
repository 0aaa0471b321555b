package gateway

import (
	"regexp"
	"strings"

	"github.com/janekbaraniewski/usagewatch/internal/core"
)

// SessionCookieName is the vendor's session cookie. The canonical credential
// form is "name=value"; everything the user may paste (bare token, full
// Cookie header, curl snippet) is reduced to it.
const SessionCookieName = "__session"

const minTokenLength = 16

// tokenAlphabet is the URL-safe set session tokens are drawn from.
var tokenAlphabet = regexp.MustCompile(`^[A-Za-z0-9._~%+/=-]+$`)

// cookiePairRe finds the session cookie inside a pasted header or snippet.
var cookiePairRe = regexp.MustCompile(SessionCookieName + `=([^;\s'"]+)`)

// curlCookieFlagRe pulls the argument of curl's -b/--cookie flag.
var curlCookieFlagRe = regexp.MustCompile(`(?:-b|--cookie)\s+(?:'([^']*)'|"([^"]*)"|(\S+))`)

// placeholders reject obviously-unreplaced instructional text.
var placeholders = []string{
	"paste", "your", "example", "<", ">", "cookie-value", "token-here",
}

// NormalizeCredential reduces user input to the canonical "name=value" form
// and validates the token. Accepted inputs: a bare token value, a full
// Cookie header line, or a pasted curl command carrying the cookie.
func NormalizeCredential(input string) (string, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return "", core.NewError(core.KindValidation, "credential is empty")
	}

	token := extractToken(raw)
	if token == "" {
		return "", core.NewError(core.KindValidation, "no session token found in input")
	}
	if err := validateToken(token); err != nil {
		return "", err
	}
	return SessionCookieName + "=" + token, nil
}

func extractToken(raw string) string {
	if strings.HasPrefix(raw, "curl ") || strings.Contains(raw, " curl ") {
		if m := curlCookieFlagRe.FindStringSubmatch(raw); m != nil {
			for _, group := range m[1:] {
				if group != "" {
					raw = group
					break
				}
			}
		}
	}

	if m := cookiePairRe.FindStringSubmatch(raw); m != nil {
		return m[1]
	}

	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Cookie:"))
	if strings.ContainsAny(raw, ";: \t\n") {
		return ""
	}
	return raw
}

func validateToken(token string) error {
	lower := strings.ToLower(token)
	for _, p := range placeholders {
		if strings.Contains(lower, p) {
			return core.NewError(core.KindValidation, "credential looks like placeholder text, paste the real cookie value")
		}
	}
	if len(token) < minTokenLength {
		return core.NewError(core.KindValidation, "credential is too short to be a session token")
	}
	if !tokenAlphabet.MatchString(token) {
		return core.NewError(core.KindValidation, "credential contains characters outside the expected set")
	}
	return nil
}
