package workspace

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/loykin/servcur/internal/domain"
)

// AuthURL validates an https clone URL and embeds token as its user info.
func AuthURL(rawURL, token string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !strings.HasPrefix(rawURL, "https://") {
		return "", fmt.Errorf("%w: not an https git url", domain.ErrInvalid)
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: malformed git url", domain.ErrInvalid)
	}
	if token != "" {
		u.User = url.User(token)
	}
	return u.String(), nil
}

// RedactURL drops any user info so a URL can be logged.
func RedactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	return u.String()
}

func redact(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "***")
}
