package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// DownloadURL renders "<prefix><route>?token=<token>".
func DownloadURL(prefix, route, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return strings.TrimRight(prefix, "/") + route + "?" + q.Encode()
}

// TokenFromURL returns the token query parameter of a URL built by DownloadURL.
func TokenFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse download url: %w", err)
	}
	token := u.Query().Get("token")
	if token == "" {
		return "", fmt.Errorf("%w: url %q carries no token", ErrInvalidToken, raw)
	}
	return token, nil
}
