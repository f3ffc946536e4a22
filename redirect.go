package sso

import (
	"net/url"
	"strings"
)

// ValidateRedirect checks a post login redirect target. Relative paths on
// this host are always accepted, absolute http(s) URLs only when their
// host is listed in allowedHosts. Entries may use a "*." prefix to match
// subdomains.
func ValidateRedirect(target string, allowedHosts []string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", ErrRedirectNotAllowed
	}

	if strings.HasPrefix(target, "/") {
		if strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
			return "", ErrRedirectNotAllowed
		}
		return target, nil
	}

	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", ErrRedirectNotAllowed
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrRedirectNotAllowed
	}

	if u.User != nil {
		return "", ErrRedirectNotAllowed
	}

	host := strings.ToLower(u.Hostname())
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if allowed == host {
			return u.String(), nil
		}
		if suffix, ok := strings.CutPrefix(allowed, "*."); ok && strings.HasSuffix(host, "."+suffix) {
			return u.String(), nil
		}
	}

	return "", ErrRedirectNotAllowed.Clone().WithMetadata(map[string]any{"host": host})
}

// AppendToken adds the token as a query parameter, keeping any existing query
func AppendToken(target, token string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", ErrRedirectNotAllowed
	}

	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
