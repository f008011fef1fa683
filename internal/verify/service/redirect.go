package service

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/verify/internal/verify/domain"
)

var ErrInvalidCallbackURL = errors.New("callback URL is not on a trusted domain")

// ValidateCallbackURL checks a client-supplied callback URL against the
// tenancy's trusted domains before a magic link is minted for it. Open
// redirects through verification emails are the attack this closes off.
func ValidateCallbackURL(tenancy domain.Tenancy, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidCallbackURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidCallbackURL
	}
	if u.Host == "" {
		return ErrInvalidCallbackURL
	}

	if isLocalhost(u) {
		if tenancy.Config.AllowLocalhost {
			return nil
		}
		return ErrInvalidCallbackURL
	}

	for _, trusted := range tenancy.Config.Domains {
		if matchesTrustedDomain(u, trusted) {
			return nil
		}
	}
	return ErrInvalidCallbackURL
}

func isLocalhost(u *url.URL) bool {
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// matchesTrustedDomain compares scheme and host against a trusted base URL,
// and requires the callback path to sit under the trusted path when the base
// specifies one.
func matchesTrustedDomain(u *url.URL, trusted string) bool {
	base, err := url.Parse(trusted)
	if err != nil {
		return false
	}
	if base.Scheme != u.Scheme || base.Host != u.Host {
		return false
	}
	if base.Path == "" || base.Path == "/" {
		return true
	}
	return strings.HasPrefix(strings.TrimSuffix(u.Path, "/")+"/", strings.TrimSuffix(base.Path, "/")+"/")
}
