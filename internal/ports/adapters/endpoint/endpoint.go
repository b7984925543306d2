// Package endpoint checks configured base URLs of external services before
// any API key is sent to them.
package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Rule describes which base URLs a service accepts.
type Rule struct {
	// Setting names the base URL option in error messages.
	Setting string
	// AllowSetting names the option that replaces Hosts, if there is one.
	AllowSetting string
	// Default is used when the configured URL is blank.
	Default string
	// Hosts are accepted when no allow list is configured.
	Hosts []string
}

// Normalize trims the URL and falls back to the default.
func (r Rule) Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = r.Default
	}
	return strings.TrimRight(raw, "/")
}

// Check accepts only absolute https URLs without credentials, query or
// fragment, whose host is in allowed (or in r.Hosts when allowed is empty).
func (r Rule) Check(raw string, allowed []string) error {
	base := r.Normalize(raw)
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", r.Setting, err)
	}
	switch {
	case !u.IsAbs() || u.Host == "":
		return r.reject(base, "absolute URL with host is required")
	case u.User != nil:
		return r.reject(base, "userinfo is not allowed")
	case u.RawQuery != "" || u.Fragment != "":
		return r.reject(base, "query and fragment are not allowed")
	case u.Hostname() == "":
		return r.reject(base, "host is required")
	case !strings.EqualFold(u.Scheme, "https"):
		return r.reject(base, "https is required")
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := hostSet(allowed, r.Hosts)[host]; !ok {
		where := "the allowed hosts"
		if r.AllowSetting != "" {
			where = r.AllowSetting
		}
		return r.reject(base, fmt.Sprintf("host %q is not in %s", host, where))
	}
	return nil
}

func (r Rule) reject(base, why string) error {
	return fmt.Errorf("invalid %s %q: %s", r.Setting, base, why)
}

// hostSet normalizes host entries, which may carry a scheme, port or
// trailing slash. An empty result means fallback.
func hostSet(hosts, fallback []string) map[string]struct{} {
	out := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		v := strings.ToLower(strings.TrimSpace(h))
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "https://")
		v = strings.Trim(v, "/")
		if i := strings.Index(v, ":"); i >= 0 {
			v = v[:i]
		}
		if v != "" {
			out[v] = struct{}{}
		}
	}
	if len(out) == 0 {
		for _, h := range fallback {
			out[strings.ToLower(h)] = struct{}{}
		}
	}
	return out
}
