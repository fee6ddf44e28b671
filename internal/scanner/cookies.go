package scanner

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// CookieAttributes summarises the security attributes of one stored cookie.
type CookieAttributes struct {
	Name     string `json:"name"`
	Secure   bool   `json:"secure"`
	HTTPOnly bool   `json:"http_only"`
	// SameSite holds the raw attribute value; empty when the attribute is
	// missing or has no value.
	SameSite string `json:"same_site,omitempty"`
}

// cookieKey identifies a cookie the way a browser jar does.
type cookieKey struct {
	domain string
	path   string
	name   string
}

// setCookie is one leniently parsed Set-Cookie line.
type setCookie struct {
	attrs   CookieAttributes
	domain  string
	path    string
	deleted bool
}

// Expires layouts seen in the wild; the first is http.TimeFormat.
var expiresLayouts = []string{
	time.RFC1123,
	"Mon, 02-Jan-2006 15:04:05 MST",
	"Mon, 02 Jan 06 15:04:05 MST",
	"Monday, 02-Jan-06 15:04:05 MST",
	time.ANSIC,
}

// AnalyzeCookies returns the cookies a jar would keep after receiving
// setCookies from finalURL at now, in first-seen order.
//
// Lines are split on ';' and on the first '=' only, so names and values
// that are not HTTP tokens still count. Deletion requests (Max-Age <= 0 or
// an Expires in the past) remove the cookie. A Domain that does not
// domain-match the host, or is a public suffix, is rejected. A later line
// for the same domain, path and name replaces the earlier attributes but
// keeps its position.
func AnalyzeCookies(setCookies []string, finalURL string, now time.Time) []CookieAttributes {
	host, defaultPath := cookieOrigin(finalURL)

	var (
		entries []*CookieAttributes
		index   = make(map[cookieKey]int)
	)
	for _, line := range setCookies {
		c, ok := parseSetCookie(line, now)
		if !ok {
			continue
		}

		domain := host
		if c.domain != "" {
			if !domainAllowed(host, c.domain) {
				continue
			}
			domain = "." + c.domain
		}
		path := c.path
		if path == "" {
			path = defaultPath
		}
		key := cookieKey{domain: domain, path: path, name: c.attrs.Name}

		if c.deleted {
			if i, ok := index[key]; ok {
				entries[i] = nil
				delete(index, key)
			}
			continue
		}

		attrs := c.attrs
		if i, ok := index[key]; ok {
			entries[i] = &attrs
			continue
		}
		index[key] = len(entries)
		entries = append(entries, &attrs)
	}

	out := make([]CookieAttributes, 0, len(index))
	for _, e := range entries {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

// parseSetCookie parses one raw Set-Cookie value. ok is false for lines
// with no cookie name, or with a value attribute (Path, Domain, Expires,
// Max-Age, Port, Version) given without '=' or a non-numeric Max-Age.
func parseSetCookie(line string, now time.Time) (setCookie, bool) {
	parts := strings.Split(line, ";")
	name, _, _ := strings.Cut(parts[0], "=")
	name = strings.TrimSpace(name)
	if name == "" {
		return setCookie{}, false
	}

	c := setCookie{attrs: CookieAttributes{Name: name}}
	var (
		seen      = make(map[string]bool)
		maxAgeSet bool
		expires   time.Time
	)
	for _, part := range parts[1:] {
		key, val, hasValue := strings.Cut(strings.TrimSpace(part), "=")
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		if key == "" {
			continue
		}

		switch key {
		case "secure":
			c.attrs.Secure = true
			continue
		case "httponly":
			c.attrs.HTTPOnly = true
			continue
		case "samesite":
			c.attrs.SameSite = val
			continue
		case "expires", "max-age", "domain", "path", "port", "version":
			if !hasValue {
				return setCookie{}, false
			}
		default:
			continue
		}

		if key == "max-age" {
			seconds, err := strconv.Atoi(val)
			if err != nil {
				return setCookie{}, false
			}
			maxAgeSet = true
			expires = now.Add(time.Duration(seconds) * time.Second)
			continue
		}
		// Only the first occurrence of a value attribute counts.
		if seen[key] {
			continue
		}
		seen[key] = true

		switch key {
		case "expires":
			if maxAgeSet {
				continue
			}
			if t, ok := parseExpires(val); ok {
				expires = t
			}
		case "domain":
			c.domain = strings.TrimPrefix(strings.ToLower(val), ".")
			if c.domain == "" {
				return setCookie{}, false
			}
		case "path":
			c.path = val
		}
	}

	c.deleted = !expires.IsZero() && !expires.After(now)
	return c, true
}

func parseExpires(raw string) (time.Time, bool) {
	raw = strings.Trim(raw, `"`)
	for _, layout := range expiresLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// cookieOrigin returns the lower-cased host and the default cookie path of
// the URL that set the cookies.
func cookieOrigin(rawURL string) (host, path string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "/"
	}
	host = strings.ToLower(u.Hostname())
	path = "/"
	if i := strings.LastIndex(u.Path, "/"); i > 0 {
		path = u.Path[:i]
	}
	return host, path
}

// domainAllowed reports whether a Domain attribute may be set by host.
func domainAllowed(host, domain string) bool {
	if host == "" {
		return false
	}
	if host == domain {
		return true
	}
	if !strings.HasSuffix(host, "."+domain) || !strings.Contains(domain, ".") {
		return false
	}
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix != domain
}
