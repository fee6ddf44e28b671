package scanner

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// HeaderRule describes one required response header. The rule passes when
// any of Names is present, whatever its value.
type HeaderRule struct {
	Names          []string
	Severity       Severity
	Category       string
	Message        string
	Recommendation string
	Points         int
}

// headerRules is evaluated in order; the order is part of the report format.
var headerRules = []HeaderRule{
	{
		Names:          []string{"Content-Security-Policy"},
		Severity:       SeverityHigh,
		Category:       "Content-Security-Policy",
		Message:        "Missing Content-Security-Policy header",
		Recommendation: "Add CSP header to prevent XSS attacks and control resource loading.",
		Points:         15,
	},
	{
		Names:          []string{"Strict-Transport-Security"},
		Severity:       SeverityHigh,
		Category:       "HSTS",
		Message:        "Missing Strict-Transport-Security header",
		Recommendation: "Add HSTS header to force HTTPS connections and prevent protocol downgrade attacks.",
		Points:         15,
	},
	{
		Names:          []string{"X-Frame-Options"},
		Severity:       SeverityMedium,
		Category:       "X-Frame-Options",
		Message:        "Missing X-Frame-Options header",
		Recommendation: "Add X-Frame-Options header to prevent clickjacking attacks.",
		Points:         10,
	},
	{
		Names:          []string{"X-Content-Type-Options"},
		Severity:       SeverityMedium,
		Category:       "X-Content-Type-Options",
		Message:        "Missing X-Content-Type-Options header",
		Recommendation: "Add X-Content-Type-Options: nosniff to prevent MIME type sniffing.",
		Points:         8,
	},
	{
		Names:          []string{"Referrer-Policy"},
		Severity:       SeverityMedium,
		Category:       "Referrer-Policy",
		Message:        "Missing Referrer-Policy header",
		Recommendation: "Add Referrer-Policy header to control referrer information sent to other sites.",
		Points:         7,
	},
	{
		// Feature-Policy is the pre-rename spelling and still counts.
		Names:          []string{"Permissions-Policy", "Feature-Policy"},
		Severity:       SeverityLow,
		Category:       "Permissions-Policy",
		Message:        "Missing Permissions-Policy header",
		Recommendation: "Add Permissions-Policy header to control browser features and APIs.",
		Points:         5,
	},
	{
		Names:          []string{"X-XSS-Protection"},
		Severity:       SeverityLow,
		Category:       "X-XSS-Protection",
		Message:        "Missing X-XSS-Protection header",
		Recommendation: "Add X-XSS-Protection header for legacy browser XSS protection.",
		Points:         3,
	},
}

const (
	httpsPoints          = 20
	cookieSecurePoints   = 10
	cookieHTTPOnlyPoints = 8
	cookieSameSitePoints = 5

	cookieCategory = "Cookie Security"
)

// HeaderRules returns a copy of the header checklist.
func HeaderRules() []HeaderRule {
	out := make([]HeaderRule, len(headerRules))
	copy(out, headerRules)
	return out
}

// Evaluate runs the full checklist against a fetched response.
func Evaluate(resp *Response) []Finding {
	if resp == nil {
		return nil
	}

	findings := make([]Finding, 0, len(headerRules)+1)
	findings = append(findings, checkHTTPS(resp.FinalURL)...)
	findings = append(findings, checkSecurityHeaders(resp.Header)...)
	findings = append(findings, checkCookies(AnalyzeCookies(resp.SetCookies, resp.FinalURL, resp.receivedAt()))...)
	return findings
}

// checkHTTPS flags a final URL that was not served over TLS.
func checkHTTPS(finalURL string) []Finding {
	parsed, err := url.Parse(finalURL)
	if err == nil && strings.EqualFold(parsed.Scheme, "https") {
		return nil
	}
	return []Finding{{
		Severity:       SeverityHigh,
		Category:       "HTTPS",
		Message:        "Site is not using HTTPS encryption",
		Recommendation: "Enable HTTPS to encrypt data in transit. Obtain an SSL/TLS certificate from a trusted Certificate Authority.",
		Points:         httpsPoints,
	}}
}

// checkSecurityHeaders reports every header rule with no matching header.
func checkSecurityHeaders(headers http.Header) []Finding {
	var findings []Finding
	for _, rule := range headerRules {
		if headerPresent(headers, rule.Names...) {
			continue
		}
		findings = append(findings, Finding{
			Severity:       rule.Severity,
			Category:       rule.Category,
			Message:        rule.Message,
			Recommendation: rule.Recommendation,
			Points:         rule.Points,
		})
	}
	return findings
}

// headerPresent matches names case-insensitively, including map keys that
// were stored without canonicalisation.
func headerPresent(headers http.Header, names ...string) bool {
	for _, name := range names {
		if len(headers.Values(name)) > 0 {
			return true
		}
		for key := range headers {
			if strings.EqualFold(key, name) {
				return true
			}
		}
	}
	return false
}

// checkCookies inspects each stored cookie for Secure, HttpOnly and SameSite.
func checkCookies(cookies []CookieAttributes) []Finding {
	var findings []Finding
	for _, attrs := range cookies {
		if !attrs.Secure {
			findings = append(findings, Finding{
				Severity:       SeverityHigh,
				Category:       cookieCategory,
				Message:        fmt.Sprintf("Cookie %q missing Secure flag", attrs.Name),
				Recommendation: "Set Secure flag on cookies to ensure they are only sent over HTTPS.",
				Points:         cookieSecurePoints,
			})
		}
		if !attrs.HTTPOnly {
			findings = append(findings, Finding{
				Severity:       SeverityMedium,
				Category:       cookieCategory,
				Message:        fmt.Sprintf("Cookie %q missing HttpOnly flag", attrs.Name),
				Recommendation: "Set HttpOnly flag on cookies to prevent JavaScript access and XSS attacks.",
				Points:         cookieHTTPOnlyPoints,
			})
		}
		if attrs.SameSite == "" {
			findings = append(findings, Finding{
				Severity:       SeverityLow,
				Category:       cookieCategory,
				Message:        fmt.Sprintf("Cookie %q missing SameSite attribute", attrs.Name),
				Recommendation: "Set SameSite attribute on cookies to prevent CSRF attacks (use Strict or Lax).",
				Points:         cookieSameSitePoints,
			})
		}
	}
	return findings
}
