package scanner

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var cookieNow = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func cookieNames(cookies []CookieAttributes) []string {
	out := make([]string, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, c.Name)
	}
	return out
}

func TestCheckCookies(t *testing.T) {
	findings := checkCookies(AnalyzeCookies([]string{
		"session=abc123; Path=/",
		"prefs=dark; Path=/; Secure; HttpOnly; SameSite=Lax",
		"csrftoken=x; Secure; SameSite=",
	}, "https://example.com/", cookieNow))

	want := []Finding{
		{
			Severity:       SeverityHigh,
			Category:       "Cookie Security",
			Message:        `Cookie "session" missing Secure flag`,
			Recommendation: "Set Secure flag on cookies to ensure they are only sent over HTTPS.",
			Points:         10,
		},
		{
			Severity:       SeverityMedium,
			Category:       "Cookie Security",
			Message:        `Cookie "session" missing HttpOnly flag`,
			Recommendation: "Set HttpOnly flag on cookies to prevent JavaScript access and XSS attacks.",
			Points:         8,
		},
		{
			Severity:       SeverityLow,
			Category:       "Cookie Security",
			Message:        `Cookie "session" missing SameSite attribute`,
			Recommendation: "Set SameSite attribute on cookies to prevent CSRF attacks (use Strict or Lax).",
			Points:         5,
		},
		{
			Severity:       SeverityMedium,
			Category:       "Cookie Security",
			Message:        `Cookie "csrftoken" missing HttpOnly flag`,
			Recommendation: "Set HttpOnly flag on cookies to prevent JavaScript access and XSS attacks.",
			Points:         8,
		},
		{
			Severity:       SeverityLow,
			Category:       "Cookie Security",
			Message:        `Cookie "csrftoken" missing SameSite attribute`,
			Recommendation: "Set SameSite attribute on cookies to prevent CSRF attacks (use Strict or Lax).",
			Points:         5,
		},
	}

	if diff := cmp.Diff(want, findings); diff != "" {
		t.Fatalf("cookie findings mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeCookies_SkipsUnusableLines(t *testing.T) {
	lines := []string{
		"",
		"=novalue",
		" ; Secure",
		"p=1; Path",
		"m=1; Max-Age=soon",
		"d=1; Domain=",
	}
	if got := AnalyzeCookies(lines, "https://example.com/", cookieNow); len(got) != 0 {
		t.Fatalf("expected unusable Set-Cookie lines to be ignored, got %+v", got)
	}
}

func TestAnalyzeCookies_DropsDeletionRequests(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "max-age zero", line: "gone=; Max-Age=0"},
		{name: "negative max-age", line: "gone=; Max-Age=-1"},
		{name: "expires in the past", line: "old=1; Expires=Thu, 01 Jan 1970 00:00:00 GMT"},
		{name: "legacy expires format", line: "old=1; expires=Thu, 01-Jan-1970 00:00:01 GMT; path=/"},
		{name: "max-age wins over future expires", line: "gone=1; Expires=Wed, 01 Jan 2099 00:00:00 GMT; Max-Age=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeCookies([]string{tt.line}, "https://example.com/", cookieNow)
			if len(got) != 0 {
				t.Fatalf("expected deletion request to be dropped, got %+v", got)
			}
			if findings := checkCookies(got); len(findings) != 0 {
				t.Fatalf("expected no findings, got %d", len(findings))
			}
		})
	}
}

func TestAnalyzeCookies_KeepsLiveExpiry(t *testing.T) {
	got := AnalyzeCookies([]string{
		"future=1; Expires=Wed, 01 Jan 2099 00:00:00 GMT",
		"short=1; Max-Age=60",
		"garbled=1; Expires=tomorrow",
		"late=1; Max-Age=0; Max-Age=3600",
	}, "https://example.com/", cookieNow)

	want := []string{"future", "short", "garbled", "late"}
	if diff := cmp.Diff(want, cookieNames(got)); diff != "" {
		t.Fatalf("kept cookies mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeCookies_DeletionRemovesEarlierCookie(t *testing.T) {
	got := AnalyzeCookies([]string{
		"a=1; Path=/",
		"b=1; Path=/",
		"a=; Path=/; Max-Age=0",
		"a=2; Path=/",
	}, "https://example.com/", cookieNow)

	if diff := cmp.Diff([]string{"b", "a"}, cookieNames(got)); diff != "" {
		t.Fatalf("cookie order mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeCookies_LenientNamesAndValues(t *testing.T) {
	got := AnalyzeCookies([]string{
		"cart[1]=x; Path=/",
		`json={"a":1}`,
		`quoted="a\b"`,
		"café=crème",
		"no-equals-sign",
	}, "https://example.com/", cookieNow)

	want := []string{"cart[1]", "json", "quoted", "café", "no-equals-sign"}
	if diff := cmp.Diff(want, cookieNames(got)); diff != "" {
		t.Fatalf("cookie names mismatch (-want +got):\n%s", diff)
	}
	if findings := checkCookies(got[:1]); len(findings) != 3 {
		t.Fatalf("expected 3 findings for cart[1], got %d", len(findings))
	}
}

func TestAnalyzeCookies_DeduplicatesLastWins(t *testing.T) {
	got := AnalyzeCookies([]string{
		"dup=1",
		"other=1; Secure; HttpOnly; SameSite=Strict",
		"dup=2; Secure",
		"dup=3; Path=/account",
	}, "https://example.com/", cookieNow)

	want := []CookieAttributes{
		{Name: "dup", Secure: true},
		{Name: "other", Secure: true, HTTPOnly: true, SameSite: "Strict"},
		{Name: "dup"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("deduplicated cookies mismatch (-want +got):\n%s", diff)
	}

	if findings := checkCookies(AnalyzeCookies([]string{"dup=1", "dup=2"}, "https://example.com/", cookieNow)); len(findings) != 3 {
		t.Fatalf("expected one cookie worth of findings, got %d", len(findings))
	}
}

func TestAnalyzeCookies_DefaultPathFromURL(t *testing.T) {
	got := AnalyzeCookies([]string{
		"a=1",
		"a=2; Path=/shop",
	}, "https://example.com/shop/cart", cookieNow)

	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("expected the default path /shop to merge both lines, got %+v", got)
	}
}

func TestAnalyzeCookies_DomainPolicy(t *testing.T) {
	tests := []struct {
		name string
		line string
		host string
		keep bool
	}{
		{name: "host only", line: "a=1", host: "https://www.example.com/", keep: true},
		{name: "parent domain", line: "a=1; Domain=example.com", host: "https://www.example.com/", keep: true},
		{name: "leading dot", line: "a=1; Domain=.Example.com", host: "https://www.example.com/", keep: true},
		{name: "exact host", line: "a=1; Domain=www.example.com", host: "https://www.example.com/", keep: true},
		{name: "foreign domain", line: "a=1; Domain=tracker.net", host: "https://www.example.com/", keep: false},
		{name: "sibling host", line: "a=1; Domain=api.example.com", host: "https://www.example.com/", keep: false},
		{name: "suffix without dot boundary", line: "a=1; Domain=ample.com", host: "https://www.example.com/", keep: false},
		{name: "public suffix", line: "a=1; Domain=co.uk", host: "https://shop.example.co.uk/", keep: false},
		{name: "top level domain", line: "a=1; Domain=com", host: "https://www.example.com/", keep: false},
		{name: "unknown host", line: "a=1; Domain=example.com", host: "", keep: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeCookies([]string{tt.line}, tt.host, cookieNow)
			if kept := len(got) == 1; kept != tt.keep {
				t.Fatalf("kept = %v, want %v (%+v)", kept, tt.keep, got)
			}
		})
	}
}

func TestAnalyzeCookies_Attributes(t *testing.T) {
	got := AnalyzeCookies([]string{
		"a=1; SECURE; httponly; samesite=lax",
		"b=1; SameSite",
		"c=1; SameSite=Strict; SameSite=None",
	}, "https://example.com/", cookieNow)

	want := []CookieAttributes{
		{Name: "a", Secure: true, HTTPOnly: true, SameSite: "lax"},
		{Name: "b"},
		{Name: "c", SameSite: "None"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("cookie attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_UsesFetchTimeForExpiry(t *testing.T) {
	resp := &Response{
		FinalURL:   "https://example.com/",
		Header:     secureHeaders(),
		SetCookies: []string{"promo=1; Expires=Sat, 01 Mar 2025 13:00:00 GMT"},
		FetchedAt:  cookieNow,
	}
	if findings := Evaluate(resp); len(findings) != 3 {
		t.Fatalf("expected a live cookie at fetch time, got %d findings", len(findings))
	}

	resp.FetchedAt = cookieNow.Add(2 * time.Hour)
	if findings := Evaluate(resp); len(findings) != 0 {
		t.Fatalf("expected an expired cookie to be ignored, got %d findings", len(findings))
	}
}
