package scanner

import (
	"errors"
	"strings"
	"testing"

	sharedErrors "github.com/webguard-sec/webguard/internal/shared/errors"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "bare host gets https", input: "example.com", want: "https://example.com"},
		{name: "keeps http", input: "http://example.com", want: "http://example.com"},
		{name: "keeps https path", input: "https://example.com/a?b=c", want: "https://example.com/a?b=c"},
		{name: "trims whitespace", input: "  example.com/login \n", want: "https://example.com/login"},
		{name: "scheme is case-insensitive", input: "HTTP://Example.com", want: "HTTP://Example.com"},
		{name: "empty", input: "", wantErr: sharedErrors.ErrEmptyURL},
		{name: "blank", input: "   ", wantErr: sharedErrors.ErrEmptyURL},
		{name: "missing host", input: "https://", wantErr: sharedErrors.ErrInvalidURL},
		{name: "bad escape", input: "example.com/%zz", wantErr: sharedErrors.ErrInvalidURL},
		{name: "too long", input: "example.com/" + strings.Repeat("a", 500), wantErr: sharedErrors.ErrURLTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL_LengthBoundary(t *testing.T) {
	prefix := "https://example.com/"
	exact := prefix + strings.Repeat("a", 500-len(prefix))
	if _, err := NormalizeURL(exact); err != nil {
		t.Fatalf("500 character URL should be accepted: %v", err)
	}
	if _, err := NormalizeURL(exact + "a"); !errors.Is(err, sharedErrors.ErrURLTooLong) {
		t.Fatalf("501 character URL should be rejected, got %v", err)
	}
}

func TestExtractHost(t *testing.T) {
	if got := ExtractHost("https://www.example.com:8443/path"); got != "www.example.com" {
		t.Fatalf("unexpected host %q", got)
	}
	if got := ExtractHost("::not a url"); got != "" {
		t.Fatalf("expected empty host, got %q", got)
	}
}
