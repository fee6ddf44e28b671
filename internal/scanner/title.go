package scanner

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// extractTitle returns the text of the first <title> element, or "".
func extractTitle(r io.Reader) string {
	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if string(name) != "title" {
				continue
			}
			if tokenizer.Next() != html.TextToken {
				return ""
			}
			return strings.Join(strings.Fields(string(tokenizer.Text())), " ")
		}
	}
}
