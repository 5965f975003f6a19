package extract

import (
	"fmt"
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// blockSelector lists elements whose text must not run into the next block.
const blockSelector = "p, li, br, pre, blockquote, tr, h1, h2, h3, h4, h5, h6"

// PlainText converts a Reddit body_html value to plain text. Reddit stores the
// markup entity-escaped, so it is unescaped before parsing. Whitespace runs are
// collapsed to single spaces.
func PlainText(bodyHTML string) (string, error) {
	if strings.TrimSpace(bodyHTML) == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html.UnescapeString(bodyHTML)))
	if err != nil {
		return "", fmt.Errorf("parse body html: %w", err)
	}

	doc.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}
