package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"

	"github.com/IshaanNene/ScrapeGoat-And-ArchEnemy/internal/types"
)

// DefaultParser is the "parse" callback a spider falls back to when it
// registers none of its own: it lifts the page title into an Item via
// goquery (types.Response.Document) and discovers same-page anchors via
// an htmlquery XPath query, classifying each into the Request/Item
// output split a real parser returns.
func DefaultParser() Parser {
	return func(_ context.Context, resp *types.Response) ([]Output, error) {
		var outputs []Output

		if doc, err := resp.Document(); err == nil {
			title := strings.TrimSpace(doc.Find("title").First().Text())
			if title != "" {
				item := types.NewItem(resp.FinalURL)
				item.Set("title", title)
				outputs = append(outputs, NewItemOutput(item))
			}
		}

		base, err := url.Parse(resp.FinalURL)
		if err != nil || base.String() == "" {
			if resp.Request != nil {
				base = resp.Request.URL
			}
		}

		root, err := htmlquery.Parse(bytes.NewReader(resp.Body))
		if err != nil {
			return outputs, nil // link discovery is best-effort, never fatal
		}
		anchors, err := htmlquery.QueryAll(root, "//a[@href]")
		if err != nil {
			return outputs, nil
		}
		for _, a := range anchors {
			href := htmlquery.SelectAttr(a, "href")
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				continue
			}
			resolved, err := resolveLink(base, href)
			if err != nil {
				continue
			}
			req, err := types.NewRequest(resolved)
			if err != nil {
				continue
			}
			outputs = append(outputs, NewRequestOutput(req))
		}
		return outputs, nil
	}
}

func resolveLink(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	if base == nil {
		if !ref.IsAbs() {
			return "", fmt.Errorf("relative href %q with no base", href)
		}
		return ref.String(), nil
	}
	return base.ResolveReference(ref).String(), nil
}
