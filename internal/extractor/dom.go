package extractor

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

/*
Responsibilities
- Parse HTML into a DOM tree
- Collect outbound page links (<a>, <area>)
- Absolutize every reference against the page URL

Extraction runs on the ORIGINAL fetched HTML, never on the rewritten
snapshot; rewriting replaces hrefs with local paths that must not feed
back into the frontier.
*/

type LinkExtractor struct {
	metadataSink metadata.MetadataSink
}

func NewLinkExtractor(metadataSink metadata.MetadataSink) LinkExtractor {
	return LinkExtractor{
		metadataSink: metadataSink,
	}
}

// ExtractLinks returns the absolute URLs of every <a href> and
// <area href> in document order, deduplicated, fragments stripped.
// Non-navigational schemes (javascript:, mailto:, tel:) are dropped.
func (e *LinkExtractor) ExtractLinks(pageURL *url.URL, htmlBytes []byte) ([]string, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		extractionErr := &ExtractionError{
			Message:   fmt.Sprintf("failed to parse HTML: %v", err),
			Retryable: false,
			Cause:     ErrCauseNotHTML,
		}
		e.metadataSink.RecordError(
			time.Now(),
			"extractor",
			"LinkExtractor.ExtractLinks",
			mapExtractionErrorToMetadataCause(extractionErr),
			extractionErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, pageURL.String()),
			},
		)
		return nil, extractionErr
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "javascript:") ||
			strings.HasPrefix(lower, "mailto:") ||
			strings.HasPrefix(lower, "tel:") {
			return
		}

		resolved, ok := urlutil.Resolve(pageURL, href)
		if !ok {
			return
		}
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}

		canonical := urlutil.Canonicalize(*resolved)
		link := canonical.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})

	return links, nil
}
