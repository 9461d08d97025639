package rewriter

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/storage"
)

/*
During the crawl a page can link to a page that has not been stored
yet, so its anchor stays absolute. FixupLinks runs after the frontier
drains, when the archived set is final, and localizes those anchors
in place. Asset references are already final and are not touched.
*/

// FixupLinks re-reads every stored HTML page and localizes anchors
// whose targets ended up archived. Returns the number of pages whose
// content changed. Per-page failures are logged and skipped.
func (w *Rewriter) FixupLinks(store storage.Store, pages map[string]metadata.PageRecord, archived ArchivedFunc) int {
	updated := 0
	for _, page := range pages {
		if !strings.HasSuffix(page.Filepath, ".html") {
			continue
		}

		pageURL, err := url.Parse(page.URL)
		if err != nil {
			w.logger.Warn("fixup skipped page with unparseable url",
				zap.String("url", page.URL))
			continue
		}

		data, readErr := store.ReadFile(page.Filepath)
		if readErr != nil {
			w.logger.Warn("fixup could not read stored page",
				zap.String("filepath", page.Filepath),
				zap.String("error", readErr.Error()))
			continue
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			w.logger.Warn("fixup could not parse stored page",
				zap.String("filepath", page.Filepath))
			continue
		}

		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			w.rewriteAnchor(sel, pageURL, archived)
		})

		rendered, err := doc.Html()
		if err != nil {
			w.logger.Warn("fixup could not render page",
				zap.String("filepath", page.Filepath))
			continue
		}
		if rendered == string(data) {
			continue
		}

		if writeErr := store.WriteFile(page.Filepath, []byte(rendered)); writeErr != nil {
			w.logger.Warn("fixup could not write page",
				zap.String("filepath", page.Filepath),
				zap.String("error", writeErr.Error()))
			continue
		}
		updated++
	}
	return updated
}
