package rewriter

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/policy"
	"github.com/rohmanhakim/webarchiver/pkg/failure"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

/*
Responsibilities
- Rewrite asset references in stored HTML to run-local paths
- Rewrite url() tokens inside <style> tags and style attributes
- Rewrite anchors to local page files when the target is archived

Rewrite Rules
- Stored assets are referenced as ../{subdir}/{digest}{ext}, relative
  to the html/ directory
- References that could not be downloaded are absolutized instead
- data: URIs are left untouched
- srcset entries keep their width/density descriptors
*/

// assetAttributes are inspected on image-bearing elements, in order.
var assetAttributes = []string{"src", "srcset", "data-src", "data-srcset", "data-lazy-src"}

// AssetResolver maps an absolute asset URL to a stored run-relative
// path, downloading on first sight. Empty string means unavailable.
type AssetResolver interface {
	Resolve(ctx context.Context, rawURL string, assetType policy.AssetType, referer string) string
}

// ArchivedFunc reports whether a canonical page URL was stored in this
// run. Anchors to archived pages become local hrefs.
type ArchivedFunc func(canonicalURL string) bool

// Rewriter localizes one run's HTML snapshots.
type Rewriter struct {
	metadataSink metadata.MetadataSink
	resolver     AssetResolver
	logger       *zap.Logger
}

func NewRewriter(metadataSink metadata.MetadataSink, resolver AssetResolver, logger *zap.Logger) *Rewriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{
		metadataSink: metadataSink,
		resolver:     resolver,
		logger:       logger,
	}
}

// RewriteHTML returns the page HTML with asset references pointed at
// stored copies and anchors localized where possible. The input bytes
// are never mutated; on parse failure the caller stores the original.
func (w *Rewriter) RewriteHTML(ctx context.Context, pageURL *url.URL, htmlBytes []byte, archived ArchivedFunc) ([]byte, failure.ClassifiedError) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(htmlBytes))
	if err != nil {
		return nil, w.parseFailure(pageURL, err)
	}

	base := pageURL.String()

	// Image-bearing elements, including lazy-loading attribute variants.
	doc.Find("img, picture, picture > source").Each(func(_ int, sel *goquery.Selection) {
		w.rewriteAssetAttributes(ctx, sel, pageURL, base, policy.AssetImage)
	})

	// Stylesheets and font preloads.
	doc.Find("link[href]").Each(func(_ int, sel *goquery.Selection) {
		rel, _ := sel.Attr("rel")
		rel = strings.ToLower(rel)
		switch {
		case strings.Contains(rel, "stylesheet"):
			w.rewriteSingleAttr(ctx, sel, "href", pageURL, base, policy.AssetCSS)
		case strings.Contains(rel, "font"):
			w.rewriteSingleAttr(ctx, sel, "href", pageURL, base, policy.AssetFont)
		case strings.Contains(rel, "icon"):
			w.rewriteSingleAttr(ctx, sel, "href", pageURL, base, policy.AssetImage)
		}
	})

	// Scripts.
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		w.rewriteSingleAttr(ctx, sel, "src", pageURL, base, policy.AssetJS)
	})

	// Video and audio, including their <source> children.
	doc.Find("video[src], audio[src], video > source[src], audio > source[src]").Each(func(_ int, sel *goquery.Selection) {
		w.rewriteSingleAttr(ctx, sel, "src", pageURL, base, policy.AssetMedia)
	})

	// url() references in style tags and inline styles.
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		css := sel.Text()
		if strings.TrimSpace(css) == "" {
			return
		}
		sel.SetText(w.RewriteCSS(ctx, pageURL, css))
	})
	doc.Find("[style]").Each(func(_ int, sel *goquery.Selection) {
		style, _ := sel.Attr("style")
		if style == "" {
			return
		}
		sel.SetAttr("style", w.RewriteCSS(ctx, pageURL, style))
	})

	// Anchors last, so asset rewriting never sees localized hrefs.
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		w.rewriteAnchor(sel, pageURL, archived)
	})

	rendered, err := doc.Html()
	if err != nil {
		rewriteErr := &RewriteError{
			Message:   fmt.Sprintf("failed to render document: %v", err),
			Retryable: false,
			Cause:     ErrCauseSerializeFailure,
		}
		w.recordError(pageURL, rewriteErr)
		return nil, rewriteErr
	}
	return []byte(rendered), nil
}

// rewriteAssetAttributes handles the attribute family carried by image
// elements. srcset attributes hold comma-separated candidates whose
// descriptors must survive the rewrite.
func (w *Rewriter) rewriteAssetAttributes(ctx context.Context, sel *goquery.Selection, pageURL *url.URL, referer string, fallbackType policy.AssetType) {
	for _, attr := range assetAttributes {
		val, ok := sel.Attr(attr)
		if !ok || strings.TrimSpace(val) == "" {
			continue
		}
		if strings.Contains(attr, "srcset") {
			sel.SetAttr(attr, w.rewriteSrcset(ctx, val, pageURL, referer, fallbackType))
		} else {
			sel.SetAttr(attr, w.localizeAssetRef(ctx, val, pageURL, referer, fallbackType))
		}
	}
}

func (w *Rewriter) rewriteSingleAttr(ctx context.Context, sel *goquery.Selection, attr string, pageURL *url.URL, referer string, fallbackType policy.AssetType) {
	val, ok := sel.Attr(attr)
	if !ok || strings.TrimSpace(val) == "" {
		return
	}
	sel.SetAttr(attr, w.localizeAssetRef(ctx, val, pageURL, referer, fallbackType))
}

// rewriteSrcset rewrites each candidate URL in a srcset value while
// preserving its width or density descriptor.
func (w *Rewriter) rewriteSrcset(ctx context.Context, srcset string, pageURL *url.URL, referer string, fallbackType policy.AssetType) string {
	parts := strings.Split(srcset, ",")
	rewritten := make([]string, 0, len(parts))
	for _, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		fields[0] = w.localizeAssetRef(ctx, fields[0], pageURL, referer, fallbackType)
		rewritten = append(rewritten, strings.Join(fields, " "))
	}
	return strings.Join(rewritten, ", ")
}

// localizeAssetRef resolves one asset reference. Stored assets become
// html-relative local paths; failures become absolute URLs so the
// snapshot still renders online.
func (w *Rewriter) localizeAssetRef(ctx context.Context, ref string, pageURL *url.URL, referer string, fallbackType policy.AssetType) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || localAssetPattern.MatchString(ref) {
		return ref
	}

	resolved, ok := urlutil.Resolve(pageURL, ref)
	if !ok || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return ref
	}
	absolute := resolved.String()

	assetType := policy.ClassifyAsset(absolute)
	if assetType == policy.AssetNone {
		assetType = fallbackType
	}

	if local := w.resolver.Resolve(ctx, absolute, assetType, referer); local != "" {
		return "../" + local
	}
	return absolute
}

// localPagePattern recognizes an anchor that is already localized to a
// sibling snapshot file. The fixup pass must leave these alone.
var localPagePattern = regexp.MustCompile(`^[0-9a-f]{32}\.html$`)

// localAssetPattern recognizes an asset reference that already points
// at a stored copy. Re-running the rewriter over its own output must
// not resolve these against the page URL and fetch them again.
var localAssetPattern = regexp.MustCompile(`^\.\./[a-z]+/[0-9a-f]{32}\.[A-Za-z0-9]+$`)

// rewriteAnchor localizes a page link. Archived targets point at the
// sibling html file; everything else is absolutized.
func (w *Rewriter) rewriteAnchor(sel *goquery.Selection, pageURL *url.URL, archived ArchivedFunc) {
	href, _ := sel.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return
	}
	if localPagePattern.MatchString(href) {
		return
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return
	}

	resolved, ok := urlutil.Resolve(pageURL, href)
	if !ok || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return
	}

	canonical := urlutil.Canonicalize(*resolved)
	canonicalStr := canonical.String()
	if archived != nil && archived(canonicalStr) {
		sel.SetAttr("href", policy.Digest(canonicalStr)+".html")
		return
	}
	sel.SetAttr("href", resolved.String())
}

func (w *Rewriter) parseFailure(pageURL *url.URL, err error) *RewriteError {
	rewriteErr := &RewriteError{
		Message:   fmt.Sprintf("failed to parse HTML: %v", err),
		Retryable: false,
		Cause:     ErrCauseNotHTML,
	}
	w.recordError(pageURL, rewriteErr)
	return rewriteErr
}

func (w *Rewriter) recordError(pageURL *url.URL, rewriteErr *RewriteError) {
	w.metadataSink.RecordError(
		time.Now(),
		"rewriter",
		"Rewriter.RewriteHTML",
		mapRewriteErrorToMetadataCause(rewriteErr),
		rewriteErr.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, pageURL.String()),
		},
	)
}
