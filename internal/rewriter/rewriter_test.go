package rewriter_test

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/rohmanhakim/webarchiver/internal/metadata"
	"github.com/rohmanhakim/webarchiver/internal/policy"
	"github.com/rohmanhakim/webarchiver/internal/rewriter"
	"github.com/rohmanhakim/webarchiver/internal/storage"
)

// fakeResolver answers from a fixed url -> local path table and records
// what it was asked for.
type fakeResolver struct {
	mu    sync.Mutex
	paths map[string]string
	seen  map[string]policy.AssetType
}

func newFakeResolver(paths map[string]string) *fakeResolver {
	return &fakeResolver{
		paths: paths,
		seen:  make(map[string]policy.AssetType),
	}
}

func (f *fakeResolver) Resolve(_ context.Context, rawURL string, assetType policy.AssetType, _ string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[rawURL] = assetType
	return f.paths[rawURL]
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid url %q: %v", raw, err)
	}
	return u
}

func rewrite(t *testing.T, resolver *fakeResolver, pageURL string, html string, archived rewriter.ArchivedFunc) string {
	t.Helper()
	w := rewriter.NewRewriter(&metadata.NoopSink{}, resolver, nil)
	out, err := w.RewriteHTML(context.Background(), mustURL(t, pageURL), []byte(html), archived)
	if err != nil {
		t.Fatalf("RewriteHTML failed: %v", err)
	}
	return string(out)
}

func TestRewriteHTML_ImgSrcLocalized(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/img/logo.png": "images/aaaa.png",
	})

	out := rewrite(t, resolver, "https://example.com/page",
		`<html><body><img src="/img/logo.png"></body></html>`, nil)

	if !strings.Contains(out, `src="../images/aaaa.png"`) {
		t.Errorf("img src not localized: %s", out)
	}
	if got := resolver.seen["https://example.com/img/logo.png"]; got != policy.AssetImage {
		t.Errorf("asset type = %q, want image", got)
	}
}

func TestRewriteHTML_FailedAssetAbsolutized(t *testing.T) {
	resolver := newFakeResolver(nil)

	out := rewrite(t, resolver, "https://example.com/docs/page",
		`<html><body><img src="../img/gone.png"></body></html>`, nil)

	if !strings.Contains(out, `src="https://example.com/img/gone.png"`) {
		t.Errorf("failed asset not absolutized: %s", out)
	}
}

func TestRewriteHTML_SrcsetDescriptorsPreserved(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/a.png": "images/a1.png",
		"https://example.com/b.png": "images/b2.png",
	})

	out := rewrite(t, resolver, "https://example.com/",
		`<html><body><img srcset="/a.png 1x, /b.png 2x"></body></html>`, nil)

	if !strings.Contains(out, "../images/a1.png 1x, ../images/b2.png 2x") {
		t.Errorf("srcset descriptors lost: %s", out)
	}
}

func TestRewriteHTML_LazyAttributes(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/lazy.png": "images/lazy.png",
	})

	out := rewrite(t, resolver, "https://example.com/",
		`<html><body><img data-src="/lazy.png" data-lazy-src="/lazy.png"></body></html>`, nil)

	if strings.Count(out, "../images/lazy.png") != 2 {
		t.Errorf("lazy attributes not rewritten: %s", out)
	}
}

func TestRewriteHTML_DataURIUntouched(t *testing.T) {
	resolver := newFakeResolver(nil)
	const uri = "data:image/gif;base64,R0lGOD"

	out := rewrite(t, resolver, "https://example.com/",
		`<html><body><img src="`+uri+`"></body></html>`, nil)

	if !strings.Contains(out, uri) {
		t.Errorf("data URI was rewritten: %s", out)
	}
	if len(resolver.seen) != 0 {
		t.Errorf("resolver called for data URI: %v", resolver.seen)
	}
}

func TestRewriteHTML_StylesheetAndScript(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/site.css": "css/site.css",
		"https://example.com/app.js":   "js/app.js",
	})

	out := rewrite(t, resolver, "https://example.com/",
		`<html><head>
			<link rel="stylesheet" href="/site.css">
			<script src="/app.js"></script>
		</head><body></body></html>`, nil)

	if !strings.Contains(out, `href="../css/site.css"`) {
		t.Errorf("stylesheet not localized: %s", out)
	}
	if !strings.Contains(out, `src="../js/app.js"`) {
		t.Errorf("script not localized: %s", out)
	}
	if resolver.seen["https://example.com/site.css"] != policy.AssetCSS {
		t.Errorf("stylesheet type = %q", resolver.seen["https://example.com/site.css"])
	}
	if resolver.seen["https://example.com/app.js"] != policy.AssetJS {
		t.Errorf("script type = %q", resolver.seen["https://example.com/app.js"])
	}
}

func TestRewriteCSS_QuoteVariants(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/f.woff2": "fonts/f.woff2",
		"https://example.com/bg.png":  "images/bg.png",
	})
	w := rewriter.NewRewriter(&metadata.NoopSink{}, resolver, nil)

	css := `@font-face { src: url('/f.woff2'); } body { background: url(/bg.png); } .x { background: url("/bg.png"); }`
	out := w.RewriteCSS(context.Background(), mustURL(t, "https://example.com/"), css)

	if !strings.Contains(out, `url("../fonts/f.woff2")`) {
		t.Errorf("single-quoted font url not normalized to double quotes: %s", out)
	}
	if strings.Count(out, `url("../images/bg.png")`) != 2 {
		t.Errorf("bare and double-quoted urls not both normalized to double quotes: %s", out)
	}
	if resolver.seen["https://example.com/f.woff2"] != policy.AssetFont {
		t.Errorf("woff2 classified as %q, want font", resolver.seen["https://example.com/f.woff2"])
	}
}

func TestRewriteCSS_WhitespaceInsideParens(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/a.png": "images/a1.png",
	})
	w := rewriter.NewRewriter(&metadata.NoopSink{}, resolver, nil)

	out := w.RewriteCSS(context.Background(), mustURL(t, "https://example.com/"),
		`body { background: url( /a.png ) }`)

	if !strings.Contains(out, `url("../images/a1.png")`) {
		t.Errorf("whitespace-padded url not rewritten: %s", out)
	}
	if strings.Contains(out, "/a.png") {
		t.Errorf("live url left in rewritten css: %s", out)
	}
}

func TestRewriteHTML_InlineStyle(t *testing.T) {
	resolver := newFakeResolver(map[string]string{
		"https://example.com/bg.png": "images/bg.png",
	})

	out := rewrite(t, resolver, "https://example.com/",
		`<html><body><div style="background: url(/bg.png)">x</div></body></html>`, nil)

	// The attribute serializer escapes the double quotes.
	if !strings.Contains(out, "url(&#34;../images/bg.png&#34;)") {
		t.Errorf("inline style url not rewritten: %s", out)
	}
}

func TestRewriteHTML_Anchors(t *testing.T) {
	archivedURL := "https://example.com/two"
	archived := func(canonical string) bool { return canonical == archivedURL }

	out := rewrite(t, newFakeResolver(nil), "https://example.com/one",
		`<html><body>
			<a href="/two">archived</a>
			<a href="/elsewhere">external</a>
			<a href="mailto:x@example.com">mail</a>
			<a href="#frag">frag</a>
		</body></html>`, archived)

	wantLocal := policy.Digest(archivedURL) + ".html"
	if !strings.Contains(out, `href="`+wantLocal+`"`) {
		t.Errorf("archived anchor not localized to %s: %s", wantLocal, out)
	}
	if !strings.Contains(out, `href="https://example.com/elsewhere"`) {
		t.Errorf("unarchived anchor not absolutized: %s", out)
	}
	if !strings.Contains(out, `href="mailto:x@example.com"`) {
		t.Errorf("mailto anchor touched: %s", out)
	}
	if !strings.Contains(out, `href="#frag"`) {
		t.Errorf("fragment anchor touched: %s", out)
	}
}

func TestFixupLinks_LocalizesAndReachesFixedPoint(t *testing.T) {
	store := storage.NewRunStore(t.TempDir(), &metadata.NoopSink{})
	pageURL := "https://example.com/one"
	targetURL := "https://example.com/two"
	digest := policy.Digest(pageURL)

	result, err := store.WritePage(digest, "text/html",
		[]byte(`<html><body><a href="`+targetURL+`">t</a></body></html>`))
	if err != nil {
		t.Fatalf("WritePage failed: %v", err)
	}

	pages := map[string]metadata.PageRecord{
		pageURL: {URL: pageURL, Filepath: result.RelPath()},
	}
	archived := func(canonical string) bool {
		return canonical == pageURL || canonical == targetURL
	}

	w := rewriter.NewRewriter(&metadata.NoopSink{}, newFakeResolver(nil), nil)

	if updated := w.FixupLinks(store, pages, archived); updated != 1 {
		t.Fatalf("first fixup updated %d pages, want 1", updated)
	}

	data, readErr := store.ReadFile(result.RelPath())
	if readErr != nil {
		t.Fatalf("ReadFile failed: %v", readErr)
	}
	wantLocal := policy.Digest(targetURL) + ".html"
	if !strings.Contains(string(data), `href="`+wantLocal+`"`) {
		t.Errorf("anchor not localized after fixup: %s", data)
	}

	// A second pass must change nothing.
	if updated := w.FixupLinks(store, pages, archived); updated != 0 {
		t.Errorf("second fixup updated %d pages, want 0", updated)
	}
}

func TestRewriteHTML_RoundTripStable(t *testing.T) {
	imgURL := "https://example.com/img/logo.png"
	bgURL := "https://example.com/bg.png"
	pageURL := "https://example.com/one"
	targetURL := "https://example.com/two"

	resolver := newFakeResolver(map[string]string{
		imgURL: "images/" + policy.Digest(imgURL) + ".png",
		bgURL:  "images/" + policy.Digest(bgURL) + ".png",
	})
	archived := func(canonical string) bool { return canonical == targetURL }

	html := `<html><head><style>body { background: url(/bg.png) }</style></head><body>
		<img src="/img/logo.png">
		<div style="background: url(/bg.png)">x</div>
		<a href="/two">t</a>
	</body></html>`

	first := rewrite(t, resolver, pageURL, html, archived)

	// Feeding a stored page back through the rewriter must change
	// nothing and must not download anything.
	second := newFakeResolver(nil)
	out := rewrite(t, second, pageURL, first, archived)

	if out != first {
		t.Errorf("second rewrite changed the document:\nfirst:  %s\nsecond: %s", first, out)
	}
	if len(second.seen) != 0 {
		t.Errorf("second rewrite resolved assets again: %v", second.seen)
	}
}
