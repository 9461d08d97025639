package rewriter

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/rohmanhakim/webarchiver/internal/policy"
	"github.com/rohmanhakim/webarchiver/pkg/urlutil"
)

// cssURLPattern matches url(...) tokens with or without quotes.
var cssURLPattern = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)

// fontMarkers inside a url() token select the font subdirectory instead
// of the image default.
var fontMarkers = []string{".woff", ".ttf", ".eot", ".otf"}

// RewriteCSS rewrites url() references in CSS text to stored local
// paths. Applied to <style> tags and style attributes; references that
// fail to download keep their original token. Quoting and interior
// whitespace of the source token do not matter: every rewritten token
// comes out as url("../path").
func (w *Rewriter) RewriteCSS(ctx context.Context, base *url.URL, css string) string {
	resolved := make(map[string]string)
	return cssURLPattern.ReplaceAllStringFunc(css, func(token string) string {
		ref := strings.TrimSpace(cssURLPattern.FindStringSubmatch(token)[1])
		if ref == "" || strings.HasPrefix(ref, "data:") || localAssetPattern.MatchString(ref) {
			return token
		}

		local, done := resolved[ref]
		if !done {
			local = w.resolveCSSRef(ctx, base, ref)
			resolved[ref] = local
		}
		if local == "" {
			return token
		}
		return `url("../` + local + `")`
	})
}

// resolveCSSRef downloads one url() reference, returning its stored
// run-relative path or empty when the token must stay as written.
func (w *Rewriter) resolveCSSRef(ctx context.Context, base *url.URL, ref string) string {
	target, ok := urlutil.Resolve(base, ref)
	if !ok || (target.Scheme != "http" && target.Scheme != "https") {
		return ""
	}

	assetType := policy.AssetImage
	lower := strings.ToLower(ref)
	for _, marker := range fontMarkers {
		if strings.Contains(lower, marker) {
			assetType = policy.AssetFont
			break
		}
	}
	return w.resolver.Resolve(ctx, target.String(), assetType, base.String())
}
