package fetcher

import (
	"context"

	"github.com/rohmanhakim/webarchiver/pkg/failure"
)

// Fetcher is the HTTP boundary consumed by the scheduler and the asset
// resolver. Page and asset fetches differ only in their header profile;
// the minimal variant exists for hosts that reject the full asset
// profile with 403.
type Fetcher interface {
	FetchPage(ctx context.Context, pageURL string, referer string) (FetchResult, failure.ClassifiedError)
	FetchAsset(ctx context.Context, assetURL string, referer string) (FetchResult, failure.ClassifiedError)
	FetchAssetMinimal(ctx context.Context, assetURL string) (FetchResult, failure.ClassifiedError)
}
