package ports

import (
	"context"

	"archie-core-dam-sync/internal/domain"
)

// AssetFilter narrows a DAM catalog listing
type AssetFilter struct {
	Tags []string
}

// AssetPage is one page of a DAM catalog listing
type AssetPage struct {
	Items    []domain.Asset
	Rejected []RejectedItem
	Fetched  int // Raw items the DAM returned, rejected ones included
	Total    int
}

// RejectedItem is a listing entry that could not be turned into an asset
type RejectedItem struct {
	Position int
	Message  string
}

// Size is the number of entries the DAM returned on this page
func (p *AssetPage) Size() int {
	if p.Fetched > 0 {
		return p.Fetched
	}
	return len(p.Items) + len(p.Rejected)
}

// DAMClient defines the DAM operations the sync engine consumes
type DAMClient interface {
	ListAssets(ctx context.Context, filter AssetFilter, page int, limit int) (*AssetPage, error)
	GetAsset(ctx context.Context, assetID string) (*domain.Asset, error)
}

// DAMClientFactory builds a DAM client for a shop's tenant
type DAMClientFactory interface {
	ForShop(shop *domain.Shop) (DAMClient, error)
}

// SignatureVerifier checks an inbound webhook signature against a shared secret
type SignatureVerifier interface {
	Verify(secret string, body []byte, signature string) error
}
