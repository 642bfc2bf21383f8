package application

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
)

// ShopInput carries connection settings for a shop. Empty fields keep their stored value.
type ShopInput struct {
	Domain        string   `json:"domain"`
	AccessToken   string   `json:"accessToken"`
	DAMBaseURL    string   `json:"damBaseUrl"`
	DAMAPIToken   string   `json:"damApiToken"`
	WebhookSecret string   `json:"webhookSecret"`
	SyncTags      []string `json:"syncTags"`
	SyncEnabled   *bool    `json:"syncEnabled"`
}

// ShopService manages shop connection settings
type ShopService struct {
	shops  ports.ShopRepository
	logger zerolog.Logger
}

// NewShopService creates a new shop service
func NewShopService(shops ports.ShopRepository, logger zerolog.Logger) *ShopService {
	return &ShopService{shops: shops, logger: logger}
}

// Connect creates or updates a shop's connection settings
func (s *ShopService) Connect(ctx context.Context, shopID string, in ShopInput) (*domain.Shop, error) {
	shopID = strings.TrimSpace(shopID)
	if shopID == "" {
		return nil, fmt.Errorf("shop id is required: %w", domain.ErrInvalidArgument)
	}

	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		shop = &domain.Shop{ID: shopID, SyncEnabled: true}
	}

	if v := strings.TrimSpace(in.Domain); v != "" {
		shop.Domain = v
	}
	if in.AccessToken != "" {
		shop.AccessToken = in.AccessToken
	}
	if v := strings.TrimSpace(in.DAMBaseURL); v != "" {
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("damBaseUrl must be an absolute http(s) URL: %w", domain.ErrInvalidArgument)
		}
		shop.DAM.BaseURL = strings.TrimRight(v, "/")
	}
	if in.DAMAPIToken != "" {
		shop.DAM.APIToken = in.DAMAPIToken
	}
	if in.WebhookSecret != "" {
		shop.DAM.WebhookSecret = in.WebhookSecret
	}
	if in.SyncTags != nil {
		shop.SyncTags = dedupe(in.SyncTags)
	}
	if in.SyncEnabled != nil {
		shop.SyncEnabled = *in.SyncEnabled
	}

	if shop.Domain == "" {
		return nil, fmt.Errorf("domain is required: %w", domain.ErrInvalidArgument)
	}

	if err := s.shops.SaveShop(ctx, shop); err != nil {
		return nil, fmt.Errorf("failed to save shop: %w", err)
	}
	s.logger.Info().
		Str("shopId", shop.ID).
		Str("domain", shop.Domain).
		Bool("damConfigured", shop.DAMConfigured()).
		Msg("Shop connection saved")
	return shop, nil
}

// Get returns a shop or domain.ErrNotFound
func (s *ShopService) Get(ctx context.Context, shopID string) (*domain.Shop, error) {
	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}
	return shop, nil
}
