package application

import (
	"context"
	"fmt"
	"slices"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"
)

// EncryptedShopRepository seals shop secrets on write and opens them on read,
// so the backing store only ever holds ciphertext
type EncryptedShopRepository struct {
	repo ports.ShopRepository
	enc  ports.EncryptionService
}

// NewEncryptedShopRepository wraps repo with enc
func NewEncryptedShopRepository(repo ports.ShopRepository, enc ports.EncryptionService) *EncryptedShopRepository {
	return &EncryptedShopRepository{repo: repo, enc: enc}
}

// SaveShop encrypts the shop's secrets and saves it. The caller's shop keeps its plaintext.
func (r *EncryptedShopRepository) SaveShop(ctx context.Context, shop *domain.Shop) error {
	sealed := *shop
	sealed.SyncTags = slices.Clone(shop.SyncTags)
	for _, f := range secretFields(&sealed) {
		if *f.value == "" {
			continue
		}
		v, err := r.enc.Encrypt(*f.value)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s: %w", f.name, err)
		}
		*f.value = v
	}
	if err := r.repo.SaveShop(ctx, &sealed); err != nil {
		return err
	}
	shop.ID = sealed.ID
	shop.CreatedAt = sealed.CreatedAt
	shop.UpdatedAt = sealed.UpdatedAt
	return nil
}

// GetShop returns a shop with its secrets decrypted, or nil when it does not exist
func (r *EncryptedShopRepository) GetShop(ctx context.Context, shopID string) (*domain.Shop, error) {
	shop, err := r.repo.GetShop(ctx, shopID)
	if err != nil || shop == nil {
		return shop, err
	}
	if err := r.open(shop); err != nil {
		return nil, err
	}
	return shop, nil
}

// ListShops returns all shops with their secrets decrypted
func (r *EncryptedShopRepository) ListShops(ctx context.Context) ([]*domain.Shop, error) {
	shops, err := r.repo.ListShops(ctx)
	if err != nil {
		return nil, err
	}
	for _, shop := range shops {
		if err := r.open(shop); err != nil {
			return nil, err
		}
	}
	return shops, nil
}

func (r *EncryptedShopRepository) open(shop *domain.Shop) error {
	for _, f := range secretFields(shop) {
		if *f.value == "" {
			continue
		}
		v, err := r.enc.Decrypt(*f.value)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s of shop %s: %w: %v", f.name, shop.ID, domain.ErrConfiguration, err)
		}
		*f.value = v
	}
	return nil
}

type secretField struct {
	name  string
	value *string
}

func secretFields(shop *domain.Shop) []secretField {
	return []secretField{
		{"access token", &shop.AccessToken},
		{"DAM API token", &shop.DAM.APIToken},
		{"webhook secret", &shop.DAM.WebhookSecret},
	}
}
