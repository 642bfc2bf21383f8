package application

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
)

// SyncResult is the outcome of syncing one asset. Failures are carried in Error, never returned.
type SyncResult struct {
	AssetID string
	Created bool
	Updated bool
	Skipped bool
	Error   *domain.SyncFailure
}

// SyncSession binds a shop to its DAM and file store clients for the length of one operation
type SyncSession struct {
	Shop  *domain.Shop
	DAM   ports.DAMClient
	Files ports.FileStore
	JobID string
}

// AssetSyncService syncs a single DAM asset into the shop's managed file store
type AssetSyncService struct {
	shops      ports.ShopRepository
	damClients ports.DAMClientFactory
	fileStores ports.FileStoreFactory
	observer   ports.Observability
	locker     ports.AssetLocker
	logger     zerolog.Logger
	now        func() time.Time
	lockTTL    time.Duration
	lockWait   time.Duration
}

// NewAssetSyncService creates a new asset sync service. locker may be nil.
func NewAssetSyncService(
	shops ports.ShopRepository,
	damClients ports.DAMClientFactory,
	fileStores ports.FileStoreFactory,
	observer ports.Observability,
	locker ports.AssetLocker,
	logger zerolog.Logger,
) *AssetSyncService {
	return &AssetSyncService{
		shops:      shops,
		damClients: damClients,
		fileStores: fileStores,
		observer:   observer,
		locker:     locker,
		logger:     logger,
		now:        time.Now,
		lockTTL:    2 * time.Minute,
		lockWait:   30 * time.Second,
	}
}

// OpenSession resolves a shop and builds its clients
func (s *AssetSyncService) OpenSession(ctx context.Context, shopID string, jobID string) (*SyncSession, error) {
	shop, err := s.shops.GetShop(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	if shop == nil {
		return nil, fmt.Errorf("shop %s: %w", shopID, domain.ErrNotFound)
	}
	if !shop.DAMConfigured() {
		return nil, fmt.Errorf("shop %s has no DAM base URL or credentials: %w", shopID, domain.ErrConfiguration)
	}

	dam, err := s.damClients.ForShop(shop)
	if err != nil {
		return nil, fmt.Errorf("failed to create DAM client: %w: %v", domain.ErrConfiguration, err)
	}
	files, err := s.fileStores.ForShop(shop)
	if err != nil {
		return nil, fmt.Errorf("failed to create file store client: %w: %v", domain.ErrConfiguration, err)
	}

	return &SyncSession{Shop: shop, DAM: dam, Files: files, JobID: jobID}, nil
}

// SyncAsset fetches the current state of one asset and upserts its managed file
func (s *AssetSyncService) SyncAsset(ctx context.Context, shopID string, assetID string) SyncResult {
	session, err := s.OpenSession(ctx, shopID, "")
	if err != nil {
		kind := domain.ErrConfiguration
		if errors.Is(err, domain.ErrNotFound) {
			kind = domain.ErrSourceFetch
		}
		return SyncResult{
			AssetID: assetID,
			Error:   &domain.SyncFailure{Kind: kind, Reason: domain.ReasonUnknown, Message: err.Error()},
		}
	}
	return s.SyncAssetInSession(ctx, session, assetID)
}

// SyncAssetInSession is SyncAsset against an already opened session
func (s *AssetSyncService) SyncAssetInSession(ctx context.Context, session *SyncSession, assetID string) SyncResult {
	start := time.Now()
	asset, err := session.DAM.GetAsset(ctx, assetID)
	s.observer.RecordAPICall(ctx, session.Shop.ID, session.JobID, "dam", "get_asset", time.Since(start), err)
	if err != nil {
		s.logger.Warn().Err(err).Str("shopId", session.Shop.ID).Str("assetId", assetID).Msg("Failed to fetch asset from DAM")
		return SyncResult{AssetID: assetID, Error: newFailure(domain.ErrSourceFetch, err)}
	}
	if asset == nil {
		return SyncResult{
			AssetID: assetID,
			Error: &domain.SyncFailure{
				Kind:    domain.ErrSourceFetch,
				Reason:  domain.ReasonNotFound,
				Message: fmt.Sprintf("asset %s no longer exists in the DAM", assetID),
			},
		}
	}

	return s.ApplyAsset(ctx, session, asset)
}

// ApplyAsset upserts the managed file for an asset whose current state is already known
func (s *AssetSyncService) ApplyAsset(ctx context.Context, session *SyncSession, asset *domain.Asset) SyncResult {
	result := SyncResult{AssetID: asset.ID}
	log := s.logger.With().Str("shopId", session.Shop.ID).Str("assetId", asset.ID).Logger()

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, session.Shop.ID+":"+asset.ID, s.lockTTL, s.lockWait)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to acquire asset lock")
			result.Error = &domain.SyncFailure{
				Kind:    domain.ErrDestinationWrite,
				Reason:  domain.ReasonUnknown,
				Message: fmt.Sprintf("asset is locked by another sync: %v", err),
			}
			return result
		}
		defer release(context.WithoutCancel(ctx))
	}

	start := time.Now()
	existing, err := session.Files.FindManagedFile(ctx, asset.ID)
	s.observer.RecordAPICall(ctx, session.Shop.ID, session.JobID, "shopify", "find_managed_file", time.Since(start), err)
	if err != nil {
		log.Error().Err(err).Msg("Failed to look up managed file")
		result.Error = newFailure(domain.ErrDestinationWrite, err)
		return result
	}

	metadata := ToDestinationMetadata(asset, s.now())

	if existing == nil {
		if asset.OriginalURL == "" {
			result.Error = &domain.SyncFailure{
				Kind:    domain.ErrSourceFetch,
				Reason:  domain.ReasonValidation,
				Message: fmt.Sprintf("asset %s has no downloadable original", asset.ID),
			}
			return result
		}

		start = time.Now()
		_, err = session.Files.CreateManagedFile(ctx, fileContent(asset), metadata)
		s.observer.RecordAPICall(ctx, session.Shop.ID, session.JobID, "shopify", "create_managed_file", time.Since(start), err)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create managed file")
			result.Error = newFailure(domain.ErrDestinationWrite, err)
			return result
		}
		log.Info().Int64("version", asset.Version).Msg("Created managed file")
		result.Created = true
		return result
	}

	binding := FromDestinationMetadata(existing)
	if binding != nil && binding.AssetID != asset.ID {
		log.Error().Str("fileId", existing.ID).Str("boundAssetId", binding.AssetID).Msg("Managed file is bound to another asset")
		result.Error = &domain.SyncFailure{
			Kind:    domain.ErrDestinationWrite,
			Reason:  domain.ReasonValidation,
			Message: fmt.Sprintf("managed file %s is bound to asset %s", existing.ID, binding.AssetID),
		}
		return result
	}
	if binding != nil && asset.Version <= binding.Version {
		log.Debug().
			Int64("damVersion", asset.Version).
			Int64("boundVersion", binding.Version).
			Msg("Managed file already at current version, skipping")
		result.Skipped = true
		return result
	}

	var content *domain.FileContent
	if asset.OriginalURL != "" {
		c := fileContent(asset)
		content = &c
	}

	start = time.Now()
	_, err = session.Files.UpdateManagedFile(ctx, existing.ID, content, metadata)
	s.observer.RecordAPICall(ctx, session.Shop.ID, session.JobID, "shopify", "update_managed_file", time.Since(start), err)
	if err != nil {
		log.Error().Err(err).Str("fileId", existing.ID).Msg("Failed to update managed file")
		result.Error = newFailure(domain.ErrDestinationWrite, err)
		return result
	}
	log.Info().Str("fileId", existing.ID).Int64("version", asset.Version).Msg("Updated managed file")
	result.Updated = true
	return result
}

func fileContent(asset *domain.Asset) domain.FileContent {
	filename := asset.Name
	if filename == "" {
		filename = path.Base(asset.OriginalURL)
	}
	alt := asset.Description
	if alt == "" {
		alt = asset.Name
	}
	return domain.FileContent{
		SourceURL: asset.OriginalURL,
		Filename:  filename,
		Alt:       alt,
		MimeType:  asset.MimeType,
	}
}
