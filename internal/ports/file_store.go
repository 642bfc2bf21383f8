package ports

import (
	"context"

	"archie-core-dam-sync/internal/domain"
)

// FileStore defines the commerce platform managed-file operations.
// All structured metadata reads and writes are scoped to the binding namespace.
type FileStore interface {
	FindManagedFile(ctx context.Context, assetID string) (*domain.ManagedFile, error)
	CreateManagedFile(ctx context.Context, content domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error)
	UpdateManagedFile(ctx context.Context, fileID string, content *domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error)
}

// FileStoreFactory builds a file store client for a shop
type FileStoreFactory interface {
	ForShop(shop *domain.Shop) (FileStore, error)
}
