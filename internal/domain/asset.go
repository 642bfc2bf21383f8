package domain

import "time"

// Asset is the canonical DAM asset shape seen by the sync engine
type Asset struct {
	ID          string
	Name        string
	Description string
	Permalink   string
	OriginalURL string // Downloadable binary used as the managed file source
	MimeType    string
	Tags        []string
	Version     int64
	UpdatedAt   *time.Time
}

// AssetBinding is the DAM identity carried in a managed file's structured metadata
type AssetBinding struct {
	AssetID   string
	Permalink string
	Tags      []string
	Version   int64
	SyncedAt  *time.Time
}

// ManagedFile is a file record in the commerce platform's file store
type ManagedFile struct {
	ID       string
	URL      string
	Metadata map[string]string // Structured metadata fields in the binding namespace
}

// FileContent describes the binary to attach to a managed file
type FileContent struct {
	SourceURL string
	Filename  string
	Alt       string
	MimeType  string
}
