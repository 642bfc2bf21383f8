package application

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"archie-core-dam-sync/internal/domain"
)

// MetadataNamespace is the structured-metadata namespace owned by the sync engine
const MetadataNamespace = "dam_sync"

// Metadata keys within MetadataNamespace
const (
	MetaAssetID   = "asset_id"
	MetaPermalink = "permalink"
	MetaTags      = "tags"
	MetaVersion   = "version"
	MetaSyncedAt  = "synced_at"
)

// ToDestinationMetadata maps a DAM asset to managed-file metadata.
// Optional source fields that are empty are left out of the result.
func ToDestinationMetadata(asset *domain.Asset, syncedAt time.Time) map[string]string {
	meta := make(map[string]string, 5)
	if asset == nil {
		return meta
	}

	meta[MetaAssetID] = asset.ID
	if asset.Permalink != "" {
		meta[MetaPermalink] = asset.Permalink
	}
	meta[MetaTags] = encodeTags(asset.Tags)
	meta[MetaVersion] = strconv.FormatInt(asset.Version, 10)
	if !syncedAt.IsZero() {
		meta[MetaSyncedAt] = syncedAt.UTC().Format(time.RFC3339)
	}
	return meta
}

// FromDestinationMetadata reads the asset binding back from managed-file metadata.
// It returns nil when the record carries no asset id.
func FromDestinationMetadata(file *domain.ManagedFile) *domain.AssetBinding {
	if file == nil || file.Metadata == nil {
		return nil
	}
	assetID := strings.TrimSpace(file.Metadata[MetaAssetID])
	if assetID == "" {
		return nil
	}

	binding := &domain.AssetBinding{
		AssetID:   assetID,
		Permalink: file.Metadata[MetaPermalink],
		Tags:      decodeTags(file.Metadata[MetaTags]),
	}
	if v, err := strconv.ParseInt(file.Metadata[MetaVersion], 10, 64); err == nil {
		binding.Version = v
	}
	if raw := file.Metadata[MetaSyncedAt]; raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			binding.SyncedAt = &t
		}
	}
	return binding
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// decodeTags accepts the JSON list form and falls back to a comma list for hand-edited values
func decodeTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err == nil {
		if tags == nil {
			tags = []string{}
		}
		return tags
	}
	tags = []string{}
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
