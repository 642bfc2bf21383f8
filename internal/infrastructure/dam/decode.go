package dam

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"archie-core-dam-sync/internal/domain"
)

// listShape tags which of the DAM's listing layouts a response used
type listShape int

// shapeMediaList is {"media": [...], "count": {"total": n}}; shapeMediaArray is a bare array
const (
	shapeMalformed listShape = iota
	shapeMediaList
	shapeMediaArray
)

// decodedList is a listing response normalised at the boundary
type decodedList struct {
	Shape listShape
	Items []mediaItem
	Total int
}

type mediaList struct {
	Media []mediaItem `json:"media"`
	Count struct {
		Total int `json:"total"`
	} `json:"count"`
	Total *int `json:"total"`
}

// mediaItem is the DAM's media JSON. Several fields arrive in more than one form.
type mediaItem struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Permalink    string            `json:"permalink"`
	PropertyLink string            `json:"property_permalink"`
	Original     string            `json:"original"`
	OriginalURL  string            `json:"originalUrl"`
	Thumbnails   map[string]string `json:"thumbnails"`
	MimeType     string            `json:"mimeType"`
	Extension    []string          `json:"extension"`
	Tags         flexTags          `json:"tags"`
	Version      flexInt64         `json:"version"`
	DateModified string            `json:"dateModified"`
}

// decodeList classifies and decodes a listing body. A malformed body is reported, never guessed at.
func decodeList(body []byte) decodedList {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return decodedList{Shape: shapeMalformed}

	case trimmed[0] == '[':
		var items []mediaItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return decodedList{Shape: shapeMalformed}
		}
		return decodedList{Shape: shapeMediaArray, Items: items, Total: len(items)}

	case trimmed[0] == '{':
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return decodedList{Shape: shapeMalformed}
		}
		if _, ok := raw["media"]; !ok {
			return decodedList{Shape: shapeMalformed}
		}
		var list mediaList
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return decodedList{Shape: shapeMalformed}
		}
		total := list.Count.Total
		if list.Total != nil {
			total = *list.Total
		}
		if total < len(list.Media) {
			total = len(list.Media)
		}
		return decodedList{Shape: shapeMediaList, Items: list.Media, Total: total}
	}
	return decodedList{Shape: shapeMalformed}
}

// decodeItem decodes a single media response. It reports false when the body is not a media object.
func decodeItem(body []byte) (mediaItem, bool) {
	var item mediaItem
	if err := json.Unmarshal(body, &item); err != nil || item.ID == "" {
		return mediaItem{}, false
	}
	return item, true
}

// toAsset maps a media item to the canonical asset shape
func (m mediaItem) toAsset() domain.Asset {
	asset := domain.Asset{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Permalink:   firstNonEmpty(m.Permalink, m.PropertyLink),
		OriginalURL: firstNonEmpty(m.Original, m.OriginalURL, m.Thumbnails["original"]),
		MimeType:    m.MimeType,
		Tags:        []string(m.Tags),
		Version:     int64(m.Version),
	}
	if asset.Tags == nil {
		asset.Tags = []string{}
	}
	if asset.MimeType == "" && len(m.Extension) > 0 {
		asset.MimeType = mimeFromExtension(m.Extension[0])
	}
	if t, err := time.Parse(time.RFC3339, m.DateModified); err == nil {
		asset.UpdatedAt = &t
		if asset.Version == 0 {
			// Without an explicit version the modification time is the only monotonic signal
			asset.Version = t.Unix()
		}
	}
	return asset
}

// flexTags accepts a JSON array of strings or a comma separated string
type flexTags []string

func (t *flexTags) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*t = out
	return nil
}

// flexInt64 accepts a JSON number or a numeric string
type flexInt64 int64

func (v *flexInt64) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*v = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return err
		}
		n = int64(f)
	}
	*v = flexInt64(n)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mimeFromExtension(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "mp4":
		return "video/mp4"
	case "mov":
		return "video/quicktime"
	case "pdf":
		return "application/pdf"
	default:
		return ""
	}
}
