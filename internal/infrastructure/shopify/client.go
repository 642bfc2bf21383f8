package shopify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	goshopify "github.com/bold-commerce/go-shopify/v4"
	"github.com/rs/zerolog"
)

// DefaultBindingType is the metaobject type holding asset bindings
const DefaultBindingType = "dam_sync_asset"

// Binding metaobject fields read directly by the store
const (
	bindingFileField    = "file"
	bindingAssetIDField = "asset_id"
)

// graphQL is the part of the go-shopify client the file store uses
type graphQL interface {
	Query(ctx context.Context, q string, vars interface{}, resp interface{}) error
}

// FileStore implements ports.FileStore against the Shopify Admin GraphQL API.
// Each managed file is bound to its DAM asset by a metaobject whose handle is a digest of the asset id,
// so the binding can be found by key before deciding create vs update.
type FileStore struct {
	gql         graphQL
	bindingType string
	logger      zerolog.Logger

	mu               sync.Mutex
	definitionExists bool
}

// NewFileStore creates a file store over a GraphQL client
func NewFileStore(gql graphQL, bindingType string, logger zerolog.Logger) *FileStore {
	if bindingType == "" {
		bindingType = DefaultBindingType
	}
	return &FileStore{
		gql:         gql,
		bindingType: bindingType,
		logger:      logger,
	}
}

// BindingHandle returns the metaobject handle for an asset.
// Handles are lowercase, so ids are hashed rather than slugged to keep distinct ids apart.
func BindingHandle(assetID string) string {
	sum := sha256.Sum256([]byte(assetID))
	return "dam-asset-" + hex.EncodeToString(sum[:])
}

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type metaobjectField struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

type fileNode struct {
	ID         string `json:"id"`
	FileStatus string `json:"fileStatus"`
	URL        string `json:"url"`
	Image      *struct {
		URL string `json:"url"`
	} `json:"image"`
	Preview *struct {
		Image *struct {
			URL string `json:"url"`
		} `json:"image"`
	} `json:"preview"`
}

func (n *fileNode) fileURL() string {
	switch {
	case n.URL != "":
		return n.URL
	case n.Image != nil && n.Image.URL != "":
		return n.Image.URL
	case n.Preview != nil && n.Preview.Image != nil:
		return n.Preview.Image.URL
	}
	return ""
}

const fileFragment = `
	id
	fileStatus
	... on GenericFile { url }
	... on MediaImage { image { url } }
	preview { image { url } }
`

const findBindingQuery = `
query FindBinding($handle: MetaobjectHandleInput!) {
	metaobjectByHandle(handle: $handle) {
		id
		fields { key value }
		file: field(key: "file") {
			reference {
				... on File {` + fileFragment + `}
			}
		}
	}
}`

// FindManagedFile returns the managed file bound to an asset, or nil when there is none
func (s *FileStore) FindManagedFile(ctx context.Context, assetID string) (*domain.ManagedFile, error) {
	var resp struct {
		MetaobjectByHandle *struct {
			ID     string            `json:"id"`
			Fields []metaobjectField `json:"fields"`
			File   *struct {
				Reference *fileNode `json:"reference"`
			} `json:"file"`
		} `json:"metaobjectByHandle"`
	}
	vars := map[string]interface{}{
		"handle": map[string]string{"type": s.bindingType, "handle": BindingHandle(assetID)},
	}
	if err := s.gql.Query(ctx, findBindingQuery, vars, &resp); err != nil {
		return nil, wrapError("find managed file", err)
	}

	binding := resp.MetaobjectByHandle
	if binding == nil || binding.File == nil || binding.File.Reference == nil || binding.File.Reference.ID == "" {
		return nil, nil
	}

	metadata := make(map[string]string, len(binding.Fields))
	for _, f := range binding.Fields {
		if f.Key == bindingFileField || f.Value == nil {
			continue
		}
		metadata[f.Key] = *f.Value
	}
	if bound := metadata[bindingAssetIDField]; bound != assetID {
		s.logger.Warn().
			Str("assetId", assetID).
			Str("boundAssetId", bound).
			Str("fileId", binding.File.Reference.ID).
			Msg("Binding belongs to another asset, ignoring it")
		return nil, nil
	}
	return &domain.ManagedFile{
		ID:       binding.File.Reference.ID,
		URL:      binding.File.Reference.fileURL(),
		Metadata: metadata,
	}, nil
}

const fileCreateMutation = `
mutation FileCreate($files: [FileCreateInput!]!) {
	fileCreate(files: $files) {
		files {` + fileFragment + `}
		userErrors { field message }
	}
}`

// CreateManagedFile uploads content from its source URL and binds it to the asset in metadata
func (s *FileStore) CreateManagedFile(ctx context.Context, content domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error) {
	assetID := metadata[bindingAssetIDField]
	if assetID == "" {
		return nil, &userErrorList{op: "create managed file", errs: []userError{{Field: []string{bindingAssetIDField}, Message: "binding metadata has no asset id"}}}
	}

	var resp struct {
		FileCreate struct {
			Files      []fileNode  `json:"files"`
			UserErrors []userError `json:"userErrors"`
		} `json:"fileCreate"`
	}
	vars := map[string]interface{}{"files": []map[string]interface{}{fileInput("", content)}}
	if err := s.gql.Query(ctx, fileCreateMutation, vars, &resp); err != nil {
		return nil, wrapError("create managed file", err)
	}
	if len(resp.FileCreate.UserErrors) > 0 {
		return nil, &userErrorList{op: "create managed file", errs: resp.FileCreate.UserErrors}
	}
	if len(resp.FileCreate.Files) == 0 {
		return nil, fmt.Errorf("failed to create managed file: %w: no file returned", domain.ErrDestinationWrite)
	}
	file := resp.FileCreate.Files[0]

	if err := s.upsertBinding(ctx, assetID, file.ID, metadata); err != nil {
		// An unbound file would never be found again and the next sync would upload a duplicate
		if delErr := s.deleteFile(context.WithoutCancel(ctx), file.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("assetId", assetID).Str("fileId", file.ID).Msg("Failed to remove unbound Shopify file")
		}
		return nil, err
	}
	s.logger.Debug().Str("assetId", assetID).Str("fileId", file.ID).Str("fileStatus", file.FileStatus).Msg("Created Shopify file")
	return &domain.ManagedFile{ID: file.ID, URL: file.fileURL(), Metadata: metadata}, nil
}

const fileDeleteMutation = `
mutation FileDelete($fileIds: [ID!]!) {
	fileDelete(fileIds: $fileIds) {
		deletedFileIds
		userErrors { field message }
	}
}`

func (s *FileStore) deleteFile(ctx context.Context, fileID string) error {
	var resp struct {
		FileDelete struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fileDelete"`
	}
	if err := s.gql.Query(ctx, fileDeleteMutation, map[string]interface{}{"fileIds": []string{fileID}}, &resp); err != nil {
		return wrapError("delete managed file", err)
	}
	if len(resp.FileDelete.UserErrors) > 0 {
		return &userErrorList{op: "delete managed file", errs: resp.FileDelete.UserErrors}
	}
	return nil
}

const fileUpdateMutation = `
mutation FileUpdate($files: [FileUpdateInput!]!) {
	fileUpdate(files: $files) {
		files {` + fileFragment + `}
		userErrors { field message }
	}
}`

// UpdateManagedFile replaces content when given and rewrites the binding metadata
func (s *FileStore) UpdateManagedFile(ctx context.Context, fileID string, content *domain.FileContent, metadata map[string]string) (*domain.ManagedFile, error) {
	assetID := metadata[bindingAssetIDField]
	file := fileNode{ID: fileID}

	if content != nil {
		var resp struct {
			FileUpdate struct {
				Files      []fileNode  `json:"files"`
				UserErrors []userError `json:"userErrors"`
			} `json:"fileUpdate"`
		}
		vars := map[string]interface{}{"files": []map[string]interface{}{fileInput(fileID, *content)}}
		if err := s.gql.Query(ctx, fileUpdateMutation, vars, &resp); err != nil {
			return nil, wrapError("update managed file", err)
		}
		if len(resp.FileUpdate.UserErrors) > 0 {
			return nil, &userErrorList{op: "update managed file", errs: resp.FileUpdate.UserErrors}
		}
		if len(resp.FileUpdate.Files) > 0 {
			file = resp.FileUpdate.Files[0]
		}
	}

	if err := s.upsertBinding(ctx, assetID, fileID, metadata); err != nil {
		return nil, err
	}
	return &domain.ManagedFile{ID: fileID, URL: file.fileURL(), Metadata: metadata}, nil
}

const metaobjectUpsertMutation = `
mutation UpsertBinding($handle: MetaobjectHandleInput!, $metaobject: MetaobjectUpsertInput!) {
	metaobjectUpsert(handle: $handle, metaobject: $metaobject) {
		metaobject { id }
		userErrors { field message }
	}
}`

func (s *FileStore) upsertBinding(ctx context.Context, assetID string, fileID string, metadata map[string]string) error {
	if err := s.ensureDefinition(ctx); err != nil {
		return err
	}

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]map[string]string, 0, len(keys)+1)
	for _, k := range keys {
		fields = append(fields, map[string]string{"key": k, "value": metadata[k]})
	}
	fields = append(fields, map[string]string{"key": bindingFileField, "value": fileID})

	var resp struct {
		MetaobjectUpsert struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"metaobjectUpsert"`
	}
	vars := map[string]interface{}{
		"handle":     map[string]string{"type": s.bindingType, "handle": BindingHandle(assetID)},
		"metaobject": map[string]interface{}{"fields": fields},
	}
	if err := s.gql.Query(ctx, metaobjectUpsertMutation, vars, &resp); err != nil {
		return wrapError("write asset binding", err)
	}
	if len(resp.MetaobjectUpsert.UserErrors) > 0 {
		return &userErrorList{op: "write asset binding", errs: resp.MetaobjectUpsert.UserErrors}
	}
	return nil
}

const definitionQuery = `
query BindingDefinition($type: String!) {
	metaobjectDefinitionByType(type: $type) { id }
}`

const definitionCreateMutation = `
mutation CreateBindingDefinition($definition: MetaobjectDefinitionCreateInput!) {
	metaobjectDefinitionCreate(definition: $definition) {
		metaobjectDefinition { id }
		userErrors { field message code }
	}
}`

// ensureDefinition creates the binding metaobject definition once per store
func (s *FileStore) ensureDefinition(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.definitionExists {
		return nil
	}

	var existing struct {
		MetaobjectDefinitionByType *struct {
			ID string `json:"id"`
		} `json:"metaobjectDefinitionByType"`
	}
	if err := s.gql.Query(ctx, definitionQuery, map[string]interface{}{"type": s.bindingType}, &existing); err != nil {
		return wrapError("look up binding definition", err)
	}
	if existing.MetaobjectDefinitionByType != nil {
		s.definitionExists = true
		return nil
	}

	fieldDefs := []map[string]interface{}{
		{"key": bindingAssetIDField, "name": "DAM asset id", "type": "single_line_text_field", "required": true},
		{"key": "permalink", "name": "Permalink", "type": "url"},
		{"key": "tags", "name": "Tags", "type": "json"},
		{"key": "version", "name": "Version", "type": "number_integer"},
		{"key": "synced_at", "name": "Synced at", "type": "date_time"},
		{"key": bindingFileField, "name": "File", "type": "file_reference"},
	}
	var created struct {
		MetaobjectDefinitionCreate struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"metaobjectDefinitionCreate"`
	}
	vars := map[string]interface{}{"definition": map[string]interface{}{
		"type":             s.bindingType,
		"name":             "DAM asset binding",
		"fieldDefinitions": fieldDefs,
	}}
	if err := s.gql.Query(ctx, definitionCreateMutation, vars, &created); err != nil {
		return wrapError("create binding definition", err)
	}
	if len(created.MetaobjectDefinitionCreate.UserErrors) > 0 {
		return &userErrorList{op: "create binding definition", errs: created.MetaobjectDefinitionCreate.UserErrors}
	}
	s.logger.Info().Str("type", s.bindingType).Msg("Created asset binding metaobject definition")
	s.definitionExists = true
	return nil
}

func fileInput(fileID string, content domain.FileContent) map[string]interface{} {
	input := map[string]interface{}{"originalSource": content.SourceURL}
	if fileID != "" {
		input["id"] = fileID
	} else {
		input["contentType"] = contentType(content.MimeType)
	}
	if content.Alt != "" {
		input["alt"] = content.Alt
	}
	if content.Filename != "" {
		input["filename"] = content.Filename
	}
	return input
}

func contentType(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "IMAGE"
	case strings.HasPrefix(mimeType, "video/"):
		return "VIDEO"
	default:
		return "FILE"
	}
}

// userErrorList is a mutation rejected by Shopify validation
type userErrorList struct {
	op   string
	errs []userError
}

func (e *userErrorList) Error() string {
	msgs := make([]string, 0, len(e.errs))
	for _, ue := range e.errs {
		if len(ue.Field) > 0 {
			msgs = append(msgs, strings.Join(ue.Field, ".")+": "+ue.Message)
		} else {
			msgs = append(msgs, ue.Message)
		}
	}
	return fmt.Sprintf("failed to %s: validation: %s", e.op, strings.Join(msgs, "; "))
}

func (e *userErrorList) Unwrap() error {
	return domain.ErrDestinationWrite
}

// FailureReason classifies the error for retry decisions
func (e *userErrorList) FailureReason() domain.FailureReason {
	return domain.ReasonValidation
}

// apiError wraps a go-shopify transport or API error with its failure class
type apiError struct {
	op     string
	err    error
	reason domain.FailureReason
}

func (e *apiError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.op, e.err)
}

func (e *apiError) Unwrap() error {
	return e.err
}

// FailureReason classifies the error for retry decisions
func (e *apiError) FailureReason() domain.FailureReason {
	return e.reason
}

func wrapError(op string, err error) error {
	return &apiError{op: op, err: err, reason: classify(err)}
}

func classify(err error) domain.FailureReason {
	var rateErr goshopify.RateLimitError
	var rateErrPtr *goshopify.RateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &rateErrPtr) {
		return domain.ReasonRateLimited
	}

	status := 0
	var respErr goshopify.ResponseError
	var respErrPtr *goshopify.ResponseError
	switch {
	case errors.As(err, &respErr):
		status = respErr.Status
	case errors.As(err, &respErrPtr):
		status = respErrPtr.Status
	}
	switch {
	case status == http.StatusTooManyRequests:
		return domain.ReasonRateLimited
	case status == http.StatusNotFound:
		return domain.ReasonNotFound
	case status >= 500:
		return domain.ReasonNetwork
	case status >= 400:
		return domain.ReasonValidation
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "throttled"):
		return domain.ReasonRateLimited
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection"):
		return domain.ReasonNetwork
	}
	return domain.ReasonUnknown
}

// FileStoreFactory builds one file store per shop on top of go-shopify clients
type FileStoreFactory struct {
	app         goshopify.App
	apiVersion  string
	bindingType string
	logger      zerolog.Logger

	mu     sync.Mutex
	stores map[string]*cachedStore
}

type cachedStore struct {
	token string
	store *FileStore
}

// NewFileStoreFactory creates a file store factory
func NewFileStoreFactory(app goshopify.App, apiVersion string, bindingType string, logger zerolog.Logger) *FileStoreFactory {
	return &FileStoreFactory{
		app:         app,
		apiVersion:  apiVersion,
		bindingType: bindingType,
		logger:      logger,
		stores:      make(map[string]*cachedStore),
	}
}

// ForShop returns the shop's file store, rebuilding it when the access token changes
func (f *FileStoreFactory) ForShop(shop *domain.Shop) (ports.FileStore, error) {
	if shop.Domain == "" || shop.AccessToken == "" {
		return nil, fmt.Errorf("shop %s has no Shopify domain or access token: %w", shop.ID, domain.ErrConfiguration)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.stores[shop.ID]; ok && cached.token == shop.AccessToken {
		return cached.store, nil
	}

	var opts []goshopify.Option
	if f.apiVersion != "" {
		opts = append(opts, goshopify.WithVersion(f.apiVersion))
	}
	client, err := goshopify.NewClient(f.app, shop.Domain, shop.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	store := NewFileStore(client.GraphQL, f.bindingType, f.logger.With().Str("shopId", shop.ID).Logger())
	f.stores[shop.ID] = &cachedStore{token: shop.AccessToken, store: store}
	return store, nil
}
