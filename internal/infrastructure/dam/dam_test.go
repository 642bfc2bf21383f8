package dam

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"archie-core-dam-sync/internal/domain"
	"archie-core-dam-sync/internal/ports"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeListShapes(t *testing.T) {
	list := decodeList([]byte(`{"media":[{"id":"a1","tags":["x"],"version":3}],"count":{"total":7}}`))
	assert.Equal(t, shapeMediaList, list.Shape)
	assert.Equal(t, 7, list.Total)
	require.Len(t, list.Items, 1)

	arr := decodeList([]byte(` [{"id":"a1"},{"id":"a2"}]`))
	assert.Equal(t, shapeMediaArray, arr.Shape)
	assert.Equal(t, 2, arr.Total)

	for _, body := range []string{``, `null`, `{"error":"boom"}`, `{"media":"nope"}`, `[1,2`} {
		assert.Equal(t, shapeMalformed, decodeList([]byte(body)).Shape, body)
	}
}

func TestMediaItemToAssetNormalisesFields(t *testing.T) {
	item, ok := decodeItem([]byte(`{
		"id": "a1",
		"name": "hero.jpg",
		"property_permalink": "https://dam.example/p/a1",
		"thumbnails": {"original": "https://cdn.example/a1.jpg"},
		"extension": ["jpg"],
		"tags": "summer, sale",
		"version": "12"
	}`))
	require.True(t, ok)

	asset := item.toAsset()
	assert.Equal(t, "https://dam.example/p/a1", asset.Permalink)
	assert.Equal(t, "https://cdn.example/a1.jpg", asset.OriginalURL)
	assert.Equal(t, "image/jpeg", asset.MimeType)
	assert.Equal(t, []string{"summer", "sale"}, asset.Tags)
	assert.Equal(t, int64(12), asset.Version)

	_, ok = decodeItem([]byte(`{"name":"no id"}`))
	assert.False(t, ok)
}

func TestClientListAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v4/media":
			assert.Equal(t, "shopify,web", r.URL.Query().Get("tags"))
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			_, _ = w.Write([]byte(`{"media":[{"id":"a1","version":1},{"id":"a2","version":2}],"count":{"total":4}}`))
		case "/api/v4/media/a1":
			_, _ = w.Write([]byte(`{"id":"a1","version":5,"original":"https://cdn.example/a1.png"}`))
		case "/api/v4/media/gone":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v4/media/busy":
			w.Header().Set("Retry-After", "3")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "token-1", ClientOptions{}, zerolog.Nop())
	ctx := context.Background()

	page, err := client.ListAssets(ctx, ports.AssetFilter{Tags: []string{"shopify", "web"}}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Items, 2)

	asset, err := client.GetAsset(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), asset.Version)

	asset, err = client.GetAsset(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, asset)

	_, err = client.GetAsset(ctx, "busy")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.ReasonRateLimited, apiErr.FailureReason())
	assert.Equal(t, 3, int(apiErr.RetryAfter.Seconds()))
}

func TestClientListReportsItemsWithoutID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":""},{"id":"a1","version":1}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "token-1", ClientOptions{}, zerolog.Nop())
	page, err := client.ListAssets(context.Background(), ports.AssetFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Fetched)
	assert.Equal(t, 2, page.Size())
	require.Len(t, page.Items, 1)
	assert.Equal(t, "a1", page.Items[0].ID)
	require.Len(t, page.Rejected, 1)
	assert.Equal(t, 0, page.Rejected[0].Position)
	assert.Contains(t, page.Rejected[0].Message, "no id")
}

func TestClientFactoryRequiresConfiguration(t *testing.T) {
	factory := NewClientFactory(ClientOptions{RequestsPerSecond: 5}, zerolog.Nop())

	_, err := factory.ForShop(&domain.Shop{ID: "s1"})
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	shop := &domain.Shop{ID: "s1", DAM: domain.DAMConfig{BaseURL: "https://dam.example", APIToken: "t"}}
	first, err := factory.ForShop(shop)
	require.NoError(t, err)
	second, err := factory.ForShop(shop)
	require.NoError(t, err)
	assert.Same(t, first, second)

	shop.DAM.APIToken = "rotated"
	third, err := factory.ForShop(shop)
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestHMACVerifier(t *testing.T) {
	v := NewHMACVerifier()
	body := []byte(`{"eventType":"asset.tagged","assetId":"A1"}`)
	sig := SignHex("secret", body)

	assert.NoError(t, v.Verify("secret", body, sig))
	assert.NoError(t, v.Verify("secret", body, "sha256="+sig))
	assert.ErrorIs(t, v.Verify("other", body, sig), domain.ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify("secret", []byte(`{}`), sig), domain.ErrSignatureInvalid)
	assert.ErrorIs(t, v.Verify("secret", body, "not-a-signature!"), domain.ErrSignatureInvalid)
}
