package s3

import (
	"bytes"
	"context"
	"image/color"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/tests3"
	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.NRGBA{R: 200, A: 255}), imaging.PNG))
	return buf.Bytes()
}

func TestNormalizeThumb(t *testing.T) {
	out, err := normalizeThumb(pngBytes(t, 800, 400), 320)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 160, img.Bounds().Dy())

	small, err := normalizeThumb(pngBytes(t, 100, 50), 320)
	require.NoError(t, err)
	img, err = imaging.Decode(bytes.NewReader(small))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestKeyFromURL(t *testing.T) {
	s := New(nil, Options{Bucket: "media", Prefix: "agora", ExternalEndpoint: "http://localhost:4566/"})
	key, ok := s.keyFromURL(s.publicURL("agora/images/x.jpg"))
	require.True(t, ok)
	assert.Equal(t, "agora/images/x.jpg", key)

	_, ok = s.keyFromURL("https://example.com/other.png")
	assert.False(t, ok)

	aws := New(nil, Options{Bucket: "media", Region: "eu-west-1"})
	key, ok = aws.keyFromURL(aws.publicURL("agora/chats/y.png"))
	require.True(t, ok)
	assert.Equal(t, "agora/chats/y.png", key)
}

func TestUploadAndDestroy(t *testing.T) {
	env := tests3.StartS3(t)
	ctx := context.Background()

	client, bucket := env.Client, env.Bucket
	store := New(client, Options{
		Bucket:           bucket,
		Prefix:           "agora",
		ExternalEndpoint: env.Endpoint,
		ThumbWidth:       320,
	})

	up, err := store.Upload(ctx, registrymedia.File{Name: "big.png", Data: bytes.NewReader(pngBytes(t, 1000, 500))}, registrymedia.CategoryThumb)
	require.NoError(t, err)
	assert.Contains(t, up.ProviderID, "agora/images/")
	assert.Contains(t, up.ProviderID, ".jpg")

	obj, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &up.ProviderID})
	require.NoError(t, err)
	img, err := imaging.Decode(obj.Body)
	obj.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())

	require.NoError(t, store.Destroy(ctx, up.URL, registrymedia.CategoryThumb))
	_, err = client.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &up.ProviderID})
	assert.Error(t, err)

	// Foreign URLs are ignored.
	require.NoError(t, store.Destroy(ctx, "https://cdn.example.com/default.png", registrymedia.CategoryThumb))

	_, err = store.Upload(ctx, registrymedia.File{Name: "notes.txt", Data: bytes.NewReader([]byte("hello"))}, registrymedia.CategoryChat)
	var verr *registrystore.ValidationError
	assert.ErrorAs(t, err, &verr)
}
