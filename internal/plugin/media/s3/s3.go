// Package s3 stores media objects in an S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/charmbracelet/log"
	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	registrymedia "github.com/TruongKhoiNguyen/Agora-api/internal/registry/media"
	registrystore "github.com/TruongKhoiNguyen/Agora-api/internal/registry/store"
	"github.com/TruongKhoiNguyen/Agora-api/internal/security"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	defaultMaxSize    = 10 * 1024 * 1024
	defaultThumbWidth = 320
)

func init() {
	registrymedia.Register(registrymedia.Plugin{
		Name:   "s3",
		Loader: load,
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func load(ctx context.Context) (registrymedia.Store, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 media: AGORA_S3_BUCKET is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRequestChecksumCalculation(aws.RequestChecksumCalculationWhenRequired),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 media: load AWS config: %w", err)
	}
	usePathStyle := cfg.S3UsePathStyle
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = usePathStyle
	})
	return New(client, Options{
		Bucket:           cfg.S3Bucket,
		Prefix:           cfg.S3Prefix,
		ExternalEndpoint: cfg.S3ExternalEndpoint,
		Region:           awsCfg.Region,
		MaxSize:          cfg.MaxUploadSize,
		ThumbWidth:       cfg.ThumbWidth,
	}), nil
}

// Options configures a Store.
type Options struct {
	Bucket string
	Prefix string
	// ExternalEndpoint is the public base URL; objects are addressed
	// path-style beneath it. Empty means virtual-hosted AWS URLs.
	ExternalEndpoint string
	Region           string
	MaxSize          int64
	ThumbWidth       int
}

// Store implements media.Store on S3.
type Store struct {
	client *s3.Client
	opts   Options
}

func New(client *s3.Client, opts Options) *Store {
	opts.Prefix = strings.Trim(strings.TrimSpace(opts.Prefix), "/")
	opts.ExternalEndpoint = strings.TrimRight(strings.TrimSpace(opts.ExternalEndpoint), "/")
	if opts.MaxSize <= 0 {
		opts.MaxSize = defaultMaxSize
	}
	if opts.ThumbWidth <= 0 {
		opts.ThumbWidth = defaultThumbWidth
	}
	return &Store{client: client, opts: opts}
}

func (s *Store) folderKey(category registrymedia.Category) string {
	if s.opts.Prefix != "" {
		return s.opts.Prefix + "/" + category.Folder()
	}
	return category.Folder()
}

func (s *Store) Upload(ctx context.Context, f registrymedia.File, category registrymedia.Category) (registrymedia.Uploaded, error) {
	data, err := io.ReadAll(io.LimitReader(f.Data, s.opts.MaxSize+1))
	if err != nil {
		return registrymedia.Uploaded{}, &registrystore.UpstreamError{Op: "read upload", Err: err}
	}
	if int64(len(data)) > s.opts.MaxSize {
		return registrymedia.Uploaded{}, &registrystore.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file exceeds maximum size of %d bytes", s.opts.MaxSize),
		}
	}
	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return registrymedia.Uploaded{}, &registrystore.ValidationError{Field: "file", Message: "file must be an image"}
	}

	ext := extension(f.Name, contentType)
	if category == registrymedia.CategoryThumb {
		data, err = normalizeThumb(data, s.opts.ThumbWidth)
		if err != nil {
			return registrymedia.Uploaded{}, &registrystore.ValidationError{Field: "file", Message: "unreadable image"}
		}
		contentType, ext = "image/jpeg", ".jpg"
	}

	key := s.folderKey(category) + "/" + uuid.NewString() + ext
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &s.opts.Bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   &contentType,
	}, func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)
	})
	security.CountMedia("upload", string(category), err)
	if err != nil {
		return registrymedia.Uploaded{}, &registrystore.UpstreamError{Op: "upload", Err: err}
	}
	log.Debug("Media uploaded", "key", key, "category", category, "size", len(data))
	return registrymedia.Uploaded{URL: s.publicURL(key), ProviderID: key}, nil
}

func (s *Store) Destroy(ctx context.Context, rawURL string, category registrymedia.Category) error {
	key, ok := s.keyFromURL(rawURL)
	if !ok || !strings.HasPrefix(key, s.folderKey(category)+"/") {
		log.Debug("Ignoring media not owned by this store", "url", rawURL)
		return nil
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.opts.Bucket,
		Key:    &key,
	})
	security.CountMedia("destroy", string(category), err)
	if err != nil {
		return &registrystore.UpstreamError{Op: "destroy", Err: err}
	}
	return nil
}

func (s *Store) publicURL(key string) string {
	if s.opts.ExternalEndpoint != "" {
		return s.opts.ExternalEndpoint + "/" + s.opts.Bucket + "/" + key
	}
	if s.opts.Region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.opts.Bucket, s.opts.Region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.opts.Bucket, key)
}

// keyFromURL reverses publicURL.
func (s *Store) keyFromURL(rawURL string) (string, bool) {
	if rawURL == "" {
		return "", false
	}
	if s.opts.ExternalEndpoint != "" {
		base := s.opts.ExternalEndpoint + "/" + s.opts.Bucket + "/"
		if !strings.HasPrefix(rawURL, base) {
			return "", false
		}
		return strings.TrimPrefix(rawURL, base), true
	}
	u, err := url.Parse(rawURL)
	if err != nil || !strings.HasPrefix(u.Host, s.opts.Bucket+".s3.") {
		return "", false
	}
	return strings.TrimPrefix(u.Path, "/"), true
}

// normalizeThumb scales the image down to width and re-encodes it as JPEG.
func normalizeThumb(data []byte, width int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func extension(name, contentType string) string {
	if ext := strings.ToLower(path.Ext(name)); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

var _ registrymedia.Store = (*Store)(nil)
