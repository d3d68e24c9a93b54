// internal/blob/s3.go
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// ErrNotFound reports a missing object key.
var ErrNotFound = errors.New("object not found")

// Key conventions: archives under themes/{file_name}, previews under
// images/{variant}/{index}-{variant}-{file_id}.png.
func ThemeKey(fileName string) string {
	return "themes/" + fileName
}

func PreviewKey(variant string, index int, fileID string) string {
	return fmt.Sprintf("images/%s/%d-%s-%s.png", variant, index, variant, fileID)
}

// Client wraps an S3-compatible object store.
type Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewClient initializes an S3 client using static credentials. endpoint may
// point at a self-hosted S3-compatible store; path-style addressing is used
// so bucket names never become DNS labels.
func NewClient(accessKeyID, secretAccessKey, region, endpoint, bucket string) (*Client, error) {
	if accessKeyID == "" || secretAccessKey == "" || region == "" {
		return nil, fmt.Errorf("s3 credentials and region are required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	return &Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
	}, nil
}

// Put stores body under key.
func (c *Client) Put(ctx context.Context, key string, body io.Reader) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("s3 client is not initialized")
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to put object")
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetStream returns the object's byte stream. The caller owns the stream and
// must close it. Returns ErrNotFound for missing keys.
func (c *Client) GetStream(ctx context.Context, key string) (io.ReadCloser, error) {
	if c == nil || c.client == nil {
		return nil, fmt.Errorf("s3 client is not initialized")
	}
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	return out.Body, nil
}

// SignedURL returns a presigned download URL for key, valid for ttl.
func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if c == nil || c.presign == nil {
		return "", fmt.Errorf("s3 client is not initialized")
	}
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// StageTheme uploads the archive at path under its canonical themes/ key.
func (c *Client) StageTheme(ctx context.Context, path string) error {
	return c.putFile(ctx, path, ThemeKey(filepath.Base(path)))
}

// StagePreviews uploads rendered preview images under their variant keys.
// The local files stay in place; deleting them is the caller's job.
func (c *Client) StagePreviews(ctx context.Context, lightPaths, darkPaths []string) error {
	var errs []error
	for _, path := range lightPaths {
		if err := c.putFile(ctx, path, "images/light/"+filepath.Base(path)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, path := range darkPaths {
		if err := c.putFile(ctx, path, "images/dark/"+filepath.Base(path)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Client) putFile(ctx context.Context, path, key string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return c.Put(ctx, key, file)
}
