package media

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/docker/go-units"

	"github.com/dmitrymomot/mediakit/pkg/logger"
)

const (
	// MinChunkSize is the smallest part size S3 accepts for all but the last part.
	MinChunkSize int64 = 5 * units.MiB
	// DefaultChunkSize is the part size used when none is configured.
	DefaultChunkSize int64 = 8 * units.MiB
	// DefaultPresignTTL is the lifetime of signed object URLs.
	DefaultPresignTTL = time.Hour

	abortTimeout = 10 * time.Second
)

// S3Client defines the S3 operations used by S3Adapter.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3Presigner signs GET requests for private buckets.
type S3Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Config contains configuration for the object-storage adapter.
type S3Config struct {
	Bucket         string
	Region         string
	AccessKeyID    string
	SecretKey      string
	Endpoint       string // Optional: for S3-compatible services
	BaseURL        string // Optional: public URL base; when empty, URLs are presigned
	ForcePathStyle bool   // For S3-compatible services like MinIO
	ChunkSize      int64
	PresignTTL     time.Duration
}

// S3Option configures S3Adapter.
type S3Option func(*s3Options)

type s3Options struct {
	httpClient      *http.Client
	s3Client        S3Client
	presigner       S3Presigner
	s3ConfigOptions []func(*config.LoadOptions) error
	s3ClientOptions []func(*s3.Options)
	logger          *slog.Logger
}

// WithS3Client sets a pre-configured S3 client. Useful for testing with mocks.
func WithS3Client(client S3Client) S3Option {
	return func(o *s3Options) {
		o.s3Client = client
	}
}

// WithS3Presigner sets the URL signer used when no public base URL is configured.
func WithS3Presigner(p S3Presigner) S3Option {
	return func(o *s3Options) {
		o.presigner = p
	}
}

// WithS3HTTPClient sets a custom HTTP client for S3 requests.
func WithS3HTTPClient(client *http.Client) S3Option {
	return func(o *s3Options) {
		o.httpClient = client
	}
}

// WithS3ConfigOption adds a custom AWS config option.
func WithS3ConfigOption(option func(*config.LoadOptions) error) S3Option {
	return func(o *s3Options) {
		o.s3ConfigOptions = append(o.s3ConfigOptions, option)
	}
}

// WithS3ClientOption adds a custom S3 client option.
func WithS3ClientOption(option func(*s3.Options)) S3Option {
	return func(o *s3Options) {
		o.s3ClientOptions = append(o.s3ClientOptions, option)
	}
}

// WithS3Logger sets the adapter logger.
func WithS3Logger(l *slog.Logger) S3Option {
	return func(o *s3Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// S3Adapter uploads to S3-compatible object storage with resumable multipart
// transfers, progress reporting and cancellation. It is safe for concurrent use.
type S3Adapter struct {
	client     S3Client
	presigner  S3Presigner
	bucket     string
	baseURL    string
	chunkSize  int64
	presignTTL time.Duration
	logger     *slog.Logger
}

// NewS3Adapter creates the object-storage adapter.
func NewS3Adapter(ctx context.Context, cfg S3Config, opts ...S3Option) (*S3Adapter, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket and region are required", ErrInvalidConfig)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize < MinChunkSize {
		return nil, fmt.Errorf("%w: chunk size must be at least %s", ErrInvalidConfig, units.BytesSize(float64(MinChunkSize)))
	}
	if cfg.PresignTTL <= 0 {
		cfg.PresignTTL = DefaultPresignTTL
	}

	options := &s3Options{logger: logger.Discard()}
	for _, opt := range opts {
		opt(options)
	}

	client := options.s3Client
	if client == nil {
		awsOptions := []func(*config.LoadOptions) error{
			config.WithRegion(cfg.Region),
		}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions,
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
					cfg.AccessKeyID,
					cfg.SecretKey,
					"",
				)),
			)
		}
		if options.httpClient != nil {
			awsOptions = append(awsOptions, config.WithHTTPClient(options.httpClient))
		}
		awsOptions = append(awsOptions, options.s3ConfigOptions...)

		awsConfig, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFailedToLoadConfig, err)
		}

		client = s3.NewFromConfig(awsConfig, func(o *s3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			o.UsePathStyle = cfg.ForcePathStyle
			for _, opt := range options.s3ClientOptions {
				opt(o)
			}
		})
	}

	presigner := options.presigner
	if presigner == nil {
		if real, ok := client.(*s3.Client); ok {
			presigner = s3.NewPresignClient(real)
		}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" && presigner == nil {
		if cfg.Endpoint != "" {
			baseURL = fmt.Sprintf("%s/%s", strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &S3Adapter{
		client:     client,
		presigner:  presigner,
		bucket:     cfg.Bucket,
		baseURL:    baseURL,
		chunkSize:  cfg.ChunkSize,
		presignTTL: cfg.PresignTTL,
		logger:     options.logger,
	}, nil
}

func (a *S3Adapter) Provider() Provider { return ProviderStorage }

// Send uploads without progress reporting.
func (a *S3Adapter) Send(ctx context.Context, p Payload) (*Result, error) {
	return a.SendWithProgress(ctx, p, nil)
}

// Start runs SendWithProgress in the background and returns a cancellable handle.
func (a *S3Adapter) Start(ctx context.Context, p Payload, fn ProgressFunc) *Transfer {
	return startTransfer(ctx, ProviderStorage, func(ctx context.Context) (*Result, error) {
		return a.SendWithProgress(ctx, p, fn)
	})
}

// SendWithProgress uploads the payload in chunks, invoking fn after each one.
// Payloads that fit in a single chunk go through one PutObject call.
func (a *S3Adapter) SendWithProgress(ctx context.Context, p Payload, fn ProgressFunc) (*Result, error) {
	key, err := cleanKey(p.Path)
	if err != nil {
		return nil, err
	}

	total := int64(len(p.Body))
	contentType := p.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var etag string
	if total <= a.chunkSize {
		out, err := a.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(p.Body),
			ContentLength: aws.Int64(total),
			ContentType:   aws.String(contentType),
		})
		if err != nil {
			return nil, a.fail(ctx, err, "upload object", key)
		}
		etag = aws.ToString(out.ETag)
		fn.emit(total, total)
	} else {
		etag, err = a.multipart(ctx, key, contentType, p.Body, fn)
		if err != nil {
			return nil, err
		}
	}

	url, err := a.URL(ctx, key)
	if err != nil {
		return nil, err
	}

	res := Succeeded(Result{
		Provider: ProviderStorage,
		RemoteID: key,
		URL:      url,
		Path:     key,
		Size:     total,
		MIMEType: contentType,
	})
	a.logger.DebugContext(ctx, "object stored", logger.Path(key), slog.String("etag", etag), logger.Size(total))
	return &res, nil
}

func (a *S3Adapter) multipart(ctx context.Context, key, contentType string, body []byte, fn ProgressFunc) (string, error) {
	created, err := a.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", a.fail(ctx, err, "create multipart upload", key)
	}
	uploadID := aws.ToString(created.UploadId)

	total := int64(len(body))
	parts := make([]types.CompletedPart, 0, (total+a.chunkSize-1)/a.chunkSize)
	partNumber := int32(1)
	for offset := int64(0); offset < total; offset += a.chunkSize {
		if err := ctx.Err(); err != nil {
			a.abort(ctx, key, uploadID)
			return "", a.fail(ctx, err, "upload part", key)
		}

		end := min(offset+a.chunkSize, total)
		out, err := a.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(a.bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(partNumber),
			Body:          bytes.NewReader(body[offset:end]),
			ContentLength: aws.Int64(end - offset),
		})
		if err != nil {
			a.abort(ctx, key, uploadID)
			return "", a.fail(ctx, err, "upload part", key)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNumber),
		})
		partNumber++
		fn.emit(end, total)
	}

	done, err := a.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		a.abort(ctx, key, uploadID)
		return "", a.fail(ctx, err, "complete multipart upload", key)
	}
	return aws.ToString(done.ETag), nil
}

// abort releases the parts of an unfinished multipart upload. It runs even
// when ctx is already canceled.
func (a *S3Adapter) abort(ctx context.Context, key, uploadID string) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()
	_, err := a.client.AbortMultipartUpload(actx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(a.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		a.logger.WarnContext(ctx, "failed to abort multipart upload",
			logger.Path(key), slog.String("upload_id", uploadID), logger.Error(err))
	}
}

// fail normalizes err, preferring the context state so a canceled transfer
// always reports KindCanceled.
func (a *S3Adapter) fail(ctx context.Context, err error, operation, key string) error {
	switch ctx.Err() {
	case context.Canceled:
		return &Error{Kind: KindCanceled, Provider: ProviderStorage, Message: operation + " canceled", Err: err}
	case context.DeadlineExceeded:
		return &Error{Kind: KindTimeout, Provider: ProviderStorage, Message: operation + " timed out", Err: err}
	}
	e := Normalize(ProviderStorage, err)
	a.logger.WarnContext(ctx, "object storage operation failed",
		slog.String("operation", operation), logger.Path(key), logger.Kind(e.Kind), slog.String("code", e.RawCode))
	return e
}

// URL resolves the address of a stored object: the public base URL when one is
// configured, a presigned GET URL otherwise.
func (a *S3Adapter) URL(ctx context.Context, key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if a.baseURL != "" {
		return a.baseURL + key, nil
	}
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.presignTTL))
	if err != nil {
		return "", a.fail(ctx, err, "presign object", key)
	}
	if req.URL == "" {
		return "", newError(KindNoURL, ProviderStorage, "no URL could be resolved for %s", key)
	}
	return req.URL, nil
}

// Delete removes a single object. A missing object yields KindNotFound.
func (a *S3Adapter) Delete(ctx context.Context, path string) error {
	key, err := cleanKey(path)
	if err != nil {
		return err
	}

	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return a.fail(ctx, err, "check object", key)
	}

	_, err = a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return a.fail(ctx, err, "delete object", key)
	}
	return nil
}

// List returns the direct child objects and sub-folders of folder.
func (a *S3Adapter) List(ctx context.Context, folder string) (*Listing, error) {
	prefix := strings.Trim(folder, "/")
	if strings.Contains(prefix, "..") {
		return nil, newError(KindValidation, ProviderStorage, "invalid folder %q", folder)
	}
	if prefix != "" {
		prefix += "/"
	}

	listing := &Listing{Files: []Object{}, Folders: []Folder{}}
	var token *string
	for {
		page, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, a.fail(ctx, err, "list folder", prefix)
		}

		for _, cp := range page.CommonPrefixes {
			p := aws.ToString(cp.Prefix)
			listing.Folders = append(listing.Folders, Folder{
				Name: strings.TrimSuffix(strings.TrimPrefix(p, prefix), "/"),
				Path: p,
			})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, prefix)
			if key == prefix || name == "" || strings.Contains(name, "/") {
				continue
			}
			listing.Files = append(listing.Files, Object{
				Name:         name,
				Path:         key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}

		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	return listing, nil
}

// cleanKey trims leading slashes and rejects traversal segments.
func cleanKey(path string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(path), "/")
	if key == "" || strings.Contains(key, "..") {
		return "", newError(KindValidation, ProviderStorage, "invalid object path %q", path)
	}
	return key, nil
}
