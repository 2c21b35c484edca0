package avatar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

var (
	// ErrUnsupportedType is returned for uploads that are not images.
	ErrUnsupportedType = errors.New("avatar: unsupported content type")
	// ErrInvalidKey is returned when a key does not name a picture of the member.
	ErrInvalidKey = errors.New("avatar: invalid upload key")
	// ErrUploadMissing is returned when a confirmed key has no object behind it.
	ErrUploadMissing = errors.New("avatar: upload not found")
)

var allowedTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// StorageConfig describes the S3 compatible bucket holding pictures.
type StorageConfig struct {
	Region    string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PublicURL is the base URL objects are served from.
	PublicURL string
	Expires   time.Duration
}

// Upload is a presigned PUT for one picture.
type Upload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type objectHeader interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Storage presigns uploads into an S3 bucket and confirms them afterwards.
type S3Storage struct {
	presign *s3.PresignClient
	head    objectHeader
	bucket  string
	public  string
	expires time.Duration
	now     func() time.Time
}

// NewS3Storage builds the presign client from static credentials.
func NewS3Storage(ctx context.Context, cfg StorageConfig) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("avatar: bucket is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("avatar: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	expires := cfg.Expires
	if expires <= 0 {
		expires = 15 * time.Minute
	}
	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		public = strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	}
	return &S3Storage{
		presign: s3.NewPresignClient(client),
		head:    client,
		bucket:  cfg.Bucket,
		public:  public,
		expires: expires,
		now:     time.Now,
	}, nil
}

// PresignUpload returns a presigned PUT for a new picture of memberID.
func (s *S3Storage) PresignUpload(ctx context.Context, memberID int64, contentType string) (Upload, error) {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := allowedTypes[contentType]
	if !ok {
		return Upload{}, ErrUnsupportedType
	}
	key := fmt.Sprintf("avatars/%d/%s%s", memberID, uuid.NewString(), ext)
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(s.expires))
	if err != nil {
		return Upload{}, fmt.Errorf("avatar: presign put: %w", err)
	}
	return Upload{
		Key:       key,
		UploadURL: req.URL,
		PublicURL: s.public + "/" + key,
		ExpiresAt: s.now().Add(s.expires).UTC(),
	}, nil
}

// ConfirmUpload checks that key holds an uploaded picture of memberID and
// returns the URL it is served from.
func (s *S3Storage) ConfirmUpload(ctx context.Context, memberID int64, key string) (string, error) {
	if !OwnsKey(memberID, key) {
		return "", ErrInvalidKey
	}
	out, err := s.head.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", ErrUploadMissing
		}
		return "", fmt.Errorf("avatar: head object: %w", err)
	}
	contentType := strings.ToLower(aws.ToString(out.ContentType))
	if _, ok := allowedTypes[contentType]; !ok {
		return "", ErrUnsupportedType
	}
	return s.public + "/" + key, nil
}

// OwnsKey reports whether key has the shape PresignUpload gives memberID.
func OwnsKey(memberID int64, key string) bool {
	rest, ok := strings.CutPrefix(key, fmt.Sprintf("avatars/%d/", memberID))
	if !ok || rest == "" || strings.ContainsAny(rest, "/\\") || strings.Contains(rest, "..") {
		return false
	}
	for _, ext := range allowedTypes {
		if strings.HasSuffix(rest, ext) && len(rest) > len(ext) {
			return true
		}
	}
	return false
}
