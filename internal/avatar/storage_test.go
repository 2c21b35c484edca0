package avatar

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *S3Storage {
	t.Helper()
	s, err := NewS3Storage(context.Background(), StorageConfig{
		Region:    "us-east-1",
		Bucket:    "avatars",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		PublicURL: "https://cdn.club.nl/avatars/",
	})
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestPresignUpload(t *testing.T) {
	s := newTestStorage(t)
	up, err := s.PresignUpload(context.Background(), 7, "image/PNG")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.Key, "avatars/7/"), up.Key)
	assert.True(t, strings.HasSuffix(up.Key, ".png"), up.Key)
	assert.Equal(t, "https://cdn.club.nl/avatars/"+up.Key, up.PublicURL)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 15, 0, 0, time.UTC), up.ExpiresAt)

	u, err := url.Parse(up.UploadURL)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/avatars/"+up.Key, u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
}

func TestPresignUploadRejectsNonImages(t *testing.T) {
	_, err := newTestStorage(t).PresignUpload(context.Background(), 7, "application/pdf")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestNewS3StorageNeedsBucket(t *testing.T) {
	_, err := NewS3Storage(context.Background(), StorageConfig{Region: "us-east-1"})
	assert.Error(t, err)
}

type fakeHeader struct {
	objects map[string]string
	err     error
	calls   []string
}

func (f *fakeHeader) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.calls = append(f.calls, aws.ToString(in.Key))
	if f.err != nil {
		return nil, f.err
	}
	contentType, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentType: aws.String(contentType)}, nil
}

func TestConfirmUpload(t *testing.T) {
	s := newTestStorage(t)
	head := &fakeHeader{objects: map[string]string{
		"avatars/7/a.png": "image/png",
		"avatars/7/b.jpg": "text/html",
	}}
	s.head = head
	ctx := context.Background()

	publicURL, err := s.ConfirmUpload(ctx, 7, "avatars/7/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.club.nl/avatars/avatars/7/a.png", publicURL)

	_, err = s.ConfirmUpload(ctx, 7, "avatars/7/missing.png")
	assert.ErrorIs(t, err, ErrUploadMissing)

	_, err = s.ConfirmUpload(ctx, 7, "avatars/7/b.jpg")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	head.calls = nil
	_, err = s.ConfirmUpload(ctx, 7, "avatars/8/a.png")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Empty(t, head.calls)

	head.err = errors.New("connection reset")
	_, err = s.ConfirmUpload(ctx, 7, "avatars/7/a.png")
	assert.ErrorContains(t, err, "connection reset")
	assert.NotErrorIs(t, err, ErrUploadMissing)
}

func TestOwnsKey(t *testing.T) {
	assert.True(t, OwnsKey(7, "avatars/7/3f2a.png"))
	assert.True(t, OwnsKey(7, "avatars/7/3f2a.webp"))
	for _, key := range []string{
		"",
		"avatars/7/",
		"avatars/7/.png",
		"avatars/70/a.png",
		"avatars/8/a.png",
		"avatars/7/../8/a.png",
		"avatars/7/sub/a.png",
		"avatars/7/a.exe",
		"other/avatars/7/a.png",
	} {
		assert.False(t, OwnsKey(7, key), key)
	}
}
