package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, _, err := s.Get(ctx, "photos/missing.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "photos/a.png", pngHeader, "image/png"))
	data, ct, err := s.Get(ctx, "photos/a.png")
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
	assert.Equal(t, "image/png", ct)

	require.NoError(t, s.Delete(ctx, "photos/a.png"))
	_, _, err = s.Get(ctx, "photos/a.png")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "photos/a.png"), "deleting a missing key is not an error")
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestDiskStore(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, d)
}

func TestDiskRejectsTraversal(t *testing.T) {
	d, err := NewDisk(t.TempDir())
	require.NoError(t, err)
	err = d.Put(context.Background(), "../escape.jpg", []byte("x"), "image/jpeg")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string]object
	tags    map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = object{data: data, contentType: aws.ToString(in.ContentType)}
	f.tags[*in.Key] = aws.ToString(in.Tagging)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	o, ok := f.objects[*in.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(o.data)),
		ContentType: aws.String(o.contentType),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string]object{}, tags: map[string]string{}}
	s := NewS3(fake, "reports", "litter/")
	exerciseStore(t, s)

	require.NoError(t, s.Put(context.Background(), "photos/b.jpg", []byte("jpeg"), "image/jpeg"))
	_, ok := fake.objects["litter/photos/b.jpg"]
	assert.True(t, ok, "key should carry the configured prefix")
	assert.Equal(t, projectTag, fake.tags["litter/photos/b.jpg"])
}

func TestS3GetWrapsOtherErrors(t *testing.T) {
	s := NewS3(&erroringS3{}, "reports", "")
	_, _, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

type erroringS3 struct{ fakeS3 }

func (e *erroringS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("throttled")
}

func TestNewMinIOValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  MinIOConfig
	}{
		{"no endpoint", MinIOConfig{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"no keys", MinIOConfig{Endpoint: "localhost:9000", Bucket: "b"}},
		{"no bucket", MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMinIO(tt.cfg)
			assert.Error(t, err)
		})
	}

	m, err := NewMinIO(MinIOConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "photos"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", m.region)
}
