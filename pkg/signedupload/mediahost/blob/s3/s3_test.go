package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/signed-upload/pkg/signedupload/mediahost"
)

// fakeClient keeps objects in memory and records bucket calls
type fakeClient struct {
	mu            sync.Mutex
	objects       map[string][]byte
	contentTypes  map[string]string
	bucketExists  bool
	createdBucket string
}

func newFakeClient() *fakeClient {
	return &fakeClient{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (f *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.contentTypes[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeClient) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeClient) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeClient) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeClient) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeClient) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketExists {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
}

func (f *fakeClient) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdBucket = aws.ToString(in.Bucket)
	return &s3.CreateBucketOutput{}, nil
}

func TestBackend_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	b, err := NewWithClient(ctx, client, Config{Bucket: "media", Prefix: "emulator"})
	require.NoError(t, err)

	require.NoError(t, b.Put(ctx, "demo/image/a.png", bytes.NewReader([]byte("png")), "image/png"))
	assert.Contains(t, client.objects, "emulator/demo/image/a.png")
	assert.Equal(t, "image/png", client.contentTypes["emulator/demo/image/a.png"])

	rc, err := b.Open(ctx, "demo/image/a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	require.NoError(t, b.Delete(ctx, "demo/image/a.png"))
	_, err = b.Open(ctx, "demo/image/a.png")
	assert.ErrorIs(t, err, mediahost.ErrObjectNotFound)
}

func TestNewWithClient_CreatesMissingBucket(t *testing.T) {
	client := newFakeClient()
	_, err := NewWithClient(context.Background(), client, Config{Bucket: "media", CreateBucketIfNotExist: true})
	require.NoError(t, err)
	assert.Equal(t, "media", client.createdBucket)

	existing := newFakeClient()
	existing.bucketExists = true
	_, err = NewWithClient(context.Background(), existing, Config{Bucket: "media", CreateBucketIfNotExist: true})
	require.NoError(t, err)
	assert.Empty(t, existing.createdBucket)
}

func TestNewWithClient_RequiresBucket(t *testing.T) {
	_, err := NewWithClient(context.Background(), newFakeClient(), Config{})
	assert.Error(t, err)
}

func TestIsCode(t *testing.T) {
	assert.True(t, isCode(&smithy.GenericAPIError{Code: "NoSuchBucket"}, "NoSuchBucket"))
	assert.False(t, isCode(errors.New("boom"), "NoSuchBucket"))
}
