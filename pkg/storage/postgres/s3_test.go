package postgres

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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]map[string]string
	headErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}, metadata: map[string]map[string]string{}}
}

func (f *fakeObjects) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.metadata[aws.ToString(in.Key)] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeObjects) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func TestS3Client_PutAndGet(t *testing.T) {
	fake := newFakeObjects()
	client := &S3Client{client: fake, bucket: "invoices"}
	ctx := context.Background()

	body := []byte(`{"invoice_number":"INV-7-202609"}`)
	require.NoError(t, client.PutObject(ctx, "invoices/7/2026-09/INV-7-202609.json", body, "application/json"))

	got, err := client.GetObject(ctx, "invoices/7/2026-09/INV-7-202609.json")
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.Len(t, fake.metadata["invoices/7/2026-09/INV-7-202609.json"]["checksum-sha256"], 64)
}

func TestS3Client_GetMissing(t *testing.T) {
	client := &S3Client{client: newFakeObjects(), bucket: "invoices"}
	_, err := client.GetObject(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3Client_Ping(t *testing.T) {
	fake := newFakeObjects()
	client := &S3Client{client: fake, bucket: "invoices"}
	assert.NoError(t, client.Ping(context.Background()))

	fake.headErr = errors.New("forbidden")
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invoices")
}
