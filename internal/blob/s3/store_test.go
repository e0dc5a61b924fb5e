package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycflow/internal/blob"
)

type fakeS3 struct {
	objects map[string]*s3.PutObjectInput
	bodies  map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string]*s3.PutObjectInput{}, bodies: map[string][]byte{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = in
	f.bodies[key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	put, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(bytes.NewReader(f.bodies[key])),
		ContentType: put.ContentType,
	}, nil
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	store := NewWithAPI(api, "kyc-docs")

	ref, err := store.Put(ctx, "app/documents/front_1.jpg", "image/jpeg", []byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), aws.ToInt64(api.objects["kyc-docs/"+ref].ContentLength))

	obj, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", obj.ContentType)
	assert.Equal(t, []byte("jpeg"), obj.Data)
}

func TestGetMissingMapsToNotFound(t *testing.T) {
	_, err := NewWithAPI(newFakeS3(), "b").Get(context.Background(), "missing")
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestNewPropagatesConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := New(context.Background(), Config{Bucket: "b", Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no config")
}

func TestNewAppliesStaticCredentials(t *testing.T) {
	orig := loadDefaultAWSConfig
	defer func() { loadDefaultAWSConfig = orig }()

	var lo config.LoadOptions
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{Region: lo.Region, Credentials: lo.Credentials}, nil
	}

	store, err := New(context.Background(), Config{
		Bucket: "b", Region: "eu-west-1", Endpoint: "http://127.0.0.1:9000",
		AccessKey: "minio", SecretKey: "minio123",
	})
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, "eu-west-1", lo.Region)

	creds, err := lo.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minio", creds.AccessKeyID)
}
