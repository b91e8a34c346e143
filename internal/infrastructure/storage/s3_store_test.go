package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflow/nfse-api/pkg/config"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Store_UploadAndGet(t *testing.T) {
	fake := newFakeS3()
	store := newS3Store(fake, config.S3Config{Bucket: "artefatos", KeyPrefix: "/nfse/", PublicBaseURL: "https://files.example.com/"})

	url, err := store.UploadFile(context.Background(), "inv-1/dps.xml", []byte("<DPS/>"), "application/xml")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example.com/nfse/inv-1/dps.xml", url)
	assert.Equal(t, "application/xml", fake.types["nfse/inv-1/dps.xml"])

	got, err := store.GetFile(context.Background(), "inv-1/dps.xml")
	require.NoError(t, err)
	assert.Equal(t, []byte("<DPS/>"), got)
}

func TestS3Store_MissingKeyIsNil(t *testing.T) {
	store := newS3Store(newFakeS3(), config.S3Config{Bucket: "artefatos"})

	got, err := store.GetFile(context.Background(), "certs/none.pfx")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestS3Store_URLWithoutPublicBase(t *testing.T) {
	store := newS3Store(newFakeS3(), config.S3Config{Bucket: "artefatos"})

	url, err := store.UploadFile(context.Background(), "a/b.pdf", []byte("%PDF"), "")
	require.NoError(t, err)
	assert.Equal(t, "s3://artefatos/a/b.pdf", url)
}

func TestS3Store_GetError(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("throttled")
	store := newS3Store(fake, config.S3Config{Bucket: "artefatos"})

	_, err := store.GetFile(context.Background(), "x")
	assert.Error(t, err)
}
