package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPutter struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (s *stubPutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	s.input = params
	if params.Body != nil {
		b, _ := io.ReadAll(params.Body)
		s.body = string(b)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &s3.PutObjectOutput{ETag: aws.String(`"abc"`)}, nil
}

func TestAWSS3Storage_Upload(t *testing.T) {
	stub := &stubPutter{}
	store := &AWSS3Storage{client: stub, bucket: "incidents"}

	resp, err := store.Upload(context.Background(), &UploadRequest{
		Key:         "incidents/2026/10/abc.json",
		Reader:      strings.NewReader(`{"ok":true}`),
		ContentType: "application/json",
		Size:        11,
		Metadata:    map[string]string{"status": "resolved"},
	})
	require.NoError(t, err)

	assert.Equal(t, "s3://incidents/incidents/2026/10/abc.json", resp.Location)
	assert.Equal(t, `"abc"`, resp.ETag)
	assert.Equal(t, "incidents", aws.ToString(stub.input.Bucket))
	assert.Equal(t, types.ServerSideEncryptionAes256, stub.input.ServerSideEncryption)
	assert.Equal(t, int64(11), aws.ToInt64(stub.input.ContentLength))
	assert.Equal(t, "resolved", stub.input.Metadata["status"])
	assert.Equal(t, `{"ok":true}`, stub.body)

	stub.err = errors.New("AccessDenied")
	_, err = store.Upload(context.Background(), &UploadRequest{Key: "k", Reader: strings.NewReader("")})
	assert.ErrorContains(t, err, "AccessDenied")
}

func TestLocalStorage_Upload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	resp, err := store.Upload(context.Background(), &UploadRequest{
		Key:    "incidents/2026/10/abc.json",
		Reader: strings.NewReader("report"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), resp.Size)

	data, err := os.ReadFile(filepath.Join(dir, "incidents", "2026", "10", "abc.json"))
	require.NoError(t, err)
	assert.Equal(t, "report", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "incidents", "2026", "10"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../outside.json", "/etc/passwd", "."} {
		_, err := store.Upload(context.Background(), &UploadRequest{Key: key, Reader: strings.NewReader("x")})
		assert.Error(t, err, key)
	}
}
