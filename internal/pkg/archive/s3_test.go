package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TickerFox/internal/pkg/config"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	f.body, _ = io.ReadAll(params.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestArchiveUploadsPayload(t *testing.T) {
	putter := &fakePutter{}
	a := New(putter, "deliveries", "prod")
	a.now = func() time.Time { return time.Date(2025, 12, 5, 23, 30, 0, 0, time.UTC) }

	payload := []byte(`{"items":[]}`)
	require.NoError(t, a.Archive(context.Background(), "KXBTC-25DEC05", payload))

	require.NotNil(t, putter.input)
	assert.Equal(t, "deliveries", *putter.input.Bucket)
	assert.Regexp(t, `^prod/webhooks/KXBTC-25DEC05/2025-12-05/[0-9a-f-]{36}\.json$`, *putter.input.Key)
	assert.Equal(t, "application/json", *putter.input.ContentType)
	assert.Equal(t, payload, putter.body)
	assert.Equal(t, "KXBTC-25DEC05", putter.input.Metadata["event-ticker"])
}

func TestArchiveWrapsUploadError(t *testing.T) {
	a := New(&fakePutter{err: errors.New("access denied")}, "deliveries", "")
	err := a.Archive(context.Background(), "KXBTC-25DEC05", []byte("{}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	a := New(nil, "b", "")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "webhooks/KXFED-25JAN/2026-01-02/abc.json", a.ObjectKey("KXFED-25JAN", at, "abc"))
}

func TestNewFromConfigDisabled(t *testing.T) {
	a, err := NewFromConfig(context.Background(), config.Config{})
	require.NoError(t, err)
	assert.Nil(t, a)

	a, err = NewFromConfig(context.Background(), config.Config{S3ArchiveEnabled: true, S3Bucket: "b"})
	require.NoError(t, err)
	assert.Nil(t, a, "missing credentials disable the archive")
}
